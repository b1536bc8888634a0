package metrics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/burstfence/core"
	"github.com/yourusername/burstfence/store"
)

// StoreTimeout bounds each write-through to the store. Writes happen on the
// consuming goroutine, so a slow store delays the caller by at most this much.
const StoreTimeout = 100 * time.Millisecond

// Metrics tracks bucket activity in process and writes per-bucket counters
// through to a store.
type Metrics struct {
	consumed   atomic.Int64
	rejected   atomic.Int64
	refilled   atomic.Int64
	overflowed atomic.Int64
	cancelled  atomic.Int64

	// Per-bucket stats
	mu          sync.RWMutex
	bucketStats map[string]*BucketStats
	startTime   time.Time

	store        store.Store
	storeTimeout time.Duration
	logger       *slog.Logger
}

// BucketStats tracks statistics for a specific bucket
type BucketStats struct {
	Bucket     string    `json:"bucket"`
	Policy     string    `json:"policy"`
	Consumed   int64     `json:"consumed"`
	Rejected   int64     `json:"rejected"`
	Cancelled  int64     `json:"cancelled"`
	Available  int64     `json:"available"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NewMetrics creates a new metrics tracker. st may be nil.
func NewMetrics(st store.Store, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{
		bucketStats:  make(map[string]*BucketStats),
		startTime:    time.Now(),
		store:        st,
		storeTimeout: StoreTimeout,
		logger:       logger.With("component", "metrics"),
	}
}

// ForBucket returns an observer recording events under name.
func (m *Metrics) ForBucket(name string) core.Observer {
	return core.ObserverFunc(func(e core.Event) {
		m.Record(name, e)
	})
}

// PolicyOf returns the policy part of a "<policy>/<key>" bucket name.
func PolicyOf(bucket string) string {
	policy, _, _ := strings.Cut(bucket, "/")
	return policy
}

// Delta converts an event to counter increments.
func Delta(e core.Event) store.Counters {
	switch e.Type {
	case core.EventConsumed:
		return store.Counters{Consumed: e.Tokens}
	case core.EventRejected:
		return store.Counters{Rejected: 1}
	case core.EventRefilled:
		return store.Counters{Refilled: e.Tokens, Overflowed: e.Overflowed}
	case core.EventCancelled:
		return store.Counters{Cancelled: 1}
	}
	return store.Counters{}
}

// Record accounts for one bucket event
func (m *Metrics) Record(bucket string, e core.Event) {
	delta := Delta(e)
	m.consumed.Add(delta.Consumed)
	m.rejected.Add(delta.Rejected)
	m.refilled.Add(delta.Refilled)
	m.overflowed.Add(delta.Overflowed)
	m.cancelled.Add(delta.Cancelled)

	now := time.Now()
	m.mu.Lock()
	stats, exists := m.bucketStats[bucket]
	if !exists {
		stats = &BucketStats{
			Bucket:    bucket,
			Policy:    PolicyOf(bucket),
			FirstSeen: now,
		}
		m.bucketStats[bucket] = stats
	}
	stats.Consumed += delta.Consumed
	stats.Rejected += delta.Rejected
	stats.Cancelled += delta.Cancelled
	stats.Available = e.Available
	stats.LastSeenAt = now
	m.mu.Unlock()

	if m.store != nil && !delta.IsZero() {
		ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
		defer cancel()
		if err := m.store.Add(ctx, bucket, delta); err != nil {
			m.logger.Warn("failed to persist bucket counters", "bucket", bucket, "error", err)
		}
	}
}

// Stored returns the persisted counters for bucket. Without a store it
// reports the in-process totals.
func (m *Metrics) Stored(ctx context.Context, bucket string) (store.Counters, error) {
	if m.store != nil {
		return m.store.Get(ctx, bucket)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	stats, ok := m.bucketStats[bucket]
	if !ok {
		return store.Counters{}, nil
	}
	return store.Counters{Consumed: stats.Consumed, Rejected: stats.Rejected, Cancelled: stats.Cancelled}, nil
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	topBuckets := make([]*BucketStats, 0, len(m.bucketStats))
	for _, stats := range m.bucketStats {
		copied := *stats
		topBuckets = append(topBuckets, &copied)
	}
	unique := int64(len(m.bucketStats))
	m.mu.RUnlock()

	// Busiest first, top 10
	sort.Slice(topBuckets, func(i, j int) bool {
		a := topBuckets[i].Consumed + topBuckets[i].Rejected
		b := topBuckets[j].Consumed + topBuckets[j].Rejected
		if a != b {
			return a > b
		}
		return topBuckets[i].Bucket < topBuckets[j].Bucket
	})
	if len(topBuckets) > 10 {
		topBuckets = topBuckets[:10]
	}

	return &Snapshot{
		TokensConsumed:   m.consumed.Load(),
		Rejected:         m.rejected.Load(),
		TokensRefilled:   m.refilled.Load(),
		TokensOverflowed: m.overflowed.Load(),
		Cancelled:        m.cancelled.Load(),
		UniqueBuckets:    unique,
		TopBuckets:       topBuckets,
		UptimeSeconds:    int64(time.Since(m.startTime).Seconds()),
		StartTime:        m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TokensConsumed   int64          `json:"tokens_consumed"`
	Rejected         int64          `json:"rejected"`
	TokensRefilled   int64          `json:"tokens_refilled"`
	TokensOverflowed int64          `json:"tokens_overflowed"`
	Cancelled        int64          `json:"cancelled"`
	UniqueBuckets    int64          `json:"unique_buckets"`
	TopBuckets       []*BucketStats `json:"top_buckets"`
	UptimeSeconds    int64          `json:"uptime_seconds"`
	StartTime        time.Time      `json:"start_time"`
}
