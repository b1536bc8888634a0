package burstfence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/burstfence/core"
)

// ObserverFactory returns the observer for a newly created bucket, or nil.
// name identifies the bucket as "<policy>/<key>", with "default" standing in
// for the unnamed default policy.
type ObserverFactory func(name string) core.Observer

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock every bucket refills against.
func WithRegistryClock(clock core.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithObserverFactory attaches observers to new buckets.
func WithObserverFactory(factory ObserverFactory) RegistryOption {
	return func(r *Registry) {
		r.observers = factory
	}
}

// WithRegistryLogger sets the logger used for cleanup and reload messages.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.With("component", "registry")
		}
	}
}

// withNow overrides the wall clock used for idle tracking.
func withNow(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry hands out one token bucket per (policy, key) pair, creating
// buckets on first use. Idle buckets are dropped by Cleanup.
type Registry struct {
	mu      sync.RWMutex
	config  *Config
	buckets map[string]*bucketEntry

	clock     core.Clock
	observers ObserverFactory
	logger    *slog.Logger
	now       func() time.Time

	cronMu     sync.Mutex
	cron       *cron.Cron
	cronCancel context.CancelFunc
}

// bucketEntry wraps a bucket with metadata for cleanup.
type bucketEntry struct {
	bucket *core.TokenBucket
	policy string

	mu           sync.Mutex // Protects lastAccessed
	lastAccessed time.Time
}

func (e *bucketEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastAccessed = now
	e.mu.Unlock()
}

// NewRegistry creates a registry serving the policies in config. The config
// is copied; later changes go through Apply.
func NewRegistry(config *Config, opts ...RegistryOption) (*Registry, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		config:  config.Clone(),
		buckets: make(map[string]*bucketEntry),
		clock:   core.NewSystemClock(),
		logger:  slog.Default().With("component", "registry"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func bucketID(policy, key string) string {
	if policy == "" {
		policy = "default"
	}
	return policy + "/" + key
}

// Bucket returns the bucket for key under the named policy, creating it if
// needed. The empty policy name selects the defaults.
func (r *Registry) Bucket(key, policy string) (*core.TokenBucket, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	id := bucketID(policy, key)

	// Fast path: bucket exists
	r.mu.RLock()
	entry, exists := r.buckets[id]
	r.mu.RUnlock()
	if exists {
		entry.touch(r.now())
		return entry.bucket, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another goroutine might have created it
	if entry, exists = r.buckets[id]; exists {
		entry.touch(r.now())
		return entry.bucket, nil
	}

	cfg, err := r.config.LookupPolicy(policy)
	if err != nil {
		return nil, err
	}

	var observer core.Observer
	if r.observers != nil {
		observer = r.observers(id)
	}
	bucket, err := New(cfg.Options(r.clock, observer)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", id, err)
	}

	r.buckets[id] = &bucketEntry{bucket: bucket, policy: policy, lastAccessed: r.now()}
	return bucket, nil
}

// Config returns the configuration currently in force. Callers must not
// modify it.
func (r *Registry) Config() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Apply switches to a new configuration. Buckets whose policy was removed or
// changed are dropped and rebuilt on next use; the rest keep their tokens.
// It returns the number of buckets dropped.
func (r *Registry) Apply(config *Config) (int, error) {
	if config == nil {
		return 0, fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return 0, err
	}
	next := config.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, entry := range r.buckets {
		before, _ := r.config.LookupPolicy(entry.policy)
		after, err := next.LookupPolicy(entry.policy)
		if err != nil || before != after {
			delete(r.buckets, id)
			dropped++
		}
	}
	r.config = next

	r.logger.Info("configuration applied",
		"policies", len(next.Policies),
		"dropped_buckets", dropped,
	)
	return dropped, nil
}

// Cleanup removes buckets that haven't been accessed within CleanupAge.
// Returns the number of buckets removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.CleanupAge == 0 {
		return 0
	}

	cutoff := r.now().Add(-r.config.CleanupAge)
	removed := 0
	for id, entry := range r.buckets {
		entry.mu.Lock()
		lastAccessed := entry.lastAccessed
		entry.mu.Unlock()

		if lastAccessed.Before(cutoff) {
			delete(r.buckets, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of live buckets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

// StartCleanup runs Cleanup on the configured cron schedule until ctx is
// done or StopCleanup is called. With no schedule it does nothing.
//
// Common schedules:
//   - "*/10 * * * *" - every 10 minutes
//   - "@every 30s"   - every 30 seconds
func (r *Registry) StartCleanup(ctx context.Context) error {
	schedule := r.Config().CleanupSchedule
	if schedule == "" {
		r.logger.Info("cleanup schedule not configured, skipping")
		return nil
	}

	r.cronMu.Lock()
	defer r.cronMu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("cleanup already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, r.runCleanup); err != nil {
		return fmt.Errorf("failed to schedule cleanup %q: %w", schedule, err)
	}
	c.Start()

	ctx, cancel := context.WithCancel(ctx)
	r.cron = c
	r.cronCancel = cancel

	r.logger.Info("cleanup scheduler started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		r.stopCron(c)
	}()
	return nil
}

func (r *Registry) runCleanup() {
	removed := r.Cleanup()
	if removed > 0 {
		r.logger.Info("idle buckets removed", "removed", removed, "remaining", r.Count())
	} else {
		r.logger.Debug("cleanup completed, nothing removed")
	}
}

// StopCleanup stops the cleanup schedule and waits for a running pass.
func (r *Registry) StopCleanup() {
	r.cronMu.Lock()
	c := r.cron
	r.cronMu.Unlock()

	if c != nil {
		r.stopCron(c)
	}
}

// stopCron stops c if it is still the running schedule. A later
// StartCleanup may have replaced it, in which case there is nothing to do.
func (r *Registry) stopCron(c *cron.Cron) {
	r.cronMu.Lock()
	defer r.cronMu.Unlock()

	if r.cron != c {
		return
	}
	r.cronCancel()
	<-c.Stop().Done()
	r.cron = nil
	r.cronCancel = nil
	r.logger.Info("cleanup scheduler stopped")
}
