package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourusername/burstfence/core"
)

// DefaultMaxWait bounds how long Throttle holds a request waiting for a token.
const DefaultMaxWait = 5 * time.Second

var (
	// ErrNilBucket is returned when a throttle is built without a bucket
	ErrNilBucket = errors.New("bucket cannot be nil")

	// ErrThrottled is returned by the round tripper when no token arrived
	// before the request context ended.
	ErrThrottled = errors.New("request throttled")
)

// Option configures Throttle.
type Option func(*throttle)

// WithMaxWait sets the longest a request waits for a token. 0 never waits.
func WithMaxWait(d time.Duration) Option {
	return func(t *throttle) {
		t.maxWait = d
	}
}

// WithLogger sets the logger for throttled requests.
func WithLogger(logger *slog.Logger) Option {
	return func(t *throttle) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithCost sets how many tokens a request costs. Costs are clamped to the
// bucket capacity.
func WithCost(cost func(*http.Request) int64) Option {
	return func(t *throttle) {
		t.cost = cost
	}
}

type throttle struct {
	bucket  *core.TokenBucket
	maxWait time.Duration
	cost    func(*http.Request) int64
	logger  *slog.Logger
}

// Throttle serializes all requests through one bucket. Unlike a keyed
// limiter it queues requests, holding each until a token arrives or the
// wait bound passes, and answers 503 when it gives up.
func Throttle(bucket *core.TokenBucket, opts ...Option) (func(http.Handler) http.Handler, error) {
	if bucket == nil {
		return nil, ErrNilBucket
	}

	t := &throttle{
		bucket:  bucket,
		maxWait: DefaultMaxWait,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "throttle")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := t.tokensFor(r)

			var err error
			if t.maxWait <= 0 {
				var ok bool
				if ok, err = t.bucket.TryConsumeN(n); err == nil && !ok {
					err = core.ErrCancelled
				}
			} else {
				ctx, cancel := context.WithTimeout(r.Context(), t.maxWait)
				start := time.Now()
				err = t.bucket.ConsumeN(ctx, n)
				cancel()
				if waited := time.Since(start); err == nil && waited > time.Millisecond {
					t.logger.Debug("request waited for token", "path", r.URL.Path, "waited", waited.String())
				}
			}

			if err != nil {
				t.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func (t *throttle) tokensFor(r *http.Request) int64 {
	if t.cost == nil {
		return 1
	}
	return max(1, min(t.cost(r), t.bucket.Capacity()))
}

func (t *throttle) reject(w http.ResponseWriter, r *http.Request, err error) {
	t.logger.Info("request throttled", "path", r.URL.Path, "error", err)

	if wait, ok := t.bucket.NextRefillIn(); ok && wait > 0 {
		secs := int64((wait + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)

	json.NewEncoder(w).Encode(map[string]any{
		"error":   "throttled",
		"message": "Server is busy. Please try again later.",
	})
}

// roundTripper holds outbound requests until the bucket grants a token.
type roundTripper struct {
	bucket *core.TokenBucket
	next   http.RoundTripper
}

// NewRoundTripper returns an http.RoundTripper that takes one token per
// request, waiting as long as the request context allows. A nil next uses
// http.DefaultTransport.
func NewRoundTripper(bucket *core.TokenBucket, next http.RoundTripper) (http.RoundTripper, error) {
	if bucket == nil {
		return nil, ErrNilBucket
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{bucket: bucket, next: next}, nil
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.bucket.Consume(r.Context()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrThrottled, err)
	}
	return rt.next.RoundTrip(r)
}
