package burstfence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yourusername/burstfence/core"
)

// RateLimiter applies per-key token buckets to requests.
type RateLimiter interface {
	// Allow takes one token from key's bucket under the default policy.
	Allow(key string) (*Decision, error)

	// Wait blocks until key's bucket under the default policy has a token or
	// ctx is done.
	Wait(ctx context.Context, key string) (*Decision, error)

	// Take serves a fully specified request.
	Take(ctx context.Context, req TakeRequest) (*Decision, error)

	// AllowRequest extracts the key and route from r and takes one token
	// from the matching bucket.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware returns an HTTP middleware that applies rate limiting.
	Middleware(next http.Handler) http.Handler

	// Reload switches to a new configuration without dropping unaffected
	// buckets.
	Reload(config *Config) error

	// Registry exposes the underlying bucket registry.
	Registry() *Registry

	// StartBackgroundCleanup starts the idle bucket cleanup schedule.
	// Returns a function to stop it.
	StartBackgroundCleanup() func()
}

// TakeRequest describes one consumption.
type TakeRequest struct {
	Key string

	// Policy names the policy to use; empty selects the defaults
	Policy string

	// Tokens to take; 0 means 1
	Tokens int64

	// Wait is the longest the caller is willing to wait. 0 never waits.
	Wait time.Duration
}

// Decision contains the result of a rate limit check.
type Decision struct {
	// Allowed indicates whether the request should be allowed (true) or denied (false)
	Allowed bool

	// Remaining is the number of tokens left in the bucket
	Remaining int64

	// Limit is the total capacity of the bucket (max burst)
	Limit int64

	// RetryAfter is how long until the next refill. This is 0 if Allowed is true
	RetryAfter time.Duration

	// Key is the rate limit key that was used
	Key string

	// Route is the route path that was checked
	Route string
}

// LimiterOption is a functional option for configuring a RateLimiter.
type LimiterOption func(*rateLimiter) error

// WithConfig sets the configuration for the rate limiter.
func WithConfig(config *Config) LimiterOption {
	return func(rl *rateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) LimiterOption {
	return func(rl *rateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithKeyExtractor overrides the configured key extractor.
func WithKeyExtractor(extractor KeyExtractor) LimiterOption {
	return func(rl *rateLimiter) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		rl.keyExtractor = extractor
		return nil
	}
}

// RouteExtractorFunc maps a request path to a policy name.
type RouteExtractorFunc func(path string) string

// WithRouteExtractor sets how the route is derived from a request path.
// By default, r.URL.Path is used.
func WithRouteExtractor(fn RouteExtractorFunc) LimiterOption {
	return func(rl *rateLimiter) error {
		if fn == nil {
			return fmt.Errorf("%w: route extractor cannot be nil", ErrInvalidConfig)
		}
		rl.routeExtractor = fn
		return nil
	}
}

// WithRegistryOptions passes options through to the bucket registry.
func WithRegistryOptions(opts ...RegistryOption) LimiterOption {
	return func(rl *rateLimiter) error {
		rl.registryOpts = append(rl.registryOpts, opts...)
		return nil
	}
}

// WithLogger sets the logger for the limiter and its registry.
func WithLogger(logger *slog.Logger) LimiterOption {
	return func(rl *rateLimiter) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		rl.logger = logger.With("component", "limiter")
		rl.registryOpts = append(rl.registryOpts, WithRegistryLogger(logger))
		return nil
	}
}

// rateLimiter is the concrete implementation of RateLimiter.
type rateLimiter struct {
	config         *Config
	registry       *Registry
	keyExtractor   KeyExtractor
	fixedExtractor bool
	extractor      atomic.Pointer[KeyExtractor]
	routeExtractor RouteExtractorFunc
	registryOpts   []RegistryOption
	logger         *slog.Logger
}

// NewRateLimiter creates a new RateLimiter with the given options.
// Without options it uses NewConfig.
//
// Example:
//
//	limiter, err := NewRateLimiter(
//	    WithConfigFile("config.yaml"),
//	    WithKeyExtractor(ExtractIPWithProxy()),
//	)
func NewRateLimiter(opts ...LimiterOption) (RateLimiter, error) {
	rl := &rateLimiter{
		config:         NewConfig(),
		routeExtractor: func(path string) string { return path },
		logger:         slog.Default().With("component", "limiter"),
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	extractor := rl.keyExtractor
	if extractor == nil {
		var err error
		if extractor, err = ParseKeyExtractorConfig(rl.config.KeyExtractor); err != nil {
			return nil, fmt.Errorf("failed to parse key extractor config: %w", err)
		}
	} else {
		rl.fixedExtractor = true
	}
	rl.extractor.Store(&extractor)

	registry, err := NewRegistry(rl.config, rl.registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	rl.registry = registry

	return rl, nil
}

// Allow checks if a request with the given key is allowed.
func (rl *rateLimiter) Allow(key string) (*Decision, error) {
	return rl.Take(context.Background(), TakeRequest{Key: key})
}

// Wait blocks until a token is available for key. It returns an error
// wrapping ErrCancelled if ctx is done first.
func (rl *rateLimiter) Wait(ctx context.Context, key string) (*Decision, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if policy := rl.registry.Config().Defaults; !policy.Enabled {
		return unlimited(key, policy), nil
	}

	bucket, err := rl.registry.Bucket(key, "")
	if err != nil {
		return nil, err
	}
	if err := bucket.Consume(ctx); err != nil {
		return nil, err
	}
	return decide(bucket, key, true), nil
}

// Take consumes req.Tokens from the bucket, waiting up to req.Wait. Running
// out of wait time is a denial, not an error; cancellation of ctx itself is
// returned as an error wrapping ErrCancelled. A disabled policy allows every
// request without creating a bucket.
func (rl *rateLimiter) Take(ctx context.Context, req TakeRequest) (*Decision, error) {
	if req.Key == "" {
		return nil, ErrInvalidKey
	}
	policy, err := rl.registry.Config().LookupPolicy(req.Policy)
	if err != nil {
		return nil, err
	}

	n := req.Tokens
	if n == 0 {
		n = 1
	}

	if !policy.Enabled {
		if n < 0 {
			return nil, fmt.Errorf("%w: %w: %d", ErrInvalidArgument, ErrNonPositiveTokens, n)
		}
		return unlimited(req.Key, policy), nil
	}

	bucket, err := rl.registry.Bucket(req.Key, req.Policy)
	if err != nil {
		return nil, err
	}

	var allowed bool
	if req.Wait <= 0 {
		if allowed, err = bucket.TryConsumeN(n); err != nil {
			return nil, err
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, req.Wait)
		err = bucket.ConsumeN(waitCtx, n)
		cancel()

		switch {
		case err == nil:
			allowed = true
		case errors.Is(err, ErrCancelled) && ctx.Err() == nil:
			allowed = false
		default:
			return nil, err
		}
	}

	return decide(bucket, req.Key, allowed), nil
}

// unlimited is the decision for a policy with rate limiting disabled.
func unlimited(key string, policy PolicyConfig) *Decision {
	return &Decision{
		Allowed:   true,
		Remaining: policy.Capacity,
		Limit:     policy.Capacity,
		Key:       key,
	}
}

func decide(bucket *core.TokenBucket, key string, allowed bool) *Decision {
	decision := &Decision{
		Allowed:   allowed,
		Remaining: bucket.Available(),
		Limit:     bucket.Capacity(),
		Key:       key,
	}
	if !allowed {
		if wait, ok := bucket.NextRefillIn(); ok {
			decision.RetryAfter = wait
		}
	}
	return decision
}

// AllowRequest checks if an HTTP request is allowed. The route selects a
// policy of the same name, falling back to the defaults.
func (rl *rateLimiter) AllowRequest(r *http.Request) (*Decision, error) {
	extractor := *rl.extractor.Load()
	key, err := extractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}

	route := rl.routeExtractor(r.URL.Path)
	config := rl.registry.Config()

	policyName := ""
	if _, exists := config.Policies[route]; exists {
		policyName = route
	}

	decision, err := rl.Take(r.Context(), TakeRequest{Key: key, Policy: policyName})
	if err != nil {
		return nil, err
	}
	decision.Route = route
	return decision, nil
}

// Middleware returns an HTTP middleware that applies rate limiting.
// It sets standard rate limit headers and returns 429 when limits are exceeded.
//
// Standard Headers (RFC 6585 + draft-ietf-httpapi-ratelimit-headers):
//   - X-RateLimit-Limit: Maximum requests allowed in the window
//   - X-RateLimit-Remaining: Remaining requests in current window
//   - X-RateLimit-Reset: Time of the next refill (Unix timestamp)
//   - Retry-After: Seconds to wait before retrying (when rate limited)
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.AllowRequest(r)
		if err != nil {
			if errors.Is(err, ErrKeyExtractionFailed) {
				rl.logger.Warn("rejecting request without rate limit key", "path", r.URL.Path, "error", err)
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}
			rl.logger.Error("rate limit check failed", "path", r.URL.Path, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Set rate limit headers (always, even when allowed)
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			if decision.RetryAfter > 0 {
				resetTime := time.Now().Add(decision.RetryAfter).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
				w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
			}
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds up so clients never retry before the refill.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(secs, 10)
}

// Reload applies a new configuration to the registry and, unless a key
// extractor was fixed by option, switches to the configured extractor.
func (rl *rateLimiter) Reload(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}

	var extractor KeyExtractor
	if !rl.fixedExtractor {
		var err error
		if extractor, err = ParseKeyExtractorConfig(config.KeyExtractor); err != nil {
			return err
		}
	}

	dropped, err := rl.registry.Apply(config)
	if err != nil {
		return err
	}
	if extractor != nil {
		rl.extractor.Store(&extractor)
	}

	rl.logger.Info("rate limiter reloaded", "dropped_buckets", dropped)
	return nil
}

func (rl *rateLimiter) Registry() *Registry {
	return rl.registry
}

// StartBackgroundCleanup starts the registry's cleanup schedule.
// Returns a function to stop it.
func (rl *rateLimiter) StartBackgroundCleanup() func() {
	if err := rl.registry.StartCleanup(context.Background()); err != nil {
		rl.logger.Error("failed to start background cleanup", "error", err)
		return func() {}
	}
	return rl.registry.StopCleanup
}
