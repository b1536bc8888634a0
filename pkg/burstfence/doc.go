// Package burstfence builds fixed-interval token buckets and serves them per
// client key.
//
// A bucket holds at most Capacity tokens. Every Period it receives
// TokensPerPeriod tokens in a single burst; tokens that do not fit are lost.
// A new bucket starts empty and receives its first burst on first use.
//
// # Building a Bucket
//
// With functional options:
//
//	bucket, err := burstfence.New(
//	    burstfence.WithCapacity(10),
//	    burstfence.WithFixedIntervalRefillStrategy(5, 10*time.Second),
//	)
//
// Or with the fluent builder:
//
//	bucket, err := burstfence.Construct().
//	    WithCapacity(10).
//	    WithFixedIntervalRefillStrategy(5, 10*time.Second).
//	    WithFixedSleepStrategy(20 * time.Millisecond).
//	    Build()
//
// TryConsume never blocks. Consume waits, using the sleep strategy between
// attempts, until tokens arrive or its context is done:
//
//	if err := bucket.Consume(ctx); errors.Is(err, burstfence.ErrCancelled) {
//	    // gave up waiting
//	}
//
// # HTTP Middleware
//
//	limiter, _ := burstfence.NewRateLimiter(
//	    burstfence.WithConfigFile("config.yaml"),
//	    burstfence.WithKeyExtractor(burstfence.ExtractIPWithProxy()),
//	)
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// The middleware sets X-RateLimit-Limit and X-RateLimit-Remaining on every
// response, and X-RateLimit-Reset and Retry-After on 429 responses.
//
// # Configuration
//
//	defaults:
//	  capacity: 100
//	  tokens_per_period: 10
//	  period: 1s
//	  enabled: true
//
//	policies:
//	  "/api/login":
//	    capacity: 5
//	    tokens_per_period: 1
//	    period: 12s
//	    enabled: true
//	    sleep:
//	      strategy: fixed
//	      interval: 50ms
//
//	key_extractor: "ip"
//	cleanup_age: 1h
//	cleanup_schedule: "@every 10m"
//
// Durations use Go syntax ("1s", "10m"). A Watcher can reload the file into a
// running RateLimiter.
package burstfence
