package burstfence

import (
	"github.com/yourusername/burstfence/core"
	"github.com/yourusername/burstfence/pkg/burstfence"
)

// Re-export main types for convenience
type (
	TokenBucket = core.TokenBucket
	Config      = burstfence.Config
	RateLimiter = burstfence.RateLimiter
	Decision    = burstfence.Decision
	Option      = burstfence.Option
)

var (
	// New creates a bucket from options
	New = burstfence.New
	// Construct starts a fluent bucket builder
	Construct = burstfence.Construct
	// NewRateLimiter creates a keyed rate limiter
	NewRateLimiter = burstfence.NewRateLimiter
)
