package burstfence

import (
	"errors"

	"github.com/yourusername/burstfence/core"
)

var (
	// ErrInvalidArgument is returned when a bucket is configured or used with
	// an out-of-range value.
	ErrInvalidArgument = core.ErrInvalidArgument

	// ErrNonPositiveTokens is returned when a consume count is zero or negative
	ErrNonPositiveTokens = core.ErrNonPositiveTokens

	// ErrTokensExceedCapacity is returned when a consume count can never be met
	ErrTokensExceedCapacity = core.ErrTokensExceedCapacity

	// ErrInvalidState is returned when Build is called before a required
	// setting was provided.
	ErrInvalidState = core.ErrInvalidState

	// ErrCancelled is returned when a blocking consume is abandoned
	ErrCancelled = core.ErrCancelled

	// ErrDeadlineUnreachable is wrapped by ErrCancelled when a sleep strategy
	// gave up because no attempt could happen before the deadline
	ErrDeadlineUnreachable = core.ErrDeadlineUnreachable

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidKey is returned when the rate limit key is invalid or empty
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrUnknownPolicy is returned when a named policy is not configured
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrKeyExtractionFailed is returned when key extraction from request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)
