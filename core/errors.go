package core

import "errors"

var (
	// ErrInvalidArgument is returned for non-positive or out of range inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNonPositiveTokens is returned when fewer than one token is requested.
	ErrNonPositiveTokens = errors.New("number of tokens to consume must be positive")

	// ErrTokensExceedCapacity is returned when more tokens are requested than the bucket can hold.
	ErrTokensExceedCapacity = errors.New("number of tokens to consume exceeds bucket capacity")

	// ErrInvalidState is returned when a bucket is built without mandatory configuration.
	ErrInvalidState = errors.New("invalid state")

	// ErrCancelled is returned when a blocking consume gives up before tokens were available.
	ErrCancelled = errors.New("consume cancelled")

	// ErrDeadlineUnreachable is returned by a sleep strategy that gives up
	// early because its next attempt would fall after the context deadline.
	// The context itself is still live when this is returned.
	ErrDeadlineUnreachable = errors.New("next attempt would exceed context deadline")
)
