package rpc

import "time"

// DefaultInitialInterval is the wait before the first retry when none is
// configured.
const DefaultInitialInterval = 500 * time.Millisecond

// DefaultBackoffCoefficient is the backoff increment used by
// DefaultRetryOptions.
const DefaultBackoffCoefficient = 2.0

// RetryOptions configures how the client retries calls that fail with a
// retryable status.
//
// The wait between attempts starts at InitialInterval and grows additively:
// after every retry BackoffCoefficient milliseconds are added to it, capped at
// MaximumInterval when one is set.
type RetryOptions struct {
	// InitialInterval is the wait before the first retry. Zero means
	// DefaultInitialInterval.
	InitialInterval time.Duration
	// BackoffCoefficient is the number of milliseconds added to the wait
	// after each retry.
	BackoffCoefficient float64
	// MaximumInterval caps the wait between attempts. Zero means no cap.
	MaximumInterval time.Duration
	// MaximumAttempts bounds the number of attempts including the first one.
	// Zero means unlimited.
	MaximumAttempts int
}

// DefaultRetryOptions returns the retry policy used when a call does not
// configure one: unlimited attempts starting at 500ms.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		InitialInterval:    DefaultInitialInterval,
		BackoffCoefficient: DefaultBackoffCoefficient,
	}
}

// WithInitialInterval returns a copy of o with the given initial interval.
func (o RetryOptions) WithInitialInterval(d time.Duration) RetryOptions {
	o.InitialInterval = d
	return o
}

// WithBackoffCoefficient returns a copy of o with the given coefficient.
func (o RetryOptions) WithBackoffCoefficient(c float64) RetryOptions {
	o.BackoffCoefficient = c
	return o
}

// WithMaximumInterval returns a copy of o with the given interval cap.
func (o RetryOptions) WithMaximumInterval(d time.Duration) RetryOptions {
	o.MaximumInterval = d
	return o
}

// WithMaximumAttempts returns a copy of o with the given attempt budget.
func (o RetryOptions) WithMaximumAttempts(n int) RetryOptions {
	o.MaximumAttempts = n
	return o
}

// FirstInterval returns the wait before the first retry.
func (o RetryOptions) FirstInterval() time.Duration {
	if o.InitialInterval <= 0 {
		return DefaultInitialInterval
	}
	return o.InitialInterval
}

// NextInterval returns the wait that follows current: current plus
// BackoffCoefficient milliseconds, capped at MaximumInterval.
func (o RetryOptions) NextInterval(current time.Duration) time.Duration {
	next := current + time.Duration(o.BackoffCoefficient*float64(time.Millisecond))
	if next < 0 {
		next = 0
	}
	if o.MaximumInterval > 0 && next > o.MaximumInterval {
		next = o.MaximumInterval
	}
	return next
}

// Exhausted reports whether attempt (1-based) used up the attempt budget.
func (o RetryOptions) Exhausted(attempt int) bool {
	return o.MaximumAttempts > 0 && attempt >= o.MaximumAttempts
}
