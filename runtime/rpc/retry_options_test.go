package rpc

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFirstInterval(t *testing.T) {
	assert.Equal(t, DefaultInitialInterval, RetryOptions{}.FirstInterval())
	assert.Equal(t, time.Second, RetryOptions{InitialInterval: time.Second}.FirstInterval())
}

func TestNextIntervalIsAdditive(t *testing.T) {
	o := RetryOptions{InitialInterval: 100 * time.Millisecond, BackoffCoefficient: 50}
	assert.Equal(t, 150*time.Millisecond, o.NextInterval(100*time.Millisecond))
	assert.Equal(t, 200*time.Millisecond, o.NextInterval(150*time.Millisecond))
}

func TestNextIntervalIsCapped(t *testing.T) {
	o := RetryOptions{BackoffCoefficient: 1000, MaximumInterval: 1200 * time.Millisecond}
	assert.Equal(t, 1200*time.Millisecond, o.NextInterval(500*time.Millisecond))
}

func TestExhausted(t *testing.T) {
	assert.False(t, RetryOptions{}.Exhausted(1000))
	o := RetryOptions{MaximumAttempts: 3}
	assert.False(t, o.Exhausted(2))
	assert.True(t, o.Exhausted(3))
}

func TestWithersReturnCopies(t *testing.T) {
	base := DefaultRetryOptions()
	o := base.WithInitialInterval(time.Second).
		WithBackoffCoefficient(10).
		WithMaximumInterval(time.Minute).
		WithMaximumAttempts(5)

	assert.Equal(t, DefaultRetryOptions(), base)
	assert.Equal(t, RetryOptions{
		InitialInterval:    time.Second,
		BackoffCoefficient: 10,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    5,
	}, o)
}

// TestBackoffScheduleProperty verifies that the n-th retry waits
// min(initial + n*coefficient, maximum) for every n > 0.
func TestBackoffScheduleProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("additive capped schedule", prop.ForAll(
		func(initialMs, coef, maxMs, retries int) bool {
			o := RetryOptions{
				InitialInterval:    time.Duration(initialMs) * time.Millisecond,
				BackoffCoefficient: float64(coef),
				MaximumInterval:    time.Duration(maxMs) * time.Millisecond,
			}
			wait := o.FirstInterval()
			for n := 1; n <= retries; n++ {
				wait = o.NextInterval(wait)
				want := time.Duration(initialMs+n*coef) * time.Millisecond
				if want > o.MaximumInterval {
					want = o.MaximumInterval
				}
				if wait != want {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(0, 500),
		gen.IntRange(1, 5000),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
