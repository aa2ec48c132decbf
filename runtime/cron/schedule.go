// Package cron describes cron schedules attached to workflow starts. When a
// workflow is started with a schedule the server runs it on every activation,
// evaluated in UTC. The next run is scheduled only once the current run
// completes, fails or times out; activations due while a run is still in
// progress are skipped.
package cron

import (
	"fmt"
	"time"

	robfig "github.com/robfig/cron"
)

// Schedule is a validated five field cron expression (minute, hour, day of
// month, month, day of week). Descriptors such as "@hourly" and
// "@every 1h30m" are accepted too. The zero value is an empty schedule.
type Schedule struct {
	expr  string
	sched robfig.Schedule
}

// Parse validates expr and returns the corresponding schedule.
func Parse(expr string) (Schedule, error) {
	sched, err := robfig.ParseStandard(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return Schedule{expr: expr, sched: sched}, nil
}

// MustParse is like Parse but panics on invalid expressions.
func MustParse(expr string) Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// IsZero reports whether s is the empty schedule.
func (s Schedule) IsZero() bool {
	return s.sched == nil
}

// Next returns the first activation strictly after t, in UTC. It returns the
// zero time for the empty schedule or when no activation exists.
func (s Schedule) Next(t time.Time) time.Time {
	if s.sched == nil {
		return time.Time{}
	}
	return s.sched.Next(t.UTC())
}

// Upcoming returns the n activations following t. A negative n is treated
// as zero.
func (s Schedule) Upcoming(t time.Time, n int) []time.Time {
	n = max(n, 0)
	out := make([]time.Time, 0, n)
	for range n {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}

// CanonicalString returns the cron expression. It lets a schedule be stored
// directly as a header value.
func (s Schedule) CanonicalString() string {
	return s.expr
}

// String returns the cron expression.
func (s Schedule) String() string {
	return s.expr
}

// MarshalText implements encoding.TextMarshaler.
func (s Schedule) MarshalText() ([]byte, error) {
	return []byte(s.expr), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields the
// empty schedule.
func (s *Schedule) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = Schedule{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
