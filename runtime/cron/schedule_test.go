package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/goa-temporal/runtime/header"
)

func TestParse(t *testing.T) {
	s, err := Parse("*/15 * * * *")
	require.NoError(t, err)
	assert.False(t, s.IsZero())
	assert.Equal(t, "*/15 * * * *", s.String())
	assert.Equal(t, "*/15 * * * *", s.CanonicalString())
}

func TestParseInvalid(t *testing.T) {
	for _, expr := range []string{"", "* * *", "61 * * * *", "not a cron"} {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
	assert.Panics(t, func() { MustParse("bogus") })
}

func TestNextIsUTC(t *testing.T) {
	s := MustParse("0 3 * * *")
	loc := time.FixedZone("UTC+5", 5*3600)
	from := time.Date(2024, 3, 10, 7, 0, 0, 0, loc) // 02:00 UTC

	next := s.Next(from)
	assert.Equal(t, time.UTC, next.Location())
	assert.True(t, next.Equal(time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)), next)
}

func TestUpcoming(t *testing.T) {
	s := MustParse("@hourly")
	from := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	got := s.Upcoming(from, 3)
	require.Len(t, got, 3)
	for i, want := range []time.Time{
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
	} {
		assert.True(t, want.Equal(got[i]), got[i])
	}
}

func TestUpcomingNonPositiveCount(t *testing.T) {
	s := MustParse("@hourly")
	from := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	assert.Empty(t, s.Upcoming(from, 0))
	assert.NotPanics(t, func() {
		assert.Empty(t, s.Upcoming(from, -2))
	})
}

func TestZeroSchedule(t *testing.T) {
	var s Schedule
	assert.True(t, s.IsZero())
	assert.True(t, s.Next(time.Now()).IsZero())
	assert.Empty(t, s.Upcoming(time.Now(), 3))
}

func TestText(t *testing.T) {
	var s Schedule
	require.NoError(t, s.UnmarshalText([]byte("30 2 * * 1")))
	assert.Equal(t, "30 2 * * 1", s.String())
	b, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "30 2 * * 1", string(b))

	require.NoError(t, s.UnmarshalText(nil))
	assert.True(t, s.IsZero())
	assert.Error(t, s.UnmarshalText([]byte("bad")))
}

func TestScheduleAsHeaderValue(t *testing.T) {
	h, err := header.Empty().WithValue("schedule", MustParse("@daily"))
	require.NoError(t, err)
	v, ok := h.Value("schedule")
	require.True(t, ok)
	assert.Equal(t, "@daily", v)
}
