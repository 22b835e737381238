package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestIsBusinessDay(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBusinessDay(day("2024-01-05")))  // Friday
	assert.False(t, IsBusinessDay(day("2024-01-06"))) // Saturday
	assert.False(t, IsBusinessDay(day("2024-01-07"))) // Sunday
	assert.True(t, IsBusinessDay(day("2024-01-08")))  // Monday
}

func TestNextPreviousBusinessDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, next, prev string
	}{
		{"2024-01-05", "2024-01-08", "2024-01-04"},
		{"2024-01-06", "2024-01-08", "2024-01-05"},
		{"2024-01-07", "2024-01-08", "2024-01-05"},
		{"2024-01-08", "2024-01-09", "2024-01-05"},
		{"2024-03-01", "2024-03-04", "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.next, Key(NextBusinessDay(day(tt.in))))
			assert.Equal(t, tt.prev, Key(PreviousBusinessDay(day(tt.in))))
		})
	}
}

func TestBusinessDaysBetween(t *testing.T) {
	t.Parallel()

	got := BusinessDaysBetween(day("2024-01-04"), day("2024-01-09"))
	var keys []string
	for _, d := range got {
		keys = append(keys, Key(d))
	}
	assert.Equal(t, []string{"2024-01-04", "2024-01-05", "2024-01-08", "2024-01-09"}, keys)

	assert.Empty(t, BusinessDaysBetween(day("2024-01-06"), day("2024-01-07")))
	assert.Empty(t, BusinessDaysBetween(day("2024-01-09"), day("2024-01-08")))
}

func TestBusinessDaysRestartable(t *testing.T) {
	t.Parallel()

	seq := BusinessDays(day("2024-01-01"), day("2024-01-31"))
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	assert.Equal(t, 23, count())
	assert.Equal(t, 23, count())
}

func TestTradingDayFor(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := Calendar{Location: ny, OpenHour: 9, OpenMinute: 30}

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"after open", time.Date(2024, 1, 9, 10, 0, 0, 0, ny), "2024-01-09"},
		{"exactly at open", time.Date(2024, 1, 9, 9, 30, 0, 0, ny), "2024-01-09"},
		{"before open", time.Date(2024, 1, 9, 9, 29, 0, 0, ny), "2024-01-08"},
		{"monday before open", time.Date(2024, 1, 8, 6, 0, 0, 0, ny), "2024-01-05"},
		{"after close", time.Date(2024, 1, 9, 20, 0, 0, 0, ny), "2024-01-09"},
		{"saturday", time.Date(2024, 1, 6, 12, 0, 0, 0, ny), "2024-01-05"},
		{"sunday night", time.Date(2024, 1, 7, 23, 0, 0, 0, ny), "2024-01-05"},
		{"utc instant", time.Date(2024, 1, 9, 14, 0, 0, 0, time.UTC), "2024-01-08"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.TradingDayFor(tt.at)
			assert.Equal(t, tt.want, Key(got))
			assert.True(t, IsBusinessDay(got))
		})
	}
}

func TestNewCalendar(t *testing.T) {
	t.Parallel()

	cal, err := New("UTC", "08:00")
	require.NoError(t, err)
	assert.Equal(t, 8, cal.OpenHour)
	assert.Equal(t, 0, cal.OpenMinute)

	_, err = New("UTC", "8am")
	assert.Error(t, err)

	_, err = New("Not/AZone", "09:30")
	assert.Error(t, err)
}

func TestDateOf(t *testing.T) {
	t.Parallel()

	cal := Default()
	// 02:00 UTC on Jan 10 is still Jan 9 in New York.
	got := cal.DateOf(time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-09", Key(got))
}
