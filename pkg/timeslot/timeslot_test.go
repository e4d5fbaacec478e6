package timeslot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9:30", 0, true},
		{"09.30", 0, true},
		{"", 0, true},
		{"ab:cd", 0, true},
		{"12:3x", 0, true},
		{"09:5a", 0, true},
		{"1x:30", 0, true},
		{"-1:30", 0, true},
		{"09: 30", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got, tc.input)
	}
}

func TestFormatClockRoundTrip(t *testing.T) {
	for _, value := range []string{"00:00", "07:05", "13:45", "23:59"} {
		minutes, err := ParseClock(value)
		require.NoError(t, err)
		assert.Equal(t, value, FormatClock(minutes))
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	base := Interval{Start: 540, End: 600} // 09:00-10:00

	assert.True(t, base.Overlaps(Interval{Start: 570, End: 630}))
	assert.True(t, base.Overlaps(Interval{Start: 500, End: 541}))
	assert.True(t, base.Overlaps(Interval{Start: 550, End: 560}))
	assert.True(t, base.Overlaps(Interval{Start: 500, End: 700}))

	// Touching boundaries are not conflicts.
	assert.False(t, base.Overlaps(Interval{Start: 600, End: 660}))
	assert.False(t, base.Overlaps(Interval{Start: 480, End: 540}))
	assert.False(t, base.Overlaps(Interval{Start: 660, End: 720}))
}

func TestOverlapsSymmetric(t *testing.T) {
	a := Interval{Start: 540, End: 630}
	b := Interval{Start: 570, End: 600}
	assert.Equal(t, a.Overlaps(b), b.Overlaps(a))
}

func TestClockInterval(t *testing.T) {
	iv, err := ClockInterval("09:00", "10:30")
	require.NoError(t, err)
	assert.Equal(t, int64(540), iv.Start)
	assert.Equal(t, int64(630), iv.End)

	_, err = ClockInterval("10:00", "10:00")
	assert.Error(t, err)
	_, err = ClockInterval("10:00", "09:00")
	assert.Error(t, err)
	_, err = ClockInterval("bad", "09:00")
	assert.Error(t, err)
}

func TestSessionInterval(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	iv, err := SessionInterval(start, 90)
	require.NoError(t, err)
	assert.Equal(t, start.UnixMilli(), iv.Start)
	assert.Equal(t, start.Add(90*time.Minute).UnixMilli(), iv.End)

	_, err = SessionInterval(start, 0)
	assert.Error(t, err)

	// Back-to-back sessions do not overlap.
	next, err := SessionInterval(start.Add(90*time.Minute), 60)
	require.NoError(t, err)
	assert.False(t, iv.Overlaps(next))
}

func TestValidDay(t *testing.T) {
	assert.False(t, ValidDay(0))
	assert.True(t, ValidDay(1))
	assert.True(t, ValidDay(7))
	assert.False(t, ValidDay(8))
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2026, 3, 2, 21, 15, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), DateOf(ts))
}
