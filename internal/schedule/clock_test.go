package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"10:00", 600, false},
		{"23:59", 1439, false},
		{"09:05", 545, false},
		{" 10:30 ", 630, false},
		{"24:00", 0, true},
		{"10:60", 0, true},
		{"10", 0, true},
		{"ab:cd", 0, true},
		{"-1:00", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "10:00", FormatClock(600))
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "23:59", FormatClock(1439))
	assert.Equal(t, "09:05", FormatClock(545))
}

func TestRangesOverlap(t *testing.T) {
	// Half-open ranges: touching endpoints do not overlap.
	assert.True(t, RangesOverlap(600, 660, 630, 690))
	assert.True(t, RangesOverlap(630, 690, 600, 660))
	assert.True(t, RangesOverlap(600, 660, 610, 620))
	assert.False(t, RangesOverlap(600, 660, 660, 720))
	assert.False(t, RangesOverlap(660, 720, 600, 660))
	assert.False(t, RangesOverlap(600, 660, 720, 780))
}
