package thermal_test

import (
	"testing"

	"codeberg.org/mutker/smfd/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerSnapshot(t *testing.T) {
	tr := thermal.NewTracker()
	for _, r := range []int{10, 20, 21} {
		tr.Update(r)
	}

	s, ok := tr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 21, s.Current)
	assert.Equal(t, 21, s.High)
	assert.Equal(t, 10, s.Low)
	assert.Equal(t, 17, s.Mean, "mean of 51/3 rounds to 17")
	assert.Equal(t, 3, s.Samples)
}

func TestTrackerMeanRoundsHalfUp(t *testing.T) {
	tr := thermal.NewTracker()
	tr.Update(40)
	tr.Update(41)

	s, ok := tr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 41, s.Mean)
}

func TestTrackerSnapshotAndReset(t *testing.T) {
	tr := thermal.NewTracker()
	tr.Update(35)
	tr.Update(45)

	s, ok := tr.SnapshotAndReset()
	require.True(t, ok)
	assert.Equal(t, 45, s.High)
	assert.Equal(t, 35, s.Low)

	_, ok = tr.Snapshot()
	assert.False(t, ok, "no samples after reset")
	assert.Equal(t, 45, tr.Current(), "current reading survives a reset")

	tr.Update(30)
	s, ok = tr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 30, s.High)
	assert.Equal(t, 30, s.Low)
	assert.Equal(t, 30, s.Mean)
}

func TestTrackerInvariant(t *testing.T) {
	tr := thermal.NewTracker()
	for _, r := range []int{50, 42, 61, 38, 55} {
		tr.Update(r)
		s, ok := tr.Snapshot()
		require.True(t, ok)
		assert.LessOrEqual(t, s.Low, s.Current)
		assert.LessOrEqual(t, s.Current, s.High)
	}
}
