package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateTrackerCountsWithinWindow(t *testing.T) {
	rt := newRateTracker()
	base := time.Now()
	rt.record(base.Add(-2 * time.Second))
	rt.record(base.Add(-100 * time.Millisecond))
	rt.record(base)
	require.Equal(t, 2, rt.countSince(base))
}

func TestRateTrackerCapsRingSize(t *testing.T) {
	rt := newRateTracker()
	base := time.Now()
	for i := 0; i < maxTrackedTimestamps+50; i++ {
		rt.record(base)
	}
	require.LessOrEqual(t, len(rt.times), maxTrackedTimestamps)
}
