package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsFrameTimeRollingAverage(t *testing.T) {
	require.NoError(t, MetricsInitialize())

	// The average is recomputed each time the sample window fills.
	for i := 0; i < int(avgCount); i++ {
		MetricsUpdate(0.010)
	}
	assert.InDelta(t, 10.0, MetricsFrameTime(), 0.001)
}

func TestMetricsFPSOverOneSecond(t *testing.T) {
	require.NoError(t, MetricsInitialize())

	// 10 ms frames: the counter publishes once accumulated time passes 1 s.
	for i := 0; i < 101; i++ {
		MetricsUpdate(0.010)
	}
	assert.InDelta(t, 100.0, MetricsFPS(), 1.0)
}
