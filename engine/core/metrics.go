package core

import "sync"

const avgCount uint8 = 30

type MetricsState struct {
	frameAvgCounter    uint8
	msTimes            [avgCount]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return nil
}

// MetricsUpdate feeds one frame's elapsed time (in seconds) into the rolling
// frame-time average and the FPS counter.
func MetricsUpdate(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0
	metricsState.msTimes[metricsState.frameAvgCounter] = frameMS
	if metricsState.frameAvgCounter == avgCount-1 {
		metricsState.msAvg = 0
		for i := uint8(0); i < avgCount; i++ {
			metricsState.msAvg += metricsState.msTimes[i]
		}
		metricsState.msAvg /= float64(avgCount)
	}
	metricsState.frameAvgCounter++
	metricsState.frameAvgCounter %= avgCount

	metricsState.accumulatedFrameMS += frameMS
	if metricsState.accumulatedFrameMS > 1000 {
		metricsState.fps = float64(metricsState.frames)
		metricsState.accumulatedFrameMS -= 1000
		metricsState.frames = 0
	}

	metricsState.frames++
}

// MetricsFPS is the frame rate measured over the last full second.
func MetricsFPS() float64 {
	return metricsState.fps
}

// MetricsFrameTime is the rolling average frame time in milliseconds.
func MetricsFrameTime() float64 {
	return metricsState.msAvg
}
