package core

import "time"

const AVG_COUNT uint8 = 30

// FrameCounters are the per-frame synchronization figures reported by the
// render graph.
type FrameCounters struct {
	Levels      int
	Barriers    int
	Releases    int
	Signals     int
	Waits       int
	Submissions int
}

// Metrics keeps a rolling frame-time average plus the counters of the last
// frame. It is owned by the engine loop and is not safe for concurrent use.
type Metrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
	TotalFrames        uint64
	Last               FrameCounters
	Totals             FrameCounters
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Update(frameElapsed time.Duration, counters FrameCounters) {
	// Calculate frame ms average
	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		m.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.MSavg += m.MStimes[i]
		}
		m.MSavg /= float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS > 1000 {
		m.FPS = float64(m.Frames)
		m.AccumulatedFrameMS -= 1000
		m.Frames = 0
	}

	// Count all Frames.
	m.Frames++
	m.TotalFrames++

	m.Last = counters
	m.Totals.Levels += counters.Levels
	m.Totals.Barriers += counters.Barriers
	m.Totals.Releases += counters.Releases
	m.Totals.Signals += counters.Signals
	m.Totals.Waits += counters.Waits
	m.Totals.Submissions += counters.Submissions
}

func (m *Metrics) FPSAndFrameTime() (float64, float64) {
	return m.FPS, m.MSavg
}
