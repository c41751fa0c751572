package core

import "github.com/spaghettifunk/vireo/engine/containers"

const AVG_COUNT int = 30

// Metrics keeps a rolling average of frame times and a frames-per-second counter.
type Metrics struct {
	window             *containers.RingQueue[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		window: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

func (m *Metrics) Update(frameElapsedSeconds float64) {
	frameMS := frameElapsedSeconds * 1000.0
	if m.window.IsFull() {
		_, _ = m.window.Dequeue()
	}
	_ = m.window.Enqueue(frameMS)

	var sum float64
	m.window.Each(func(v float64) { sum += v })
	m.msAvg = sum / float64(m.window.Len())

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
