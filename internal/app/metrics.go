package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// frameMetrics tracks the per-frame pump.
type frameMetrics struct {
	frames   prometheus.Counter
	duration prometheus.Histogram
	actions  prometheus.Counter
	notices  prometheus.GaugeFunc
}

func newFrameMetrics(reg prometheus.Registerer, pending func() int) *frameMetrics {
	m := &frameMetrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addonhost_frames_total",
			Help: "Frames pumped.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "addonhost_frame_seconds",
			Help:    "Time spent draining the action queue and dispatching render callbacks.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		actions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "addonhost_frame_actions_total",
			Help: "Queued actions executed by the frame pump.",
		}),
		notices: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "addonhost_pending_notices",
			Help: "Notices waiting to be shown.",
		}, func() float64 { return float64(pending()) }),
	}
	reg.MustRegister(m.frames, m.duration, m.actions, m.notices)
	return m
}

func (m *frameMetrics) observe(d time.Duration, actions int) {
	m.frames.Inc()
	m.duration.Observe(d.Seconds())
	m.actions.Add(float64(actions))
}
