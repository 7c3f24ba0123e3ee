package revkit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are always collected; they are only exported when Config.Registerer
// is set.
type metrics struct {
	frames      *prometheus.CounterVec
	frameErrors prometheus.Counter
	reconnects  prometheus.Counter
	ping        prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revkit_frames_total",
			Help: "Inbound WebSocket frames processed, by type.",
		}, []string{"type"}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revkit_frame_errors_total",
			Help: "Inbound frames whose handler failed or panicked.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revkit_reconnects_total",
			Help: "Reconnect attempts after an unexpected close.",
		}),
		ping: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "revkit_ping_seconds",
			Help:    "Heartbeat round trip time.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.frames, m.frameErrors, m.reconnects, m.ping} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
