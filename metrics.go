package sc64

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the link collectors. A nil *Metrics records nothing.
type Metrics struct {
	frames        *prometheus.CounterVec
	commandErrors *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg, if reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sc64",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames sent to and received from the device.",
		}, []string{"direction", "kind"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sc64",
			Subsystem: "link",
			Name:      "command_errors_total",
			Help:      "Failed command executions by stage.",
		}, []string{"reason"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sc64",
			Subsystem: "link",
			Name:      "packet_queue_depth",
			Help:      "Packets received but not yet consumed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.frames, m.commandErrors, m.queueDepth)
	}
	return m
}

func (m *Metrics) frameSent(kind DataType) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues("sent", kind.String()).Inc()
}

func (m *Metrics) frameReceived(kind DataType) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues("received", kind.String()).Inc()
}

func (m *Metrics) commandError(reason string) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
