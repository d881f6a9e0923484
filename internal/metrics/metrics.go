package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the relay.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	MessagesRelayed   prometheus.Counter
	PushesDelivered   prometheus.Counter
	PushesMissed      prometheus.Counter
	CodesIssued       prometheus.Counter
	SessionsCreated   prometheus.Counter
}

// New registers all relay metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer. Tests use this to
// avoid duplicate registration on the process-wide default.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relaygram_ws_connections",
			Help: "Currently open WebSocket connections",
		}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaygram_messages_total",
			Help: "Messages durably appended to the log",
		}),
		PushesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaygram_pushes_delivered_total",
			Help: "Live newMessage pushes handed to a recipient connection",
		}),
		PushesMissed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaygram_pushes_missed_total",
			Help: "Sends whose recipient had no usable live connection",
		}),
		CodesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaygram_codes_issued_total",
			Help: "Verification codes issued",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaygram_sessions_created_total",
			Help: "Session tokens issued after successful verification",
		}),
	}
}
