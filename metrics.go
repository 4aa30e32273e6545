package penne

import (
	"github.com/prometheus/client_golang/prometheus"
)

// telemetry carries the client's prometheus collectors. Collectors work
// unregistered, so a nil registerer costs nothing at call sites.
type telemetry struct {
	messages        *prometheus.CounterVec
	invokes         prometheus.Counter
	replies         prometheus.Counter
	callbacksQueued prometheus.Counter
	dispatchErrors  prometheus.Counter
	pendingCalls    prometheus.GaugeFunc
}

func newTelemetry(c *Client, reg prometheus.Registerer) *telemetry {
	t := &telemetry{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "penne",
			Name:      "messages_total",
			Help:      "Inbound messages dispatched, by component kind and action.",
		}, []string{"kind", "action"}),
		invokes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "penne",
			Name:      "invocations_total",
			Help:      "Method invocations sent to the server.",
		}),
		replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "penne",
			Name:      "replies_total",
			Help:      "Method replies received from the server.",
		}),
		callbacksQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "penne",
			Name:      "callbacks_queued_total",
			Help:      "Callbacks handed to the application loop.",
		}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "penne",
			Name:      "dispatch_errors_total",
			Help:      "Messages that failed to dispatch.",
		}),
		pendingCalls: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "penne",
			Name:      "pending_invocations",
			Help:      "Invocations awaiting a reply.",
		}, func() float64 {
			return float64(c.pending.Size())
		}),
	}
	if reg != nil {
		reg.MustRegister(t.messages, t.invokes, t.replies,
			t.callbacksQueued, t.dispatchErrors, t.pendingCalls)
	}
	return t
}
