package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	solwire "github.com/status-im/solwire-go"
)

var rpcRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "solwire_rpc_requests_total",
		Help: "Number of JSON-RPC requests by method, endpoint and outcome",
	},
	[]string{"method", "endpoint", "outcome"},
)

var rpcRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "solwire_rpc_request_duration_seconds",
		Help:    "JSON-RPC request latency by method",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method"},
)

var rpcRetries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "solwire_rpc_retries_total",
		Help: "Number of idempotent read retries by method",
	},
	[]string{"method"},
)

var wsReconnects = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "solwire_ws_reconnects_total",
		Help: "Number of websocket reconnect attempts",
	})

var wsDroppedNotifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "solwire_ws_dropped_notifications_total",
		Help: "Number of notifications discarded by full subscription queues",
	},
	[]string{"kind"},
)

var wsActiveSubscriptions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "solwire_ws_active_subscriptions",
		Help: "Number of currently active subscriptions",
	})

var collectors = []prometheus.Collector{
	rpcRequests,
	rpcRequestDuration,
	rpcRetries,
	wsReconnects,
	wsDroppedNotifications,
	wsActiveSubscriptions,
}

// Metrics records client telemetry. A nil *Metrics is valid and
// records nothing, so call sites never need guards.
type Metrics struct{}

// New registers the collectors on reg, the default registerer when
// nil. Collectors already registered by another client in the same
// process are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			are := prometheus.AlreadyRegisteredError{}
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return &Metrics{}, nil
}

// RecordRequest counts one finished call and observes its latency.
func (m *Metrics) RecordRequest(method, endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	rpcRequests.WithLabelValues(method, endpoint, outcome).Inc()
	rpcRequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordRetry counts one re-issued idempotent read.
func (m *Metrics) RecordRetry(method string) {
	if m == nil {
		return
	}
	rpcRetries.WithLabelValues(method).Inc()
}

// RecordReconnect counts one websocket reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	wsReconnects.Inc()
}

// RecordDroppedNotification counts one notification discarded by a
// full queue.
func (m *Metrics) RecordDroppedNotification(kind string) {
	if m == nil {
		return
	}
	wsDroppedNotifications.WithLabelValues(kind).Inc()
}

// SubscriptionOpened moves the active-subscription gauge up.
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	wsActiveSubscriptions.Inc()
}

// SubscriptionClosed moves the active-subscription gauge down.
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	wsActiveSubscriptions.Dec()
}

// RequestOutcome classifies err into the outcome label values: ok,
// timeout, rpc_error, transport_error or error.
func RequestOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, solwire.ErrTimeout) {
		return "timeout"
	}
	var rpcErr *solwire.RPCError
	if errors.As(err, &rpcErr) {
		return "rpc_error"
	}
	var transportErr *solwire.TransportError
	if errors.As(err, &transportErr) {
		return "transport_error"
	}
	return "error"
}
