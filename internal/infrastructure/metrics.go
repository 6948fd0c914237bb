package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"

	"wa_relay/internal/entities"
)

// RelayMetrics exposes counters for the message pipeline, AI calls and the
// WhatsApp session. A nil *RelayMetrics is a no-op.
type RelayMetrics struct {
	messagesTotal   *prometheus.CounterVec
	aiRequestsTotal *prometheus.CounterVec
	aiLatency       prometheus.Histogram
	connectionState prometheus.Gauge
	reconnectsTotal *prometheus.CounterVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_total",
			Help:      "Inbound WhatsApp messages by pipeline outcome",
		}, []string{"outcome"}),
		aiRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "ai_requests_total",
			Help:      "Chat completion requests by result",
		}, []string{"result"}),
		aiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "ai_request_seconds",
			Help:      "Latency of chat completion requests",
			Buckets:   prometheus.DefBuckets,
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connection_state",
			Help:      "WhatsApp session state (0 disconnected, 1 connecting, 2 connected)",
		}),
		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "reconnects_total",
			Help:      "Scheduled reconnects by close reason",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.aiRequestsTotal, m.aiLatency, m.connectionState, m.reconnectsTotal)
	return m
}

func (m *RelayMetrics) ObserveMessage(outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveAIRequest(result string, seconds float64) {
	if m == nil {
		return
	}
	m.aiRequestsTotal.WithLabelValues(result).Inc()
	m.aiLatency.Observe(seconds)
}

func (m *RelayMetrics) SetConnectionState(state entities.ConnectionStatus) {
	if m == nil {
		return
	}
	switch state {
	case entities.StatusConnected:
		m.connectionState.Set(2)
	case entities.StatusConnecting:
		m.connectionState.Set(1)
	default:
		m.connectionState.Set(0)
	}
}

func (m *RelayMetrics) ObserveReconnect(reason entities.CloseReason) {
	if m == nil {
		return
	}
	m.reconnectsTotal.WithLabelValues(reason.String()).Inc()
}
