package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics exposes counters/histograms for the webhook-to-Voiceflow flow.
type BridgeMetrics struct {
	inboundTotal     *prometheus.CounterVec
	interactTotal    *prometheus.CounterVec
	interactRetries  prometheus.Counter
	outboundTotal    *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	webhookLatency   *prometheus.HistogramVec
	transcribeErrors prometheus.Counter
}

func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "whatsapp",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhook messages",
		}, []string{"message_type"}),
		interactTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "voiceflow",
			Name:      "interact_total",
			Help:      "Total Voiceflow interact calls",
		}, []string{"outcome"}),
		interactRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "voiceflow",
			Name:      "interact_retries_total",
			Help:      "Total Voiceflow interact retry attempts",
		}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"message_type", "outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current depth of the delivery queue",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "whatsapp",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		transcribeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "transcribe",
			Name:      "errors_total",
			Help:      "Total voice-note transcription failures",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.interactTotal,
		m.interactRetries,
		m.outboundTotal,
		m.queueDepth,
		m.webhookLatency,
		m.transcribeErrors,
	)
	return m
}

func (m *BridgeMetrics) ObserveInbound(messageType string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType).Inc()
}

func (m *BridgeMetrics) ObserveInteract(outcome string) {
	if m == nil {
		return
	}
	m.interactTotal.WithLabelValues(outcome).Inc()
}

func (m *BridgeMetrics) ObserveInteractRetry() {
	if m == nil {
		return
	}
	m.interactRetries.Inc()
}

func (m *BridgeMetrics) ObserveOutbound(messageType, outcome string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(messageType, outcome).Inc()
}

func (m *BridgeMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *BridgeMetrics) ObserveWebhookLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(method).Observe(seconds)
}

func (m *BridgeMetrics) ObserveTranscribeError() {
	if m == nil {
		return
	}
	m.transcribeErrors.Inc()
}
