package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat_capture"

// Metrics holds the capture pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	streamFrames    *prometheus.CounterVec
	streamMalformed *prometheus.CounterVec
	streamEmitted   *prometheus.CounterVec
	streamSalvaged  *prometheus.CounterVec

	queueEnqueued   prometheus.Counter
	queueDuplicates prometheus.Counter
	queuePending    prometheus.Gauge
	batchSize       prometheus.Histogram
	batchFailures   prometheus.Counter

	inboundEvents *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: platform, kind (done, stream_complete, message_create, append, patch, ignored)
		streamFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Decoded streaming frames by kind",
		}, []string{"platform", "kind"}),
		streamMalformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "malformed_frames_total",
			Help:      "Streaming frames skipped because they could not be decoded",
		}, []string{"platform"}),
		// Labels: platform, complete (true, false)
		streamEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "snapshots_total",
			Help:      "Assistant response snapshots emitted",
		}, []string{"platform", "complete"}),
		streamSalvaged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "salvaged_total",
			Help:      "Responses completed by the salvage path",
		}, []string{"platform"}),

		queueEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "enqueued_total",
			Help:      "Messages accepted by the ingestion queue",
		}),
		queueDuplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duplicates_total",
			Help:      "Messages dropped because their id was already processed",
		}),
		queuePending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "pending",
			Help:      "Messages waiting for a conversation id after the last flush",
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_size",
			Help:      "Messages per persistence batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		batchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_failures_total",
			Help:      "Persistence batches that failed and were dropped",
		}),

		inboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inbound_events_total",
			Help:      "Inbound capture events by name and platform",
		}, []string{"event", "platform"}),
	}
}

func (m *Metrics) Frame(platform, kind string) {
	if m == nil {
		return
	}
	m.streamFrames.WithLabelValues(platform, kind).Inc()
}

func (m *Metrics) Malformed(platform string) {
	if m == nil {
		return
	}
	m.streamMalformed.WithLabelValues(platform).Inc()
}

func (m *Metrics) Emitted(platform string, complete bool) {
	if m == nil {
		return
	}
	v := "false"
	if complete {
		v = "true"
	}
	m.streamEmitted.WithLabelValues(platform, v).Inc()
}

func (m *Metrics) Salvaged(platform string) {
	if m == nil {
		return
	}
	m.streamSalvaged.WithLabelValues(platform).Inc()
}

func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.queueEnqueued.Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.queueDuplicates.Inc()
}

func (m *Metrics) Flushed(sent, pending int) {
	if m == nil {
		return
	}
	m.queuePending.Set(float64(pending))
	if sent > 0 {
		m.batchSize.Observe(float64(sent))
	}
}

func (m *Metrics) BatchFailed() {
	if m == nil {
		return
	}
	m.batchFailures.Inc()
}

func (m *Metrics) Inbound(event, platform string) {
	if m == nil {
		return
	}
	m.inboundEvents.WithLabelValues(event, platform).Inc()
}
