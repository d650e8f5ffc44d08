// Package metrics provides Prometheus metrics for the mudra services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Manager owns every Prometheus collector exported by mudra.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	// Inference
	predictions      *prometheus.CounterVec
	predictionErrors *prometheus.CounterVec
	inferenceLatency prometheus.Histogram
	predictorReady   prometheus.Gauge

	// Stream
	streamFrames  *prometheus.CounterVec
	streamClients prometheus.Gauge

	// Training and capture
	trainingEpochs      prometheus.Counter
	trainingValAccuracy prometheus.Gauge
	capturedSamples     *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager on its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mudra",
		subsystem:        "",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		enabled:          true,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictions_total",
		Help:      "Predictions served, by predicted label and preprocessor",
	}, []string{"label", "preprocessor"})

	m.predictionErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_errors_total",
		Help:      "Rejected or failed predictions, by error kind",
	}, []string{"kind"})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "inference_latency_milliseconds",
		Help:      "Forward pass latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.predictorReady = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "predictor_ready",
		Help:      "1 when the model and label encoder loaded at startup, 0 otherwise",
	})

	m.streamFrames = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_frames_total",
		Help:      "Video frames written to stream consumers, by overlay state",
	}, []string{"state"})

	m.streamClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "prediction_subscribers",
		Help:      "Connected live prediction websocket subscribers",
	})

	m.trainingEpochs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "training_epochs_total",
		Help:      "Training epochs completed",
	})

	m.trainingValAccuracy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "training_validation_accuracy",
		Help:      "Validation accuracy of the most recent epoch",
	})

	m.capturedSamples = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "captured_samples_total",
		Help:      "Landmark samples recorded by the dataset builder, by label and origin",
	}, []string{"label", "origin"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Registry returns the registry the manager's collectors live in.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler returns an exposition handler for the manager's registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPrediction counts one served prediction.
func (m *Manager) RecordPrediction(label, preprocessor string) {
	if !m.enabled {
		return
	}
	m.predictions.WithLabelValues(label, preprocessor).Inc()
}

// RecordPredictionError counts one rejected or failed prediction.
func (m *Manager) RecordPredictionError(kind string) {
	if !m.enabled {
		return
	}
	m.predictionErrors.WithLabelValues(kind).Inc()
}

// RecordInferenceLatency observes one forward pass.
func (m *Manager) RecordInferenceLatency(ms float64) {
	if !m.enabled {
		return
	}
	m.inferenceLatency.Observe(ms)
}

// SetPredictorReady publishes the predictor state.
func (m *Manager) SetPredictorReady(ready bool) {
	if !m.enabled {
		return
	}
	if ready {
		m.predictorReady.Set(1)
	} else {
		m.predictorReady.Set(0)
	}
}

// RecordStreamFrame counts one streamed frame.
func (m *Manager) RecordStreamFrame(state string) {
	if !m.enabled {
		return
	}
	m.streamFrames.WithLabelValues(state).Inc()
}

// SetSubscribers publishes the websocket subscriber count.
func (m *Manager) SetSubscribers(n int) {
	if !m.enabled {
		return
	}
	m.streamClients.Set(float64(n))
}

// RecordEpoch counts one finished epoch and publishes its validation accuracy.
func (m *Manager) RecordEpoch(valAccuracy float64) {
	if !m.enabled {
		return
	}
	m.trainingEpochs.Inc()
	m.trainingValAccuracy.Set(valAccuracy)
}

// RecordCapturedSamples counts recorded samples. origin is "captured" or "augmented".
func (m *Manager) RecordCapturedSamples(label, origin string, n int) {
	if !m.enabled {
		return
	}
	m.capturedSamples.WithLabelValues(label, origin).Add(float64(n))
}

// RecordHTTPRequest counts one HTTP request and observes its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// ValidationAccuracy returns the gauge last set by RecordEpoch.
func (m *Manager) ValidationAccuracy() float64 {
	var pb dto.Metric
	if err := m.trainingValAccuracy.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}

// WriteTextfile writes every collector in the text exposition format to
// path, for node_exporter's textfile collector. The file is replaced
// atomically.
func (m *Manager) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
