package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stressclip/internal/domain"
)

const namespace = "stressclip"

// Metrics records session activity on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Recordings        *prometheus.CounterVec
	RecordingDuration prometheus.Histogram
	PlaybackSessions  prometheus.Counter
	Uploads           *prometheus.CounterVec
	UploadDuration    prometheus.Histogram
}

// New creates and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		Recordings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Total number of finished recordings by result",
		}, []string{"result"}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Length of successful recordings",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2 minutes
		}),
		PlaybackSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_sessions_total",
			Help:      "Total number of playback sessions loaded; resuming after a pause is not counted",
		}),
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of analysis uploads by outcome",
		}, []string{"outcome"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Latency of analysis uploads",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3 minutes
		}),
	}
}

func (m *Metrics) RecordingFinished(ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Recordings.WithLabelValues(result).Inc()
	if ok {
		m.RecordingDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) PlaybackStarted() {
	m.PlaybackSessions.Inc()
}

// UploadFinished counts an upload under its error code, or "ok" on success.
func (m *Metrics) UploadFinished(code domain.ErrorCode, latency time.Duration) {
	outcome := "ok"
	if code != "" {
		outcome = string(code)
	}
	m.Uploads.WithLabelValues(outcome).Inc()
	m.UploadDuration.Observe(latency.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Server serves /metrics until its context is cancelled.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

func NewServer(addr string, m *Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener synchronously so address errors surface to the
// caller, then serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("metrics server listening", slog.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
