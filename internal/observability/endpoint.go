package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/observability/metrics"
)

var log = logger.Global().Module("metrics")

// Endpoint serves /metrics on its own listener
type Endpoint struct {
	server  *http.Server
	metrics *Metrics
}

// NewEndpoint returns an endpoint for settings, or an error when metrics are disabled
func NewEndpoint(settings *conf.MetricsSettings, m *Metrics) (*Endpoint, error) {
	if settings == nil || !settings.Enabled {
		return nil, errors.New("metrics endpoint not enabled in settings")
	}

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Endpoint{
		server: &http.Server{
			Addr:              settings.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		metrics: m,
	}, nil
}

// Run serves until ctx is done, then shuts the server down gracefully
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- e.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetMetrics returns the served metrics
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
