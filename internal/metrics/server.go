package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ErrServe = errors.ErrorCode("metrics_serve_failed")

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errFactory.Wrap(ErrServe, err)
	}

	srv := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ln)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	select {
	case err := <-done:
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrServe, err)
	}

	return nil
}
