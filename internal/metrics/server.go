package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 2 * time.Second
)

// Serve exposes gatherer on cfg.Addr until ctx is cancelled. It returns nil
// after a clean shutdown.
func Serve(ctx context.Context, cfg Config, gatherer prometheus.Gatherer) error {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errFactory.Wrap(ErrServeFailed, err)
	}

	return serve(ctx, listener, cfg.Path, gatherer)
}

func serve(ctx context.Context, listener net.Listener, path string, gatherer prometheus.Gatherer) error {
	errFactory := errors.New()

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(listener)
	}()

	logger.Info().Str("addr", listener.Addr().String()).Str("path", path).Msg("Serving metrics")

	select {
	case err := <-done:
		return errFactory.Wrap(ErrServeFailed, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	return nil
}
