package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes /metrics and /healthz.
type Server struct {
	echo   *echo.Echo
	listen string
	logger zerolog.Logger

	lastCycle atomic.Int64
}

// NewServer builds the HTTP endpoint for a recorder.
func NewServer(listen string, rec *Recorder, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		listen: listen,
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(rec.Registry(), promhttp.HandlerOpts{})))
	e.GET("/healthz", s.health)
	return s
}

// MarkCycle records the completion time reported by /healthz.
func (s *Server) MarkCycle(t time.Time) {
	s.lastCycle.Store(t.Unix())
}

func (s *Server) health(c echo.Context) error {
	body := map[string]any{"status": "ok"}
	if ts := s.lastCycle.Load(); ts > 0 {
		body["last_cycle"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, body)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.listen).Msg("metrics server listening")
		if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	s.logger.Info().Msg("metrics server stopped")
	return nil
}
