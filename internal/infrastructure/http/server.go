// Package http runs the Echo router as a long-lived server with graceful
// shutdown.
package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 15 * time.Second

// Server owns the listening lifecycle of an Echo instance.
type Server struct {
	echo            *echo.Echo
	addr            string
	shutdownTimeout time.Duration
	log             zerolog.Logger
}

func NewServer(e *echo.Echo, addr string, shutdownTimeout time.Duration, log zerolog.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Server{echo: e, addr: addr, shutdownTimeout: shutdownTimeout, log: log}
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the shutdown timeout. A listen failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.log.Info().Str("addr", s.addr).Msg("http server starting")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Dur("timeout", s.shutdownTimeout).Msg("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-errCh
	return nil
}
