package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath is empty when metrics are not exposed.
	MetricsPath string
	Gatherer    prometheus.Gatherer
	// Health serves /healthz; nil answers 200 "ok".
	Health http.Handler
}

// Server wraps the echo instance.
type Server struct {
	echo *echo.Echo
	cfg  ServerConfig
	log  zerolog.Logger
}

// NewServer builds the echo server and registers every route of h.
func NewServer(h *Handler, cfg ServerConfig, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(recoverMiddleware(log))
	e.Use(requestLogging(log))

	health := cfg.Health
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
	}
	e.GET("/healthz", echo.WrapHandler(health))

	if cfg.MetricsPath != "" {
		g := cfg.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}

	h.RegisterRoutes(e)
	return &Server{echo: e, cfg: cfg, log: log}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

func recoverMiddleware(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).
						Str("path", c.Request().URL.Path).Msg("handler panic")
					err = respond(c, http.StatusInternalServerError, nil)
				}
			}()
			return next(c)
		}
	}
}

func requestLogging(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("http request")
			return err
		}
	}
}
