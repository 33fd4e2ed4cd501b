// Package server exposes the news views as a JSON API over echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/robertmeta/newsdesk/news"
	"github.com/robertmeta/newsdesk/paginate"
	"github.com/robertmeta/newsdesk/render"
	"github.com/robertmeta/newsdesk/view"
)

const (
	DefaultListen          = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config configures a Server.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	PageSize        int
	Feed            render.FeedMeta
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.PageSize < 1 {
		c.PageSize = paginate.DefaultPageSize
	}
	return c
}

// Server serves the news routes. The sidebar is shared by all requests;
// every other view is built per request.
type Server struct {
	Echo *echo.Echo

	cfg     Config
	src     news.Source
	sidebar *view.Sidebar
	logger  *slog.Logger
}

// New creates a Server reading from src.
func New(src news.Source, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:    e,
		cfg:     cfg,
		src:     src,
		sidebar: view.NewSidebar(src, view.WithLogger(logger)),
		logger:  logger,
	}

	s.setupMiddlewares()
	e.HTTPErrorHandler = errorHandler(logger)
	s.routes()

	return s
}

func (s *Server) setupMiddlewares() {
	s.Echo.Use(requestLogger(s.logger))
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))
}

func (s *Server) viewOptions() []view.Option {
	return []view.Option{view.WithLogger(s.logger), view.WithPageSize(s.cfg.PageSize)}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Echo.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("Server listening", "addr", s.cfg.Listen)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutdown started")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// errorHandler renders every handler error as {"error": message}. News
// failures map to 400 for rejected requests, 404 for missing articles and
// 502 when the content source let us down.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", "uri", c.Request().RequestURI, "status", status, "error", err)
		}
		_ = c.JSON(status, map[string]string{"error": msg})
	}
}

func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	var (
		failure *view.Failure
		ne      *news.Error
		msg     string
	)
	switch {
	case errors.As(err, &failure):
		msg = failure.Message
	case errors.As(err, &ne):
		msg = ne.Message
	default:
		return http.StatusInternalServerError, "internal server error"
	}

	switch news.KindOf(err) {
	case news.KindPrecondition:
		return http.StatusBadRequest, msg
	case news.KindNotFound:
		return http.StatusNotFound, msg
	default:
		return http.StatusBadGateway, msg
	}
}
