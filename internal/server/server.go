// Package server exposes the read-only HTTP API over the learned patterns.
//
// The API serves the summary and stats reads plus single-pattern lookup;
// nothing here mutates the store. Prometheus metrics for every component
// are exported on /metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/config"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/toolguard"
)

// DefaultShutdownTimeout bounds graceful shutdown when the config leaves
// the timeout unset.
const DefaultShutdownTimeout = 10 * time.Second

// Server provides the HTTP endpoints over one service and its store.
type Server struct {
	echo    *echo.Echo
	service *toolguard.Service
	store   *store.PatternStore
	cfg     config.ServerConfig
	logger  *zap.Logger
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewServer creates the HTTP server with logging, recovery, request-id,
// and per-client rate-limit middleware.
func NewServer(svc *toolguard.Service, st *store.PatternStore, cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	if cfg.RateLimit > 0 {
		e.Use(newIPRateLimiter(cfg.RateLimit).middleware())
	}

	s := &Server{
		echo:    e,
		service: svc,
		store:   st,
		cfg:     cfg,
		logger:  logger,
	}
	s.registerRoutes()

	return s, nil
}

// requestLogger logs one line per request with the request id assigned by
// the RequestID middleware.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/summary", s.handleSummary)
	v1.GET("/stats", s.handleStats)
	v1.GET("/patterns/:id", s.handlePattern)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "toolguard"})
}

// handleSummary returns the learned patterns grouped by tool. Query
// parameters top_n and min_confidence bound the result.
func (s *Server) handleSummary(c echo.Context) error {
	var req toolguard.SummaryRequest

	if v := c.QueryParam("top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "top_n must be a non-negative integer")
		}
		req.TopN = n
	}
	if v := c.QueryParam("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "min_confidence must be between 0 and 1")
		}
		req.MinConfidence = f
	}

	return c.JSON(http.StatusOK, s.service.Summary(c.Request().Context(), req))
}

// handleStats returns the aggregate statistics.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Stats(c.Request().Context()))
}

// handlePattern returns one pattern by id.
func (s *Server) handlePattern(c echo.Context) error {
	p, err := s.store.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrPatternNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "pattern not found")
		}
		s.logger.Error("pattern lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "pattern lookup failed")
	}
	return c.JSON(http.StatusOK, p)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
// within the configured timeout. Returns http.ErrServerClosed after a
// clean shutdown, any other error on startup or shutdown failure.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}
