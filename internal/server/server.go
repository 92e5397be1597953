// Package server expõe o servidor HTTP de operação: saúde, estado do agendador e métricas.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewatch/internal/monitor"
)

// Pinger verifica a disponibilidade do banco
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSource fornece o estado do agendador
type StatusSource interface {
	Status() monitor.Status
}

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     Pinger
	status StatusSource
	logger *slog.Logger
}

// New monta o roteador. reg nil desativa /metrics.
func New(addr string, db Pinger, status StatusSource, reg *prometheus.Registry, logger *slog.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		router: r,
		db:     db,
		status: status,
		logger: logger.With(slog.String("component", "server")),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.Use(s.requestLogger)
	r.GET("/healthz", s.handleHealthz)
	r.GET("/status", s.handleStatus)
	if reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return s
}

// Router retorna o handler HTTP
func (s *Server) Router() http.Handler {
	return s.router
}

// Run escuta até Shutdown ser chamado
func (s *Server) Run() error {
	s.logger.Info("servidor de operação escutando", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("healthz: banco indisponível", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agendador indisponível"})
		return
	}
	c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("requisição",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("latency", time.Since(start)))
}
