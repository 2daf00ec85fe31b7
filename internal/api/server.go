package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/heimdex/heimdex-analyzer/internal/analysis"
	"github.com/heimdex/heimdex-analyzer/internal/media"
	"github.com/heimdex/heimdex-analyzer/internal/models"
)

// multipartOverhead is the slack allowed on top of the upload limit for
// multipart boundaries and form fields.
const multipartOverhead = 1 << 20

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// HTTPMetrics records served requests by route pattern.
type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, status int, elapsed time.Duration)
}

type ServerConfig struct {
	Host      string
	Port      int
	Processor *analysis.Processor
	Tools     []media.ToolStatus
	Readiness *models.ReadinessCache
	// Metrics and MetricsHandler are optional.
	Metrics        HTTPMetrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
	StartTime      time.Time
	Version        string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// Uploads of large videos and slow analyses need unbounded
			// read and write times; the processor applies its own timeout.
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
