package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/gatekeeper/internal/catalog"
	"github.com/heimdex/gatekeeper/internal/detections"
	"github.com/heimdex/gatekeeper/internal/media"
	"github.com/heimdex/gatekeeper/internal/pipeline"
)

// Evaluator runs a decoded detections document through the gatekeeper.
// *pipeline.Gatekeeper implements it.
type Evaluator interface {
	RunClip(ctx context.Context, clip *detections.Clip, req pipeline.Request) (*pipeline.Result, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port          int
	OutputsDir    string
	Service       catalog.CatalogService
	Repository    catalog.Repository
	Runner        *catalog.Runner
	Evaluator     Evaluator
	Settings      pipeline.Settings
	Doctor        *media.CachedDoctor
	ReasoningMode string
	Logger        *slog.Logger
	StartTime     time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
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
