// Package api serves the admin HTTP surface: health, Prometheus metrics and
// the control switches.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// Server is the admin HTTP server.
type Server struct {
	cfg      Config
	router   *gin.Engine
	server   *http.Server
	redis    redis.Cmdable
	gatherer prometheus.Gatherer
	service  string
	version  string
	log      logger.Logger
}

// Deps holds the server's collaborators.
type Deps struct {
	Redis    redis.Cmdable
	Gatherer prometheus.Gatherer
	// Service names the running command in health responses.
	Service string
	Version string
	Logger  logger.Logger
}

// NewServer builds the router and HTTP server.
func NewServer(cfg Config, deps Deps) *Server {
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      cfg,
		router:   gin.New(),
		redis:    deps.Redis,
		gatherer: gatherer,
		service:  deps.Service,
		version:  deps.Version,
		log:      deps.Logger,
	}

	s.router.Use(RecoveryMiddleware(deps.Logger))
	s.router.Use(LoggerMiddleware(deps.Logger))
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	v1.GET("/control/:channel", s.getControl)
	v1.PUT("/control/:channel", s.putControl)
}

// Router returns the underlying Gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("Starting admin server", logger.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	//nolint:contextcheck // ctx is already cancelled here
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}

	s.log.Info("Admin server stopped")
	return nil
}
