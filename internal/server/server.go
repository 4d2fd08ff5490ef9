// Package server assembles the coordinator daemon: gateway, cache,
// coordinator, tab monitor, and bus hub behind one gin router.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/bus"
	"github.com/gatorguard/coordinator/internal/cache"
	"github.com/gatorguard/coordinator/internal/config"
	"github.com/gatorguard/coordinator/internal/gateway"
	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/metrics"
	"github.com/gatorguard/coordinator/internal/state"
	"github.com/gatorguard/coordinator/internal/tabs"
	"github.com/gatorguard/coordinator/internal/urlfilter"
)

// Server wraps the HTTP server and coordinator dependencies.
type Server struct {
	router  *gin.Engine
	coord   *state.Coordinator
	hub     *bus.Hub
	monitor *tabs.Monitor
	config  *config.Config
	logger  *logging.Logger

	cancel context.CancelFunc
}

// NewServer builds the full daemon from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	filter := urlfilter.New(cfg.Filter.ExemptOrigins)
	store := cache.NewStore(cfg.Cache.Path)
	gw := gateway.New(cfg.Remote.BaseURL, cfg.Remote.Timeout, logger.Named("gateway"))

	// The coordinator, monitor, and hub reference each other, so the
	// coordinator is built unbound and wired afterwards.
	coord := state.New(store, gw, filter, nil, nil, logger.Named("state"), m)
	monitor := tabs.New(coord, filter, cfg.Tabs.SettleDelay, logger.Named("tabs"), m)
	hub := bus.NewHub(coord, monitor, logger.Named("bus"), m)
	coord.Bind(monitor, hub)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CORS(DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(RateLimit(cfg.RateLimit))
	}

	s := &Server{
		router:  router,
		coord:   coord,
		hub:     hub,
		monitor: monitor,
		config:  cfg,
		logger:  logger,
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/state", s.stateSnapshot)
	router.GET("/bus", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s, nil
}

// Run starts auth polling, announces the restart to any connected
// contexts, and serves until the listener fails.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.coord.RunAuthPolling(ctx, config.AuthPollInterval)
	s.coord.Announce()

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting coordinator", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Handler exposes the router for tests that serve it themselves.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Coordinator exposes the state coordinator for startup hooks and tests.
func (s *Server) Coordinator() *state.Coordinator {
	return s.coord
}

// Close stops background work and flushes logs.
func (s *Server) Close() error {
	s.logger.Info("shutting down coordinator")
	if s.cancel != nil {
		s.cancel()
	}
	s.monitor.Close()
	s.logger.Sync()
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "gatorguard-coordinator",
		"endpoints": []string{
			"/health", "/state", "/bus", "/metrics",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	snap, authenticated := s.coord.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"authenticated": authenticated,
		"mode":          snap.CurrentMode,
	})
}

func (s *Server) stateSnapshot(c *gin.Context) {
	snap, authenticated := s.coord.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"authenticated": authenticated,
		"currentMode":   snap.CurrentMode,
		"submode":       snap.Submode,
		"lyricsEnabled": snap.LyricsEnabled,
		"recentLinks":   snap.RecentLinks,
	})
}
