package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"geo_gate/internal/billing"
	"geo_gate/internal/check"
	"geo_gate/internal/config"
	"geo_gate/internal/geo"
	"geo_gate/internal/metrics"
	"geo_gate/internal/store"
	"geo_gate/internal/utils"
)

// Deps are the collaborators of the HTTP surface. Rules, Usage and Geo are
// required; the rest fall back to no-op or default implementations.
type Deps struct {
	Rules       store.RuleStore
	Usage       store.UsageStore
	Geo         geo.Resolver
	Bots        *check.BotDetector
	Charger     *billing.Charger
	Events      *EventBuffer
	Metrics     *metrics.GateMetrics
	Gatherer    prometheus.Gatherer
	Logx        *utils.LogxManager
	Logger      *zap.Logger
	LastCleanup func() time.Time
	Now         func() time.Time
}

type Server struct {
	cfg *config.MainConfig
	Deps
}

func NewServer(cfg *config.MainConfig, deps Deps) *Server {
	if deps.Bots == nil {
		deps.Bots = check.NewBotDetector()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{cfg: cfg, Deps: deps}
}

// Handler routes every endpoint below web_path plus /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	base := s.cfg.WebPath
	mux.HandleFunc("GET "+base+"/config", s.handleConfig)
	mux.HandleFunc("POST "+base+"/analytics", s.handleAnalytics)
	mux.HandleFunc("POST "+base+"/webhooks/app_uninstalled", s.handleAppUninstalled)
	mux.HandleFunc("GET "+base+"/health_check", s.handleHealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// StartServer serves until ctx is cancelled, then drains in-flight requests.
func StartServer(ctx context.Context, cfg *config.MainConfig, srv *Server) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		srv.Logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr), zap.String("web_path", cfg.WebPath))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
