package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"geo_gate/internal/billing"
	"geo_gate/internal/config"
	"geo_gate/internal/dataType"
	"geo_gate/internal/events"
	"geo_gate/internal/geo"
	"geo_gate/internal/jobs"
	"geo_gate/internal/metrics"
	"geo_gate/internal/server"
	"geo_gate/internal/store"
	"geo_gate/internal/utils"
)

func main() {
	var basePath string
	var debug bool
	flag.StringVar(&basePath, "prefix", "", "Config file base path")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	// Load MainConfig
	cfg, err := config.LoadMainConfig(basePath)
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	logger, err := utils.NewProcessLogger(cfg.LogPath, debug)
	if err != nil {
		log.Fatalf("Init logger failed: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load shops
	shops, err := config.LoadShops(cfg.RulePath)
	if err != nil {
		logger.Fatal("Load shops failed", zap.Error(err))
	}
	rules, err := openRuleStore(ctx, cfg, shops)
	if err != nil {
		logger.Fatal("Open rule store failed", zap.Error(err))
	}
	defer rules.Close()

	usage, err := openUsageStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Open usage store failed", zap.Error(err))
	}
	defer usage.Close()

	var (
		resolver geo.Resolver = geo.StaticResolver{}
		mmdb     *geo.MMDBResolver
		cache    *geo.CachedResolver
	)
	if cfg.GeoIPDBPath != "" {
		mmdb = geo.NewMMDBResolver(cfg.GeoIPDBPath)
		defer mmdb.Close()
		cache = geo.NewCachedResolver(mmdb, 0, 0)
		resolver = cache
	} else {
		logger.Warn("no GeoIP database configured, countries will not be detected")
	}

	var publisher events.Publisher = events.NewMemoryPublisher(0)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	defer publisher.Close()
	eventBuffer := server.NewEventBuffer(publisher, time.Second, logger)
	eventBuffer.Start()
	defer eventBuffer.Stop()

	jobOpts := jobs.Options{
		UsageGCInterval: cfg.UsageGCInterval,
		GeoIPReload:     cfg.GeoIPReload,
	}
	if mmdb != nil {
		jobOpts.Geo = mmdb
		jobOpts.OnGeoReload = cache.Purge
	}
	scheduler, err := jobs.NewJobs(usage, jobOpts, logger)
	if err != nil {
		logger.Fatal("Init jobs failed", zap.Error(err))
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Start jobs failed", zap.Error(err))
	}
	defer scheduler.Stop()

	logx := utils.NewManager(cfg.LogPath)
	defer logx.Close()

	srv := server.NewServer(cfg, server.Deps{
		Rules:       rules,
		Usage:       usage,
		Geo:         resolver,
		Charger:     billing.NewCharger(usage, billing.LogBiller{Logger: logger}),
		Events:      eventBuffer,
		Metrics:     metrics.NewGateMetrics(prometheus.DefaultRegisterer),
		Gatherer:    prometheus.DefaultGatherer,
		Logx:        logx,
		Logger:      logger,
		LastCleanup: scheduler.LastCleanup,
	})

	logger.Info("Ready to start server", zap.String("port", cfg.Port), zap.Int("shops", len(shops)))
	if err := server.StartServer(ctx, cfg, srv); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}

// openRuleStore uses PostgreSQL when a DSN is configured and seeds it with the
// shops from the rule files; otherwise the shops are served from memory.
func openRuleStore(ctx context.Context, cfg *config.MainConfig, shops []dataType.Shop) (store.RuleStore, error) {
	if cfg.PostgresDSN == "" {
		return store.NewMemoryRuleStore(shops), nil
	}
	pg, err := store.NewPostgresRuleStore(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pg.InitSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	for _, shop := range shops {
		if err := pg.SaveShop(ctx, shop); err != nil {
			pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

func openUsageStore(ctx context.Context, cfg *config.MainConfig) (store.UsageStore, error) {
	if cfg.RedisAddr == "" {
		return store.NewMemoryUsageStore(0), nil
	}
	rs := store.NewRedisUsageStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, err
	}
	return rs, nil
}
