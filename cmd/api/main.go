package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omaldonado/snapfield-backend/api/controllers"
	"github.com/omaldonado/snapfield-backend/api/routes"
	"github.com/omaldonado/snapfield-backend/internal/codes"
	"github.com/omaldonado/snapfield-backend/internal/extraction"
	"github.com/omaldonado/snapfield-backend/internal/gate"
	"github.com/omaldonado/snapfield-backend/internal/geo"
	"github.com/omaldonado/snapfield-backend/internal/journal"
	"github.com/omaldonado/snapfield-backend/internal/ledger"
	"github.com/omaldonado/snapfield-backend/internal/reclaim"
	"github.com/omaldonado/snapfield-backend/internal/store"
	"github.com/omaldonado/snapfield-backend/internal/vision"
	"github.com/omaldonado/snapfield-backend/pkg/config"
	"github.com/omaldonado/snapfield-backend/pkg/logger"
	"github.com/omaldonado/snapfield-backend/pkg/metrics"
	"github.com/omaldonado/snapfield-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The remote store is optional: a missing or unreachable backend leaves
	// the process on the local file fallback.
	var remote store.Remote
	var remotePinger *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "remote store unreachable, using file fallback")
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logg.Error(ctx, "error closing redis", err)
				}
			}()
			remote = store.NewRedisRemote(redisClient)
			remotePinger = redisClient
		}
	}

	if cfg.Store.FallbackDir != "" {
		if err := os.MkdirAll(cfg.Store.FallbackDir, 0o755); err != nil {
			logg.Warn(ctx, "fallback dir unavailable, local persistence disabled")
		}
	}

	facade, err := store.NewFacade(store.FacadeParams{
		Remote:      remote,
		FallbackDir: cfg.Store.FallbackDir,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build persistence facade", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	coreMetrics := metrics.NewCoreMetrics(promRegistry)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Store:   facade,
		Logger:  logg,
		Metrics: coreMetrics,
		Defaults: ledger.QuotaConfig{
			NormalWeeklyLimit: cfg.Quota.NormalWeeklyLimit,
			ProWeeklyLimit:    cfg.Quota.ProWeeklyLimit,
		},
		TTL: cfg.Store.LedgerTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to build quota ledger", err)
		os.Exit(1)
	}

	codesSvc, err := codes.NewService(codes.ServiceParams{
		Store:  facade,
		Ledger: ledgerSvc,
		Logger: logg,
		TTL:    cfg.Store.CodesTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to build redemption registry", err)
		os.Exit(1)
	}

	journalSvc, err := journal.NewService(journal.ServiceParams{
		Store:      facade,
		Logger:     logg,
		Metrics:    coreMetrics,
		MaxEntries: cfg.Journal.MaxEntries,
		TTL:        cfg.Store.JournalTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to build usage journal", err)
		os.Exit(1)
	}

	admissionGate, err := gate.New(cfg.Gate.Capacity, coreMetrics)
	if err != nil {
		logg.Error(ctx, "failed to build admission gate", err)
		os.Exit(1)
	}

	geoCache := geo.NewCachedResolver(geo.NewClient(cfg.Geo.Timeout, geo.WithBaseURL(cfg.Geo.BaseURL)))

	visionClient, err := vision.NewClient(cfg.Vision)
	if err != nil {
		logg.Error(ctx, "failed to build vision client", err)
		os.Exit(1)
	}

	tracker := reclaim.NewTracker(nil)
	reclaimRegistry := reclaim.NewRegistry()
	reclaimRegistry.Register(reclaim.TierLight, geoCache)
	reclaimRegistry.Register(reclaim.TierDeep, visionClient)
	reclaimRegistry.Register(reclaim.TierDeep, journalSvc)

	reclaimer, err := reclaim.NewService(reclaim.ServiceParams{
		Logger:       logg,
		Tracker:      tracker,
		Registry:     reclaimRegistry,
		Metrics:      coreMetrics,
		TickInterval: cfg.Reclaim.TickInterval,
		LightIdle:    cfg.Reclaim.LightIdle,
		DeepIdle:     cfg.Reclaim.DeepIdle,
	})
	if err != nil {
		logg.Error(ctx, "failed to build idle reclaimer", err)
		os.Exit(1)
	}
	go func() {
		if err := reclaimer.Run(ctx); err != nil && ctx.Err() == nil {
			logg.Error(ctx, "reclaimer stopped unexpectedly", err)
		}
	}()

	extractionSvc, err := extraction.NewService(extraction.ServiceParams{
		Ledger:      ledgerSvc,
		Gate:        admissionGate,
		Journal:     journalSvc,
		Geo:         geoCache,
		Extractor:   visionClient,
		Tracker:     tracker,
		Logger:      logg,
		WaitTimeout: cfg.Gate.WaitTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to build extraction service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	var remotePing controllers.Pinger
	if remotePinger != nil {
		remotePing = remotePinger
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:     cfg,
			Logger:     logg,
			Remote:     remotePing,
			Extraction: extractionSvc,
			Ledger:     ledgerSvc,
			Codes:      codesSvc,
			Journal:    journalSvc,
			Registry:   promRegistry,
		}),
	}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(startCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
