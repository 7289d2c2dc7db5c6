package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-triage/internal/api"
	"github.com/miradorstack/mirador-triage/internal/cache"
	"github.com/miradorstack/mirador-triage/internal/config"
	"github.com/miradorstack/mirador-triage/internal/detector"
	"github.com/miradorstack/mirador-triage/internal/engine"
	"github.com/miradorstack/mirador-triage/internal/events"
	"github.com/miradorstack/mirador-triage/internal/generator"
	"github.com/miradorstack/mirador-triage/internal/metrics"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/scanner"
	"github.com/miradorstack/mirador-triage/internal/services"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", slog.String("path", envFile), slog.Any("error", err))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-triage",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.Server.HTTPAddress))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider := newCacheProvider(cfg.Cache, logger)
	defer cacheProvider.Close()

	store := repo.NewElasticStore(repo.ElasticConfig{
		Endpoint:       cfg.Store.Endpoint,
		APIKey:         cfg.Store.APIKey,
		LogsIndex:      cfg.Store.LogsIndex,
		IncidentsIndex: cfg.Store.IncidentsIndex,
		AuditIndex:     cfg.Store.AuditIndex,
		Timeout:        cfg.Store.Timeout,
	}, cacheProvider, cfg.Cache.HistoryTTL, cfg.Cache.AggregationTTL, logger)
	if cfg.Store.Endpoint == "" {
		logger.Warn("elasticsearch endpoint not configured; scans will report no records")
	}

	var history engine.HistorySource = store
	if cfg.History.Backend == config.HistoryWeaviate {
		w := cfg.History.Weaviate
		history = repo.NewWeaviateRepo(w.Endpoint, w.APIKey, w.Class, w.Timeout, cacheProvider, cfg.Cache.HistoryTTL)
		logger.Info("using weaviate history backend", slog.String("endpoint", w.Endpoint))
	}

	var planGenerator engine.PlanGenerator
	if client := generator.NewGeminiClient(generator.Config{
		Endpoint:        cfg.Generator.Endpoint,
		APIKey:          cfg.Generator.APIKey,
		Model:           cfg.Generator.Model,
		Timeout:         cfg.Generator.Timeout,
		Temperature:     cfg.Generator.Temperature,
		BreakerFailures: cfg.Generator.BreakerFailures,
		BreakerCooldown: cfg.Generator.BreakerCooldown,
	}, logger); client != nil {
		planGenerator = client
	} else {
		logger.Warn("plan generator not configured; decisions fall back to manual investigation")
	}

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	assembler := engine.NewContextAssembler(logger, store, history, engine.AssemblerConfig{
		RecordLimit:       cfg.Scanner.ContextRecords,
		HistoryLimit:      cfg.Scanner.HistoryLimit,
		CorrelationWindow: cfg.Scanner.CorrelationWindow,
	})
	pipeline := engine.NewPipeline(logger, assembler, engine.NewDecisionEngine(logger, planGenerator, ruleEngine))

	det, err := detector.New(detector.Thresholds{
		ErrorRate:       cfg.Scanner.ErrorRateThreshold,
		RepeatFailure:   cfg.Scanner.RepeatFailureThreshold,
		SignatureLength: cfg.Scanner.SignatureLength,
		Keywords:        cfg.Scanner.Keywords,
	}, logger)
	if err != nil {
		logger.Error("invalid detector thresholds", slog.Any("error", err))
		os.Exit(1)
	}

	var notifier scanner.Notifier
	if cfg.Events.NATSURL != "" {
		publisher, err := events.NewPublisher(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			logger.Warn("decision events disabled", slog.Any("error", err))
		} else {
			defer publisher.Close()
			notifier = publisher
		}
	}

	sc, err := scanner.New(logger, store, det, pipeline, store, notifier, scanner.Config{
		Window:     cfg.Scanner.Window,
		MaxRecords: cfg.Scanner.MaxRecords,
	})
	if err != nil {
		logger.Error("failed to create scanner", slog.Any("error", err))
		os.Exit(1)
	}

	triageService := services.NewTriageService(logger, sc, pipeline, store)

	server, err := api.NewServer(cfg.Server, triageService, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}
	httpServer := api.NewHTTPServer(cfg.Server, triageService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sc.Run(ctx, cfg.Scanner.Interval)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("HTTP server exited", slog.Any("error", err))
			stop()
		}
	}()

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", slog.Any("error", err))
	}
	server.Shutdown(shutdownCtx)

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("mirador-triage stopped")
}

func newCacheProvider(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Backend == config.CacheValkey {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
			KeyPrefix:    cfg.KeyPrefix,
		})
		if err == nil {
			logger.Info("valkey cache enabled", slog.String("addr", cfg.Addr))
			return provider
		}
		logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
	}
	return cache.NewMemoryProvider(cfg.HistoryTTL, time.Minute)
}
