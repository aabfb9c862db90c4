package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/adapter"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/aggregator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
	cfg "github.com/Kocoro-lab/Shannon/go/briefing/internal/config"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/health"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/interceptors"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/registry"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/temporal"
	"github.com/Kocoro-lab/Shannon/go/briefing/internal/tracing"
)

const grpcHealthService = "briefing"

func main() {
	conf, err := cfg.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := conf.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(conf.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled after init failure", zap.Error(err))
	}

	metricsDone := make(chan struct{})
	circuitbreaker.StartMetricsCollection(metricsDone)
	defer close(metricsDone)

	// Engine credentials: environment over a hot-reloaded engines.yaml
	engineStore := cfg.NewEngineStore(logger)
	if enginesFile := conf.EnginesFile(); enginesFile != "" {
		mgr, err := cfg.NewManager(filepath.Dir(enginesFile), logger)
		if err != nil {
			logger.Warn("Engine file watching disabled", zap.Error(err))
		} else {
			name := filepath.Base(enginesFile)
			mgr.RegisterValidator(name, cfg.ValidateEngineFile)
			mgr.RegisterHandler(name, engineStore.HandleChange)
			if err := mgr.Start(ctx); err != nil {
				logger.Warn("Config manager start failed", zap.Error(err))
			}
			defer mgr.Stop()
			go reloadOnHangup(ctx, mgr, name, logger)
		}
	}
	logger.Info("Engine configuration resolved", zap.Strings("configured", engineStore.EngineConfigs().Configured()))

	hm := health.NewManager(logger)

	opts := adapter.Options{
		Timeout:  conf.Engines.Timeout,
		CacheTTL: conf.Cache.TTL,
		Breaker:  conf.Breakers.Engine,
		HTTPClient: &http.Client{
			Timeout:   conf.Engines.Timeout + 5*time.Second,
			Transport: interceptors.NewBriefRoundTripper(nil),
		},
	}
	if conf.Cache.Enabled {
		switch conf.Cache.Backend {
		case "redis":
			rc, err := cache.NewRedisCache(ctx, conf.Cache.RedisAddr, conf.Breakers.Redis, logger)
			if err != nil {
				logger.Warn("Redis result cache unavailable, using in-process LRU",
					zap.String("addr", conf.Cache.RedisAddr), zap.Error(err))
				opts.Cache = cache.NewLocalLRU(conf.Cache.MaxEntries)
			} else {
				defer rc.Close()
				opts.Cache = rc
				_ = hm.RegisterChecker(health.NewRedisHealthChecker(rc))
			}
		default:
			opts.Cache = cache.NewLocalLRU(conf.Cache.MaxEntries)
		}
	}

	orch := orchestrator.New(opts, aggregator.Builder{
		IncludeFallbackDisagreements: conf.Engines.IncludeFallbackDisagreements,
	}, logger)
	for _, a := range orch.Adapters() {
		_ = hm.RegisterChecker(health.NewBreakerChecker(a.Engine().ID, a.Breaker()))
	}

	var runner httpapi.Runner = httpapi.InlineRunner{Orchestrator: orch, Configs: engineStore}
	if conf.Temporal.Enabled {
		tc, err := temporal.Dial(conf.Temporal.Host, conf.Temporal.Namespace, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Temporal", zap.Error(err))
		}
		defer tc.Close()
		_ = hm.RegisterChecker(health.NewTemporalHealthChecker(tc))

		w := startWorker(tc, conf.Temporal.TaskQueue, activities.NewActivities(orch, engineStore, logger), logger)
		defer w.Stop()

		runner = httpapi.TemporalRunner{
			Client:                       tc,
			TaskQueue:                    conf.Temporal.TaskQueue,
			EngineTimeout:                conf.Engines.Timeout,
			IncludeFallbackDisagreements: conf.Engines.IncludeFallbackDisagreements,
			Logger:                       logger,
		}
	}

	// gRPC exposes the standard health service, fed by the health manager
	grpcServer := grpc.NewServer()
	grpcHealth := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	reflection.Register(grpcServer)
	hm.OnUpdate(health.GRPCMirror(grpcHealth, grpcHealthService))
	if err := hm.Start(ctx); err != nil {
		logger.Warn("Health manager start failed", zap.Error(err))
	}
	defer hm.Stop()

	lis, err := net.Listen("tcp", ":"+strconv.Itoa(conf.Service.GRPCPort))
	if err != nil {
		logger.Fatal("Failed to listen for gRPC", zap.Int("port", conf.Service.GRPCPort), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC health service listening", zap.String("address", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	apiMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(apiMux)
	httpapi.NewBriefHandler(runner, engineStore, logger).RegisterRoutes(apiMux)
	apiServer := &http.Server{
		Addr:        ":" + strconv.Itoa(conf.Service.HTTPPort),
		Handler:     apiMux,
		ReadTimeout: 10 * time.Second,
		// a brief waits for the slowest engine
		WriteTimeout: 2*conf.Engines.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         ":" + strconv.Itoa(conf.Service.MetricsPort),
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	for _, srv := range []*http.Server{apiServer, metricsServer} {
		go func(srv *http.Server) {
			logger.Info("HTTP server listening", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", zap.String("address", srv.Addr), zap.Error(err))
				stop()
			}
		}(srv)
	}

	logger.Info("Research briefing service started",
		zap.String("mode", runner.Mode()),
		zap.Duration("engine_timeout", conf.Engines.Timeout),
		zap.Bool("cache", conf.Cache.Enabled),
	)
	<-ctx.Done()
	logger.Info("Shutting down research briefing service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", zap.String("address", srv.Addr), zap.Error(err))
		}
	}
	grpcServer.GracefulStop()
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown", zap.Error(err))
		}
	}
}

// reloadOnHangup re-reads the engine file on SIGHUP, for filesystems where
// fsnotify events are not delivered
func reloadOnHangup(ctx context.Context, mgr *cfg.Manager, name string, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := mgr.ReloadConfig(name); err != nil {
				logger.Warn("Engine file reload failed; keeping previous values", zap.String("file", name), zap.Error(err))
				continue
			}
			logger.Info("Engine file reloaded on SIGHUP", zap.String("file", name))
		}
	}
}

func startWorker(tc client.Client, queue string, acts *activities.Activities, logger *zap.Logger) worker.Worker {
	w := worker.New(tc, queue, worker.Options{
		MaxConcurrentActivityExecutionSize:     16,
		MaxConcurrentWorkflowTaskExecutionSize: 8,
	})
	registry.NewBriefRegistry(acts, logger).Register(w)
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start Temporal worker", zap.String("queue", queue), zap.Error(err))
	}
	logger.Info("Temporal worker started", zap.String("queue", queue))
	return w
}
