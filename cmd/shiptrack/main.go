package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/shiptrack/internal/application/hub"
	"github.com/aescanero/shiptrack/internal/application/orchestrator"
	"github.com/aescanero/shiptrack/internal/application/simulation"
	"github.com/aescanero/shiptrack/internal/config"
	eventsmem "github.com/aescanero/shiptrack/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/shiptrack/pkg/adapters/events/redis"
	metrics "github.com/aescanero/shiptrack/pkg/adapters/metrics/prometheus"
	ordermem "github.com/aescanero/shiptrack/pkg/adapters/orderstore/memory"
	orderpg "github.com/aescanero/shiptrack/pkg/adapters/orderstore/postgres"
	"github.com/aescanero/shiptrack/pkg/adapters/routing"
	"github.com/aescanero/shiptrack/pkg/adapters/session"
	simclient "github.com/aescanero/shiptrack/pkg/adapters/simulation/grpc"
	storagemem "github.com/aescanero/shiptrack/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/shiptrack/pkg/adapters/storage/redis"
	"github.com/aescanero/shiptrack/pkg/api/grpc"
	"github.com/aescanero/shiptrack/pkg/api/http"
	"github.com/aescanero/shiptrack/pkg/api/websocket"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting shipment tracking service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("role", cfg.Role))

	ctx, cancelFeeds := context.WithCancel(context.Background())
	defer cancelFeeds()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := metrics.NewCollector(registry)
	checks := map[string]http.HealthCheck{}

	// Initialize Redis client
	var redisClient *goredis.Client
	if cfg.StorageBackend == "redis" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	// Event bus. Every host gets its own consumer group so each process
	// sees the whole feed.
	var eventBus ports.EventBus
	if redisClient != nil {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "local"
		}
		eventBus = eventsredis.NewStreamsEventBus(
			redisClient,
			fmt.Sprintf("%s-%s", cfg.Redis.ConsumerGroup, hostname),
			fmt.Sprintf("shiptrack-%d", os.Getpid()),
			cfg.Redis.StreamMaxLen,
			logger,
		)
	} else {
		eventBus = eventsmem.NewInMemoryEventBus()
	}

	// Simulation engine
	var engine *simulation.Engine
	var grpcServer *grpc.Server
	if cfg.RunsEngine() {
		router, err := routing.NewRouter(&routing.Config{
			Provider: cfg.Routing.Provider,
			BaseURL:  cfg.Routing.OSRMURL,
			Profile:  cfg.Routing.Profile,
			Timeout:  cfg.Routing.Timeout,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("failed to create router", zap.Error(err))
		}

		var runStore ports.RunStore
		if redisClient != nil {
			runStore = storageredis.NewRunStorage(redisClient, cfg.Engine.RunTTL, logger)
		} else {
			runStore = storagemem.NewInMemoryRunStorage()
		}

		engine = simulation.NewEngine(&simulation.Config{
			Router:  router,
			Store:   runStore,
			Metrics: metricsCollector,
			Logger:  logger,
			Defaults: domain.SimulationConfig{
				SpeedKmh:         cfg.Engine.DefaultSpeedKmh,
				TickIntervalMs:   cfg.Engine.DefaultTickIntervalMs,
				VarianceFraction: cfg.Engine.DefaultVariance,
			},
			TickInterval:       cfg.Engine.TickInterval,
			CompletedRetention: cfg.Engine.CompletedRetention,
		})

		restored, err := engine.Restore(ctx)
		if err != nil {
			logger.Error("failed to restore simulations", zap.Error(err))
		}
		logger.Info("simulation engine ready", zap.Int("restored_runs", restored))

		if err := engine.Run(); err != nil {
			logger.Fatal("failed to start simulation engine", zap.Error(err))
		}

		grpcServer = grpc.NewServer(&grpc.Config{
			Port:        cfg.GRPCPort,
			Simulations: simulation.NewLocalService(engine),
			Logger:      logger,
		})
	}

	// Tracking
	var (
		manager    *orchestrator.Manager
		wsHandler  *websocket.Handler
		orders     ports.OrderStore
		pgStore    *orderpg.GormOrderStore
		remoteSims *simclient.Client
		sessions   ports.SessionValidator
	)
	if cfg.RunsTracker() {
		var sims ports.SimulationService
		if engine != nil {
			sims = simulation.NewLocalService(engine)
		} else {
			remoteSims, err = simclient.NewClient(cfg.EngineAddr, logger)
			if err != nil {
				logger.Fatal("failed to create engine client", zap.Error(err))
			}
			sims = remoteSims
		}

		if cfg.OrderStore == "postgres" {
			pgStore, err = orderpg.Open(cfg.Postgres.DSN, logger)
			if err != nil {
				logger.Fatal("failed to open order store", zap.Error(err))
			}
			orders = pgStore
			checks["postgres"] = pgStore.Ping
		} else {
			orders = ordermem.NewInMemoryOrderStore()
		}

		tokens, err := session.NewTokenValidator(cfg.SessionTokens)
		if err != nil {
			logger.Fatal("failed to configure sessions", zap.Error(err))
		}
		sessions = tokens

		manager = orchestrator.NewManager(&orchestrator.Config{
			Simulations:  sims,
			Orders:       orders,
			EventBus:     eventBus,
			Metrics:      metricsCollector,
			Validator:    orchestrator.NewValidator(),
			Logger:       logger,
			PollInterval: cfg.Tracking.PollInterval,
			CallTimeout:  cfg.Tracking.CallTimeout,
		})

		subscriptions := hub.New(manager, metricsCollector, logger)
		manager.SetBroadcaster(subscriptions)

		wsHandler = websocket.NewHandler(&websocket.Config{
			Hub:          subscriptions,
			Sessions:     sessions,
			EventBus:     eventBus,
			Metrics:      metricsCollector,
			Logger:       logger,
			PingInterval: cfg.WebSocket.PingInterval,
			SendBuffer:   cfg.WebSocket.SendBuffer,
		})
		if err := wsHandler.StartEventFeed(ctx); err != nil {
			logger.Fatal("failed to start event feed", zap.Error(err))
		}
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: manager,
		Orders:       orders,
		Sessions:     sessions,
		Gatherer:     registry,
		Checks:       checks,
		Logger:       logger,
	})
	if wsHandler != nil {
		httpServer.SetupWebSocket(wsHandler)
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Start(); err != nil {
				logger.Fatal("gRPC server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("shipment tracking service started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Bool("engine", cfg.RunsEngine()),
		zap.Bool("tracker", cfg.RunsTracker()))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if wsHandler != nil {
		wsHandler.CloseAll()
	}
	cancelFeeds()

	if manager != nil {
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracking manager shutdown error", zap.Error(err))
		}
	}

	if grpcServer != nil {
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("gRPC server shutdown error", zap.Error(err))
		}
	}

	if engine != nil {
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Error("simulation engine shutdown error", zap.Error(err))
		}
	}

	if remoteSims != nil {
		if err := remoteSims.Close(); err != nil {
			logger.Error("engine client close error", zap.Error(err))
		}
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if pgStore != nil {
		if err := pgStore.Close(); err != nil {
			logger.Error("order store close error", zap.Error(err))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("shipment tracking service shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
