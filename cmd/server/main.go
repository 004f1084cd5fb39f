package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"omvstack.control/internal/adapters/compose"
	"omvstack.control/internal/adapters/docker"
	grpc_handler "omvstack.control/internal/adapters/handler/grpc"
	http_handler "omvstack.control/internal/adapters/handler/http"
	"omvstack.control/internal/adapters/handler/mqtt"
	"omvstack.control/internal/adapters/memory"
	redis_adapter "omvstack.control/internal/adapters/queue/redis"
	"omvstack.control/internal/adapters/repository/db"
	"omvstack.control/internal/adapters/runner"
	"omvstack.control/internal/catalog"
	"omvstack.control/internal/config"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
	"omvstack.control/internal/core/services"
	"omvstack.control/internal/core/tracing"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting omvstack server", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EnableTracing {
		shutdownTracing, err := tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing", "error", err)
		} else {
			logger.Info("Tracing initialized", "endpoint", cfg.OTLPEndpoint)
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Error("Failed to shutdown tracing", "error", err)
				}
			}()
		}
	}

	exec := runner.NewExec()

	// The API client doubles as the daemon health probe for either backend.
	var pinger services.DockerPinger
	dockerAPI, err := docker.NewAPI()
	if err != nil {
		logger.Warn("Docker API client unavailable", "error", err)
	} else {
		pinger = dockerAPI
		defer dockerAPI.Close()
	}

	var backend ports.ComposeBackend
	switch cfg.DockerBackend {
	case "api":
		if dockerAPI == nil {
			log.Fatalf("DOCKER_BACKEND=api needs a docker API client")
		}
		backend = dockerAPI
	case "cli", "":
		backend = compose.NewCLI(exec)
	default:
		log.Fatalf("unknown DOCKER_BACKEND %q", cfg.DockerBackend)
	}

	var (
		bus         ports.EventBus
		lock        ports.ActionLock
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		adapter, client, err := redis_adapter.NewRedisAdapter(cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			logger.Error("Failed to init redis", "error", err)
			log.Fatalf("failed to init redis: %v", err)
		}
		defer client.Close()
		bus, lock, redisClient = adapter, adapter, client
	} else {
		bus, lock = memory.NewEventBus(), memory.NewActionLock()
	}

	var (
		calls  ports.CallRepository
		gormDB *gorm.DB
	)
	if cfg.DatabaseURL != "" {
		repo, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to init database", "error", err)
			log.Fatalf("failed to init database: %v", err)
		}
		defer repo.Close()
		calls, gormDB = repo, repo.DB()
	} else {
		calls = memory.NewCallRepository(0)
	}

	engine := services.NewEngine(lock, bus, calls)
	defs := catalog.Definitions(cfg.StackRoot, cfg.MkconfDir)
	svcs, sources := catalog.Services(defs, exec, backend)
	for _, svc := range svcs {
		if err := engine.Register(svc); err != nil {
			log.Fatalf("failed to register service: %v", err)
		}
	}
	workspace, err := catalog.Workspace(defs)
	if err != nil {
		log.Fatalf("failed to build panels: %v", err)
	}

	poller := services.NewStatusPoller(bus, cfg.StatusSchedule, sources...)
	if err := poller.Start(ctx); err != nil {
		log.Fatalf("failed to start status poller: %v", err)
	}

	healthService := services.NewHealthService(gormDB, redisClient, pinger, version)

	hub := http_handler.NewHub(bus)
	go hub.Run(ctx)
	go hub.EventConsumer(ctx)

	if cfg.MQTTBroker != "" {
		publisher, err := mqtt.NewPublisher(bus, cfg.MQTTBroker, cfg.ServiceName)
		if err != nil {
			logger.Error("Failed to init MQTT publisher", "error", err)
		} else {
			publisher.Start(ctx)
			defer publisher.Close()
			logger.Info("MQTT publisher started", "broker", cfg.MQTTBroker)
		}
	}

	httpServer := http_handler.NewServer(engine, workspace, healthService, hub, poller, calls, http_handler.Options{
		Version:        version,
		RPCSecret:      cfg.RPCSecret,
		SessionTTL:     cfg.SessionTTL,
		EnableMetrics:  cfg.EnableMetrics,
		AllowedOrigins: cfg.CORSOrigins,
	})
	go func() {
		if err := httpServer.Run(ctx, ":"+cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Error("Failed to listen", "error", err, "port", cfg.GRPCPort)
		log.Fatalf("failed to listen: %v", err)
	}

	s := grpc_handler.NewGRPCServer(grpc_handler.NewServer(engine, cfg.RPCSecret))
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down gracefully...")
		s.GracefulStop()
	}()

	logger.Info("gRPC server starting", "port", cfg.GRPCPort)
	if err := s.Serve(lis); err != nil {
		logger.Error("gRPC server failed", "error", err)
	}
	poller.Stop()
}
