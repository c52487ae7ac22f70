package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	httptransport "github.com/autobahn/moderation/internal/admin_api_service/transport/http"
	"github.com/autobahn/moderation/internal/bootstrap"
	"github.com/autobahn/moderation/internal/enforcement_service/adapters/guard"
	"github.com/autobahn/moderation/internal/enforcement_service/adapters/natsplatform"
	enforcementapp "github.com/autobahn/moderation/internal/enforcement_service/app"
	"github.com/autobahn/moderation/internal/platform/config"
	"github.com/autobahn/moderation/internal/platform/logger"
)

const (
	serviceName     = "moderation_service"
	shutdownTimeout = 15 * time.Second
	// eventTimeout bounds a single event through the engine.
	eventTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Moderation service starting...", "storage", cfg.StorageDriver)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	components, err := bootstrap.Build(mainCtx, cfg, appLogger, bootstrap.Options{RequireNATS: true, AppName: serviceName})
	if err != nil {
		appLogger.Error("Failed to initialize components", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	var notifyGuard enforcementapp.NotifyGuard
	if components.Redis != nil {
		notifyGuard = guard.NewRedisGuard(components.Redis, cfg.NotifyDeleteAfter)
	} else {
		appLogger.Warn("Redis not configured, concurrent joins may produce duplicate ban notices")
	}

	engine := enforcementapp.NewEngine(
		components.Platform,
		components.BanRepo,
		components.Tags,
		notifyGuard,
		enforcementapp.EngineConfig{SelfID: cfg.BotUserID, NotifyDeleteAfter: cfg.NotifyDeleteAfter},
		appLogger,
	)
	if cfg.EnforceDenylists {
		matcher := enforcementapp.NewDenylistMatcher(components.DenylistRepo, components.Resolver, appLogger)
		engine.WithDenylists(matcher, components.Bans)
	} else {
		appLogger.Warn("Denylist enforcement disabled")
	}
	consumer := natsplatform.NewConsumer(components.NATS, engine, cfg.EventsSubject, cfg.EventsQueueGroup, eventTimeout, appLogger)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		if err := consumer.Run(groupCtx); err != nil {
			appLogger.Error("Event consumer stopped with error", "error", err)
			return err
		}
		appLogger.Info("Event consumer stopped.")
		return nil
	})

	// --- Admin HTTP API ---
	validate := validator.New()
	router := httptransport.NewRouter(
		cfg.AdminJWTSecret,
		appLogger,
		httptransport.NewDenylistHandler(components.Denylists, appLogger, validate),
		httptransport.NewBanlistHandler(components.Bans, components.Sync, appLogger, validate),
		httptransport.NewChatHandler(components.Tags, appLogger, validate),
	)
	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminHTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	g.Go(func() error {
		appLogger.Info("Admin HTTP server starting", "address", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Admin HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Admin HTTP server shut down gracefully.")
		return nil
	})

	// --- gRPC health ---
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListenAddress := fmt.Sprintf(":%d", cfg.GRPCPort)
	grpcListener, err := net.Listen("tcp", grpcListenAddress)
	if err != nil {
		appLogger.Error("Failed to listen for gRPC", "address", grpcListenAddress, "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		appLogger.Info("gRPC health server starting", "address", grpcListenAddress)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			appLogger.Error("gRPC server failed to serve", "error", err)
			return err
		}
		return nil
	})

	// --- Metrics ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		return nil
	})

	// --- Graceful shutdown ---
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")
		healthServer.Shutdown()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		var shutdownErrors error
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("admin http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return shutdownErrors
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Moderation service exited with error", "error", err)
		components.Close()
		os.Exit(1)
	}
	appLogger.Info("Moderation service shut down.")
}
