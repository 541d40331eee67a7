package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/transfer-engine/internal/adapter/grpc"
	"github.com/simaogato/transfer-engine/internal/adapter/repository/dynamo"
	"github.com/simaogato/transfer-engine/internal/adapter/repository/memory"
	"github.com/simaogato/transfer-engine/internal/adapter/repository/postgres"
	redisrepo "github.com/simaogato/transfer-engine/internal/adapter/repository/redis"
	"github.com/simaogato/transfer-engine/internal/adapter/rest"
	"github.com/simaogato/transfer-engine/internal/config"
	"github.com/simaogato/transfer-engine/internal/domain"
	"github.com/simaogato/transfer-engine/internal/telemetry"
	"github.com/simaogato/transfer-engine/internal/usecase/account"
	"github.com/simaogato/transfer-engine/internal/usecase/seeder"
	"github.com/simaogato/transfer-engine/internal/usecase/transfer"
)

const serviceName = "transfer-engine"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(serviceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// 1. Tracing
	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer", zap.Error(err))
		}
	}()

	// 2. Account store
	accountRepo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Services (Use Cases)
	policy := transfer.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}
	transferService, err := transfer.NewTransferService(accountRepo, policy, logger)
	if err != nil {
		return fmt.Errorf("failed to create transfer service: %w", err)
	}
	accountService := account.NewAccountService(accountRepo)

	if cfg.SeedAccounts {
		if err := seeder.NewAccountSeeder(accountRepo, logger).Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed demo accounts: %w", err)
		}
		logger.Info("demo accounts seeded")
	}

	// 4. HTTP server
	gin.SetMode(cfg.GinMode)
	router := rest.NewRouter(rest.NewHandler(transferService, accountService, logger), logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 5. gRPC server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(grpcadapter.UnaryInterceptors(logger)...),
	)
	grpcadapter.RegisterAccountServiceServer(grpcServer, grpcadapter.NewServer(transferService, accountService))
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	// 6. Metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 3)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
	case runErr = <-serveErr:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", zap.Error(err))
	}
	logger.Info("servers stopped")

	return runErr
}

// openStore connects the configured backend and returns a release function
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.AccountRepository, func(), error) {
	logger = logger.With(zap.String("backend", cfg.StoreBackend))

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(logger); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("account store ready")
		return postgres.NewAccountRepository(db), func() { db.Close() }, nil

	case config.BackendRedis:
		client, err := redisrepo.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("account store ready", zap.String("addr", cfg.Redis.Addr))
		return redisrepo.NewAccountRepository(client), func() { client.Close() }, nil

	case config.BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		if err := dynamo.EnsureTable(ctx, client, cfg.DynamoDB.Table); err != nil {
			return nil, nil, err
		}
		logger.Info("account store ready", zap.String("table", cfg.DynamoDB.Table))
		return dynamo.NewAccountRepository(client, cfg.DynamoDB.Table), func() {}, nil

	default:
		logger.Info("account store ready")
		return memory.NewAccountRepository(), func() {}, nil
	}
}
