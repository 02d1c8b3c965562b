// Package main is the entry point for the governd binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microaidao/governance/internal/ratelimit"
	"github.com/microaidao/governance/pkg/api"
	"github.com/microaidao/governance/pkg/config"
	"github.com/microaidao/governance/pkg/governance"
	"github.com/microaidao/governance/pkg/ledger"
	"github.com/microaidao/governance/pkg/logging"
	"github.com/microaidao/governance/pkg/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultConfigPath = "governd.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	textLogs := flag.Bool("text", false, "Enable text console logging")
	flag.Parse()

	// Setup Config Provider
	bootstrap := logging.NewLogger(logging.Config{Level: "info", Text: *textLogs})
	cfgProvider, err := config.NewFileProvider(*configPath, bootstrap)
	if err != nil {
		bootstrap.Error("Failed to initialize config provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cfgProvider.Close(); err != nil {
			bootstrap.Error("Failed to close config provider", "error", err)
		}
	}()

	cfg := cfgProvider.Current()
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Setup Logging
	logger := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Text: *textLogs || cfg.Logging.Text})
	slog.SetDefault(logger)
	logger.Info("Starting governd", "config", *configPath, "backend", cfg.Ledger.Backend)

	// Setup Tracing
	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.TraceConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Open Ledger
	store, err := openLedger(cfg.Ledger, logger)
	if err != nil {
		logger.Error("Failed to open ledger", "backend", cfg.Ledger.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close ledger", "error", err)
		}
	}()

	// Initialize Core Components
	metrics := telemetry.NewMetrics()
	svc := governance.NewService(store, logger, governance.WithMetrics(metrics))
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	apiServer := api.NewServer(svc, logger, metrics, limiter, api.WithDAODefaults(api.DAODefaults{
		InitialTreasury: cfg.DAO.InitialTreasury,
		Compliance:      cfg.DAO.Compliance,
	}))

	// Start Config Watcher; rate limits follow reloads without restart.
	go watchConfig(cfgProvider, limiter, logger)

	// Start Server
	server := startServer(cfg, apiServer, logger)

	// Wait for shutdown
	waitForShutdown(server, shutdownTracing, logger)
}

func openLedger(cfg config.LedgerConfig, logger *slog.Logger) (ledger.Ledger, error) {
	if cfg.Backend == "sqlite" {
		return ledger.NewSqliteLedger(cfg.DataDir, logger)
	}
	return ledger.NewMemoryLedger(), nil
}

func watchConfig(provider *config.FileProvider, limiter *ratelimit.Limiter, logger *slog.Logger) {
	for cfg := range provider.Subscribe() {
		limiter.Configure(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		})
		logger.Info("Configuration applied",
			"rate_limit_rps", cfg.RateLimit.RequestsPerSecond,
			"rate_limit_burst", cfg.RateLimit.BurstSize,
		)
	}
}

func startServer(cfg config.Config, apiServer *api.Server, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Handler:      otelhttp.NewHandler(apiServer.Handler(), "governd.api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		logger.Error("Failed to bind listener", "addr", cfg.Server.Listen, "error", err)
		os.Exit(1)
	}
	logger.Info("Server listening", "addr", listener.Addr().String())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, shutdownTracing func(context.Context) error, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Tracing shutdown error", "error", err)
	}
}
