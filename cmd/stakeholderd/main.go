// Package main is the entry point for the stakeholderd binary, the
// autonomous AI stakeholder that evaluates and votes on proposals.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/microaidao/governance/pkg/api"
	"github.com/microaidao/governance/pkg/config"
	"github.com/microaidao/governance/pkg/logging"
	"github.com/microaidao/governance/pkg/stakeholder"
)

const defaultConfigPath = "governd.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	apiURL := flag.String("api", "", "Governance API base URL (overrides config)")
	dao := flag.String("dao", "", "DAO to participate in (overrides config)")
	voter := flag.String("voter", "", "Voter identity (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.NewLogger(logging.Config{Level: *logLevel})
	slog.SetDefault(logger)

	cfgProvider, err := config.NewFileProvider(*configPath, logger)
	if err != nil {
		logger.Error("Failed to initialize config provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = cfgProvider.Close() }()

	cfg := cfgProvider.Current().Stakeholder
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *dao != "" {
		cfg.DAO = *dao
	}
	if *voter != "" {
		cfg.Voter = *voter
	}
	if cfg.APIURL == "" || cfg.DAO == "" || cfg.Voter == "" {
		logger.Error("api url, dao, and voter must be configured")
		os.Exit(1)
	}

	policySource := ""
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			logger.Error("Failed to read policy file", "path", cfg.PolicyPath, "error", err)
			os.Exit(1)
		}
		policySource = string(data)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := stakeholder.NewEngine(ctx, policySource)
	if err != nil {
		logger.Error("Failed to compile voting policy", "error", err)
		os.Exit(1)
	}

	runner := stakeholder.NewRunner(api.NewClient(cfg.APIURL), engine, logger, stakeholder.RunnerConfig{
		DAO:          cfg.DAO,
		Voter:        cfg.Voter,
		PollInterval: cfg.PollInterval,
	})

	logger.Info("Starting stakeholderd", "api", cfg.APIURL, "dao", cfg.DAO, "voter", cfg.Voter)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Stakeholder stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Stakeholder stopped")
}
