package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nmiguel/octocert"
	octocert_db "github.com/nmiguel/octocert/zombiezen"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger) // Set globally for libraries that might use slog's default

	// --- Flags ---
	var configPath string
	var timeout time.Duration
	flag.StringVar(&configPath, "config", "octocert.toml", "path to config TOML file")
	flag.DurationVar(&timeout, "timeout", 15*time.Minute, "overall run timeout (covers DNS propagation)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Renews a domain's TLS certificate and publishes it to the deployment server.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	// --- Configuration Loading ---
	logger.Info("loading configuration", "path", configPath)
	cfg, err := octocert.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config file", "path", configPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"domain", cfg.Domain,
		"server", cfg.ServerURI,
		"space", cfg.Space,
		"staging", cfg.Staging,
		"issuer", cfg.IssuerName(),
		"dns_provider", cfg.DNSProvider,
		"threshold_days", cfg.ExpiryThresholdDays,
	)

	// --- Optional History Database ---
	var history octocert.Writer
	if cfg.HistoryDBPath != "" {
		logger.Info("opening issuance history database", "path", cfg.HistoryDBPath)
		pool, err := sqlitex.NewPool(cfg.HistoryDBPath, sqlitex.PoolOptions{
			Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate,
			PoolSize: 1, // single sequential run
		})
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.HistoryDBPath, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := pool.Close(); err != nil {
				logger.Error("failed to close history database", "error", err)
			}
		}()

		writer := octocert_db.NewWriter(pool)
		if err := writer.EnsureSchema(context.Background()); err != nil {
			logger.Error("failed to prepare history database", "error", err)
			os.Exit(1)
		}
		history = writer
	}

	// --- Wiring ---
	deploy := octocert.NewDeployClient(cfg.ServerURI, cfg.Space, cfg.APIKey, logger)
	issuer := octocert.NewLegoIssuer(cfg, logger)
	renewer := octocert.NewRenewer(cfg, deploy, issuer, history, logger)

	// --- Run ---
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := renewer.Run(ctx); err != nil {
		logger.Error("renewal run failed", "domain", cfg.Domain, "error", err)
		os.Exit(1)
	}

	logger.Info("renewal run completed", "domain", cfg.Domain)
}
