package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/nmiguel/octocert"
)

// generateBlueprintConfig creates an octocert.Config populated with example values.
func generateBlueprintConfig() octocert.Config {
	return octocert.Config{
		Domain:              "example.com",
		Email:               "your-acme-account@example.com",
		ServerURI:           "https://deploy.example.com",
		Space:               "Spaces-1",
		APIKey:              "API-XXXXXXXXXXXXXXXXXXXXXXXXXX", // Placeholder: set OCTOCERT_API_KEY instead
		Staging:             true,
		ExpiryThresholdDays: octocert.DefaultExpiryThresholdDays,
		PfxPassword:         "CHANGE_ME", // Placeholder: set OCTOCERT_PFX_PASSWORD instead
		ProductionIssuer:    octocert.DefaultProductionIssuer,
		StagingIssuer:       octocert.DefaultStagingIssuer,
		DNSProvider:         octocert.DNSProviderRoute53,
		Route53: octocert.Route53Provider{
			AccessKeyID:     "YOUR_AWS_ACCESS_KEY_ID",
			SecretAccessKey: "YOUR_AWS_SECRET_ACCESS_KEY",
			Region:          "us-east-1",
		},
		Cloudflare: octocert.CloudflareProvider{
			APIToken: "YOUR_CLOUDFLARE_API_TOKEN",
		},
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	outputFileFlag := flag.String("output", "octocert.blueprint.toml", "Output file path for the blueprint TOML configuration")
	flag.StringVar(outputFileFlag, "o", "octocert.blueprint.toml", "Output file path (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates a blueprint TOML configuration file with example values.\n")
		fmt.Fprintf(os.Stderr, "Remember to replace placeholder values and load secrets via the environment.\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	logger.Info("Generating blueprint configuration...")
	blueprintCfg := generateBlueprintConfig()

	tomlBytes, err := toml.Marshal(blueprintCfg)
	if err != nil {
		logger.Error("Failed to marshal blueprint config to TOML", "error", err)
		os.Exit(1)
	}

	logger.Info("Writing blueprint configuration", "path", *outputFileFlag)
	if err := os.WriteFile(*outputFileFlag, tomlBytes, 0644); err != nil {
		logger.Error("Failed to write blueprint config file", "path", *outputFileFlag, "error", err)
		os.Exit(1)
	}

	logger.Info("Blueprint configuration generated successfully", "path", *outputFileFlag)
	logger.Warn("IMPORTANT: Review the generated file, replace placeholders, and supply secrets (API key, AWS keys, PFX password) via environment variables.")
}
