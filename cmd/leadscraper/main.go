// Command leadscraper discovers local businesses for an area and sector and
// collects their contact emails, either as an HTTP service or as a one-shot
// CSV export.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/business-contact-pipeline/internal/config"
	"github.com/palantir/business-contact-pipeline/internal/logging"
	"github.com/palantir/business-contact-pipeline/pkg/pipeline/redact"
)

const serviceName = "leadscraper"

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Find local businesses and their contact emails",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (env vars override it)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded when present")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", redact.Secrets(err.Error()))
		os.Exit(1)
	}
}

// loadConfig resolves configuration and builds the process logger.
func loadConfig() (config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
