// Command dashctl inspects the data repository and builds program views from
// the command line, without the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/logging"
	"github.com/cordoba-data/program-dashboard/internal/source"

	// Source registrations.
	_ "github.com/cordoba-data/program-dashboard/internal/gitlab"
	_ "github.com/cordoba-data/program-dashboard/internal/mirror"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Inspect the program data repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (overrides DASHBOARD_CONFIG)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newTreeCmd(), newViewCmd(), newCupoCmd())
	return root
}

func main() {
	_ = godotenv.Load(".env.local")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration the same way the server does.
func loadConfig() (config.Config, error) {
	if configPath != "" {
		os.Setenv("DASHBOARD_CONFIG", configPath)
	}
	return config.Load()
}

// openSource loads the configuration, the logger and the configured source.
func openSource(ctx context.Context) (config.Config, source.Source, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log, err := logging.New(logLevel)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("logger: %w", err)
	}
	src, err := source.New(ctx, cfg, log)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, src, log, nil
}
