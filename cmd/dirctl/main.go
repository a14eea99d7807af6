// Command dirctl is the operator CLI for the contractor directory: bulk
// imports, enrichment runs and broken image maintenance.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/app"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dirctl",
	Short: "Contractor directory admin tool",
	Long: `dirctl runs operator tasks against the directory database.

  dirctl import listings.csv            preview a CSV/XLSX upload
  dirctl import listings.csv --commit   upsert the valid rows
  dirctl enrich --limit 25              enrich listings never enriched
  dirctl broken list --category Roofing`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(importCmd, enrichCmd, brokenCmd)
}

// loadConfig reads the config file, falling back to defaults plus
// environment when the file does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		_ = godotenv.Load()
		cfg = config.Default()
		cfg.ApplyEnv()
		logger.Debug("config file not found, using defaults", zap.String("path", configPath))
		return cfg, nil
	}
	return cfg, err
}

// openApp loads config and connects to the configured backends.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
