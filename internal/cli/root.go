// Package cli implements the buckperf command-line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"buckperf/internal/config"
	"buckperf/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "buckperf",
	Short: "Benchmark buck cache behavior between two buck versions",
	Long: `buckperf compares the cache behavior of two buck versions across a
sequence of repository revisions. For each tested revision it relocates the
working tree, verifies that cached results survive the rename, then runs
clean and no-op build cycles with both buck versions and validates that an
unchanged tree rebuilds with zero work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./buckperf.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
}

func initConfig() error {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	loaded, err := loader.Load()
	if err != nil {
		return err
	}

	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if logFormat != "" {
		loaded.Logging.Format = logFormat
	}

	logging.Init(logging.Config{
		Level:  loaded.Logging.Level,
		Format: loaded.Logging.Format,
	})

	if used := loader.ConfigFileUsed(); used != "" {
		logging.Debug().Str("config_file", used).Msg("loaded config file")
	}

	cfg = loaded
	return nil
}

// Execute runs the root command. Any fatal condition has already been logged
// by the failing component; the error is logged once more at the top so the
// last line of output names the failure, then the process exits non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("buckperf failed")
		os.Exit(1)
	}
}
