// Package cmd wires the adwatch command line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
	"github.com/revosurge/adwatch/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd is the base command; subcommands carry the actual behavior.
var rootCmd = &cobra.Command{
	Use:     "adwatch",
	Short:   "adwatch drives an LLM-controlled browser through ad-platform validation flows.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		loaded, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// A fallback logger so the failure itself is still reported.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "adwatch"})
			return err
		}
		cfg = loaded

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting adwatch",
			zap.String("version", Version),
			zap.String("environment", cfg.Platform.Environment))
		return nil
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig reads the config file and binds ADWATCH_* env variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults plus env cover everything.
	}
	return nil
}
