package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/regimed/regimed/internal/config"
)

const (
	appName = "regimed"
	version = "v1.3.0"
)

var (
	configPath       string
	logLevelOverride string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Market regime classification and risk guidance service",
		Version: version,
		Long: `regimed continuously classifies the market regime from pattern counts,
benchmark index trends, and an optional learned predictor, applies
hysteresis and breadth cross-checks, and publishes confidence-scaled
position sizing guidance.`,
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCycleCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath(),
		"path to the YAML configuration file")
	flags.StringVar(&logLevelOverride, "log-level", "",
		"override the configured log level")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", configPath).Msg("config file not found, using defaults")
			return config.Default(), nil
		}
		return cfg, err
	}
	return cfg, nil
}

func applyLogLevel(level string) {
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}
