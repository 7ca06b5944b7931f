package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sliverarmory/chronohook"
	"github.com/sliverarmory/chronohook/config"
)

var (
	configPath    string
	logLevel      string
	logCategories []string
	frameRate     int
	foldPolicy    string
)

var rootCmd = &cobra.Command{
	Use:          "chronohook",
	Short:        "Attach deterministic timing and loader interception to this process",
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML configuration file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	flags.StringSliceVar(&logCategories, "log", nil, "Log categories, e.g. hook,sleep,timer (overrides config)")
	flags.IntVar(&frameRate, "fps", 0, "Logical frame rate (overrides config)")
	flags.StringVar(&foldPolicy, "fold", "", "Fold policy: immediate or deferred (overrides config)")

	rootCmd.AddCommand(libsCmd, openCmd, sleepCmd, versionCmd)
}

// loadConfig reads the config file and environment, then applies any flags
// given on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log") {
		cfg.LogCategories = logCategories
	}
	if flags.Changed("fps") {
		cfg.FrameRate = frameRate
	}
	if flags.Changed("fold") {
		cfg.FoldPolicy = foldPolicy
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func attach(cmd *cobra.Command) (*chronohook.Session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return chronohook.Attach(cfg, chronohook.WithLogOutput(cmd.ErrOrStderr()))
}
