package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxkit/voxkit/pkg/cli"
)

var (
	// Global flags.
	verbose    bool
	configPath string

	// Global configuration, loaded lazily by commands that need it.
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "voxkit",
	Short: "Reconciled conversation view for voice sessions",
	Long: `voxkit - merge a session's transcription, chat, side-channel, and
persisted history into one chronological conversation view.

Configuration lives in the OS config directory:
  macOS:   ~/Library/Application Support/voxkit/config.yaml
  Linux:   ~/.config/voxkit/config.yaml

Examples:
  # Follow a session live
  voxkit tail --feed ws://localhost:7880/feed --room demo --identity alice

  # Inspect persisted history, optionally filtered with a jq expression
  voxkit history --room demo
  voxkit history --room demo --jq '.[] | select(.origin == "remote")'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig loads and caches the CLI config. Flag values are merged on
// top by the individual commands.
func loadConfig() (*cli.Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}
	path := configPath
	if path == "" {
		var err error
		path, err = cli.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}
