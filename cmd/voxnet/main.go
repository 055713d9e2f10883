package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxel-dev/voxnet/internal/config"
	"github.com/voxel-dev/voxnet/internal/errors"
	"github.com/voxel-dev/voxnet/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  _  _  _____  __ _  _  ___  _____
  \ \/ // _ \ \/ /| \| || __||_   _|
   \  /| (_) >  < | .  || _|   | |
    \/  \___/_/\_\|_|\_||___|  |_|
`

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "voxnet",
		Short: "Real-time game networking over TCP",
		Long: `voxnet runs the server and headless clients of a small multiplayer
game protocol.

  • Length-prefixed binary messages over plain TCP
  • Non-blocking, tick-driven server and client
  • Automatic client reconnect with backoff
  • Liveness pings with round-trip reporting
  • Ops HTTP surface with metrics and a spectator stream`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", config.ConfigFileName, "Path to the config file (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text or json (default from config)")

	rootCmd.AddCommand(
		serveCmd(&g),
		botCmd(&g),
		initCmd(&g),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errors.Fprint(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

// setupLogger validates cfg, builds the process logger and installs it as
// the slog default.
func setupLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// printBanner prints the voxnet ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
