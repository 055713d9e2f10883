package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxel-dev/voxnet/internal/bot"
	"github.com/voxel-dev/voxnet/internal/config"
	"github.com/voxel-dev/voxnet/internal/tick"
	"github.com/voxel-dev/voxnet/pkg/client"
)

type botFlags struct {
	host   string
	port   int
	radius float64
	speed  float64
}

func botCmd(g *globalFlags) *cobra.Command {
	var f botFlags

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run a headless player",
		Long: `Connect a headless player to a voxnet server.

The bot walks in a circle, reports its position at most once per
position throttle, logs the latency the server reports, and
reconnects with backoff whenever the connection drops.

Examples:
  voxnet bot
  voxnet bot --host=game.example.com --radius=10 --speed=0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return runBot(cmd.Context(), cfg, f.radius, f.speed)
		},
	}

	cmd.Flags().StringVarP(&f.host, "host", "H", "", "Server host (default from config)")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "Server port (default from config)")
	cmd.Flags().Float64Var(&f.radius, "radius", 5, "Radius of the walked circle")
	cmd.Flags().Float64Var(&f.speed, "speed", 1, "Walking speed in radians per second")

	return cmd
}

// apply copies explicitly set flags over the config.
func (f *botFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Client.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Client.Port = f.port
	}
}

func runBot(ctx context.Context, cfg *config.Config, radius, speed float64) error {
	logger, err := setupLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	c := client.New(cfg.ClientAddress(), client.Options{
		DialTimeout:  cfg.Client.DialTimeout.Std(),
		RetryBackoff: cfg.Client.RetryBackoff.Std(),
		Transport:    cfg.TransportOptions(),
		Logger:       logger,
	})
	defer c.Close()

	b := bot.New(c, bot.Options{
		Radius:   radius,
		Speed:    speed,
		Throttle: cfg.Client.PositionThrottle.Std(),
		Logger:   logger,
	})

	info("Connecting to %s", cfg.ClientAddress())

	loop := tick.New(tick.Options{
		Rate:   cfg.Client.TickRate,
		Name:   "client",
		Logger: logger,
	})
	last := time.Now()
	err = loop.Run(ctx, func() {
		now := time.Now()
		b.Step(now.Sub(last))
		last = now
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
