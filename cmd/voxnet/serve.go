package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/voxel-dev/voxnet/internal/config"
	"github.com/voxel-dev/voxnet/internal/errors"
	"github.com/voxel-dev/voxnet/internal/ops"
	"github.com/voxel-dev/voxnet/internal/relay"
	"github.com/voxel-dev/voxnet/internal/tick"
	"github.com/voxel-dev/voxnet/pkg/metrics"
	"github.com/voxel-dev/voxnet/pkg/server"
)

type serveFlags struct {
	host     string
	port     int
	opsAddr  string
	tickRate int
}

func serveCmd(g *globalFlags) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the relay game server.

Every tick the server accepts at most one new player, drains all
pending messages, relays positions to every player, and pings
players once per ping interval.

Examples:
  voxnet serve
  voxnet serve --port=9000 --tick-rate=30
  voxnet serve --host=0.0.0.0 --ops-addr=""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVar(&f.opsAddr, "ops-addr", "", `Ops HTTP address, "" to disable (default from config)`)
	cmd.Flags().IntVar(&f.tickRate, "tick-rate", 0, "Ticks per second (default from config)")

	return cmd
}

// apply copies explicitly set flags over the config.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("ops-addr") {
		cfg.Ops.Addr = f.opsAddr
	}
	if flags.Changed("tick-rate") {
		cfg.Server.TickRate = f.tickRate
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := setupLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return errors.New("E202").Wrap(err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return errors.New("E202").Wrap(err)
	}
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithSubsystem("server"))

	var opsSrv *ops.Server
	if cfg.Ops.Addr != "" {
		l, err := net.Listen("tcp", cfg.Ops.Addr)
		if err != nil {
			return errors.New("E201").WithDetail(cfg.Ops.Addr).Wrap(err)
		}
		opsSrv = ops.New(ops.Options{Gatherer: reg, Logger: logger})
		go func() {
			if err := opsSrv.Serve(ctx, l); err != nil {
				logger.Error("ops server stopped", "error", err)
			}
		}()
	}

	opts := server.Options{
		IDs:          server.NewIDSource(),
		PingInterval: cfg.Server.PingInterval.Std(),
		AcceptPoll:   cfg.Server.AcceptPoll.Std(),
		Transport:    cfg.TransportOptions(),
		Logger:       logger,
		Metrics:      m,
	}
	if opsSrv != nil {
		opts.Tap = opsSrv.Tap
	}

	addr := cfg.ServerAddress()
	mgr, err := server.Listen(addr, opts)
	if err != nil {
		return errors.New("E200").WithDetail(addr).Wrap(err)
	}
	defer mgr.Close()

	printBanner()
	info("Listening on %s at %d ticks/s", mgr.Addr(), cfg.Server.TickRate)
	if opsSrv != nil {
		info("Ops on http://%s (/healthz /metrics /peers /spectate)", opsAddrForDisplay(cfg.Ops.Addr))
	}
	fmt.Println()

	r := relay.New(logger)
	loop := tick.New(tick.Options{
		Rate:   cfg.Server.TickRate,
		Name:   "server",
		Logger: logger,
	})

	err = loop.Run(ctx, func() {
		r.Tick(mgr)
		if opsSrv != nil {
			opsSrv.Publish(mgr.Peers())
		}
	})
	logger.Info("shutting down", "ticks", loop.Ticks(), "overruns", loop.Overruns())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// opsAddrForDisplay turns ":9090" into "localhost:9090".
func opsAddrForDisplay(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return net.JoinHostPort("localhost", port)
}
