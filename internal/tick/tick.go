// Package tick runs a function at a fixed rate on the calling goroutine.
package tick

import (
	"context"
	"log/slog"
	"time"
)

// DefaultWarnInterval is the minimum time between overrun warnings.
const DefaultWarnInterval = 5 * time.Second

// Options configures a Loop.
type Options struct {
	// Rate is the target number of ticks per second. Default: 50.
	Rate int

	// Name prefixes the overrun warning, e.g. "server".
	Name string

	// WarnInterval rate-limits overrun warnings. Default: 5 seconds.
	WarnInterval time.Duration

	// Logger receives overrun warnings. Default: slog.Default().
	Logger *slog.Logger
}

// Loop calls a step function once per tick. When a step takes longer than
// the tick the next one starts immediately and the overrun is reported.
type Loop struct {
	interval time.Duration
	opts     Options
	logger   *slog.Logger

	ticks    uint64
	overruns uint64
	lastWarn time.Time
}

// New creates a Loop.
func New(opts Options) *Loop {
	if opts.Rate <= 0 {
		opts.Rate = 50
	}
	if opts.WarnInterval <= 0 {
		opts.WarnInterval = DefaultWarnInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "loop"
	}
	return &Loop{
		interval: time.Second / time.Duration(opts.Rate),
		opts:     opts,
		logger:   opts.Logger.With("component", "tick"),
	}
}

// Interval returns the target duration of one tick.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Ticks returns the number of completed steps.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// Overruns returns the number of steps that took longer than a tick.
func (l *Loop) Overruns() uint64 {
	return l.overruns
}

// Run calls step once per tick until ctx is done, then returns ctx.Err().
func (l *Loop) Run(ctx context.Context, step func()) error {
	// Reset discards a stale expiry since Go 1.23.
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		step()
		l.ticks++
		elapsed := time.Since(start)

		if elapsed >= l.interval {
			l.overrun(elapsed)
			continue
		}

		timer.Reset(l.interval - elapsed)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Loop) overrun(elapsed time.Duration) {
	l.overruns++
	now := time.Now()
	if !l.lastWarn.IsZero() && now.Sub(l.lastWarn) < l.opts.WarnInterval {
		return
	}
	l.lastWarn = now
	l.logger.Warn(l.opts.Name+" couldn't keep up",
		"rate", l.opts.Rate,
		"tick", elapsed.String(),
		"budget", l.interval.String(),
		"overruns", l.overruns)
}
