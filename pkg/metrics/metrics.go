// Package metrics exposes Prometheus collectors for voxnet transports,
// clients and servers.
//
// A nil *Collector is valid and records nothing, so components can take
// one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "voxnet").
	Namespace string

	// Subsystem is the metrics subsystem, e.g. "server" or "client".
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for ping round trips, in seconds.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the ping histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "voxnet",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the Prometheus metrics.
type Collector struct {
	framesReceived    prometheus.Counter
	framesSent        prometheus.Counter
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter
	peersActive       prometheus.Gauge
	peersAccepted     prometheus.Counter
	peersRemoved      *prometheus.CounterVec
	broadcastFailures prometheus.Counter
	pingRTT           prometheus.Histogram
	connectAttempts   *prometheus.CounterVec
	connected         prometheus.Gauge
	throttled         *prometheus.CounterVec
}

// New registers the collectors and returns them.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		framesReceived:    counter("frames_received_total", "Total number of frames decoded"),
		framesSent:        counter("frames_sent_total", "Total number of frames written"),
		bytesReceived:     counter("received_bytes_total", "Total framed bytes decoded"),
		bytesSent:         counter("sent_bytes_total", "Total framed bytes written"),
		peersActive:       gauge("peers_active", "Number of live peer connections"),
		peersAccepted:     counter("peers_accepted_total", "Total number of accepted peers"),
		peersRemoved:      counterVec("peers_removed_total", "Total number of removed peers by reason", "reason"),
		broadcastFailures: counter("broadcast_failures_total", "Total per-peer send failures during broadcast"),
		pingRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "ping_rtt_seconds",
			Help:        "Round trip between a server ping and the client echo",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		connectAttempts: counterVec("connect_attempts_total", "Total connect attempts by result", "result"),
		connected:       gauge("connected", "1 while the client holds a live connection"),
		throttled:       counterVec("throttled_total", "Total messages suppressed by send throttling", "kind"),
	}
}

// FrameReceived records one decoded frame of n bytes.
func (c *Collector) FrameReceived(n int) {
	if c == nil {
		return
	}
	c.framesReceived.Inc()
	c.bytesReceived.Add(float64(n))
}

// FrameSent records one written frame of n bytes.
func (c *Collector) FrameSent(n int) {
	if c == nil {
		return
	}
	c.framesSent.Inc()
	c.bytesSent.Add(float64(n))
}

// PeerAccepted records a new peer.
func (c *Collector) PeerAccepted() {
	if c == nil {
		return
	}
	c.peersAccepted.Inc()
	c.peersActive.Inc()
}

// PeerRemoved records a removed peer. Reason should be low cardinality,
// e.g. "closed", "protocol", "timeout", "error".
func (c *Collector) PeerRemoved(reason string) {
	if c == nil {
		return
	}
	c.peersRemoved.WithLabelValues(reason).Inc()
	c.peersActive.Dec()
}

// BroadcastFailure records one failed per-peer send during broadcast.
func (c *Collector) BroadcastFailure() {
	if c == nil {
		return
	}
	c.broadcastFailures.Inc()
}

// ObservePingRTT records a measured round trip.
func (c *Collector) ObservePingRTT(d time.Duration) {
	if c == nil {
		return
	}
	c.pingRTT.Observe(d.Seconds())
}

// ConnectAttempt records a finished connect attempt; result is "success"
// or "failure".
func (c *Collector) ConnectAttempt(result string) {
	if c == nil {
		return
	}
	c.connectAttempts.WithLabelValues(result).Inc()
}

// SetConnected records the client connection state.
func (c *Collector) SetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

// Throttled records a message suppressed by send throttling.
func (c *Collector) Throttled(kind string) {
	if c == nil {
		return
	}
	c.throttled.WithLabelValues(kind).Inc()
}
