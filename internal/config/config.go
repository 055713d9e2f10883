package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/voxel-dev/voxnet/internal/errors"
	"github.com/voxel-dev/voxnet/pkg/transport"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "voxnet.json"

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultPort is the default server port.
	DefaultPort = 8080

	// DefaultTickRate is the default number of ticks per second.
	DefaultTickRate = 50

	// DefaultOpsAddr is the default ops HTTP address.
	DefaultOpsAddr = ":9090"

	// minFrameSize leaves room for the largest message.
	minFrameSize = 64
)

// Config represents the complete voxnet.json configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Client    ClientConfig    `json:"client"`
	Transport TransportConfig `json:"transport"`
	Log       LogConfig       `json:"log"`
	Ops       OpsConfig       `json:"ops"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig configures `voxnet serve`.
type ServerConfig struct {
	// Host is the address to bind.
	Host string `json:"host"`

	// Port is the TCP port to bind.
	Port int `json:"port"`

	// TickRate is the number of server ticks per second.
	TickRate int `json:"tick_rate"`

	// PingInterval is the time between liveness ping rounds.
	PingInterval Duration `json:"ping_interval"`

	// AcceptPoll bounds how long each tick waits for a new connection.
	AcceptPoll Duration `json:"accept_poll"`
}

// ClientConfig configures `voxnet bot`.
type ClientConfig struct {
	// Host is the server host to connect to.
	Host string `json:"host"`

	// Port is the server port to connect to.
	Port int `json:"port"`

	// TickRate is the number of client ticks per second.
	TickRate int `json:"tick_rate"`

	// RetryBackoff is the delay between connection attempts.
	RetryBackoff Duration `json:"retry_backoff"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout Duration `json:"dial_timeout"`

	// PositionThrottle is the minimum time between position updates.
	PositionThrottle Duration `json:"position_throttle"`
}

// TransportConfig configures both ends of a connection.
type TransportConfig struct {
	// WriteTimeout bounds one frame write to a stalled peer.
	WriteTimeout Duration `json:"write_timeout"`

	// ReadPoll bounds a non-blocking read on sockets without raw access.
	ReadPoll Duration `json:"read_poll"`

	// MaxFrameSize is the largest accepted frame payload in bytes.
	MaxFrameSize int `json:"max_frame_size"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`

	// Format is text or json.
	Format string `json:"format"`
}

// OpsConfig configures the ops HTTP server.
type OpsConfig struct {
	// Addr is the listen address; empty disables the ops server.
	Addr string `json:"addr"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			TickRate:     DefaultTickRate,
			PingInterval: Duration(time.Second),
			AcceptPoll:   Duration(time.Millisecond),
		},
		Client: ClientConfig{
			Host:             DefaultHost,
			Port:             DefaultPort,
			TickRate:         DefaultTickRate,
			RetryBackoff:     Duration(time.Second),
			DialTimeout:      Duration(5 * time.Second),
			PositionThrottle: Duration(100 * time.Millisecond),
		},
		Transport: TransportConfig{
			WriteTimeout: Duration(50 * time.Millisecond),
			ReadPoll:     Duration(time.Millisecond),
			MaxFrameSize: 64 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Ops: OpsConfig{
			Addr: DefaultOpsAddr,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for voxnet.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithFile(path).
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E101").WithFile(path).Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E101").
			WithFile(path).
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.configPath = path
	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns the defaults when
// path is empty or missing. Any other read or parse failure is returned.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return New(), nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, errors.New("E100")) {
			return New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E101").Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E101").WithFile(path).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Client.Host == "" {
		return c.invalid("E108", "client.host is empty")
	}
	for _, p := range []struct {
		name string
		port int
	}{
		{"server.port", c.Server.Port},
		{"client.port", c.Client.Port},
	} {
		if p.port < 1 || p.port > 65535 {
			return c.invalid("E102", p.name+" "+strconv.Itoa(p.port)+" is outside 1-65535")
		}
	}
	for _, r := range []struct {
		name string
		rate int
	}{
		{"server.tick_rate", c.Server.TickRate},
		{"client.tick_rate", c.Client.TickRate},
	} {
		if r.rate < 1 || r.rate > 1000 {
			return c.invalid("E103", r.name+" "+strconv.Itoa(r.rate)+" is outside 1-1000")
		}
	}
	for _, d := range []struct {
		name string
		d    Duration
	}{
		{"server.ping_interval", c.Server.PingInterval},
		{"server.accept_poll", c.Server.AcceptPoll},
		{"client.retry_backoff", c.Client.RetryBackoff},
		{"client.dial_timeout", c.Client.DialTimeout},
		{"client.position_throttle", c.Client.PositionThrottle},
		{"transport.write_timeout", c.Transport.WriteTimeout},
		{"transport.read_poll", c.Transport.ReadPoll},
	} {
		if d.d <= 0 {
			return c.invalid("E104", d.name+" must be positive, got "+d.d.String())
		}
	}
	if c.Transport.MaxFrameSize < minFrameSize {
		return c.invalid("E107", "transport.max_frame_size "+strconv.Itoa(c.Transport.MaxFrameSize)+" is below "+strconv.Itoa(minFrameSize))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return c.invalid("E105", "log.level "+strconv.Quote(c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return c.invalid("E106", "log.format "+strconv.Quote(c.Log.Format))
	}
	return nil
}

func (c *Config) invalid(code, detail string) error {
	e := errors.New(code).WithDetail(detail)
	if c.configPath != "" {
		e.WithFile(c.configPath)
	}
	return e
}

// ServerAddress returns the host:port the server binds.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ClientAddress returns the host:port the bot connects to.
func (c *Config) ClientAddress() string {
	return net.JoinHostPort(c.Client.Host, strconv.Itoa(c.Client.Port))
}

// TickInterval returns the duration of one tick at rate ticks per second.
func TickInterval(rate int) time.Duration {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// TransportOptions returns the connection options for both ends.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		MaxFrameSize: c.Transport.MaxFrameSize,
		ReadPoll:     c.Transport.ReadPoll.Std(),
		WriteTimeout: c.Transport.WriteTimeout.Std(),
	}
}
