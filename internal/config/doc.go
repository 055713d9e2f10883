// Package config loads and validates voxnet.json.
//
// A configuration file has five sections; every field is optional and
// falls back to the value from New:
//
//	{
//	  "server":    {"host": "0.0.0.0", "port": 8080, "tick_rate": 50, "ping_interval": "1s"},
//	  "client":    {"host": "localhost", "port": 8080, "retry_backoff": "1s", "position_throttle": "100ms"},
//	  "transport": {"write_timeout": "50ms", "max_frame_size": 65536},
//	  "log":       {"level": "info", "format": "text"},
//	  "ops":       {"addr": ":9090"}
//	}
//
// Durations are Go duration strings or integer milliseconds. Command line
// flags override file values; see cmd/voxnet.
package config
