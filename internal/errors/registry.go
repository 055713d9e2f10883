package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Configuration errors (E100-E199)
	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Create voxnet.json or pass --config with the path to an existing file",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Suggestion: "Check the file is valid JSON with server, client, log and ops sections",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Invalid port",
		Suggestion: `Use a port between 1 and 65535, e.g. "port": 8080`,
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Invalid tick rate",
		Suggestion: `Use a positive number of ticks per second, e.g. "tick_rate": 50`,
	},
	"E104": {
		Category:   CategoryConfig,
		Message:    "Invalid duration",
		Suggestion: `Durations are strings like "100ms" or "1s", or integer milliseconds, and must be positive`,
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Invalid log level",
		Suggestion: "Use one of debug, info, warn, error",
	},
	"E106": {
		Category:   CategoryConfig,
		Message:    "Invalid log format",
		Suggestion: "Use text or json",
	},
	"E107": {
		Category:   CategoryConfig,
		Message:    "Invalid max frame size",
		Suggestion: "Use a size of at least 64 bytes, e.g. 65536",
	},
	"E108": {
		Category:   CategoryConfig,
		Message:    "Missing host",
		Suggestion: `Set "client": {"host": ...} to the server to connect to, e.g. "localhost"`,
	},

	// Runtime errors (E200-E299)
	"E200": {
		Category:   CategoryRuntime,
		Message:    "Cannot bind server address",
		Suggestion: "Check nothing else is listening on the port, or choose another with --port",
	},
	"E201": {
		Category:   CategoryRuntime,
		Message:    "Ops server failed",
		Suggestion: "Check the ops address is free, or disable the ops server with --ops-addr=\"\"",
	},
	"E202": {
		Category:   CategoryRuntime,
		Message:    "Metrics registration failed",
		Suggestion: "Each process may only register one collector set per namespace",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code in ascending order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
