package types

import "time"

// Config represents the prismata core configuration supplied by the host
// environment (editor plugin or CLI).
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Worker process. Empty WorkerPath means the worker is externally
	// managed and reachable at Host:Port without spawning.
	WorkerPath string   `json:"worker_path,omitempty"`
	WorkerArgs []string `json:"worker_args,omitempty"`
	WorkerDir  string   `json:"worker_dir,omitempty"`

	// AutoStart spawns the worker on session start when WorkerPath is set.
	// Merging only overrides true over false; to run against an external
	// worker leave WorkerPath empty.
	AutoStart bool `json:"auto_start,omitempty"`

	// Connection endpoint.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// Timeouts, in seconds.
	CallTimeoutSeconds  int `json:"call_timeout_seconds,omitempty"`
	StartTimeoutSeconds int `json:"start_timeout_seconds,omitempty"`

	// HistoryLimit caps the operation ledger; oldest terminal entries are
	// evicted past it.
	HistoryLimit int `json:"history_limit,omitempty"`

	// Logging.
	LogLevel   string `json:"log_level,omitempty"`
	PrettyLogs bool   `json:"pretty_logs,omitempty"`
}

// Defaults applied by CallTimeout/StartTimeout/MaxHistory when the
// corresponding field is unset.
const (
	DefaultHost                = "localhost"
	DefaultPort                = 8765
	DefaultCallTimeoutSeconds  = 30
	DefaultStartTimeoutSeconds = 15
	DefaultHistoryLimit        = 100
)

// Endpoint returns the host the connection dials, with defaults applied.
func (c *Config) Endpoint() (host string, port int) {
	host, port = c.Host, c.Port
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	return host, port
}

// CallTimeout returns the per-request timeout.
func (c *Config) CallTimeout() time.Duration {
	if c.CallTimeoutSeconds <= 0 {
		return DefaultCallTimeoutSeconds * time.Second
	}
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// StartTimeout returns the window the session keeps retrying the initial
// connect while a spawned worker becomes ready.
func (c *Config) StartTimeout() time.Duration {
	if c.StartTimeoutSeconds <= 0 {
		return DefaultStartTimeoutSeconds * time.Second
	}
	return time.Duration(c.StartTimeoutSeconds) * time.Second
}

// MaxHistory returns the ledger capacity.
func (c *Config) MaxHistory() int {
	if c.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return c.HistoryLimit
}
