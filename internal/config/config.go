package config

import "time"

// Update source names.
const (
	SourceSimulator = "simulator"
	SourceStream    = "stream"
	SourceREST      = "rest"
)

// Seed database drivers.
const (
	DriverNone     = ""
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Source     string           `yaml:"source"` // simulator, stream or rest
	Engine     EngineConfig     `yaml:"engine"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Stream     StreamConfig     `yaml:"stream"`
	API        APIConfig        `yaml:"api"`
	Poller     PollerConfig     `yaml:"poller"`
	Database   DatabaseConfig   `yaml:"database"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Server     ServerConfig     `yaml:"server"`
}

// InstanceConfig identifies this monitor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// EngineConfig holds change detection and highlight settings.
type EngineConfig struct {
	HighlightDuration     time.Duration `yaml:"highlight_duration"`
	InsertionGlowDuration time.Duration `yaml:"insertion_glow_duration"`
	MutableFields         []string      `yaml:"mutable_fields"`
	EventBufferSize       int           `yaml:"event_buffer_size"`
	EventBufferMax        int           `yaml:"event_buffer_max"` // Oldest events drop beyond this
}

// SimulatorConfig holds random update generator settings.
type SimulatorConfig struct {
	UpdateSchedule string        `yaml:"update_schedule"` // Cron spec, e.g. "@every 3s"
	JitterPct      float64       `yaml:"jitter_pct"`
	InsertDelay    time.Duration `yaml:"insert_delay"` // Negative disables the insert
	Seed           int64         `yaml:"seed"`
}

// StreamConfig holds streaming feed settings.
type StreamConfig struct {
	URL                string        `yaml:"url"`
	APIKey             string        `yaml:"api_key"`
	Portfolios         []string      `yaml:"portfolios"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	BufferSize         int           `yaml:"buffer_size"`
}

// APIConfig holds positions REST API settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// PollerConfig holds REST poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Portfolios  []string      `yaml:"portfolios"`
}

// DatabaseConfig selects where the initial snapshot is loaded from. An
// empty driver seeds the built-in demo positions.
type DatabaseConfig struct {
	Driver   string       `yaml:"driver"`
	Table    string       `yaml:"table"`
	Postgres DBConfig     `yaml:"postgres"`
	SQLite   SQLiteConfig `yaml:"sqlite"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SQLiteConfig holds an embedded SQLite database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// CheckpointConfig controls writing changed positions back to the
// database so a restart resumes from their latest values.
type CheckpointConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}
