package config

import (
	"time"

	"github.com/rickgao/position-monitor/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID            = "position-monitor"
	DefaultSource                = SourceSimulator
	DefaultHighlightDuration     = 1000 * time.Millisecond
	DefaultInsertionGlowDuration = 1200 * time.Millisecond
	DefaultEventBufferSize       = 1000
	DefaultEventBufferMax        = 100000
	DefaultUpdateSchedule        = "@every 3s"
	DefaultJitterPct             = 0.05
	DefaultInsertDelay           = 5 * time.Second
	DefaultPingInterval          = 30 * time.Second
	DefaultPingTimeout           = 60 * time.Second
	DefaultReconnectBaseDelay    = 1 * time.Second
	DefaultReconnectMaxDelay     = 60 * time.Second
	DefaultStreamBufferSize      = 10000
	DefaultAPITimeout            = 30 * time.Second
	DefaultMaxRetries            = 3
	DefaultPollInterval          = 30 * time.Second
	DefaultPollConcurrency       = 4
	DefaultPollTimeout           = 10 * time.Second
	DefaultTable                 = "positions"
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 4
	DefaultMinConns              = 1
	DefaultCheckpointBatchSize   = 500
	DefaultCheckpointInterval    = 2 * time.Second
	DefaultServerPort            = 8080
	DefaultMetricsPath           = "/metrics"
)

func (c *MonitorConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}

	// Engine defaults
	if c.Engine.HighlightDuration == 0 {
		c.Engine.HighlightDuration = DefaultHighlightDuration
	}
	if c.Engine.InsertionGlowDuration == 0 {
		c.Engine.InsertionGlowDuration = DefaultInsertionGlowDuration
	}
	if len(c.Engine.MutableFields) == 0 {
		c.Engine.MutableFields = model.DefaultSchema().MutableFields
	}
	if c.Engine.EventBufferSize == 0 {
		c.Engine.EventBufferSize = DefaultEventBufferSize
	}
	if c.Engine.EventBufferMax == 0 {
		c.Engine.EventBufferMax = DefaultEventBufferMax
	}

	// Simulator defaults
	if c.Simulator.UpdateSchedule == "" {
		c.Simulator.UpdateSchedule = DefaultUpdateSchedule
	}
	if c.Simulator.JitterPct == 0 {
		c.Simulator.JitterPct = DefaultJitterPct
	}
	if c.Simulator.InsertDelay == 0 {
		c.Simulator.InsertDelay = DefaultInsertDelay
	}

	// Stream defaults
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Database defaults
	if c.Database.Table == "" {
		c.Database.Table = DefaultTable
	}
	applyDBDefaults(&c.Database.Postgres)

	// Checkpoint defaults
	if c.Checkpoint.BatchSize == 0 {
		c.Checkpoint.BatchSize = DefaultCheckpointBatchSize
	}
	if c.Checkpoint.FlushInterval == 0 {
		c.Checkpoint.FlushInterval = DefaultCheckpointInterval
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// Schema returns the record schema with the configured mutable fields.
func (c *MonitorConfig) Schema() model.Schema {
	s := model.DefaultSchema()
	if len(c.Engine.MutableFields) > 0 {
		s.MutableFields = append([]string(nil), c.Engine.MutableFields...)
	}
	return s
}
