package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/position-monitor/internal/model"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that all required fields are set and values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Source {
	case SourceSimulator:
		if err := c.Simulator.validate(); err != nil {
			return err
		}
	case SourceStream:
		if c.Stream.URL == "" {
			return errors.New("stream.url is required for source stream")
		}
		if c.Stream.BufferSize < 1 {
			return errors.New("stream.buffer_size must be >= 1")
		}
		if c.Stream.ReconnectBaseDelay > c.Stream.ReconnectMaxDelay {
			return errors.New("stream.reconnect_base_delay cannot exceed reconnect_max_delay")
		}
	case SourceREST:
		if c.API.RestURL == "" {
			return errors.New("api.rest_url is required for source rest")
		}
		if c.Poller.Interval <= 0 {
			return errors.New("poller.interval must be > 0")
		}
		if c.Poller.Concurrency < 1 {
			return errors.New("poller.concurrency must be >= 1")
		}
	default:
		return fmt.Errorf("source must be one of simulator, stream, rest, got %q", c.Source)
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Checkpoint.Enabled {
		if c.Database.Driver == DriverNone {
			return errors.New("checkpoint.enabled requires database.driver")
		}
		if c.Checkpoint.BatchSize < 1 {
			return errors.New("checkpoint.batch_size must be >= 1")
		}
		if c.Checkpoint.FlushInterval <= 0 {
			return errors.New("checkpoint.flush_interval must be > 0")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.HighlightDuration <= 0 {
		return errors.New("engine.highlight_duration must be > 0")
	}
	if e.InsertionGlowDuration <= 0 {
		return errors.New("engine.insertion_glow_duration must be > 0")
	}
	if e.EventBufferSize < 1 {
		return errors.New("engine.event_buffer_size must be >= 1")
	}
	if e.EventBufferMax < e.EventBufferSize {
		return fmt.Errorf("engine.event_buffer_max (%d) cannot be below event_buffer_size (%d)", e.EventBufferMax, e.EventBufferSize)
	}
	schema := model.DefaultSchema()
	for _, f := range e.MutableFields {
		if !schema.IsNumeric(f) {
			return fmt.Errorf("engine.mutable_fields: %q is not a numeric field", f)
		}
	}
	return nil
}

func (s *SimulatorConfig) validate() error {
	if _, err := cron.ParseStandard(s.UpdateSchedule); err != nil {
		return fmt.Errorf("simulator.update_schedule: %w", err)
	}
	if s.JitterPct <= 0 || s.JitterPct > 1 {
		return fmt.Errorf("simulator.jitter_pct must be in (0, 1], got %v", s.JitterPct)
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverNone:
		return nil
	case DriverPostgres:
		if err := d.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	case DriverSQLite:
		if d.SQLite.Path == "" {
			return errors.New("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", d.Driver)
	}

	if !tableName.MatchString(d.Table) {
		return fmt.Errorf("database.table %q is not a valid identifier", d.Table)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
