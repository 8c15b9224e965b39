package writer

import (
	"context"
	"time"

	"github.com/rickgao/position-monitor/internal/model"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of distinct positions to accumulate before
	// flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// WriterMetrics contains writer statistics.
type WriterMetrics struct {
	Received int64 // Notifications read from the input
	Skipped  int64 // Expiry notifications, nothing to write
	Written  int64 // Positions upserted
	Missing  int64 // Dirty ids no longer known to the engine
	Flushes  int64
	Errors   int64 // Failed batches
}

// Store persists position snapshots.
type Store interface {
	SavePositions(ctx context.Context, records []model.Record) error
}

// RecordLookup resolves a record's current values.
type RecordLookup interface {
	Record(id string) (model.Record, bool)
}
