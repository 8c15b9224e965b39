package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/position-monitor/internal/engine"
	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/server"
)

// CheckpointWriter consumes change notifications and writes the current
// value of every changed position back to the store.
type CheckpointWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the change hub
	input <-chan server.ChangeMessage

	records RecordLookup
	store   Store

	// Batching. dirty dedups ids, order keeps first-change order.
	dirty       map[string]struct{}
	order       []string
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewCheckpointWriter creates a new CheckpointWriter.
func NewCheckpointWriter(
	cfg WriterConfig,
	input <-chan server.ChangeMessage,
	records RecordLookup,
	store Store,
	logger *slog.Logger,
) *CheckpointWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &CheckpointWriter{
		cfg:     cfg,
		input:   input,
		records: records,
		store:   store,
		logger:  logger,
		dirty:   make(map[string]struct{}),
		ctx:     context.Background(),
	}
}

// Start begins consuming notifications and writing to the store.
func (w *CheckpointWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("checkpoint writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes what is left.
func (w *CheckpointWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping checkpoint writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("checkpoint writer stopped")
	case <-ctx.Done():
		w.logger.Warn("checkpoint writer stop timed out")
	}

	// Final flush
	w.flushContext(ctx)

	return nil
}

// Stats returns current metrics.
func (w *CheckpointWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Pending returns the number of positions waiting to be written.
func (w *CheckpointWriter) Pending() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return len(w.order)
}

// consumeLoop reads from the input and marks positions dirty.
func (w *CheckpointWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case msg, ok := <-w.input:
			if !ok {
				return
			}
			w.handleMessage(msg)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *CheckpointWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleMessage marks the position behind an update or insert dirty.
// Expiries change no values and are skipped.
func (w *CheckpointWriter) handleMessage(msg server.ChangeMessage) {
	w.batchMu.Lock()
	w.metrics.Received++
	if !writes(msg.Kind) || msg.ID == "" {
		w.metrics.Skipped++
		w.batchMu.Unlock()
		return
	}
	w.markLocked(msg.ID)
	shouldFlush := len(w.order) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

func writes(kind engine.ChangeKind) bool {
	return kind == engine.ChangeUpdate || kind == engine.ChangeInsert
}

func (w *CheckpointWriter) markLocked(id string) {
	if _, ok := w.dirty[id]; ok {
		return
	}
	w.dirty[id] = struct{}{}
	w.order = append(w.order, id)
}

// flush writes the current batch to the store.
func (w *CheckpointWriter) flush() {
	w.flushContext(w.ctx)
}

func (w *CheckpointWriter) flushContext(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.order) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	ids := w.order
	w.order = nil
	w.dirty = make(map[string]struct{})
	w.batchMu.Unlock()

	// Values are read at write time, so a burst of updates to one
	// position writes its latest state once.
	records := make([]model.Record, 0, len(ids))
	var missing int64
	for _, id := range ids {
		rec, ok := w.records.Record(id)
		if !ok {
			missing++
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		w.batchMu.Lock()
		w.metrics.Missing += missing
		w.batchMu.Unlock()
		return
	}

	start := time.Now()

	if err := w.store.SavePositions(ctx, records); err != nil {
		w.logger.Error("checkpoint write failed", "error", err, "count", len(records))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.metrics.Missing += missing
		for _, r := range records {
			w.markLocked(r.ID)
		}
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Written += int64(len(records))
	w.metrics.Missing += missing
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("checkpointed positions",
		"count", len(records),
		"duration", time.Since(start),
	)
}
