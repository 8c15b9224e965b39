package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/position-monitor/internal/clock"
	"github.com/rickgao/position-monitor/internal/diff"
	"github.com/rickgao/position-monitor/internal/highlight"
	"github.com/rickgao/position-monitor/internal/metrics"
	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/router"
	"github.com/rickgao/position-monitor/internal/store"
	"github.com/rickgao/position-monitor/internal/view"
)

// ChangeBufferSize is the capacity of the change notification channel.
const ChangeBufferSize = 256

var (
	// ErrClosed is returned by write operations after Close.
	ErrClosed = errors.New("engine closed")
	// ErrUnknownEventKind is returned by Apply for an event it cannot route.
	ErrUnknownEventKind = errors.New("unknown event kind")
)

// Config holds engine configuration.
type Config struct {
	Highlight highlight.Config
	Schema    model.Schema
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Highlight: highlight.DefaultConfig(),
		Schema:    model.DefaultSchema(),
	}
}

// ChangeKind identifies what a Change notification reports.
type ChangeKind string

const (
	ChangeUpdate           ChangeKind = "update"
	ChangeInsert           ChangeKind = "insert"
	ChangeHighlightExpired ChangeKind = "highlight_expired"
	ChangeMarkerExpired    ChangeKind = "marker_expired"
)

// Change tells a presentation layer that the projection is stale.
type Change struct {
	Kind      ChangeKind
	Key       model.FieldKey  // Field is empty for insert and marker changes
	Direction model.Direction // Set for update changes
	At        time.Time
}

// Stats reports engine state.
type Stats struct {
	Records        int
	Highlight      highlight.Stats
	DroppedChanges int64
}

// Engine composes the record store, diff rules and highlight scheduler.
// The write path is serialized so a store mutation and its highlight
// registration form one step.
type Engine struct {
	cfg     Config
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	store  *store.Store
	sched  *highlight.Scheduler

	changes chan Change

	droppedMu sync.Mutex
	dropped   int64
}

// New creates an engine. A nil clock uses wall time; nil metrics are
// created unregistered.
func New(cfg Config, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	e := &Engine{
		cfg:     cfg,
		clock:   clk,
		metrics: m,
		logger:  logger,
		store:   store.New(cfg.Schema),
		changes: make(chan Change, ChangeBufferSize),
	}
	e.sched = highlight.NewScheduler(cfg.Highlight, clk, e.store, highlight.Hooks{
		HighlightExpired: e.onHighlightExpired,
		MarkerExpired:    e.onMarkerExpired,
	}, logger)

	return e
}

// Schema returns the record schema.
func (e *Engine) Schema() model.Schema {
	return e.store.Schema()
}

// Seed loads the initial snapshot. Seeded records get no insertion marker.
func (e *Engine) Seed(records []model.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.store.Seed(records); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	e.metrics.Records.Set(float64(e.store.Len()))
	e.logger.Info("store seeded", "records", len(records))
	return nil
}

// ApplyUpdate commits a new value for one mutable field and highlights the
// field when the value moved. On error nothing is changed.
func (e *Engine) ApplyUpdate(ev model.UpdateEvent) (diff.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return diff.Change{}, ErrClosed
	}

	prev, err := e.store.UpsertField(ev.ID, ev.Field, ev.Value)
	if err != nil {
		e.metrics.UpdatesRejected.WithLabelValues(metrics.Reason(err)).Inc()
		return diff.Change{}, err
	}

	change, err := diff.Compute(prev, ev.Value)
	if err != nil {
		// The store already rejects non-finite values.
		return diff.Change{}, err
	}

	e.metrics.UpdatesApplied.Inc()
	if !change.Qualifies() {
		e.metrics.UpdatesUnchanged.Inc()
		return change, nil
	}

	key := model.FieldKey{RecordID: ev.ID, Field: ev.Field}
	if e.sched.Flash(key, change) {
		e.refreshGaugesLocked()
		e.notify(Change{
			Kind:      ChangeUpdate,
			Key:       key,
			Direction: change.Direction,
			At:        e.clock.Now(),
		})
	}

	return change, nil
}

// ApplyInsert adds a record and starts its insertion marker.
func (e *Engine) ApplyInsert(r model.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if err := e.store.Insert(r); err != nil {
		e.metrics.InsertsRejected.WithLabelValues(metrics.Reason(err)).Inc()
		return err
	}

	e.sched.MarkInserted(r.ID)
	e.metrics.Inserts.Inc()
	e.metrics.Records.Set(float64(e.store.Len()))
	e.refreshGaugesLocked()

	e.notify(Change{
		Kind: ChangeInsert,
		Key:  model.FieldKey{RecordID: r.ID},
		At:   e.clock.Now(),
	})
	return nil
}

// Apply routes an event to ApplyUpdate or ApplyInsert.
func (e *Engine) Apply(ev model.Event) error {
	switch ev.Kind {
	case model.KindUpdate:
		_, err := e.ApplyUpdate(ev.Update)
		return err
	case model.KindInsert:
		return e.ApplyInsert(ev.Insert)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, ev.Kind)
	}
}

// Run applies events from buf in order until ctx is done or buf is closed
// and drained. Rejected events are logged and skipped.
func (e *Engine) Run(ctx context.Context, buf *router.GrowableBuffer[model.Event]) error {
	for {
		ev, ok := buf.ReceiveContext(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}

		if err := e.Apply(ev); err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			e.logger.Warn("event rejected",
				"kind", ev.Kind,
				"source", ev.Source,
				"error", err,
			)
		}
	}
}

// Project returns the current view rows in store order.
func (e *Engine) Project() []view.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return view.Project(e.store.Snapshot(), e.sched.Highlights(), e.sched.Markers())
}

// Snapshot returns copies of all records in store order.
func (e *Engine) Snapshot() []model.Record {
	return e.store.Snapshot()
}

// Record returns a copy of one record.
func (e *Engine) Record(id string) (model.Record, bool) {
	return e.store.Get(id)
}

// Changes returns the change notification channel. Notifications are
// dropped oldest-first when the consumer falls behind. The channel is
// never closed.
func (e *Engine) Changes() <-chan Change {
	return e.changes
}

// Stats returns current engine statistics.
func (e *Engine) Stats() Stats {
	e.droppedMu.Lock()
	dropped := e.dropped
	e.droppedMu.Unlock()

	return Stats{
		Records:        e.store.Len(),
		Highlight:      e.sched.Stats(),
		DroppedChanges: dropped,
	}
}

// Close cancels every pending highlight and marker timer. Write operations
// fail with ErrClosed afterwards; reads keep working.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.sched.Close()
	e.refreshGaugesLocked()

	e.logger.Info("engine closed")
}

func (e *Engine) onHighlightExpired(h model.Highlight) {
	e.metrics.HighlightsExpired.Inc()
	e.metrics.ActiveHighlights.Set(float64(e.sched.Stats().ActiveHighlights))
	e.notify(Change{Kind: ChangeHighlightExpired, Key: h.Key, At: h.ExpiresAt})
}

func (e *Engine) onMarkerExpired(m model.InsertionMarker) {
	e.metrics.MarkersExpired.Inc()
	e.metrics.ActiveMarkers.Set(float64(e.sched.Stats().ActiveMarkers))
	e.notify(Change{Kind: ChangeMarkerExpired, Key: model.FieldKey{RecordID: m.RecordID}, At: m.ExpiresAt})
}

func (e *Engine) refreshGaugesLocked() {
	st := e.sched.Stats()
	e.metrics.ActiveHighlights.Set(float64(st.ActiveHighlights))
	e.metrics.ActiveMarkers.Set(float64(st.ActiveMarkers))
}

// notify sends a change without blocking, dropping the oldest on overflow.
func (e *Engine) notify(c Change) {
	select {
	case e.changes <- c:
		return
	default:
	}

	select {
	case <-e.changes:
		e.countDropped()
	default:
	}

	select {
	case e.changes <- c:
	default:
		e.countDropped()
	}
}

func (e *Engine) countDropped() {
	e.droppedMu.Lock()
	e.dropped++
	e.droppedMu.Unlock()
	e.metrics.EventsDropped.Inc()
}
