package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/position-monitor/internal/engine"
	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/server"
)

type memStore struct {
	mu     sync.Mutex
	saved  []model.Record
	calls  int
	failed int // Calls left to fail
}

func (s *memStore) SavePositions(ctx context.Context, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failed > 0 {
		s.failed--
		return errors.New("disk full")
	}
	s.saved = append(s.saved, records...)
	return nil
}

func (s *memStore) Saved() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Record(nil), s.saved...)
}

type staticLookup map[string]model.Record

func (l staticLookup) Record(id string) (model.Record, bool) {
	r, ok := l[id]
	return r, ok
}

func position(id string, marketValue float64) model.Record {
	return model.Record{
		ID:      id,
		Numbers: map[string]float64{model.FieldMarketValue: marketValue},
		Labels:  map[string]string{model.FieldInstrument: id + " US Equity"},
	}
}

var lookup = staticLookup{
	"1":     position("1", 2547900.12),
	"2":     position("2", 1876234.12),
	"new-1": position("new-1", 1432567.89),
}

func update(id string) server.ChangeMessage {
	return server.ChangeMessage{Kind: engine.ChangeUpdate, ID: id, Field: model.FieldMarketValue, Direction: "increase", At: time.Now()}
}

func stop(t *testing.T, w *CheckpointWriter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
}

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v, want 2s", cfg.FlushInterval)
	}

	w := NewCheckpointWriter(WriterConfig{}, nil, lookup, &memStore{}, nil)
	if w.cfg != cfg {
		t.Errorf("zero config = %+v, want defaults %+v", w.cfg, cfg)
	}
}

func TestCheckpointWriter_HandleMessage(t *testing.T) {
	w := NewCheckpointWriter(DefaultWriterConfig(), nil, lookup, &memStore{}, nil)

	w.handleMessage(update("1"))
	w.handleMessage(update("1"))
	w.handleMessage(update("2"))
	w.handleMessage(server.ChangeMessage{Kind: engine.ChangeInsert, ID: "new-1"})
	w.handleMessage(server.ChangeMessage{Kind: engine.ChangeHighlightExpired, ID: "1", Field: model.FieldMarketValue})
	w.handleMessage(server.ChangeMessage{Kind: engine.ChangeMarkerExpired, ID: "new-1"})

	if got := w.Pending(); got != 3 {
		t.Errorf("Pending = %d, want 3", got)
	}
	want := []string{"1", "2", "new-1"}
	for i, id := range want {
		if w.order[i] != id {
			t.Errorf("order[%d] = %q, want %q", i, w.order[i], id)
		}
	}

	stats := w.Stats()
	if stats.Received != 6 {
		t.Errorf("Received = %d, want 6", stats.Received)
	}
	if stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", stats.Skipped)
	}
}

func TestCheckpointWriter_FlushReadsCurrentValues(t *testing.T) {
	store := &memStore{}
	records := staticLookup{"1": position("1", 100)}
	w := NewCheckpointWriter(DefaultWriterConfig(), nil, records, store, nil)

	w.handleMessage(update("1"))
	records["1"] = position("1", 250)
	w.handleMessage(update("1"))
	w.flush()

	saved := store.Saved()
	if len(saved) != 1 {
		t.Fatalf("saved = %d records, want 1", len(saved))
	}
	if got := saved[0].Numbers[model.FieldMarketValue]; got != 250 {
		t.Errorf("marketValue = %v, want 250", got)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending = %d, want 0 after flush", w.Pending())
	}
}

func TestCheckpointWriter_MissingRecord(t *testing.T) {
	store := &memStore{}
	w := NewCheckpointWriter(DefaultWriterConfig(), nil, lookup, store, nil)

	w.handleMessage(update("gone"))
	w.flush()

	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
	if got := w.Stats().Missing; got != 1 {
		t.Errorf("Missing = %d, want 1", got)
	}
}

func TestCheckpointWriter_StoreErrorRetries(t *testing.T) {
	store := &memStore{failed: 1}
	w := NewCheckpointWriter(DefaultWriterConfig(), nil, lookup, store, nil)

	w.handleMessage(update("1"))
	w.flush()

	if got := w.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
	if got := w.Pending(); got != 1 {
		t.Errorf("Pending = %d, want 1 after failed flush", got)
	}

	w.flush()

	stats := w.Stats()
	if stats.Written != 1 || stats.Flushes != 1 {
		t.Errorf("Stats = %+v, want 1 written in 1 flush", stats)
	}
}

func TestCheckpointWriter_BatchSizeFlush(t *testing.T) {
	store := &memStore{}
	input := make(chan server.ChangeMessage, 10)
	w := NewCheckpointWriter(WriterConfig{BatchSize: 2, FlushInterval: time.Hour}, input, lookup, store, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	input <- update("1")
	input <- update("1")
	input <- update("2")

	deadline := time.Now().Add(2 * time.Second)
	for len(store.Saved()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("saved = %d, want 2", len(store.Saved()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop(t, w)

	if got := w.Stats().Flushes; got != 1 {
		t.Errorf("Flushes = %d, want 1", got)
	}
}

func TestCheckpointWriter_IntervalFlush(t *testing.T) {
	store := &memStore{}
	input := make(chan server.ChangeMessage, 10)
	w := NewCheckpointWriter(WriterConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, input, lookup, store, nil)
	w.Start(context.Background())
	defer stop(t, w)

	input <- server.ChangeMessage{Kind: engine.ChangeInsert, ID: "new-1"}

	deadline := time.Now().Add(2 * time.Second)
	for len(store.Saved()) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("interval flush did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := store.Saved()[0].ID; got != "new-1" {
		t.Errorf("saved ID = %q, want new-1", got)
	}
}

func TestCheckpointWriter_StopFlushesRemainder(t *testing.T) {
	store := &memStore{}
	input := make(chan server.ChangeMessage, 10)
	w := NewCheckpointWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, input, lookup, store, nil)
	w.Start(context.Background())

	input <- update("2")

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Received < 1 {
		if time.Now().After(deadline) {
			t.Fatal("message not consumed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop(t, w)

	saved := store.Saved()
	if len(saved) != 1 || saved[0].ID != "2" {
		t.Errorf("saved = %+v, want position 2", saved)
	}
}

func TestCheckpointWriter_ClosedInput(t *testing.T) {
	input := make(chan server.ChangeMessage)
	w := NewCheckpointWriter(DefaultWriterConfig(), input, lookup, &memStore{}, nil)
	w.Start(context.Background())
	close(input)

	start := time.Now()
	stop(t, w)
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Stop should return promptly")
	}
}
