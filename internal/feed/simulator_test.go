package feed

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/position-monitor/internal/model"
	"github.com/rickgao/position-monitor/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
	closed bool
}

func (s *recordingSink) Send(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *recordingSink) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

type staticSource []model.Record

func (s staticSource) Snapshot() []model.Record { return s }

func TestSamplePositions(t *testing.T) {
	recs := SamplePositions()
	if len(recs) != 5 {
		t.Fatalf("len = %d, want 5", len(recs))
	}

	schema := model.DefaultSchema()
	for i, r := range recs {
		if err := store.ValidateRecord(schema, r); err != nil {
			t.Errorf("record %s invalid: %v", r.ID, err)
		}
		if want := string(rune('1' + i)); r.ID != want {
			t.Errorf("record[%d].ID = %q, want %q", i, r.ID, want)
		}
	}

	if got := recs[0].Labels[model.FieldInstrument]; got != "AAPL US Equity" {
		t.Errorf("instrument = %q, want AAPL US Equity", got)
	}
	if got := recs[3].Numbers[model.FieldPnlYtd]; got != -45678.90 {
		t.Errorf("TSLA pnlYtd = %v, want -45678.90", got)
	}

	// Callers own the result.
	recs[0].Numbers[model.FieldMarketValue] = 0
	if SamplePositions()[0].Numbers[model.FieldMarketValue] == 0 {
		t.Error("SamplePositions returned shared maps")
	}
}

func TestNewPosition(t *testing.T) {
	a, b := NewPosition(), NewPosition()

	if !strings.HasPrefix(a.ID, "new-") {
		t.Errorf("ID = %q, want new- prefix", a.ID)
	}
	if a.ID == b.ID {
		t.Error("NewPosition ids should be unique")
	}
	if err := store.ValidateRecord(model.DefaultSchema(), a); err != nil {
		t.Errorf("NewPosition invalid: %v", err)
	}
	if got := a.Labels[model.FieldRowID]; got != "POS-2024-006" {
		t.Errorf("rowId = %q, want POS-2024-006", got)
	}
}

func TestJitter(t *testing.T) {
	tests := []struct {
		name string
		old  float64
		r    float64
		want float64
	}{
		{"midpoint", 100, 0.5, 100},
		{"max up", 100, 1, 102.5},
		{"max down", 100, 0, 97.5},
		{"quarter", 100, 0.75, 101.25},
		{"rounds to cents", 2547832.45, 1, 2611528.26},
		{"negative base", -8432.55, 1, -8643.36},
		{"zero", 0, 0.9, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jitter(tt.old, tt.r, 0.05); got != tt.want {
				t.Errorf("Jitter(%v, %v) = %v, want %v", tt.old, tt.r, got, tt.want)
			}
		})
	}
}

func TestSimulator_Step(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.Seed = 42
	sim := NewSimulator(cfg, staticSource(SamplePositions()), sink, nil)

	for i := 0; i < 50; i++ {
		if !sim.Step() {
			t.Fatalf("Step %d returned false", i)
		}
	}

	byID := make(map[string]model.Record)
	for _, r := range SamplePositions() {
		byID[r.ID] = r
	}

	for _, ev := range sink.Events() {
		if ev.Kind != model.KindUpdate {
			t.Fatalf("Kind = %s, want update", ev.Kind)
		}
		if ev.Source != "simulator" {
			t.Errorf("Source = %q, want simulator", ev.Source)
		}
		rec, ok := byID[ev.Update.ID]
		if !ok {
			t.Fatalf("update for unknown id %q", ev.Update.ID)
		}
		if ev.Update.Field == model.FieldExpWeight {
			t.Errorf("expWeight should not be simulated")
		}
		old := rec.Numbers[ev.Update.Field]
		if math.Abs(ev.Update.Value-old) > math.Abs(old)*0.025+0.01 {
			t.Errorf("%s.%s moved %v -> %v, outside jitter span", ev.Update.ID, ev.Update.Field, old, ev.Update.Value)
		}
	}

	if got := sim.Stats().Updates; got != 50 {
		t.Errorf("Updates = %d, want 50", got)
	}
}

func TestSimulator_StepSeededIsDeterministic(t *testing.T) {
	run := func() []model.UpdateEvent {
		sink := &recordingSink{}
		cfg := DefaultConfig()
		cfg.Seed = 7
		sim := NewSimulator(cfg, staticSource(SamplePositions()), sink, nil)
		for i := 0; i < 10; i++ {
			sim.Step()
		}
		var out []model.UpdateEvent
		for _, ev := range sink.Events() {
			out = append(out, ev.Update)
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("update[%d] differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSimulator_StepSkips(t *testing.T) {
	t.Run("empty source", func(t *testing.T) {
		sim := NewSimulator(DefaultConfig(), staticSource(nil), &recordingSink{}, nil)
		if sim.Step() {
			t.Error("Step should return false with no records")
		}
		if got := sim.Stats().Skipped; got != 1 {
			t.Errorf("Skipped = %d, want 1", got)
		}
	})

	t.Run("closed sink", func(t *testing.T) {
		sim := NewSimulator(DefaultConfig(), staticSource(SamplePositions()), &recordingSink{closed: true}, nil)
		if sim.Step() {
			t.Error("Step should return false for a closed sink")
		}
	})

	t.Run("field not on record", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Fields = []string{"delta"}
		sim := NewSimulator(cfg, staticSource(SamplePositions()), &recordingSink{}, nil)
		if sim.Step() {
			t.Error("Step should return false for a missing field")
		}
	})
}

func TestSimulator_InvalidSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateSchedule = "every now and then"
	sim := NewSimulator(cfg, staticSource(nil), &recordingSink{}, nil)

	if err := sim.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestSimulator_InsertAfterDelay(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.UpdateSchedule = "@every 1h"
	cfg.InsertDelay = 10 * time.Millisecond

	sim := NewSimulator(cfg, staticSource(SamplePositions()), sink, nil)
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("insert not emitted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sim.Stop(ctx)

	ev := sink.Events()[0]
	if ev.Kind != model.KindInsert {
		t.Fatalf("Kind = %s, want insert", ev.Kind)
	}
	if got := ev.Insert.Labels[model.FieldInstrument]; got != "META US Equity" {
		t.Errorf("instrument = %q, want META US Equity", got)
	}
	if got := sim.Stats().Inserts; got != 1 {
		t.Errorf("Inserts = %d, want 1", got)
	}
}

func TestSimulator_StopCancelsInsert(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.InsertDelay = time.Hour

	sim := NewSimulator(cfg, staticSource(SamplePositions()), sink, nil)
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	sim.Stop(ctx)
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Stop waited for the pending insert")
	}
	if n := len(sink.Events()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}
