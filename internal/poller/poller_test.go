package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/position-monitor/internal/api"
	"github.com/rickgao/position-monitor/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Send(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func position(id string, marketValue, pnlDtd float64) model.Record {
	return model.Record{
		ID: id,
		Numbers: map[string]float64{
			model.FieldMarketValue: marketValue,
			model.FieldExposure:    marketValue,
			model.FieldExpWeight:   1,
			model.FieldPnlDtd:      pnlDtd,
			model.FieldPnlMtd:      0,
			model.FieldPnlYtd:      0,
		},
		Labels: map[string]string{
			model.FieldInstrument: id + " US Equity",
			model.FieldEntity:     "Tech Portfolio Ltd",
			model.FieldRowID:      "POS-" + id,
			model.FieldPortfolio:  "US Tech Growth",
		},
	}
}

func apiPosition(id string, marketValue, pnlDtd float64) api.APIPosition {
	return api.APIPosition{
		ID:          id,
		Instrument:  id + " US Equity",
		Entity:      "Tech Portfolio Ltd",
		RowID:       "POS-" + id,
		Portfolio:   "US Tech Growth",
		MarketValue: decimal.NewFromFloat(marketValue),
		Exposure:    decimal.NewFromFloat(marketValue),
		ExpWeight:   decimal.NewFromInt(1),
		PnlDtd:      decimal.NewFromFloat(pnlDtd),
	}
}

func TestReconcile(t *testing.T) {
	mutable := model.DefaultSchema().MutableFields

	t.Run("unchanged snapshot", func(t *testing.T) {
		cur := []model.Record{position("AAPL", 100, 5)}
		if got := Reconcile(cur, []model.Record{position("AAPL", 100, 5)}, mutable); len(got) != 0 {
			t.Errorf("events = %+v, want none", got)
		}
	})

	t.Run("changed fields", func(t *testing.T) {
		cur := []model.Record{position("AAPL", 100, 5)}
		got := Reconcile(cur, []model.Record{position("AAPL", 105, -2)}, mutable)

		// marketValue and exposure move together, then pnlDtd.
		want := []model.UpdateEvent{
			{ID: "AAPL", Field: model.FieldMarketValue, Value: 105},
			{ID: "AAPL", Field: model.FieldExposure, Value: 105},
			{ID: "AAPL", Field: model.FieldPnlDtd, Value: -2},
		}
		if len(got) != len(want) {
			t.Fatalf("events = %d, want %d", len(got), len(want))
		}
		for i, w := range want {
			if got[i].Kind != model.KindUpdate || got[i].Update != w {
				t.Errorf("event[%d] = %+v, want %+v", i, got[i].Update, w)
			}
		}
	})

	t.Run("immutable field ignored", func(t *testing.T) {
		cur := []model.Record{position("AAPL", 100, 5)}
		next := position("AAPL", 100, 5)
		next.Numbers[model.FieldExpWeight] = 9
		if got := Reconcile(cur, []model.Record{next}, mutable); len(got) != 0 {
			t.Errorf("events = %+v, want none", got)
		}
	})

	t.Run("unknown id inserts", func(t *testing.T) {
		got := Reconcile(nil, []model.Record{position("META", 1, 0)}, mutable)
		if len(got) != 1 || got[0].Kind != model.KindInsert {
			t.Fatalf("events = %+v, want one insert", got)
		}
		if got[0].Insert.ID != "META" {
			t.Errorf("insert id = %q, want META", got[0].Insert.ID)
		}
	})

	t.Run("duplicates and empty ids skipped", func(t *testing.T) {
		fetched := []model.Record{position("META", 1, 0), position("META", 2, 0), {ID: ""}}
		if got := Reconcile(nil, fetched, mutable); len(got) != 1 {
			t.Errorf("events = %d, want 1", len(got))
		}
	})

	t.Run("missing rows left alone", func(t *testing.T) {
		cur := []model.Record{position("AAPL", 100, 5), position("MSFT", 50, 1)}
		if got := Reconcile(cur, []model.Record{position("AAPL", 100, 5)}, mutable); len(got) != 0 {
			t.Errorf("events = %+v, want none", got)
		}
	})
}

func TestPoller_Poll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := api.PositionsResponse{
			Positions: []api.APIPosition{
				apiPosition("AAPL", 105, 5),
				apiPosition("META", 10, 0),
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	sink := &recordingSink{}
	current := staticSource{position("AAPL", 100, 5)}

	p := New(Config{Interval: time.Hour}, client, current, sink, model.DefaultSchema(), nil)
	p.Poll(context.Background())

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for _, ev := range events {
		if ev.Source != "rest" {
			t.Errorf("Source = %q, want rest", ev.Source)
		}
	}
	if events[2].Kind != model.KindInsert {
		t.Errorf("event[2].Kind = %s, want insert", events[2].Kind)
	}

	stats := p.Stats()
	if stats.Polls != 1 || stats.Fetched != 2 || stats.Updates != 2 || stats.Inserts != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

type fakeFetcher struct {
	inFlight, maxInFlight atomic.Int32
	fail                  map[string]bool
	calls                 atomic.Int32
}

func (f *fakeFetcher) GetAllPositions(ctx context.Context, portfolio string) ([]api.APIPosition, error) {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		old := f.maxInFlight.Load()
		if current <= old || f.maxInFlight.CompareAndSwap(old, current) {
			break
		}
	}

	time.Sleep(20 * time.Millisecond)

	if f.fail[portfolio] {
		return nil, errors.New("boom")
	}
	return []api.APIPosition{apiPosition("ID-"+portfolio, 1, 0)}, nil
}

func TestPoller_Concurrency(t *testing.T) {
	fetcher := &fakeFetcher{}

	var portfolios []string
	for i := 0; i < 12; i++ {
		portfolios = append(portfolios, string(rune('A'+i)))
	}

	cfg := Config{Interval: time.Hour, Concurrency: 3, Timeout: 5 * time.Second, Portfolios: portfolios}
	sink := &recordingSink{}
	p := New(cfg, fetcher, staticSource(nil), sink, model.DefaultSchema(), nil)
	p.Poll(context.Background())

	if got := fetcher.maxInFlight.Load(); got > 3 {
		t.Errorf("maxInFlight = %d, want <= 3", got)
	}
	if got := len(sink.Events()); got != 12 {
		t.Errorf("events = %d, want 12", got)
	}
}

func TestPoller_PartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]bool{"B": true}}
	cfg := Config{Interval: time.Hour, Portfolios: []string{"A", "B", "C"}}
	sink := &recordingSink{}

	p := New(cfg, fetcher, staticSource(nil), sink, model.DefaultSchema(), nil)
	p.Poll(context.Background())

	if got := len(sink.Events()); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
	if got := p.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	fetcher := &fakeFetcher{}
	cfg := Config{Interval: 20 * time.Millisecond}
	p := New(cfg, fetcher, staticSource(nil), &recordingSink{}, model.DefaultSchema(), nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no poll happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	p := New(Config{}, &fakeFetcher{}, staticSource(nil), &recordingSink{}, model.DefaultSchema(), nil)

	def := DefaultConfig()
	if p.cfg.Interval != def.Interval {
		t.Errorf("Interval = %v, want %v", p.cfg.Interval, def.Interval)
	}
	if p.cfg.Concurrency != def.Concurrency {
		t.Errorf("Concurrency = %d, want %d", p.cfg.Concurrency, def.Concurrency)
	}
	if p.cfg.Timeout != def.Timeout {
		t.Errorf("Timeout = %v, want %v", p.cfg.Timeout, def.Timeout)
	}
}
