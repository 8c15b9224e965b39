package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/position-monitor/internal/api"
	"github.com/rickgao/position-monitor/internal/model"
)

const source = "rest"

// RecordSource provides the engine's current records.
type RecordSource interface {
	Snapshot() []model.Record
}

// Sink receives reconciliation events. router.GrowableBuffer satisfies it.
type Sink interface {
	Send(model.Event) bool
}

// Fetcher fetches positions for one portfolio ("" = all).
type Fetcher interface {
	GetAllPositions(ctx context.Context, portfolio string) ([]api.APIPosition, error)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 30s)
	Concurrency int           // Max concurrent portfolio fetches (default: 4)
	Timeout     time.Duration // Per-portfolio fetch timeout (default: 10s)
	Portfolios  []string      // Portfolios to fetch; empty = one unfiltered fetch
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Stats reports poller activity.
type Stats struct {
	Polls   int64
	Fetched int64 // Positions received
	Errors  int64 // Failed portfolio fetches
	Updates int64
	Inserts int64
}

// Poller periodically fetches position snapshots via the REST API and
// turns differences from the current view into events.
type Poller struct {
	cfg     Config
	client  Fetcher
	records RecordSource
	sink    Sink
	mutable []string
	logger  *slog.Logger

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. Only fields in schema.MutableFields produce
// update events.
func New(cfg Config, client Fetcher, records RecordSource, sink Sink, schema model.Schema, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		records: records,
		sink:    sink,
		mutable: schema.MutableFields,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("position poller started",
		"interval", p.cfg.Interval,
		"portfolios", len(p.cfg.Portfolios),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("position poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Poll(p.ctx)
		}
	}
}

// Poll runs one fetch-and-reconcile cycle. Portfolios that fail to fetch
// are skipped; the rest are still reconciled.
func (p *Poller) Poll(ctx context.Context) {
	start := time.Now()

	portfolios := p.cfg.Portfolios
	if len(portfolios) == 0 {
		portfolios = []string{""}
	}

	results := make([][]model.Record, len(portfolios))
	var failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	var failMu sync.Mutex
	for i, portfolio := range portfolios {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, p.cfg.Timeout)
			defer cancel()

			positions, err := p.client.GetAllPositions(fctx, portfolio)
			if err != nil {
				p.logger.Warn("failed to fetch positions",
					"portfolio", portfolio,
					"err", err,
				)
				failMu.Lock()
				failed++
				failMu.Unlock()
				return nil
			}
			results[i] = api.ToRecords(positions)
			return nil
		})
	}
	g.Wait()

	var fetched []model.Record
	for _, recs := range results {
		fetched = append(fetched, recs...)
	}

	events := Reconcile(p.records.Snapshot(), fetched, p.mutable)

	var updates, inserts int64
	now := time.Now()
	for _, ev := range events {
		ev.Source = source
		ev.ReceivedAt = now
		if !p.sink.Send(ev) {
			break
		}
		if ev.Kind == model.KindInsert {
			inserts++
		} else {
			updates++
		}
	}

	p.mu.Lock()
	p.stats.Polls++
	p.stats.Fetched += int64(len(fetched))
	p.stats.Errors += failed
	p.stats.Updates += updates
	p.stats.Inserts += inserts
	p.mu.Unlock()

	p.logger.Info("poll cycle complete",
		"portfolios", len(portfolios),
		"fetched", len(fetched),
		"errors", failed,
		"updates", updates,
		"inserts", inserts,
		"duration", time.Since(start),
	)
}

// Reconcile compares a fetched snapshot with the current records. Unknown
// ids become inserts; known ids produce one update per mutable field whose
// value differs. Records missing from fetched are left alone. Output
// follows fetched order, fields in mutable order.
func Reconcile(current, fetched []model.Record, mutable []string) []model.Event {
	byID := make(map[string]model.Record, len(current))
	for _, r := range current {
		byID[r.ID] = r
	}

	var events []model.Event
	seen := make(map[string]bool, len(fetched))
	for _, r := range fetched {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true

		cur, ok := byID[r.ID]
		if !ok {
			events = append(events, model.NewInsert(r.Clone()))
			continue
		}
		for _, f := range mutable {
			next, ok := r.Numbers[f]
			if !ok {
				continue
			}
			if prev, ok := cur.Numbers[f]; ok && prev == next {
				continue
			}
			events = append(events, model.NewUpdate(r.ID, f, next))
		}
	}
	return events
}
