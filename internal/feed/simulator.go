package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/rickgao/position-monitor/internal/model"
)

const source = "simulator"

// Sink receives generated events. router.GrowableBuffer satisfies it.
type Sink interface {
	Send(model.Event) bool
}

// RecordSource provides the current records to perturb.
type RecordSource interface {
	Snapshot() []model.Record
}

// Config holds simulator configuration.
type Config struct {
	UpdateSchedule string        // Cron spec for random updates
	JitterPct      float64       // Total span of the multiplicative move, 0.05 = ±2.5%
	InsertDelay    time.Duration // Delay before the one-off insert; <= 0 disables it
	Fields         []string      // Fields to perturb
	Seed           int64         // RNG seed, 0 = time based
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpdateSchedule: "@every 3s",
		JitterPct:      0.05,
		InsertDelay:    5 * time.Second,
		Fields: []string{
			model.FieldMarketValue, model.FieldExposure,
			model.FieldPnlDtd, model.FieldPnlMtd, model.FieldPnlYtd,
		},
	}
}

// Stats reports simulator activity.
type Stats struct {
	Updates int64
	Inserts int64
	Skipped int64 // Ticks with nothing to update or a closed sink
}

// Simulator generates random position updates on a cron schedule and
// inserts one new position after a delay.
type Simulator struct {
	cfg    Config
	source RecordSource
	sink   Sink
	logger *slog.Logger

	cron *cron.Cron

	mu    sync.Mutex
	rng   *rand.Rand
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulator creates a simulator.
func NewSimulator(cfg Config, source RecordSource, sink Sink, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultConfig().Fields
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Simulator{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger,
		cron:   cron.New(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Start registers the update job and schedules the insert.
func (s *Simulator) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.UpdateSchedule, func() { s.Step() }); err != nil {
		return fmt.Errorf("register update schedule %q: %w", s.cfg.UpdateSchedule, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()

	if s.cfg.InsertDelay > 0 {
		s.wg.Add(1)
		go s.insertAfter(s.cfg.InsertDelay)
	}

	s.logger.Info("simulator started",
		"schedule", s.cfg.UpdateSchedule,
		"jitter_pct", s.cfg.JitterPct,
		"insert_delay", s.cfg.InsertDelay,
	)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Simulator) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("simulator stopped")
	case <-ctx.Done():
		s.logger.Warn("simulator stop timed out")
	}
	return nil
}

// Stats returns current counters.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Step emits one random field update. Returns false if nothing was sent.
func (s *Simulator) Step() bool {
	records := s.source.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) == 0 {
		s.stats.Skipped++
		return false
	}

	rec := records[s.rng.Intn(len(records))]
	field := s.cfg.Fields[s.rng.Intn(len(s.cfg.Fields))]
	old, ok := rec.Number(field)
	if !ok {
		s.stats.Skipped++
		s.logger.Debug("simulated field not on record", "id", rec.ID, "field", field)
		return false
	}

	value := Jitter(old, s.rng.Float64(), s.cfg.JitterPct)
	ev := model.NewUpdate(rec.ID, field, value)
	ev.Source = source
	ev.ReceivedAt = time.Now()

	if !s.sink.Send(ev) {
		s.stats.Skipped++
		return false
	}
	s.stats.Updates++
	return true
}

// Insert emits the demo position insert.
func (s *Simulator) Insert() bool {
	rec := NewPosition()
	ev := model.NewInsert(rec)
	ev.Source = source
	ev.ReceivedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sink.Send(ev) {
		s.stats.Skipped++
		return false
	}
	s.stats.Inserts++
	s.logger.Info("simulated position insert", "id", rec.ID, "instrument", rec.Labels[model.FieldInstrument])
	return true
}

func (s *Simulator) insertAfter(d time.Duration) {
	defer s.wg.Done()

	select {
	case <-s.ctx.Done():
	case <-time.After(d):
		s.Insert()
	}
}

// Jitter moves old by (r-0.5)*pct of itself and rounds to cents. r is a
// uniform sample in [0,1).
func Jitter(old, r, pct float64) float64 {
	base := decimal.NewFromFloat(old)
	change := base.Mul(decimal.NewFromFloat((r - 0.5) * pct))
	return base.Add(change).Round(2).InexactFloat64()
}
