package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/position-monitor/internal/connection"
	"github.com/rickgao/position-monitor/internal/model"
)

// Router decodes raw feed messages into position events.
type Router interface {
	Start(ctx context.Context) error

	// Stop ends routing. A private buffer is closed; a shared one is not.
	Stop(ctx context.Context) error

	// Buffer is where decoded events go.
	Buffer() *GrowableBuffer[model.Event]

	Stats() RouterStats
}

// RouterStats counts routing outcomes.
type RouterStats struct {
	MessagesReceived int64       `json:"messages_received"`
	MessagesRouted   int64       `json:"messages_routed"`
	ParseErrors      int64       `json:"parse_errors"`
	FeedErrors       int64       `json:"feed_errors"`
	UnknownMessages  int64       `json:"unknown_messages"` // Control and unrecognized types
	SeqGaps          int64       `json:"seq_gaps"`
	Buffer           BufferStats `json:"buffer"`
}

type router struct {
	cfg    RouterConfig
	logger *slog.Logger

	input <-chan connection.RawMessage

	out     *GrowableBuffer[model.Event]
	ownsBuf bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	received    atomic.Int64
	routed      atomic.Int64
	parseErrors atomic.Int64
	feedErrors  atomic.Int64
	unknown     atomic.Int64
	seqGaps     atomic.Int64
}

// NewRouter returns a router reading from input. Events go to out, which
// may be shared with other sources; a nil out gets a private buffer.
func NewRouter(cfg RouterConfig, input <-chan connection.RawMessage, out *GrowableBuffer[model.Event], logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = DefaultRouterConfig().Source
	}

	r := &router{cfg: cfg, logger: logger, input: input, out: out}
	if out == nil {
		r.out = NewGrowableBuffer[model.Event](cfg.BufferSize)
		r.ownsBuf = true
	}
	return r
}

func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()

	r.logger.Info("message router started", "source", r.cfg.Source)
	return nil
}

func (r *router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	if r.ownsBuf {
		r.out.Close()
	}
	return nil
}

func (r *router) Buffer() *GrowableBuffer[model.Event] {
	return r.out
}

func (r *router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		ParseErrors:      r.parseErrors.Load(),
		FeedErrors:       r.feedErrors.Load(),
		UnknownMessages:  r.unknown.Load(),
		SeqGaps:          r.seqGaps.Load(),
		Buffer:           r.out.Stats(),
	}
}

func (r *router) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("router input closed")
				return
			}
			r.route(raw)
		}
	}
}

func (r *router) route(raw connection.RawMessage) {
	r.received.Add(1)
	if raw.SeqGap {
		r.seqGaps.Add(1)
		// Missed messages are not replayed; the poller or a restart resyncs.
		r.logger.Warn("feed sequence gap", "conn_id", raw.ConnID, "missed", raw.GapSize)
	}

	ev, err := ParseMessage(raw.Data)
	var feedErr *FeedError
	switch {
	case errors.As(err, &feedErr):
		r.feedErrors.Add(1)
		r.logger.Error("feed reported an error", "conn_id", raw.ConnID, "code", feedErr.Code, "message", feedErr.Message)
		return
	case err != nil:
		r.parseErrors.Add(1)
		r.logger.Warn("failed to parse feed message", "conn_id", raw.ConnID, "error", err)
		return
	case ev == nil:
		r.unknown.Add(1)
		return
	}

	ev.Source = r.cfg.Source
	ev.ReceivedAt = raw.ReceivedAt
	if r.out.Send(*ev) {
		r.routed.Add(1)
	}
}

// ParseMessage decodes one feed message. Control messages and unknown types
// yield a nil event and a nil error; feed error messages yield a *FeedError.
func ParseMessage(data []byte) (*model.Event, error) {
	var env connection.DataMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypePositionUpdate:
		return decodeUpdate(env.Msg)
	case TypePositionInsert:
		return decodeInsert(env.Msg)
	case TypeError:
		var p errorPayload
		if err := json.Unmarshal(env.Msg, &p); err != nil {
			return nil, fmt.Errorf("error message: %w", err)
		}
		return nil, &FeedError{Code: p.Code, Message: p.Message}
	default:
		return nil, nil
	}
}

func decodeUpdate(msg json.RawMessage) (*model.Event, error) {
	var p updatePayload
	if err := json.Unmarshal(msg, &p); err != nil {
		return nil, fmt.Errorf("position_update: %w", err)
	}

	switch {
	case p.ID == "":
		return nil, fmt.Errorf("position_update: %w", ErrMissingID)
	case p.Field == "":
		return nil, fmt.Errorf("position_update %s: %w", p.ID, ErrMissingField)
	case p.Value == nil:
		return nil, fmt.Errorf("position_update %s.%s: %w", p.ID, p.Field, ErrMissingValue)
	}

	ev := model.NewUpdate(p.ID, p.Field, p.Value.InexactFloat64())
	return &ev, nil
}

// decodeInsert builds the inserted record. Field completeness is checked by
// the engine against its schema.
func decodeInsert(msg json.RawMessage) (*model.Event, error) {
	var p insertPayload
	if err := json.Unmarshal(msg, &p); err != nil {
		return nil, fmt.Errorf("position_insert: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("position_insert: %w", ErrMissingID)
	}

	rec := model.Record{
		ID:      p.ID,
		Numbers: make(map[string]float64, len(p.Numbers)),
		Labels:  make(map[string]string, len(p.Labels)),
	}
	for f, v := range p.Numbers {
		rec.Numbers[f] = v.InexactFloat64()
	}
	for f, v := range p.Labels {
		rec.Labels[f] = v
	}

	ev := model.NewInsert(rec)
	return &ev, nil
}
