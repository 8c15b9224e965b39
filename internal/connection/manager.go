package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Manager owns the feed session: it dials, subscribes, forwards frames and
// redials after the session drops.
type Manager interface {
	// Start dials the feed. It fails if the first dial fails.
	Start(ctx context.Context) error

	// Stop ends the session and closes Messages.
	Stop(ctx context.Context) error

	// Messages delivers annotated frames to the router.
	Messages() <-chan RawMessage

	Stats() ManagerStats
}

// ManagerStats reports feed health.
type ManagerStats struct {
	Connected  bool        `json:"connected"`
	ConnID     string      `json:"conn_id"`
	Reconnects int64       `json:"reconnects"`
	Forwarded  int64       `json:"forwarded"`
	Dropped    int64       `json:"dropped"` // Manager output full
	SeqGaps    int64       `json:"seq_gaps"`
	Session    ClientStats `json:"session"`
}

// session is one live client and its sequence state.
type session struct {
	client  Client
	id      string
	lastSeq int64
}

type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	out chan RawMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	cur *session

	cmdID      atomic.Int64
	reconnects atomic.Int64
	forwarded  atomic.Int64
	dropped    atomic.Int64
	seqGaps    atomic.Int64
}

// NewManager returns a manager that has not dialed yet.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = def.MessageBufferSize
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	cfg.ReconnectMaxWait = max(cfg.ReconnectMaxWait, cfg.ReconnectBaseWait)

	return &manager{
		cfg:    cfg,
		logger: logger,
		out:    make(chan RawMessage, cfg.MessageBufferSize),
	}
}

func (m *manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	s, err := m.dial()
	if err != nil {
		m.cancel()
		return fmt.Errorf("connect: %w", err)
	}

	m.wg.Add(1)
	go m.run(s)

	m.logger.Info("feed connection manager started", "url", m.cfg.Client.URL, "conn_id", s.id)
	return nil
}

func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping feed connection manager")

	if m.cancel != nil {
		m.cancel()
	}
	if s := m.current(); s != nil {
		s.client.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("feed connection manager stopped")
	case <-ctx.Done():
		m.logger.Warn("feed connection manager stop timed out")
	}

	close(m.out)
	return nil
}

func (m *manager) Messages() <-chan RawMessage {
	return m.out
}

func (m *manager) Stats() ManagerStats {
	st := ManagerStats{
		Reconnects: m.reconnects.Load(),
		Forwarded:  m.forwarded.Load(),
		Dropped:    m.dropped.Load(),
		SeqGaps:    m.seqGaps.Load(),
	}
	if s := m.current(); s != nil {
		st.Connected = s.client.IsConnected()
		st.ConnID = s.id
		st.Session = s.client.Stats()
	}
	return st
}

func (m *manager) current() *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// dial opens and subscribes a new session and makes it current.
func (m *manager) dial() (*session, error) {
	id := uuid.NewString()
	c := NewClient(m.cfg.Client, m.logger.With("conn_id", id))

	if err := c.Connect(m.ctx); err != nil {
		return nil, err
	}
	if err := m.subscribe(c); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &session{client: c, id: id}
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return s, nil
}

// subscribe sends the portfolio filter. Nothing is sent without one since
// the feed streams every position by default.
func (m *manager) subscribe(c Client) error {
	if len(m.cfg.Portfolios) == 0 {
		return nil
	}
	data, err := json.Marshal(Command{
		ID:     m.cmdID.Add(1),
		Cmd:    "subscribe",
		Params: SubscribeParams{Portfolios: m.cfg.Portfolios},
	})
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (m *manager) run(s *session) {
	defer m.wg.Done()

	for {
		m.drain(s)
		s.client.Close()

		if m.ctx.Err() != nil {
			return
		}
		if err := s.client.Err(); err != nil {
			m.logger.Warn("feed session ended", "conn_id", s.id, "error", err)
		}

		next, ok := m.redial()
		if !ok {
			return
		}
		s = next
	}
}

// drain forwards frames until the session's frame channel closes or the
// manager stops.
func (m *manager) drain(s *session) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case f, ok := <-s.client.Frames():
			if !ok {
				return
			}
			m.forward(s, f)
		}
	}
}

// forward annotates one frame and hands it on without blocking.
func (m *manager) forward(s *session, f Frame) {
	gap := m.sequenceGap(s, f.Data)
	msg := RawMessage{
		Data:       f.Data,
		ConnID:     s.id,
		ReceivedAt: f.ReceivedAt,
		SeqGap:     gap > 0,
		GapSize:    gap,
	}

	select {
	case m.out <- msg:
		m.forwarded.Add(1)
	default:
		m.dropped.Add(1)
		m.logger.Warn("message buffer full, dropping", "conn_id", s.id)
	}
}

// sequenceGap returns how many messages were skipped before this one.
// Frames without a sequence number are ignored. Sequence numbers restart
// with each session.
func (m *manager) sequenceGap(s *session, data []byte) int {
	var env DataMessage
	if json.Unmarshal(data, &env) != nil || env.Seq == 0 {
		return 0
	}

	last := s.lastSeq
	s.lastSeq = env.Seq
	if last == 0 || env.Seq <= last+1 {
		return 0
	}

	gap := int(env.Seq - last - 1)
	m.seqGaps.Add(1)
	m.logger.Warn("sequence gap detected",
		"conn_id", s.id,
		"expected", last+1,
		"got", env.Seq,
		"gap", gap,
	)
	return gap
}

// redial retries with jittered exponential backoff until a session opens
// or the manager stops.
func (m *manager) redial() (*session, bool) {
	wait := m.cfg.ReconnectBaseWait

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(jitter(wait))
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		s, err := m.dial()
		if err == nil {
			m.reconnects.Add(1)
			m.logger.Info("reconnected", "conn_id", s.id, "attempts", attempt)
			return s, true
		}
		if errors.Is(err, context.Canceled) {
			return nil, false
		}

		wait = min(wait*2, m.cfg.ReconnectMaxWait)
		m.logger.Warn("reconnection failed", "error", err, "attempt", attempt, "next_wait", wait)
	}
}

// jitter spreads d over [0.75d, 1.25d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d*3/4 + time.Duration(rand.Int64N(int64(d)/2+1))
}
