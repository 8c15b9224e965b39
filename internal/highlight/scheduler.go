package highlight

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/position-monitor/internal/clock"
	"github.com/rickgao/position-monitor/internal/diff"
	"github.com/rickgao/position-monitor/internal/model"
)

// Config holds highlight lifetimes.
type Config struct {
	HighlightDuration     time.Duration // How long a changed field stays highlighted
	InsertionGlowDuration time.Duration // How long a new record stays marked
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HighlightDuration:     1000 * time.Millisecond,
		InsertionGlowDuration: 1200 * time.Millisecond,
	}
}

// RecordLookup reports whether a record still exists.
type RecordLookup interface {
	Has(id string) bool
}

// Hooks are called after an entry expires, outside the scheduler lock.
type Hooks struct {
	HighlightExpired func(model.Highlight)
	MarkerExpired    func(model.InsertionMarker)
}

// Stats contains scheduler counters.
type Stats struct {
	Scheduled        int64 // Highlights created from idle
	Superseded       int64 // Highlights restarted while active
	Expired          int64 // Highlights removed by their timer
	MarkersScheduled int64
	MarkersExpired   int64
	Canceled         int64 // Entries dropped by Cancel, CancelRecord or Close
	ActiveHighlights int
	ActiveMarkers    int
}

// Scheduler owns the transient highlight and insertion-marker state.
// Each field key and each record id has at most one live timer.
type Scheduler struct {
	cfg     Config
	clock   clock.Clock
	records RecordLookup
	hooks   Hooks
	logger  *slog.Logger

	mu         sync.Mutex
	highlights map[model.FieldKey]*highlightEntry
	markers    map[string]*markerEntry
	gen        uint64 // Incremented per scheduled entry; stale timers compare against it
	closed     bool
	stats      Stats
}

type highlightEntry struct {
	h     model.Highlight
	timer clock.Timer
	gen   uint64
}

type markerEntry struct {
	m     model.InsertionMarker
	timer clock.Timer
	gen   uint64
}

// NewScheduler creates a Scheduler. records may be nil to skip the existence guard.
func NewScheduler(cfg Config, clk clock.Clock, records RecordLookup, hooks Hooks, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.NewReal()
	}

	return &Scheduler{
		cfg:        cfg,
		clock:      clk,
		records:    records,
		hooks:      hooks,
		logger:     logger,
		highlights: make(map[model.FieldKey]*highlightEntry),
		markers:    make(map[string]*markerEntry),
	}
}

// Flash registers a highlight for key. Unchanged moves, unknown records and a
// closed scheduler are no-ops and return false. An active entry for key is
// overwritten and its timer restarted with the full duration.
func (s *Scheduler) Flash(key model.FieldKey, change diff.Change) bool {
	if !change.Qualifies() {
		return false
	}
	if s.records != nil && !s.records.Has(key.RecordID) {
		s.logger.Debug("highlight skipped for missing record", "id", key.RecordID, "field", key.Field)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if existing, ok := s.highlights[key]; ok {
		existing.timer.Stop()
		s.stats.Superseded++
	} else {
		s.stats.Scheduled++
	}

	s.gen++
	gen := s.gen
	entry := &highlightEntry{
		h: model.Highlight{
			Key:       key,
			Direction: change.Direction,
			Previous:  change.Previous,
			Current:   change.Current,
			ExpiresAt: s.clock.Now().Add(s.cfg.HighlightDuration),
		},
		gen: gen,
	}
	entry.timer = s.clock.AfterFunc(s.cfg.HighlightDuration, func() {
		s.expireHighlight(key, gen)
	})
	s.highlights[key] = entry

	return true
}

// MarkInserted starts the insertion glow for a record.
func (s *Scheduler) MarkInserted(id string) bool {
	if s.records != nil && !s.records.Has(id) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if existing, ok := s.markers[id]; ok {
		existing.timer.Stop()
	}
	s.stats.MarkersScheduled++

	s.gen++
	gen := s.gen
	entry := &markerEntry{
		m: model.InsertionMarker{
			RecordID:  id,
			ExpiresAt: s.clock.Now().Add(s.cfg.InsertionGlowDuration),
		},
		gen: gen,
	}
	entry.timer = s.clock.AfterFunc(s.cfg.InsertionGlowDuration, func() {
		s.expireMarker(id, gen)
	})
	s.markers[id] = entry

	return true
}

// expireHighlight removes the entry for key if it is still generation gen.
func (s *Scheduler) expireHighlight(key model.FieldKey, gen uint64) {
	s.mu.Lock()
	entry, ok := s.highlights[key]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.highlights, key)
	s.stats.Expired++
	hook := s.hooks.HighlightExpired
	s.mu.Unlock()

	if hook != nil {
		hook(entry.h)
	}
}

// expireMarker removes the marker for id if it is still generation gen.
func (s *Scheduler) expireMarker(id string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.markers[id]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.markers, id)
	s.stats.MarkersExpired++
	hook := s.hooks.MarkerExpired
	s.mu.Unlock()

	if hook != nil {
		hook(entry.m)
	}
}

// Cancel drops the highlight for key. Returns false if none was active.
func (s *Scheduler) Cancel(key model.FieldKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.highlights[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.highlights, key)
	s.stats.Canceled++
	return true
}

// CancelRecord drops every highlight and the insertion marker for a record.
func (s *Scheduler) CancelRecord(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, entry := range s.highlights {
		if key.RecordID != id {
			continue
		}
		entry.timer.Stop()
		delete(s.highlights, key)
		n++
	}
	if entry, ok := s.markers[id]; ok {
		entry.timer.Stop()
		delete(s.markers, id)
		n++
	}
	s.stats.Canceled += int64(n)
	return n
}

// Close cancels all outstanding timers. Later scheduling calls are no-ops.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	n := len(s.highlights) + len(s.markers)
	for key, entry := range s.highlights {
		entry.timer.Stop()
		delete(s.highlights, key)
	}
	for id, entry := range s.markers {
		entry.timer.Stop()
		delete(s.markers, id)
	}
	s.stats.Canceled += int64(n)

	s.logger.Debug("highlight scheduler closed", "canceled", n)
}

// Get returns the active highlight for key.
func (s *Scheduler) Get(key model.FieldKey) (model.Highlight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.highlights[key]
	if !ok {
		return model.Highlight{}, false
	}
	return entry.h, true
}

// IsNew reports whether the record has an active insertion marker.
func (s *Scheduler) IsNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.markers[id]
	return ok
}

// Highlights returns a copy of the active highlights.
func (s *Scheduler) Highlights() map[model.FieldKey]model.Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[model.FieldKey]model.Highlight, len(s.highlights))
	for key, entry := range s.highlights {
		result[key] = entry.h
	}
	return result
}

// Markers returns a copy of the active insertion markers.
func (s *Scheduler) Markers() map[string]model.InsertionMarker {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]model.InsertionMarker, len(s.markers))
	for id, entry := range s.markers {
		result[id] = entry.m
	}
	return result
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.ActiveHighlights = len(s.highlights)
	st.ActiveMarkers = len(s.markers)
	return st
}
