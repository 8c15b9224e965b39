package store

import (
	"fmt"
	"math"
	"sync"

	"github.com/rickgao/position-monitor/internal/model"
)

// Store holds the thread-safe, insertion-ordered record collection.
type Store struct {
	mu sync.RWMutex

	schema model.Schema

	// All known records indexed by id.
	records map[string]*model.Record

	// Record ids in insertion order.
	order []string
}

// New creates an empty store for the given schema.
func New(schema model.Schema) *Store {
	return &Store{
		schema:  schema,
		records: make(map[string]*model.Record),
	}
}

// Schema returns the declared fields.
func (s *Store) Schema() model.Schema {
	return s.schema
}

// Get returns a copy of a record by id (read-locked).
func (s *Store) Get(id string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return model.Record{}, false
	}
	return r.Clone(), true
}

// Has reports whether id is present.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[id]
	return ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns a deep copy of all records in insertion order (read-locked).
func (s *Store) Snapshot() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Record, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.records[id].Clone())
	}
	return result
}

// Value returns the current value of a mutable field.
func (s *Store) Value(id, field string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.lookupLocked(id, field)
	if err != nil {
		return 0, err
	}
	return r.Numbers[field], nil
}

// UpsertField replaces a mutable field value and returns the previous value (write-locked).
func (s *Store) UpsertField(id, field string, value float64) (previous float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertFieldLocked(id, field, value)
}

// upsertFieldLocked replaces a field value (caller must hold write lock).
func (s *Store) upsertFieldLocked(id, field string, value float64) (float64, error) {
	r, err := s.lookupLocked(id, field)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %s.%s = %v", model.ErrInvalidValue, id, field, value)
	}

	previous := r.Numbers[field]
	r.Numbers[field] = value
	return previous, nil
}

// lookupLocked resolves a record for a mutable field update.
func (s *Store) lookupLocked(id, field string) (*model.Record, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownRecord, id)
	}
	if !s.schema.IsMutable(field) {
		return nil, fmt.Errorf("%w: %q is not a mutable field", model.ErrInvalidField, field)
	}
	return r, nil
}

// Insert appends a new record (write-locked).
func (s *Store) Insert(r model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInsertLocked(r); err != nil {
		return err
	}
	s.insertLocked(r)
	return nil
}

// Seed inserts records in order. Either all are inserted or none are.
func (s *Store) Seed(records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := s.checkInsertLocked(r); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %q", model.ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	for _, r := range records {
		s.insertLocked(r)
	}
	return nil
}

// insertLocked stores a copy of r (caller must hold write lock and have validated r).
func (s *Store) insertLocked(r model.Record) {
	c := r.Clone()
	s.records[r.ID] = &c
	s.order = append(s.order, r.ID)
}

// checkInsertLocked validates a record against the schema and current contents.
func (s *Store) checkInsertLocked(r model.Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty record id", model.ErrInvalidField)
	}
	if _, exists := s.records[r.ID]; exists {
		return fmt.Errorf("%w: %q", model.ErrDuplicateID, r.ID)
	}
	return ValidateRecord(s.schema, r)
}

// ValidateRecord checks that r carries every declared field with a finite
// value and nothing undeclared.
func ValidateRecord(schema model.Schema, r model.Record) error {
	for _, f := range schema.NumericFields {
		v, ok := r.Numbers[f]
		if !ok {
			return fmt.Errorf("%w: record %q missing numeric field %q", model.ErrInvalidField, r.ID, f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s.%s = %v", model.ErrInvalidValue, r.ID, f, v)
		}
	}
	for _, f := range schema.LabelFields {
		if _, ok := r.Labels[f]; !ok {
			return fmt.Errorf("%w: record %q missing label field %q", model.ErrInvalidField, r.ID, f)
		}
	}
	for f := range r.Numbers {
		if !schema.IsNumeric(f) {
			return fmt.Errorf("%w: record %q has undeclared numeric field %q", model.ErrInvalidField, r.ID, f)
		}
	}
	for f := range r.Labels {
		if !schema.IsLabel(f) {
			return fmt.Errorf("%w: record %q has undeclared label field %q", model.ErrInvalidField, r.ID, f)
		}
	}
	return nil
}
