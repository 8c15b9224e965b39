package model

import (
	"sort"
	"time"
)

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

// Schema declares the fields every record carries.
type Schema struct {
	NumericFields []string // Numeric fields (all must be present on every record)
	LabelFields   []string // Descriptive fields, immutable after insertion
	MutableFields []string // Subset of NumericFields accepted by field updates
}

// Default position fields.
const (
	FieldInstrument  = "instrument"
	FieldEntity      = "entity"
	FieldRowID       = "rowId"
	FieldPortfolio   = "portfolio"
	FieldMarketValue = "marketValue"
	FieldExposure    = "exposure"
	FieldExpWeight   = "expWeight"
	FieldPnlDtd      = "pnlDtd"
	FieldPnlMtd      = "pnlMtd"
	FieldPnlYtd      = "pnlYtd"
)

// DefaultSchema returns the position table schema.
func DefaultSchema() Schema {
	return Schema{
		NumericFields: []string{
			FieldMarketValue, FieldExposure, FieldExpWeight,
			FieldPnlDtd, FieldPnlMtd, FieldPnlYtd,
		},
		LabelFields: []string{
			FieldInstrument, FieldEntity, FieldRowID, FieldPortfolio,
		},
		MutableFields: []string{
			FieldMarketValue, FieldExposure,
			FieldPnlDtd, FieldPnlMtd, FieldPnlYtd,
		},
	}
}

// IsMutable reports whether field accepts updates.
func (s Schema) IsMutable(field string) bool {
	return contains(s.MutableFields, field)
}

// IsNumeric reports whether field is a declared numeric field.
func (s Schema) IsNumeric(field string) bool {
	return contains(s.NumericFields, field)
}

// IsLabel reports whether field is a declared descriptive field.
func (s Schema) IsLabel(field string) bool {
	return contains(s.LabelFields, field)
}

func contains(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Record is a snapshot of one position.
type Record struct {
	ID      string             // Stable, unique within the store
	Numbers map[string]float64 // Numeric field values
	Labels  map[string]string  // Descriptive field values
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := Record{
		ID:      r.ID,
		Numbers: make(map[string]float64, len(r.Numbers)),
		Labels:  make(map[string]string, len(r.Labels)),
	}
	for k, v := range r.Numbers {
		c.Numbers[k] = v
	}
	for k, v := range r.Labels {
		c.Labels[k] = v
	}
	return c
}

// Number returns a numeric field value.
func (r Record) Number(field string) (float64, bool) {
	v, ok := r.Numbers[field]
	return v, ok
}

// Label returns a descriptive field value.
func (r Record) Label(field string) string {
	return r.Labels[field]
}

// FieldKey addresses one mutable field of one record.
type FieldKey struct {
	RecordID string
	Field    string
}

func (k FieldKey) String() string {
	return k.RecordID + "/" + k.Field
}

// -----------------------------------------------------------------------------
// Transient display state
// -----------------------------------------------------------------------------

// Highlight records that a field recently changed.
type Highlight struct {
	Key       FieldKey
	Direction Direction
	Previous  float64
	Current   float64
	ExpiresAt time.Time
}

// InsertionMarker flags a record as recently inserted.
type InsertionMarker struct {
	RecordID  string
	ExpiresAt time.Time
}

// SortHighlights orders highlights by record id, then field.
func SortHighlights(hs []Highlight) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].Key.RecordID != hs[j].Key.RecordID {
			return hs[i].Key.RecordID < hs[j].Key.RecordID
		}
		return hs[i].Key.Field < hs[j].Key.Field
	})
}
