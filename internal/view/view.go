// Package view builds presentation-ready rows from records and transient
// highlight state. Project is pure; it never mutates its inputs.
package view

import "github.com/rickgao/position-monitor/internal/model"

// Row is one renderable table row.
type Row struct {
	ID         string                     `json:"id"`
	Numbers    map[string]float64         `json:"numbers"`
	Labels     map[string]string          `json:"labels"`
	Highlights map[string]model.Direction `json:"highlights,omitempty"` // Field -> direction, only for highlighted fields
	IsNew      bool                       `json:"isNew"`
}

// Highlight returns the highlight direction for a field, if any.
func (r Row) Highlight(field string) (model.Direction, bool) {
	d, ok := r.Highlights[field]
	return d, ok
}

// Tone classifies the sign of a numeric field: "positive", "negative" or
// "neutral". Unknown fields are neutral.
func (r Row) Tone(field string) string {
	v := r.Numbers[field]
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	default:
		return "neutral"
	}
}

// Project combines a snapshot with the active highlights and insertion markers.
// Rows keep snapshot order. Highlights or markers for ids not in the snapshot
// are ignored.
func Project(
	snapshot []model.Record,
	highlights map[model.FieldKey]model.Highlight,
	markers map[string]model.InsertionMarker,
) []Row {
	rows := make([]Row, 0, len(snapshot))
	index := make(map[string]int, len(snapshot))

	for _, rec := range snapshot {
		c := rec.Clone()
		_, isNew := markers[rec.ID]
		index[rec.ID] = len(rows)
		rows = append(rows, Row{
			ID:      c.ID,
			Numbers: c.Numbers,
			Labels:  c.Labels,
			IsNew:   isNew,
		})
	}

	for key, h := range highlights {
		i, ok := index[key.RecordID]
		if !ok || h.Direction == model.Unchanged {
			continue
		}
		if rows[i].Highlights == nil {
			rows[i].Highlights = make(map[string]model.Direction)
		}
		rows[i].Highlights[key.Field] = h.Direction
	}

	return rows
}
