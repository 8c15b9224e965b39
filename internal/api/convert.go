package api

import (
	"time"

	"github.com/rickgao/position-monitor/internal/model"
)

// ToRecord converts an API position to a store record.
func (p APIPosition) ToRecord() model.Record {
	return model.Record{
		ID: p.ID,
		Numbers: map[string]float64{
			model.FieldMarketValue: p.MarketValue.InexactFloat64(),
			model.FieldExposure:    p.Exposure.InexactFloat64(),
			model.FieldExpWeight:   p.ExpWeight.InexactFloat64(),
			model.FieldPnlDtd:      p.PnlDtd.InexactFloat64(),
			model.FieldPnlMtd:      p.PnlMtd.InexactFloat64(),
			model.FieldPnlYtd:      p.PnlYtd.InexactFloat64(),
		},
		Labels: map[string]string{
			model.FieldInstrument: p.Instrument,
			model.FieldEntity:     p.Entity,
			model.FieldRowID:      p.RowID,
			model.FieldPortfolio:  p.Portfolio,
		},
	}
}

// ToRecords converts a page of API positions.
func ToRecords(positions []APIPosition) []model.Record {
	out := make([]model.Record, len(positions))
	for i, p := range positions {
		out[i] = p.ToRecord()
	}
	return out
}

// ParseTimestamp parses an ISO 8601 timestamp. Returns the zero time for
// empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t
}
