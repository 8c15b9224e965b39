package feed

import (
	"github.com/google/uuid"

	"github.com/rickgao/position-monitor/internal/model"
)

type samplePosition struct {
	id, instrument, entity, rowID, portfolio string
	marketValue, exposure, expWeight         float64
	pnlDtd, pnlMtd, pnlYtd                   float64
}

var samples = []samplePosition{
	{"1", "AAPL US Equity", "Tech Portfolio Ltd", "POS-2024-001", "US Tech Growth", 2547832.45, 2547832.45, 12.47, 15234.67, 87543.21, 234567.89},
	{"2", "MSFT US Equity", "Tech Portfolio Ltd", "POS-2024-002", "US Tech Growth", 1876234.12, 1876234.12, 9.18, -8432.55, 45678.90, 156789.23},
	{"3", "GOOGL US Equity", "Tech Portfolio Ltd", "POS-2024-003", "US Tech Growth", 1654321.78, 1654321.78, 8.09, 12456.89, -23456.78, 98765.43},
	{"4", "TSLA US Equity", "Growth Ventures Inc", "POS-2024-004", "EV Innovation", 987654.32, 987654.32, 4.83, -15678.90, -34567.89, -45678.90},
	{"5", "NVDA US Equity", "Tech Portfolio Ltd", "POS-2024-005", "US Tech Growth", 3245678.90, 3245678.90, 15.88, 23456.78, 123456.78, 456789.12},
}

var insertSample = samplePosition{
	"", "META US Equity", "Social Media Fund", "POS-2024-006", "Tech Diversified",
	1432567.89, 1432567.89, 7.01, 8765.43, 34567.89, 87654.32,
}

func (p samplePosition) record() model.Record {
	return model.Record{
		ID: p.id,
		Numbers: map[string]float64{
			model.FieldMarketValue: p.marketValue,
			model.FieldExposure:    p.exposure,
			model.FieldExpWeight:   p.expWeight,
			model.FieldPnlDtd:      p.pnlDtd,
			model.FieldPnlMtd:      p.pnlMtd,
			model.FieldPnlYtd:      p.pnlYtd,
		},
		Labels: map[string]string{
			model.FieldInstrument: p.instrument,
			model.FieldEntity:     p.entity,
			model.FieldRowID:      p.rowID,
			model.FieldPortfolio:  p.portfolio,
		},
	}
}

// SamplePositions returns the demo book used when no seed database is
// configured.
func SamplePositions() []model.Record {
	out := make([]model.Record, len(samples))
	for i, p := range samples {
		out[i] = p.record()
	}
	return out
}

// NewPosition returns the demo position the simulator inserts, under a
// fresh id.
func NewPosition() model.Record {
	p := insertSample
	p.id = "new-" + uuid.NewString()
	return p.record()
}
