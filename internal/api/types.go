package api

import "github.com/shopspring/decimal"

// PositionsResponse from GET /positions
type PositionsResponse struct {
	Positions []APIPosition `json:"positions"`
	Cursor    string        `json:"cursor"`
}

// SinglePositionResponse from GET /positions/{id}
type SinglePositionResponse struct {
	Position APIPosition `json:"position"`
}

// APIPosition represents a position from the REST API. Amounts are
// decimal strings or numbers on the wire.
type APIPosition struct {
	ID         string `json:"id"`
	Instrument string `json:"instrument"`
	Entity     string `json:"entity"`
	RowID      string `json:"row_id"`
	Portfolio  string `json:"portfolio"`

	// Amounts in dollars
	MarketValue decimal.Decimal `json:"market_value"`
	Exposure    decimal.Decimal `json:"exposure"`
	PnlDtd      decimal.Decimal `json:"pnl_dtd"`
	PnlMtd      decimal.Decimal `json:"pnl_mtd"`
	PnlYtd      decimal.Decimal `json:"pnl_ytd"`

	// Percent of portfolio
	ExpWeight decimal.Decimal `json:"exp_weight"`

	UpdatedTime string `json:"updated_time"` // ISO 8601
}

// GetPositionsOptions filters GET /positions.
type GetPositionsOptions struct {
	Limit     int
	Cursor    string
	Portfolio string
}

// errorResponse is the error body shape the API returns with 4xx/5xx.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
