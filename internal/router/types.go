package router

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Feed message types.
const (
	TypePositionUpdate = "position_update"
	TypePositionInsert = "position_insert"
	TypeSubscribed     = "subscribed"
	TypeHeartbeat      = "heartbeat"
	TypeError          = "error"
)

var (
	ErrMissingID    = errors.New("missing position id")
	ErrMissingField = errors.New("missing field name")
	ErrMissingValue = errors.New("missing value")
)

// RouterConfig configures a Router.
type RouterConfig struct {
	BufferSize int    // Initial capacity of a private event buffer
	Source     string // Stamped on every event
}

// DefaultRouterConfig returns the router defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{BufferSize: 1000, Source: "stream"}
}

// Payloads carried in the envelope's msg field. Amounts may be JSON numbers
// or decimal strings.

type updatePayload struct {
	ID    string           `json:"id"`
	Field string           `json:"field"`
	Value *decimal.Decimal `json:"value"`
}

type insertPayload struct {
	ID      string                     `json:"id"`
	Numbers map[string]decimal.Decimal `json:"numbers"`
	Labels  map[string]string          `json:"labels"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FeedError is an error message sent by the feed itself.
type FeedError struct {
	Code    string
	Message string
}

func (e *FeedError) Error() string {
	return "feed error " + e.Code + ": " + e.Message
}
