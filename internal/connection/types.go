package connection

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale: no frames within ping timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Frame is one data frame read off the socket.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time // Stamped as soon as the read returns
}

// RawMessage is a frame annotated by the Manager for the router.
type RawMessage struct {
	Data       []byte
	ConnID     string // Session id, new on every (re)connect
	ReceivedAt time.Time
	SeqGap     bool // A sequence gap preceded this message
	GapSize    int  // Messages missed, 0 without a gap
}

// Command is a request sent to the feed server.
type Command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params"`
}

// SubscribeParams narrows the stream to some portfolios. Empty means all.
type SubscribeParams struct {
	Portfolios []string `json:"portfolios,omitempty"`
}

// DataMessage is the envelope shared by every feed message. Type is one of
// position_update, position_insert, subscribed, heartbeat or error.
type DataMessage struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Msg  json.RawMessage `json:"msg"`
}

// ClientConfig configures one WebSocket session.
type ClientConfig struct {
	URL              string
	APIKey           string // Bearer token, omitted when empty
	HandshakeTimeout time.Duration
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Silence longer than this ends the session
	WriteTimeout     time.Duration
	BufferSize       int // Frames held before new ones are dropped
}

// DefaultClientConfig returns the client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	Client            ClientConfig
	Portfolios        []string // Subscribe filter, empty streams everything
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	MessageBufferSize int
}

// DefaultManagerConfig returns the manager defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:            DefaultClientConfig(),
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  time.Minute,
		MessageBufferSize: 10000,
	}
}
