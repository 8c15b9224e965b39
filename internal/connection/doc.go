// Package connection maintains the streaming position feed.
//
// A Client is one WebSocket session. It answers server pings, pings the
// server in turn, and ends the session when nothing arrives within the
// ping timeout. The Manager dials a Client, sends the optional portfolio
// subscribe command, annotates frames with the session id and any sequence
// gap, and redials with jittered exponential backoff when the session ends.
package connection
