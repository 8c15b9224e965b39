// Package server exposes the monitor over HTTP.
//
// Endpoints:
//   - /health: component status and build version
//   - /positions: the current projection as JSON
//   - /positions/{id}: one projected row
//   - /changes: WebSocket stream of engine change notifications
//   - metrics path: Prometheus exposition
package server
