// Package poller implements the REST position poller.
//
// The poller:
//   - Fetches GET /positions on a fixed interval, one request per portfolio
//   - Bounds concurrent fetches with an errgroup limit
//   - Reconciles each snapshot against the engine's current records
//   - Emits insert and update events with source="rest"
package poller
