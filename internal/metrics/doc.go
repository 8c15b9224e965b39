// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Update and insert throughput, with rejections by error class
//   - Highlight and insertion-marker expiries
//   - Active highlight, marker and record counts
//   - Dropped change notifications
package metrics
