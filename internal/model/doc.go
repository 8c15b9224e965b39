// Package model defines shared data types used across the position monitor.
//
// Conventions:
//   - Records are keyed by a stable string id
//   - Numeric values are finite float64; descriptive values are strings
//   - Transient display state (highlights, insertion markers) never lives on Record
package model
