// Package writer implements the position checkpoint writer.
//
// The checkpoint writer subscribes to engine change notifications, collects
// the ids of positions that changed, and periodically upserts their current
// values into the positions table the monitor seeds from. Only the latest
// value of each position is kept. A failed batch is logged and its ids are
// retried on the next flush.
package writer
