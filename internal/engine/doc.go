// Package engine applies position updates and inserts to the record store
// and keeps the transient highlight state in step with them.
//
// Each ApplyUpdate commits the value, classifies the move and, when the
// value changed, flashes the field for the configured duration. Inserts
// get an insertion marker; seeded records do not. Project composes the
// current rows with their active highlights for presentation.
//
// Update sources feed the engine through a router.GrowableBuffer drained
// by Run, so events are applied in arrival order.
package engine
