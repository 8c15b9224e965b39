// Package highlight implements the Highlight Scheduler.
//
// Per field key the state machine is:
//
//	idle   --Flash-->           active (timer started)
//	active --Flash-->           active (timer canceled and restarted, direction overwritten)
//	active --timer fires-->     idle
//	active --Cancel/Close-->    idle
//
// Insertion markers follow the same discipline per record id. Every timer
// callback carries the generation of the entry it was armed for, so a timer
// that lost a race with Stop cannot clear a newer entry.
package highlight
