// Package router turns raw feed messages into position events.
//
// Messages arrive from the connection manager as JSON envelopes:
//
//	{"type":"position_update","seq":12,"msg":{"id":"1","field":"marketValue","value":"2547900.12"}}
//	{"type":"position_insert","seq":13,"msg":{"id":"new-1","numbers":{...},"labels":{...}}}
//
// Parsed events go into a GrowableBuffer, which never blocks the producer
// and preserves arrival order for the engine.
package router
