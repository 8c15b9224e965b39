// Package clock provides the timer abstraction used for highlight expiry.
//
// Real delegates to the runtime. Virtual only moves when Advance is called,
// which makes expiry races reproducible in tests.
package clock
