package model

import "errors"

// Write path errors. Callers match with errors.Is; returned errors wrap these
// with the offending id, field or value.
var (
	ErrUnknownRecord = errors.New("unknown record")
	ErrInvalidField  = errors.New("invalid field")
	ErrDuplicateID   = errors.New("duplicate record id")
	ErrInvalidValue  = errors.New("invalid value")
)
