// Package store implements the Record Store: the authoritative, insertion-ordered
// collection of position records.
//
// Readers get deep copies; a reader never observes a half-applied update.
package store
