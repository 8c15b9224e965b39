// Package diff classifies value changes for highlighting.
package diff

import (
	"fmt"
	"math"

	"github.com/rickgao/position-monitor/internal/model"
)

// Change describes one field transition.
type Change struct {
	Previous  float64
	Current   float64
	Direction model.Direction
}

// Qualifies reports whether the change should be highlighted.
func (c Change) Qualifies() bool {
	return c.Direction != model.Unchanged
}

// Classify returns the direction of a move from old to new.
func Classify(old, new float64) model.Direction {
	switch {
	case new > old:
		return model.Increase
	case new < old:
		return model.Decrease
	default:
		return model.Unchanged
	}
}

// Validate rejects NaN and infinite values.
func Validate(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v is not finite", model.ErrInvalidValue, v)
	}
	return nil
}

// Compute validates both values and classifies the move.
func Compute(old, new float64) (Change, error) {
	if err := Validate(old); err != nil {
		return Change{}, err
	}
	if err := Validate(new); err != nil {
		return Change{}, err
	}
	return Change{
		Previous:  old,
		Current:   new,
		Direction: Classify(old, new),
	}, nil
}
