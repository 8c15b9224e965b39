package model

import "fmt"

// Direction classifies a value change.
type Direction int

const (
	Unchanged Direction = iota
	Increase
	Decrease
)

func (d Direction) String() string {
	switch d {
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	default:
		return "unchanged"
	}
}

// Tone returns the presentation vocabulary for a direction: "positive",
// "negative", or "" for unchanged.
func (d Direction) Tone() string {
	switch d {
	case Increase:
		return "positive"
	case Decrease:
		return "negative"
	default:
		return ""
	}
}

// MarshalText encodes the direction as its string form.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses "increase", "decrease" or "unchanged".
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "increase", "positive":
		*d = Increase
	case "decrease", "negative":
		*d = Decrease
	case "unchanged", "":
		*d = Unchanged
	default:
		return fmt.Errorf("unknown direction %q", string(text))
	}
	return nil
}
