package diff

import (
	"errors"
	"math"
	"testing"

	"github.com/rickgao/position-monitor/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		old, new float64
		want     model.Direction
	}{
		{"increase", 100, 105, model.Increase},
		{"decrease", 100, 95, model.Decrease},
		{"equal", 100, 100, model.Unchanged},
		{"negative to less negative", -8432.55, -8000, model.Increase},
		{"crosses zero", 12.5, -0.01, model.Decrease},
		{"signed zero", 0, math.Copysign(0, -1), model.Unchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.old, tt.new); got != tt.want {
				t.Errorf("Classify(%v, %v) = %v, want %v", tt.old, tt.new, got, tt.want)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	c, err := Compute(100, 105)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if c.Previous != 100 || c.Current != 105 {
		t.Errorf("change = %+v, want 100 -> 105", c)
	}
	if c.Direction != model.Increase {
		t.Errorf("Direction = %v, want increase", c.Direction)
	}
	if !c.Qualifies() {
		t.Error("Qualifies() = false, want true")
	}

	c, _ = Compute(5, 5)
	if c.Qualifies() {
		t.Error("unchanged move should not qualify")
	}
}

func TestCompute_NonFinite(t *testing.T) {
	inputs := [][2]float64{
		{100, math.NaN()},
		{100, math.Inf(1)},
		{100, math.Inf(-1)},
		{math.NaN(), 100},
	}

	for _, in := range inputs {
		_, err := Compute(in[0], in[1])
		if !errors.Is(err, model.ErrInvalidValue) {
			t.Errorf("Compute(%v, %v) err = %v, want ErrInvalidValue", in[0], in[1], err)
		}
	}
}
