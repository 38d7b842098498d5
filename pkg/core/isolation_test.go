package core

import (
	"math"
	"testing"
)

func TestIsolationWindow(t *testing.T) {
	p := newTestPrecursor(t)

	low, high := p.IsolationWindow(1.5)
	if math.Abs(low-499.25) > 1e-9 || math.Abs(high-500.75) > 1e-9 {
		t.Errorf("IsolationWindow(1.5) = [%v, %v], want [499.25, 500.75]", low, high)
	}
}

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		name      string
		val       float64
		precision int
		want      float64
	}{
		{"round to 2 decimals", 3.14159, 2, 3.14},
		{"round to 4 decimals", 3.14159, 4, 3.1416},
		{"round to 0 decimals", 3.6, 0, 4.0},
		{"round negative", -3.14159, 2, -3.14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundFloat(tt.val, tt.precision)
			if got != tt.want {
				t.Errorf("RoundFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}
