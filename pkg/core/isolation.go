package core

import "math"

// IsolationWindow returns the quadrupole isolation window [low, high] of
// the given width centered on the precursor m/z, rounded to 4 decimals.
func (p *MaldiTimsPrecursor) IsolationWindow(width float64) (low, high float64) {
	return RoundFloat(p.MZ-width/2, 4), RoundFloat(p.MZ+width/2, 4)
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
