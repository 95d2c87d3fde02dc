package monitor

// Range tracks the smallest and largest position seen on one axis and maps
// positions into [-100, 100] over it.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Set bool    `json:"set"`
}

// Observe widens the range to include v.
func (r *Range) Observe(v float64) {
	if !r.Set {
		r.Min, r.Max, r.Set = v, v, true
		return
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
}

// Normalize converts a position to a value in the range [-100, 100].
func (r Range) Normalize(v float64) float64 {
	span := r.Max - r.Min
	if span == 0 {
		return 0
	}
	return ((v-r.Min)/span)*200 - 100
}

// Denormalize converts a value in [-100, 100] back to a position.
func (r Range) Denormalize(norm float64) float64 {
	return (norm+100)/200*(r.Max-r.Min) + r.Min
}
