package actuator

// Sample is one axis's instantaneous feedback.
type Sample struct {
	Position float64 `json:"position" cbor:"1,keyasint"` // count
	Velocity float64 `json:"velocity" cbor:"2,keyasint"` // count/s
	Current  float64 `json:"current" cbor:"3,keyasint"`  // A
}

// CVP is a group-level feedback reading: three parallel vectors indexed by axis.
type CVP struct {
	Position []float64 `json:"position" cbor:"1,keyasint"`
	Velocity []float64 `json:"velocity" cbor:"2,keyasint"`
	Current  []float64 `json:"current" cbor:"3,keyasint"`
}

// NewCVP returns a zeroed reading for n axes.
func NewCVP(n int) CVP {
	return CVP{
		Position: make([]float64, n),
		Velocity: make([]float64, n),
		Current:  make([]float64, n),
	}
}

// Len returns the number of axes in the reading.
func (c CVP) Len() int {
	return len(c.Position)
}

// Set stores one axis's sample.
func (c CVP) Set(i int, s Sample) {
	c.Position[i] = s.Position
	c.Velocity[i] = s.Velocity
	c.Current[i] = s.Current
}

// At returns one axis's sample.
func (c CVP) At(i int) Sample {
	return Sample{Position: c.Position[i], Velocity: c.Velocity[i], Current: c.Current[i]}
}

// Samples converts the reading into a per-axis list.
func (c CVP) Samples() []Sample {
	out := make([]Sample, c.Len())
	for i := range out {
		out[i] = c.At(i)
	}
	return out
}

// Clone returns a deep copy.
func (c CVP) Clone() CVP {
	return CVP{
		Position: append([]float64(nil), c.Position...),
		Velocity: append([]float64(nil), c.Velocity...),
		Current:  append([]float64(nil), c.Current...),
	}
}
