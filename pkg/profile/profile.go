// Package profile generates trapezoidal velocity profiles for single axes.
//
// A profile accelerates at the acceleration limit, cruises at the velocity
// limit and decelerates at the deceleration limit. When the displacement is
// too short to reach the velocity limit the cruise phase disappears and the
// profile becomes a triangle.
package profile

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidLimits is returned for non-positive acceleration or
	// deceleration, or a non-positive velocity limit on a real move.
	ErrInvalidLimits = errors.New("invalid profile limits")
	// ErrInfeasible is returned when the start velocity cannot be brought to
	// the terminal velocity within the displacement.
	ErrInfeasible = errors.New("profile infeasible")
)

const eps = 1e-9

// Limits bound one axis's motion.
type Limits struct {
	Accel    float64 // count/s²
	Decel    float64 // count/s²
	Velocity float64 // count/s
}

// Params holds per-axis limits for a whole group.
type Params struct {
	Accel    []float64 `json:"accel" cbor:"1,keyasint"`
	Decel    []float64 `json:"decel" cbor:"2,keyasint"`
	Velocity []float64 `json:"velocity" cbor:"3,keyasint"`
}

// NewParams returns zeroed parameters for n axes.
func NewParams(n int) Params {
	return Params{
		Accel:    make([]float64, n),
		Decel:    make([]float64, n),
		Velocity: make([]float64, n),
	}
}

// Len returns the number of axes.
func (p Params) Len() int {
	return len(p.Accel)
}

// Axis returns the limits of axis i.
func (p Params) Axis(i int) Limits {
	return Limits{Accel: p.Accel[i], Decel: p.Decel[i], Velocity: p.Velocity[i]}
}

// Validate checks that every vector has n entries and no value is negative.
func (p Params) Validate(n int) error {
	if len(p.Accel) != n || len(p.Decel) != n || len(p.Velocity) != n {
		return fmt.Errorf("profile parameters: want %d values per limit, got %d/%d/%d",
			n, len(p.Accel), len(p.Decel), len(p.Velocity))
	}
	for i := 0; i < n; i++ {
		if p.Accel[i] < 0 || p.Decel[i] < 0 || p.Velocity[i] < 0 {
			return fmt.Errorf("profile parameters: axis %d has a negative limit", i)
		}
	}
	return nil
}

// IsZero reports whether no limits are set.
func (p Params) IsZero() bool {
	return p.Len() == 0
}

// Trapezoid is a planned single-axis move. The zero value is a
// zero-duration move at position 0.
type Trapezoid struct {
	Start  float64
	Target float64

	dir    float64 // +1 or -1
	v0, ve float64 // start and end speed along dir
	vp     float64 // peak speed
	accel  float64
	decel  float64
	ta     float64 // acceleration time
	tc     float64 // cruise time
	td     float64 // deceleration time
	xa, xc float64 // distance covered by acceleration and cruise
}

// Plan computes a profile from start (moving at v0) to target, arriving at vEnd.
// Velocities are signed in position units per second.
func Plan(start, v0, target, vEnd float64, lim Limits) (Trapezoid, error) {
	if lim.Accel <= 0 || lim.Decel <= 0 {
		return Trapezoid{}, fmt.Errorf("%w: accel %g decel %g", ErrInvalidLimits, lim.Accel, lim.Decel)
	}

	p := Trapezoid{Start: start, Target: target, dir: 1, accel: lim.Accel, decel: lim.Decel}
	dist := target - start
	if math.Abs(dist) < eps {
		p.Target = start
		return p, nil
	}
	if lim.Velocity <= 0 {
		return Trapezoid{}, fmt.Errorf("%w: velocity limit %g", ErrInvalidLimits, lim.Velocity)
	}
	if dist < 0 {
		p.dir = -1
	}
	x := math.Abs(dist)
	p.v0 = v0 * p.dir
	p.ve = vEnd * p.dir

	if p.v0 < -eps || p.ve < -eps || p.v0 > lim.Velocity+eps || p.ve > lim.Velocity+eps {
		return Trapezoid{}, fmt.Errorf("%w: start %g / end %g outside [0, %g] along the move",
			ErrInfeasible, v0, vEnd, lim.Velocity)
	}
	p.v0 = math.Max(0, math.Min(p.v0, lim.Velocity))
	p.ve = math.Max(0, math.Min(p.ve, lim.Velocity))

	// Full trapezoid if accelerating to the limit and braking fits in x.
	xa := (lim.Velocity*lim.Velocity - p.v0*p.v0) / (2 * lim.Accel)
	xd := (lim.Velocity*lim.Velocity - p.ve*p.ve) / (2 * lim.Decel)
	if xa+xd <= x {
		p.vp = lim.Velocity
	} else {
		// Triangle: the peak where the acceleration and braking curves meet.
		vp2 := (2*lim.Accel*lim.Decel*x + lim.Decel*p.v0*p.v0 + lim.Accel*p.ve*p.ve) / (lim.Accel + lim.Decel)
		p.vp = math.Sqrt(vp2)
		if p.vp+eps < p.v0 || p.vp+eps < p.ve {
			return Trapezoid{}, fmt.Errorf("%w: cannot go from %g to %g within %g", ErrInfeasible, v0, vEnd, dist)
		}
		p.vp = math.Max(p.vp, math.Max(p.v0, p.ve))
	}

	p.ta = (p.vp - p.v0) / lim.Accel
	p.td = (p.vp - p.ve) / lim.Decel
	p.xa = (p.vp*p.vp - p.v0*p.v0) / (2 * lim.Accel)
	xd = (p.vp*p.vp - p.ve*p.ve) / (2 * lim.Decel)
	p.xc = math.Max(0, x-p.xa-xd)
	if p.vp > eps {
		p.tc = p.xc / p.vp
	}
	return p, nil
}

// Seconds returns the profile length in seconds.
func (p Trapezoid) Seconds() float64 {
	return p.ta + p.tc + p.td
}

// Duration returns the profile length.
func (p Trapezoid) Duration() time.Duration {
	return time.Duration(p.Seconds() * float64(time.Second))
}

// Peak returns the signed cruise velocity.
func (p Trapezoid) Peak() float64 {
	return p.vp * p.dir
}

// At samples the profile t seconds after its start and returns position,
// velocity and acceleration. Times outside the profile clamp to its ends.
func (p Trapezoid) At(t float64) (pos, vel, acc float64) {
	var x, v, a float64
	switch {
	case t <= 0:
		return p.Start, p.v0 * p.dir, 0
	case t < p.ta:
		x = p.v0*t + p.accel*t*t/2
		v = p.v0 + p.accel*t
		a = p.accel
	case t < p.ta+p.tc:
		x = p.xa + p.vp*(t-p.ta)
		v = p.vp
	case t < p.Seconds():
		tau := t - p.ta - p.tc
		x = p.xa + p.xc + p.vp*tau - p.decel*tau*tau/2
		v = p.vp - p.decel*tau
		a = -p.decel
	default:
		return p.Target, p.ve * p.dir, 0
	}
	return p.Start + p.dir*x, p.dir * v, p.dir * a
}

// Stretch returns a profile covering the same move in total seconds by
// lowering the cruise velocity. Profiles already at least that long, and
// profiles that cannot be slowed any further, are returned unchanged.
func (p Trapezoid) Stretch(total float64) Trapezoid {
	if total <= p.Seconds()+eps || p.vp <= eps {
		return p
	}

	replan := func(v float64) (Trapezoid, bool) {
		q, err := Plan(p.Start, p.v0*p.dir, p.Target, p.ve*p.dir, Limits{Accel: p.accel, Decel: p.decel, Velocity: v})
		return q, err == nil
	}

	// Duration grows as the peak drops. The peak cannot go below the
	// start or end speed, so that bounds how far the move can be slowed.
	lo, hi := math.Max(p.v0, p.ve), p.vp
	if lo > eps {
		if q, ok := replan(lo); ok && q.Seconds() <= total {
			return q
		}
	}

	best := p
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		q, ok := replan(mid)
		if !ok || q.Seconds() > total {
			lo = mid
			continue
		}
		best, hi = q, mid
	}
	return best
}

// Synchronize stretches every profile to the duration of the longest one so
// that all axes arrive together.
func Synchronize(plans []Trapezoid) []Trapezoid {
	longest := 0.0
	for _, p := range plans {
		longest = math.Max(longest, p.Seconds())
	}
	out := make([]Trapezoid, len(plans))
	for i, p := range plans {
		out[i] = p.Stretch(longest)
	}
	return out
}
