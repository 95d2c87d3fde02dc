package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-6

// checkLimits samples p finely and verifies the motion never exceeds lim.
func checkLimits(t *testing.T, p Trapezoid, lim Limits) {
	t.Helper()
	total := p.Seconds()
	steps := 2000
	for i := 0; i <= steps; i++ {
		tt := total * float64(i) / float64(steps)
		_, v, a := p.At(tt)
		assert.LessOrEqual(t, math.Abs(v), lim.Velocity+tol, "velocity at t=%g", tt)
		assert.LessOrEqual(t, math.Abs(a), math.Max(lim.Accel, lim.Decel)+tol, "accel at t=%g", tt)
	}
}

func TestPlanFullTrapezoid(t *testing.T) {
	lim := Limits{Accel: 1000, Decel: 500, Velocity: 200}
	p, err := Plan(0, 0, 1000, 0, lim)
	require.NoError(t, err)

	// 0.2s up, 0.4s down, remaining 940 counts at 200/s.
	assert.InDelta(t, 0.2+4.7+0.4, p.Seconds(), tol)
	assert.InDelta(t, 200, p.Peak(), tol)

	pos, vel, _ := p.At(p.Seconds())
	assert.InDelta(t, 1000, pos, tol)
	assert.InDelta(t, 0, vel, tol)

	// Position is continuous across phase boundaries.
	before, _, _ := p.At(p.ta - 1e-9)
	after, _, _ := p.At(p.ta + 1e-9)
	assert.InDelta(t, before, after, 1e-3)

	checkLimits(t, p, lim)
}

func TestPlanTriangle(t *testing.T) {
	lim := Limits{Accel: 100, Decel: 100, Velocity: 1000}
	p, err := Plan(10, 0, -90, 0, lim)
	require.NoError(t, err)

	// 100 counts at 100 counts/s² peaks at sqrt(100*100) = 100 counts/s.
	assert.InDelta(t, -100, p.Peak(), tol)
	assert.InDelta(t, 2, p.Seconds(), tol)
	assert.Zero(t, p.tc)

	pos, _, _ := p.At(1)
	assert.InDelta(t, -40, pos, tol)
	pos, _, _ = p.At(5)
	assert.InDelta(t, -90, pos, tol)

	checkLimits(t, p, lim)
}

func TestPlanTerminalVelocity(t *testing.T) {
	lim := Limits{Accel: 400, Decel: 400, Velocity: 100}
	p, err := Plan(0, 20, 300, 50, lim)
	require.NoError(t, err)

	_, v0, _ := p.At(0)
	assert.InDelta(t, 20, v0, tol)
	pos, ve, _ := p.At(p.Seconds())
	assert.InDelta(t, 50, ve, tol)
	assert.InDelta(t, 300, pos, tol)

	// Just before the end the profile is still decelerating towards vEnd.
	_, vlate, _ := p.At(p.Seconds() - 1e-6)
	assert.InDelta(t, 50, vlate, 1e-2)

	checkLimits(t, p, lim)
}

func TestPlanZeroDisplacement(t *testing.T) {
	p, err := Plan(42, 0, 42, 0, Limits{Accel: 1, Decel: 1})
	require.NoError(t, err)
	assert.Zero(t, p.Seconds())
	assert.Zero(t, p.Duration())

	pos, vel, acc := p.At(3)
	assert.Equal(t, 42.0, pos)
	assert.Zero(t, vel)
	assert.Zero(t, acc)
}

func TestPlanRejectsInvalidLimits(t *testing.T) {
	tests := []struct {
		name string
		lim  Limits
	}{
		{"zero accel", Limits{Accel: 0, Decel: 1, Velocity: 1}},
		{"zero decel", Limits{Accel: 1, Decel: 0, Velocity: 1}},
		{"negative accel", Limits{Accel: -5, Decel: 1, Velocity: 1}},
		{"zero velocity", Limits{Accel: 1, Decel: 1, Velocity: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(0, 0, 10, 0, tt.lim)
			assert.ErrorIs(t, err, ErrInvalidLimits)
		})
	}
}

func TestPlanInfeasible(t *testing.T) {
	lim := Limits{Accel: 10, Decel: 10, Velocity: 100}

	// Moving backwards at the start of a forward move.
	_, err := Plan(0, -5, 100, 0, lim)
	assert.ErrorIs(t, err, ErrInfeasible)

	// Start speed above the limit.
	_, err = Plan(0, 150, 100, 0, lim)
	assert.ErrorIs(t, err, ErrInfeasible)

	// Too fast to stop in one count.
	_, err = Plan(0, 100, 1, 0, lim)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestStretch(t *testing.T) {
	lim := Limits{Accel: 1000, Decel: 1000, Velocity: 500}
	p, err := Plan(0, 0, 100, 0, lim)
	require.NoError(t, err)

	s := p.Stretch(3)
	assert.InDelta(t, 3, s.Seconds(), 1e-6)
	assert.Less(t, math.Abs(s.Peak()), math.Abs(p.Peak()))
	pos, _, _ := s.At(s.Seconds())
	assert.InDelta(t, 100, pos, tol)
	checkLimits(t, s, lim)

	// Shorter targets leave the profile alone.
	assert.Equal(t, p, p.Stretch(p.Seconds()/2))
}

func TestStretchBoundedByStartSpeed(t *testing.T) {
	lim := Limits{Accel: 100, Decel: 100, Velocity: 50}
	p, err := Plan(0, 50, 1000, 50, lim)
	require.NoError(t, err)

	// Cruising at 50 throughout; it cannot be slowed below that.
	s := p.Stretch(100)
	assert.InDelta(t, 20, s.Seconds(), tol)
}

func TestSynchronize(t *testing.T) {
	lim := Limits{Accel: 200, Decel: 200, Velocity: 100}
	var plans []Trapezoid
	for _, target := range []float64{10, -400, 150, 0} {
		p, err := Plan(0, 0, target, 0, lim)
		require.NoError(t, err)
		plans = append(plans, p)
	}

	synced := Synchronize(plans)
	require.Len(t, synced, 4)
	want := plans[1].Seconds()
	for i, p := range synced[:3] {
		assert.InDelta(t, want, p.Seconds(), 1e-6, "axis %d", i)
		checkLimits(t, p, lim)
	}
	// The stationary axis stays a zero-length plan.
	assert.Zero(t, synced[3].Seconds())
}

func TestParamsValidate(t *testing.T) {
	p := NewParams(2)
	require.NoError(t, p.Validate(2))
	assert.Error(t, p.Validate(3))

	p.Decel[1] = -1
	assert.Error(t, p.Validate(2))

	assert.True(t, Params{}.IsZero())
	p.Accel[0], p.Decel[0], p.Velocity[0] = 1, 2, 3
	assert.Equal(t, Limits{Accel: 1, Decel: 2, Velocity: 3}, p.Axis(0))
}
