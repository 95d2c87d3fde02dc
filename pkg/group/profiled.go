package group

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/profile"
)

// TrapezoidalMove moves every axis to target along its own trapezoidal
// profile, streaming one setpoint per cadence tick. Axes are profiled
// independently and may arrive at different times. The move starts from the
// current feedback position at rest.
func (g *Group) TrapezoidalMove(ctx context.Context, target []float64) (actuator.CVP, error) {
	if err := g.checkLen("position", len(target)); err != nil {
		return actuator.CVP{}, err
	}
	params, err := g.cachedParams(ctx)
	if err != nil {
		return actuator.CVP{}, fmt.Errorf("read profile parameters: %w", err)
	}
	start, err := g.GetPosition(ctx)
	if err != nil {
		return actuator.CVP{}, err
	}

	plans := make([]profile.Trapezoid, len(target))
	longest := 0.0
	for i := range target {
		plans[i], err = profile.Plan(start[i], 0, target[i], 0, params.Axis(i))
		if err != nil {
			return actuator.CVP{}, fmt.Errorf("plan axis %d: %w", i, err)
		}
		longest = math.Max(longest, plans[i].Seconds())
	}

	g.log.WithFields(logrus.Fields{"op": "profiled move", "seconds": longest}).Debug("planned")
	return g.Stream(ctx, plans)
}

// Stream sends the setpoints of plans at the cadence until the longest plan
// ends, then commands every plan's target once more. It returns the
// feedback of the final cycle.
func (g *Group) Stream(ctx context.Context, plans []profile.Trapezoid) (actuator.CVP, error) {
	if err := g.checkLen("plans", len(plans)); err != nil {
		return actuator.CVP{}, err
	}

	longest := 0.0
	final := make([]float64, len(plans))
	for i, p := range plans {
		longest = math.Max(longest, p.Seconds())
		final[i] = p.Target
	}

	ticker := time.NewTicker(g.Cadence())
	defer ticker.Stop()

	begin := time.Now()
	setpoints := make([]float64, len(plans))
	for {
		elapsed := time.Since(begin).Seconds()
		if elapsed >= longest {
			break
		}
		for i, p := range plans {
			setpoints[i], _, _ = p.At(elapsed)
		}
		if _, err := g.Step(ctx, setpoints); err != nil {
			return actuator.CVP{}, err
		}

		select {
		case <-ctx.Done():
			return actuator.CVP{}, ctx.Err()
		case <-ticker.C:
		}
	}
	return g.Step(ctx, final)
}
