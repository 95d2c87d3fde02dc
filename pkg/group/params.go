package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/gwillem/amber/pkg/profile"
	"github.com/gwillem/amber/pkg/wire"
)

// Controller and limit settings are plain per-axis scalars. Drives reject
// out-of-range values with a drive error; nothing beyond the vector length
// is checked here. A failed write may leave some axes updated.

func (g *Group) getParam(ctx context.Context, target string) ([]float64, error) {
	results, err := g.exchange(ctx, "get "+paramName(target), g.all(wire.Get(target)), false)
	if err != nil {
		return nil, err
	}
	return values(results), nil
}

func (g *Group) setParam(ctx context.Context, target string, v []float64) error {
	name := paramName(target)
	if err := g.checkLen(name, len(v)); err != nil {
		return err
	}
	reqs := make([]wire.Request, len(v))
	for i, x := range v {
		reqs[i] = wire.Set(target, x)
	}
	_, err := g.exchange(ctx, "set "+name, reqs, false)
	return err
}

// paramName turns "/controller/position_kp" into "position kp".
func paramName(target string) string {
	name := target[strings.LastIndex(target, "/")+1:]
	return strings.ReplaceAll(name, "_", " ")
}

// PositionKp reads the position loop gain.
func (g *Group) PositionKp(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetPositionKp)
}

// SetPositionKp writes the position loop gain.
func (g *Group) SetPositionKp(ctx context.Context, v []float64) error {
	return g.setParam(ctx, wire.TargetPositionKp, v)
}

// VelocityKp reads the velocity loop proportional gain.
func (g *Group) VelocityKp(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetVelocityKp)
}

// SetVelocityKp writes the velocity loop proportional gain.
func (g *Group) SetVelocityKp(ctx context.Context, v []float64) error {
	return g.setParam(ctx, wire.TargetVelocityKp, v)
}

// VelocityKi reads the velocity loop integral gain.
func (g *Group) VelocityKi(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetVelocityKi)
}

// SetVelocityKi writes the velocity loop integral gain.
func (g *Group) SetVelocityKi(ctx context.Context, v []float64) error {
	return g.setParam(ctx, wire.TargetVelocityKi, v)
}

// VelocityLimit reads the controller velocity limit.
func (g *Group) VelocityLimit(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetVelocityLimit)
}

// SetVelocityLimit writes the controller velocity limit.
func (g *Group) SetVelocityLimit(ctx context.Context, v []float64) error {
	return g.setParam(ctx, wire.TargetVelocityLimit, v)
}

// CurrentLimit reads the motor current limit.
func (g *Group) CurrentLimit(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetCurrentLimit)
}

// SetCurrentLimit writes the motor current limit.
func (g *Group) SetCurrentLimit(ctx context.Context, v []float64) error {
	return g.setParam(ctx, wire.TargetCurrentLimit, v)
}

// CurrentBandwidth reads the current loop bandwidth.
func (g *Group) CurrentBandwidth(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetCurrentBandwidth)
}

// SetCurrentBandwidth writes the current loop bandwidth.
func (g *Group) SetCurrentBandwidth(ctx context.Context, v []float64) error {
	return g.setParam(ctx, wire.TargetCurrentBandwidth, v)
}

// ActivatePositionProfile routes SetPosition through the profile generator.
func (g *Group) ActivatePositionProfile() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiled = true
}

// DeactivatePositionProfile makes SetPosition step immediately again.
func (g *Group) DeactivatePositionProfile() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiled = false
}

// PositionProfileActive reports whether profiled motion is on.
func (g *Group) PositionProfileActive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.profiled
}

// ProfileParameters reads the profile limits from every drive and caches
// them for profiled moves.
func (g *Group) ProfileParameters(ctx context.Context) (profile.Params, error) {
	p := profile.NewParams(g.Size())
	var err error
	if p.Accel, err = g.getParam(ctx, wire.TargetProfileAccel); err != nil {
		return profile.Params{}, err
	}
	if p.Decel, err = g.getParam(ctx, wire.TargetProfileDecel); err != nil {
		return profile.Params{}, err
	}
	if p.Velocity, err = g.getParam(ctx, wire.TargetProfileVelocity); err != nil {
		return profile.Params{}, err
	}
	g.cacheParams(p)
	return p, nil
}

// SetProfileParameters writes all three profile limits.
func (g *Group) SetProfileParameters(ctx context.Context, p profile.Params) error {
	for name, v := range map[string][]float64{"accel limit": p.Accel, "decel limit": p.Decel, "velocity limit": p.Velocity} {
		if err := g.checkLen(name, len(v)); err != nil {
			return err
		}
	}
	if err := p.Validate(g.Size()); err != nil {
		return err
	}
	if err := g.setParam(ctx, wire.TargetProfileAccel, p.Accel); err != nil {
		return err
	}
	if err := g.setParam(ctx, wire.TargetProfileDecel, p.Decel); err != nil {
		return err
	}
	if err := g.setParam(ctx, wire.TargetProfileVelocity, p.Velocity); err != nil {
		return err
	}
	g.cacheParams(profile.Params{
		Accel:    append([]float64(nil), p.Accel...),
		Decel:    append([]float64(nil), p.Decel...),
		Velocity: append([]float64(nil), p.Velocity...),
	})
	return nil
}

// ProfileAccelLimit reads the profile acceleration limit.
func (g *Group) ProfileAccelLimit(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetProfileAccel)
}

// ProfileDecelLimit reads the profile deceleration limit.
func (g *Group) ProfileDecelLimit(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetProfileDecel)
}

// ProfileVelocityLimit reads the profile velocity limit.
func (g *Group) ProfileVelocityLimit(ctx context.Context) ([]float64, error) {
	return g.getParam(ctx, wire.TargetProfileVelocity)
}

// SetProfileAccelLimit writes the profile acceleration limit.
func (g *Group) SetProfileAccelLimit(ctx context.Context, v []float64) error {
	return g.setLimit(ctx, wire.TargetProfileAccel, v)
}

// SetProfileDecelLimit writes the profile deceleration limit.
func (g *Group) SetProfileDecelLimit(ctx context.Context, v []float64) error {
	return g.setLimit(ctx, wire.TargetProfileDecel, v)
}

// SetProfileVelocityLimit writes the profile velocity limit.
func (g *Group) SetProfileVelocityLimit(ctx context.Context, v []float64) error {
	return g.setLimit(ctx, wire.TargetProfileVelocity, v)
}

func (g *Group) setLimit(ctx context.Context, target string, v []float64) error {
	for i, x := range v {
		if x < 0 {
			return fmt.Errorf("axis %d: negative %s %g", i, paramName(target), x)
		}
	}
	if err := g.setParam(ctx, target, v); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.params.IsZero() {
		// The other limits are read on the next profiled move.
		return nil
	}
	cp := append([]float64(nil), v...)
	switch target {
	case wire.TargetProfileAccel:
		g.params.Accel = cp
	case wire.TargetProfileDecel:
		g.params.Decel = cp
	case wire.TargetProfileVelocity:
		g.params.Velocity = cp
	}
	return nil
}

func (g *Group) cacheParams(p profile.Params) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.params = p
}

func (g *Group) forgetParams() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.params = profile.Params{}
}

// cachedParams returns the cached limits, reading them from the drives the
// first time.
func (g *Group) cachedParams(ctx context.Context) (profile.Params, error) {
	g.mu.RLock()
	p := g.params
	g.mu.RUnlock()
	if !p.IsZero() {
		return p, nil
	}
	return g.ProfileParameters(ctx)
}
