package group

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/wire"
)

// Enable powers every axis. It succeeds only if every axis acknowledges.
func (g *Group) Enable(ctx context.Context) error {
	return g.setEnabled(ctx, true)
}

// Disable releases every axis.
func (g *Group) Disable(ctx context.Context) error {
	return g.setEnabled(ctx, false)
}

func (g *Group) setEnabled(ctx context.Context, on bool) error {
	v, op := 0.0, "disable"
	if on {
		v, op = 1, "enable"
	}
	results, err := g.exchange(ctx, op, g.all(wire.Set(wire.TargetEnable, v)), false)
	g.applyEnabled(results)
	return err
}

// IsEnable reports whether every axis is enabled. It returns false with an
// error when any axis does not answer.
func (g *Group) IsEnable(ctx context.Context) (bool, error) {
	results, err := g.exchange(ctx, "is enable", g.all(wire.Get(wire.TargetEnable)), false)
	g.applyEnabled(results)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if !r.reply.IsEnabled() {
			return false, nil
		}
	}
	return true, nil
}

func (g *Group) applyEnabled(results []result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, r := range results {
		if r.ok() {
			g.axes[i].attr.Enabled = r.reply.IsEnabled()
		}
	}
}

// GetCvp reads position, velocity and current from every axis.
func (g *Group) GetCvp(ctx context.Context) (actuator.CVP, error) {
	results, err := g.exchange(ctx, "get cvp", g.all(wire.Get(wire.TargetCVP)), true)
	if err != nil {
		return actuator.CVP{}, err
	}
	return feedback(results), nil
}

// GetPosition reads every axis position.
func (g *Group) GetPosition(ctx context.Context) ([]float64, error) {
	cvp, err := g.GetCvp(ctx)
	return cvp.Position, err
}

// GetVelocity reads every axis velocity.
func (g *Group) GetVelocity(ctx context.Context) ([]float64, error) {
	cvp, err := g.GetCvp(ctx)
	return cvp.Velocity, err
}

// GetCurrent reads every axis current.
func (g *Group) GetCurrent(ctx context.Context) ([]float64, error) {
	cvp, err := g.GetCvp(ctx)
	return cvp.Current, err
}

// SetPosition commands a position per axis. With profiled motion active the
// move is shaped by the profile limits, otherwise it is one immediate step.
// It returns the feedback of the last cycle.
func (g *Group) SetPosition(ctx context.Context, pos []float64) (actuator.CVP, error) {
	if g.PositionProfileActive() {
		return g.TrapezoidalMove(ctx, pos)
	}
	return g.Step(ctx, pos)
}

// Step sends one position setpoint per axis without profiling.
func (g *Group) Step(ctx context.Context, pos []float64) (actuator.CVP, error) {
	if err := g.checkLen("position", len(pos)); err != nil {
		return actuator.CVP{}, err
	}
	reqs := make([]wire.Request, len(pos))
	for i, p := range pos {
		reqs[i] = wire.SetPosition(p)
	}

	results, err := g.exchange(ctx, "set position", reqs, true)
	g.mu.Lock()
	for i, r := range results {
		if r.ok() {
			g.axes[i].commanded, g.axes[i].hasCmd = pos[i], true
		}
	}
	g.mu.Unlock()
	if err != nil {
		return actuator.CVP{}, err
	}
	return feedback(results), nil
}

// SetVelocity commands a velocity per axis.
func (g *Group) SetVelocity(ctx context.Context, vel []float64) (actuator.CVP, error) {
	if err := g.checkLen("velocity", len(vel)); err != nil {
		return actuator.CVP{}, err
	}
	reqs := make([]wire.Request, len(vel))
	for i, v := range vel {
		reqs[i] = wire.SetVelocity(v)
	}
	results, err := g.exchange(ctx, "set velocity", reqs, true)
	if err != nil {
		return actuator.CVP{}, err
	}
	return feedback(results), nil
}

// SetCurrent commands a current per axis.
func (g *Group) SetCurrent(ctx context.Context, cur []float64) (actuator.CVP, error) {
	if err := g.checkLen("current", len(cur)); err != nil {
		return actuator.CVP{}, err
	}
	reqs := make([]wire.Request, len(cur))
	for i, c := range cur {
		reqs[i] = wire.SetCurrent(c)
	}
	results, err := g.exchange(ctx, "set current", reqs, true)
	if err != nil {
		return actuator.CVP{}, err
	}
	return feedback(results), nil
}

// Commanded returns the last position commanded to each axis. Axes never
// commanded report their current position, which is read once.
func (g *Group) Commanded(ctx context.Context) ([]float64, error) {
	g.mu.RLock()
	out := make([]float64, len(g.axes))
	missing := false
	for i, ax := range g.axes {
		out[i] = ax.commanded
		missing = missing || !ax.hasCmd
	}
	g.mu.RUnlock()
	if !missing {
		return out, nil
	}

	pos, err := g.GetPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("read commanded position: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, ax := range g.axes {
		if !ax.hasCmd {
			ax.commanded, ax.hasCmd = pos[i], true
		}
		out[i] = ax.commanded
	}
	return out, nil
}

// SetControlMode switches each axis to its mode. A partial failure leaves
// the group in mixed modes; ErrorCodes shows which axes did not switch.
func (g *Group) SetControlMode(ctx context.Context, modes []actuator.ControlMode) error {
	if err := g.checkLen("control mode", len(modes)); err != nil {
		return err
	}
	reqs := make([]wire.Request, len(modes))
	for i, m := range modes {
		if !m.Valid() {
			return fmt.Errorf("axis %d: invalid control mode %d", i, int(m))
		}
		reqs[i] = wire.SetControlMode(int(m))
	}
	_, err := g.exchange(ctx, "set control mode", reqs, false)
	return err
}

// ControlModes reads the active mode of every axis.
func (g *Group) ControlModes(ctx context.Context) ([]actuator.ControlMode, error) {
	results, err := g.exchange(ctx, "get control mode", g.all(wire.Get(wire.TargetControlMode)), false)
	if err != nil {
		return nil, err
	}
	out := make([]actuator.ControlMode, len(results))
	for i, r := range results {
		out[i] = actuator.ControlMode(int(r.reply.Value))
	}
	return out, nil
}

// SetHomePosition makes every axis's current position its zero.
func (g *Group) SetHomePosition(ctx context.Context) error {
	results, err := g.exchange(ctx, "set home", g.all(wire.Command(wire.TargetHome)), false)
	g.mu.Lock()
	for i, r := range results {
		if r.ok() {
			g.axes[i].commanded, g.axes[i].hasCmd = 0, true
			g.axes[i].last.Position = 0
		}
	}
	g.mu.Unlock()
	return err
}

// SaveConfig persists controller and profile settings on every drive.
func (g *Group) SaveConfig(ctx context.Context) error {
	_, err := g.exchange(ctx, "save config", g.all(wire.Command(wire.TargetConfigSave)), false)
	return err
}

// ClearConfig restores factory controller and profile settings on every drive.
func (g *Group) ClearConfig(ctx context.Context) error {
	_, err := g.exchange(ctx, "clear config", g.all(wire.Command(wire.TargetConfigClear)), false)
	g.forgetParams()
	return err
}

// Reboot restarts every drive without waiting for replies. The group must
// be rebuilt once the drives are back.
func (g *Group) Reboot(ctx context.Context) error {
	req := wire.Command(wire.TargetReboot)
	req.ReplyEnable = false
	return g.send(ctx, "reboot", g.all(req))
}

// Calibration starts drive-side calibration and blocks until every axis
// reports completion. Axes still running after the calibration timeout get
// a communication error. Status polls that go unanswered are retried on the
// next tick and leave no error record once calibration finishes.
func (g *Group) Calibration(ctx context.Context) error {
	if _, err := g.exchange(ctx, "calibrate", g.all(wire.Command(wire.TargetCalibrate)), false); err != nil {
		return err
	}
	g.log.Info("calibration started")

	ctx, cancel := context.WithTimeout(ctx, g.opts.calTimeout)
	defer cancel()

	pending := make([]bool, len(g.axes))
	for i := range pending {
		pending[i] = true
	}
	status := wire.Get(wire.TargetCalibrateStatus)

	g.mu.RLock()
	before := make([]axisRecord, len(g.axes))
	for i, ax := range g.axes {
		before[i] = axisRecord{ax.code, ax.detail}
	}
	g.mu.RUnlock()
	missed := make([]bool, len(g.axes))
	faulted := make([]bool, len(g.axes))

	ticker := time.NewTicker(g.Cadence())
	defer ticker.Stop()
	for {
		reqs := make([]wire.Request, len(g.axes))
		left := 0
		for i, p := range pending {
			if p {
				reqs[i] = status
				left++
			}
		}
		if left == 0 {
			g.restoreRecords(before, missed, faulted)
			g.log.Info("calibration finished")
			return nil
		}

		results, _ := g.exchange(ctx, "calibration status", reqs, false)
		for i, r := range results {
			if !pending[i] {
				continue
			}
			switch {
			case r.err == nil:
				pending[i] = r.reply.Value != 1
			case r.err.Code == actuator.ErrorCommunication:
				missed[i] = true
			default:
				faulted[i] = true
			}
		}

		select {
		case <-ctx.Done():
			return g.calibrationTimedOut(ctx.Err(), pending)
		case <-ticker.C:
		}
	}
}

type axisRecord struct {
	code   actuator.ErrorCode
	detail string
}

// restoreRecords puts back the records of axes that missed status polls
// without reporting a drive error.
func (g *Group) restoreRecords(before []axisRecord, missed, faulted []bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range missed {
		if m && !faulted[i] {
			g.axes[i].code, g.axes[i].detail = before[i].code, before[i].detail
		}
	}
}

func (g *Group) calibrationTimedOut(cause error, pending []bool) error {
	var n int
	g.mu.Lock()
	for i, p := range pending {
		if !p {
			continue
		}
		n++
		g.axes[i].fail(&actuator.AxisError{
			Axis:   i,
			IP:     g.axes[i].attr.IP,
			Code:   actuator.ErrorCommunication,
			Detail: "calibration did not finish",
			Err:    cause,
		})
	}
	g.mu.Unlock()
	return fmt.Errorf("%w: calibration: %d axes did not finish: %w", actuator.ErrActuator, n, cause)
}

// ClearError asks every drive to clear its faults and then resets every
// local error record, whether or not the drives answered.
func (g *Group) ClearError(ctx context.Context) error {
	_, err := g.exchange(ctx, "clear error", g.all(wire.Command(wire.TargetErrorsClear)), false)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ax := range g.axes {
		ax.code, ax.detail = actuator.ErrorNone, ""
	}
	return err
}
