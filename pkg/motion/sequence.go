package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/profile"
	"github.com/gwillem/amber/pkg/trajectory"
)

// MoveStep adds delta to the commanded position and sends it with one
// SetPosition, profiled if the group has profiled motion on. A zero delta
// completes without any request.
func (s *Session) MoveStep(ctx context.Context, g Group, delta []float64) (State, error) {
	log := s.begin("move step")

	if len(delta) != g.Size() {
		return s.end(Failed, fmt.Errorf("%w: delta has %d values for %d axes", group.ErrVectorLength, len(delta), g.Size()))
	}
	zero := true
	for i, d := range delta {
		if s.MaxStep > 0 && math.Abs(d) > s.MaxStep {
			return s.end(Failed, fmt.Errorf("%w: axis %d delta %g exceeds %g", actuator.ErrStepTooLarge, i, d, s.MaxStep))
		}
		zero = zero && d == 0
	}
	if zero {
		return s.end(Completed, nil)
	}
	if s.stopped(ctx) {
		return s.cancelled(ctx)
	}

	target, err := g.Commanded(ctx)
	if err != nil {
		return s.end(Failed, err)
	}
	for i := range target {
		target[i] += delta[i]
	}
	fb, err := g.SetPosition(ctx, target)
	if err != nil {
		return s.end(Failed, err)
	}
	s.observe(fb)
	log.WithField("target", target).Debug("stepped")
	return s.end(Completed, nil)
}

// MoveTo moves every axis to target along trapezoidal profiles stretched
// to a common duration, so all axes arrive together. After the profile it
// keeps commanding the target until every axis is within Tolerance or
// SettleTimeout passes.
func (s *Session) MoveTo(ctx context.Context, g Group, target []float64) (State, error) {
	log := s.begin("move to")

	if len(target) != g.Size() {
		return s.end(Failed, fmt.Errorf("%w: target has %d values for %d axes", group.ErrVectorLength, len(target), g.Size()))
	}
	if s.stopped(ctx) {
		return s.cancelled(ctx)
	}

	params, err := g.ProfileParameters(ctx)
	if err != nil {
		return s.end(Failed, fmt.Errorf("read profile parameters: %w", err))
	}
	start, err := g.GetCvp(ctx)
	if err != nil {
		return s.end(Failed, err)
	}

	plans := make([]profile.Trapezoid, len(target))
	for i := range target {
		plans[i], err = profile.Plan(start.Position[i], 0, target[i], 0, params.Axis(i))
		if err != nil {
			return s.end(Failed, fmt.Errorf("plan axis %d: %w", i, err))
		}
	}
	plans = profile.Synchronize(plans)
	// Axes that do not move keep a zero-length plan, so the longest one
	// sets the duration.
	duration := 0.0
	for _, p := range plans {
		duration = math.Max(duration, p.Seconds())
	}
	log.WithField("seconds", duration).Debug("planned")

	ticker := time.NewTicker(g.Cadence())
	defer ticker.Stop()

	begin := time.Now()
	setpoints := make([]float64, len(plans))
	for {
		if s.stopped(ctx) {
			return s.cancelled(ctx)
		}
		elapsed := time.Since(begin).Seconds()
		if elapsed >= duration {
			break
		}
		for i, p := range plans {
			setpoints[i], _, _ = p.At(elapsed)
		}
		fb, err := g.Step(ctx, setpoints)
		if err != nil {
			return s.end(Failed, err)
		}
		s.observe(fb)
		if !wait(ctx, ticker) {
			return s.cancelled(ctx)
		}
	}

	deadline := time.Now().Add(s.SettleTimeout)
	for {
		if s.stopped(ctx) {
			return s.cancelled(ctx)
		}
		fb, err := g.Step(ctx, target)
		if err != nil {
			return s.end(Failed, err)
		}
		s.observe(fb)
		if within(fb.Position, target, s.Tolerance) {
			log.Debug("converged")
			return s.end(Completed, nil)
		}
		if time.Now().After(deadline) {
			return s.end(Failed, fmt.Errorf("%w: at %v, want %v", ErrNotConverged, fb.Position, target))
		}
		if !wait(ctx, ticker) {
			return s.cancelled(ctx)
		}
	}
}

func within(pos, target []float64, tol float64) bool {
	for i := range target {
		if math.Abs(pos[i]-target[i]) > tol {
			return false
		}
	}
	return true
}

// RecordPoint samples feedback at the group's cadence and appends every
// sample to the trajectory at path until the stop signal is set. The file
// is created before the first sample.
func (s *Session) RecordPoint(ctx context.Context, g Group, path string) (State, error) {
	log := s.begin("record").WithField("path", path)

	w, err := trajectory.Create(path, trajectory.NewHeader(g.Size(), g.Cadence()))
	if err != nil {
		return s.end(Failed, fmt.Errorf("%w: %w", actuator.ErrWriteFile, err))
	}
	finish := func(st State, err error) (State, error) {
		if cerr := w.Close(); cerr != nil && err == nil {
			st, err = Failed, fmt.Errorf("%w: %w", actuator.ErrWriteFile, cerr)
		}
		log.WithFields(logrus.Fields{"points": w.Count(), "state": st}).Info("recording ended")
		return s.end(st, err)
	}

	ticker := time.NewTicker(g.Cadence())
	defer ticker.Stop()

	begin := time.Now()
	for {
		if ctx.Err() != nil {
			return finish(Cancelled, ctx.Err())
		}
		if s.Stop != nil && s.Stop.IsSet() {
			return finish(Completed, nil)
		}
		cvp, err := g.GetCvp(ctx)
		if err != nil {
			return finish(Failed, err)
		}
		if err := w.Append(trajectory.Point{Offset: time.Since(begin), CVP: cvp}); err != nil {
			return finish(Failed, fmt.Errorf("%w: %w", actuator.ErrWriteFile, err))
		}
		s.observe(cvp)
		if !wait(ctx, ticker) {
			return finish(Cancelled, ctx.Err())
		}
	}
}

// Replay reads the trajectory at path and sends every recorded position
// with SetPosition at the recorded cadence. count bounds the number of full
// passes; zero repeats until the stop signal is set, which then counts as
// completion. A file that cannot be read fails before any command is sent.
func (s *Session) Replay(ctx context.Context, g Group, path string, count int) (State, error) {
	log := s.begin("replay").WithField("path", path)

	if count < 0 {
		return s.end(Failed, fmt.Errorf("replay count %d is negative", count))
	}
	h, points, err := trajectory.ReadAll(path)
	if err != nil {
		return s.end(Failed, fmt.Errorf("%w: %w", actuator.ErrReadFile, err))
	}
	if len(points) == 0 {
		return s.end(Failed, fmt.Errorf("%w: %s has no samples", actuator.ErrReadFile, path))
	}
	if h.Axes != g.Size() {
		return s.end(Failed, fmt.Errorf("%w: %s was recorded with %d axes, group has %d",
			actuator.ErrReadFile, path, h.Axes, g.Size()))
	}

	if s.ApproachReplay {
		if st, err := s.MoveTo(ctx, g, points[0].CVP.Position); st != Completed {
			return s.end(st, err)
		}
		s.state.Store(int32(Running))
	}

	cadence := h.Cadence
	if cadence <= 0 {
		cadence = g.Cadence()
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	log.WithFields(logrus.Fields{"points": len(points), "count": count, "cadence": cadence}).Info("replaying")
	for pass := 0; count == 0 || pass < count; pass++ {
		for _, p := range points {
			if s.stopped(ctx) {
				if count == 0 && ctx.Err() == nil {
					return s.end(Completed, nil)
				}
				return s.cancelled(ctx)
			}
			fb, err := g.SetPosition(ctx, p.CVP.Position)
			if err != nil {
				return s.end(Failed, err)
			}
			s.observe(fb)
			if !wait(ctx, ticker) {
				return s.cancelled(ctx)
			}
		}
		log.WithField("pass", pass+1).Debug("pass done")
	}
	return s.end(Completed, nil)
}

var _ Group = (*group.Group)(nil)
