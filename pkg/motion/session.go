// Package motion runs cadence-driven sequences on a group: relative steps,
// synchronised moves to a target, and teach-and-replay of recorded
// trajectories. Every sequence checks a shared stop signal once per tick.
package motion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/profile"
)

// Defaults for a Session.
const (
	DefaultTolerance     = 20.0
	DefaultSettleTimeout = 2 * time.Second
)

// ErrNotConverged is returned by MoveTo when feedback does not reach the
// target within the settle timeout.
var ErrNotConverged = errors.New("position did not converge")

// Group is the part of a group the sequences drive.
type Group interface {
	Size() int
	Cadence() time.Duration
	GetCvp(ctx context.Context) (actuator.CVP, error)
	SetPosition(ctx context.Context, pos []float64) (actuator.CVP, error)
	Step(ctx context.Context, pos []float64) (actuator.CVP, error)
	Commanded(ctx context.Context) ([]float64, error)
	ProfileParameters(ctx context.Context) (profile.Params, error)
}

// State is the outcome of a sequence.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Done reports whether s is a final state.
func (s State) Done() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// StopSignal is a cooperative cancellation flag. It may be shared by
// several sessions and set from any goroutine.
type StopSignal struct {
	flag atomic.Bool
}

// Reset clears the flag.
func (s *StopSignal) Reset() {
	s.flag.Store(false)
}

// Set raises the flag.
func (s *StopSignal) Set() {
	s.flag.Store(true)
}

// IsSet reports whether the flag is raised.
func (s *StopSignal) IsSet() bool {
	return s.flag.Load()
}

// Session carries what the sequences share: the stop signal, safety
// bounds and observers.
type Session struct {
	// Stop is checked before every tick.
	Stop *StopSignal
	// MaxStep bounds each axis of a MoveStep delta. Zero disables the check.
	MaxStep float64
	// Tolerance is the per-axis distance MoveTo accepts as arrived.
	Tolerance float64
	// SettleTimeout bounds how long MoveTo keeps commanding the target
	// after the profile ends.
	SettleTimeout time.Duration
	// ApproachReplay makes Replay move to the first sample before streaming.
	ApproachReplay bool
	// OnFeedback, when set, receives the feedback of every tick.
	OnFeedback func(actuator.CVP)
	Log        logrus.FieldLogger

	state atomic.Int32
}

// NewSession returns a session with its own stop signal and default bounds.
func NewSession() *Session {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Session{
		Stop:          &StopSignal{},
		Tolerance:     DefaultTolerance,
		SettleTimeout: DefaultSettleTimeout,
		Log:           l,
	}
}

// State returns the state of the most recent sequence.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) begin(op string) logrus.FieldLogger {
	s.state.Store(int32(Running))
	return s.logger().WithField("op", op)
}

func (s *Session) end(st State, err error) (State, error) {
	s.state.Store(int32(st))
	return st, err
}

func (s *Session) logger() logrus.FieldLogger {
	if s.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.Log = l
	}
	return s.Log
}

func (s *Session) stopped(ctx context.Context) bool {
	return (s.Stop != nil && s.Stop.IsSet()) || ctx.Err() != nil
}

// cancelled returns the final state for a sequence interrupted by the stop
// signal or by ctx.
func (s *Session) cancelled(ctx context.Context) (State, error) {
	return s.end(Cancelled, ctx.Err())
}

func (s *Session) observe(cvp actuator.CVP) {
	if s.OnFeedback != nil && cvp.Len() > 0 {
		s.OnFeedback(cvp)
	}
}

// wait blocks until the next tick or until ctx ends.
func wait(ctx context.Context, t *time.Ticker) bool {
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
