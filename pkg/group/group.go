// Package group coordinates a fixed set of networked servo drives.
//
// Every group operation fans one request out to each axis, waits for all
// replies within the timeout and merges them into axis-indexed vectors. A
// silent or faulted axis fails the operation as a whole but only its own
// error record; the other axes' replies are still applied and their
// last-known feedback stays readable.
package group

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/profile"
	"github.com/gwillem/amber/pkg/transport"
	"github.com/gwillem/amber/pkg/wire"
)

// DefaultCadence is the period of sequenced motion and the default reply timeout.
const DefaultCadence = 5 * time.Millisecond

// DefaultCalibrationTimeout bounds Calibration.
const DefaultCalibrationTimeout = 60 * time.Second

var (
	// ErrVectorLength is returned when a vector argument does not have one
	// element per axis. No request is sent.
	ErrVectorLength = errors.New("vector length does not match group size")
	// ErrEmpty is returned by New for an empty attribute list.
	ErrEmpty = errors.New("group has no axes")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("group closed")
)

// TransportFactory opens the transport for one axis endpoint.
type TransportFactory func(endpoint string) (transport.Transport, error)

type options struct {
	port       int
	cadence    time.Duration
	timeout    time.Duration
	calTimeout time.Duration
	log        logrus.FieldLogger
	dial       TransportFactory
}

// Option configures a Group.
type Option func(*options)

// WithPort sets the port for attributes that do not carry their own.
func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// WithCadence sets the communication cadence.
func WithCadence(d time.Duration) Option {
	return func(o *options) { o.cadence = d }
}

// WithTimeout sets the per-axis reply timeout. Zero uses the cadence.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithCalibrationTimeout bounds how long Calibration waits for the drives.
func WithCalibrationTimeout(d time.Duration) Option {
	return func(o *options) { o.calTimeout = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithTransportFactory replaces the UDP transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(o *options) { o.dial = f }
}

// axis is the per-axis session: transport, schema and records.
type axis struct {
	index  int
	attr   actuator.Attribute
	tr     transport.Transport
	schema wire.Schema
	log    logrus.FieldLogger

	code      actuator.ErrorCode
	detail    string
	last      actuator.Sample
	commanded float64
	hasCmd    bool
}

func (a *axis) fail(err *actuator.AxisError) {
	a.code = err.Code
	a.detail = err.Error()
}

// Group is a set of axes operated together. Axis i of every vector refers
// to attributes[i] as passed to New.
type Group struct {
	opts options
	log  logrus.FieldLogger
	axes []*axis

	// cycle serialises request cycles so replies are never interleaved.
	cycle sync.Mutex

	mu       sync.RWMutex
	cadence  time.Duration
	profiled bool
	params   profile.Params
	closed   bool
}

// New builds a group from attrs, opening one transport per axis and fixing
// each axis's response schema from its identity flag. Profiled motion
// starts off.
func New(attrs []actuator.Attribute, opts ...Option) (*Group, error) {
	if len(attrs) == 0 {
		return nil, ErrEmpty
	}

	o := options{
		port:       actuator.DefaultPort,
		cadence:    DefaultCadence,
		calTimeout: DefaultCalibrationTimeout,
		dial: func(endpoint string) (transport.Transport, error) {
			return transport.DialUDP(endpoint)
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	if o.cadence <= 0 {
		o.cadence = DefaultCadence
	}

	g := &Group{
		opts:    o,
		log:     o.log,
		cadence: o.cadence,
	}

	seen := make(map[string]int, len(attrs))
	for i, attr := range attrs {
		endpoint := attr.Endpoint(o.port)
		if j, dup := seen[endpoint]; dup {
			g.Close()
			return nil, fmt.Errorf("axes %d and %d share endpoint %s", j, i, endpoint)
		}
		seen[endpoint] = i

		tr, err := o.dial(endpoint)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("open axis %d: %w", i, err)
		}
		g.axes = append(g.axes, &axis{
			index:  i,
			attr:   attr,
			tr:     tr,
			schema: wire.SchemaFor(attr.Identity),
			log:    o.log.WithFields(logrus.Fields{"axis": i, "ip": attr.IP}),
		})
	}

	g.log.WithFields(logrus.Fields{"axes": len(attrs), "cadence": o.cadence}).Debug("group ready")
	return g, nil
}

// Size returns the number of axes.
func (g *Group) Size() int {
	return len(g.axes)
}

// Info returns a copy of the axis attributes, including the latest enable state.
func (g *Group) Info() []actuator.Attribute {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]actuator.Attribute, len(g.axes))
	for i, ax := range g.axes {
		out[i] = ax.attr
	}
	return out
}

// Cadence returns the communication cadence.
func (g *Group) Cadence() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cadence
}

// SetCadence changes the communication cadence. Non-positive values are ignored.
func (g *Group) SetCadence(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cadence = d
}

func (g *Group) timeout() time.Duration {
	if g.opts.timeout > 0 {
		return g.opts.timeout
	}
	return g.Cadence()
}

// ErrorCodes returns each axis's error code. Codes persist until ClearError.
func (g *Group) ErrorCodes() []actuator.ErrorCode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]actuator.ErrorCode, len(g.axes))
	for i, ax := range g.axes {
		out[i] = ax.code
	}
	return out
}

// ErrorDetails returns a human-readable description of each axis's error,
// empty for healthy axes.
func (g *Group) ErrorDetails() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, len(g.axes))
	for i, ax := range g.axes {
		out[i] = ax.detail
	}
	return out
}

// LastFeedback returns the most recent feedback each axis answered with.
// Axes that failed keep their previous values.
func (g *Group) LastFeedback() actuator.CVP {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cvp := actuator.NewCVP(len(g.axes))
	for i, ax := range g.axes {
		cvp.Set(i, ax.last)
	}
	return cvp
}

// Close releases every transport.
func (g *Group) Close() error {
	g.cycle.Lock()
	defer g.cycle.Unlock()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	var errs []error
	for _, ax := range g.axes {
		if err := ax.tr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close axis %d: %w", ax.index, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Group) checkLen(name string, n int) error {
	if n != len(g.axes) {
		return fmt.Errorf("%w: %s has %d values for %d axes", ErrVectorLength, name, n, len(g.axes))
	}
	return nil
}

// result is one axis's outcome of a cycle.
type result struct {
	reply wire.Reply
	err   *actuator.AxisError
}

func (r result) ok() bool {
	return r.err == nil
}

// all builds the same request for every axis.
func (g *Group) all(req wire.Request) []wire.Request {
	reqs := make([]wire.Request, len(g.axes))
	for i := range reqs {
		reqs[i] = req
	}
	return reqs
}

// exchange runs one request cycle: flush every socket, send reqs[i] to axis
// i, and collect the replies in parallel. A zero request skips the axis.
// Failed axes get their error record set. When feedback is true the reply
// samples become the axes' last-known feedback.
func (g *Group) exchange(ctx context.Context, op string, reqs []wire.Request, feedback bool) ([]result, error) {
	g.cycle.Lock()
	defer g.cycle.Unlock()

	if g.isClosed() {
		return nil, ErrClosed
	}

	for _, ax := range g.axes {
		if n, err := ax.tr.Flush(); err != nil {
			ax.log.WithError(err).Debug("flush")
		} else if n > 0 {
			ax.log.WithFields(logrus.Fields{"op": op, "dropped": n}).Debug("stale replies flushed")
		}
	}

	timeout := g.timeout()
	results := make([]result, len(g.axes))
	var eg errgroup.Group
	for i, ax := range g.axes {
		if reqs[i].Method == "" {
			continue
		}
		eg.Go(func() error {
			results[i] = g.roundTrip(ctx, ax, reqs[i], timeout)
			if results[i].err != nil {
				return results[i].err
			}
			return nil
		})
	}
	_ = eg.Wait()

	var failed []error
	g.mu.Lock()
	for i, ax := range g.axes {
		if reqs[i].Method == "" {
			continue
		}
		r := results[i]
		if !r.ok() {
			ax.fail(r.err)
			failed = append(failed, r.err)
			ax.log.WithFields(logrus.Fields{"op": op, "code": r.err.Code}).Warn(r.err.Error())
			continue
		}
		if feedback {
			ax.last = r.reply.Sample
		}
	}
	g.mu.Unlock()

	if len(failed) > 0 {
		return results, fmt.Errorf("%w: %s: %w", actuator.ErrActuator, op, errors.Join(failed...))
	}
	return results, nil
}

// roundTrip sends one request and waits for the matching reply. Replies
// echoing a different target are late answers to an earlier cycle and are
// skipped.
func (g *Group) roundTrip(ctx context.Context, ax *axis, req wire.Request, timeout time.Duration) result {
	fail := func(code actuator.ErrorCode, err error) result {
		return result{err: &actuator.AxisError{Axis: ax.index, IP: ax.attr.IP, Code: code, Err: err}}
	}

	data, err := wire.Encode(req)
	if err != nil {
		return fail(actuator.ErrorUnknown, err)
	}
	if err := ax.tr.Send(ctx, data); err != nil {
		return fail(actuator.ErrorCommunication, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fail(actuator.ErrorCommunication, transport.ErrTimeout)
		}
		raw, err := ax.tr.Receive(ctx, remaining)
		if err != nil {
			return fail(actuator.ErrorCommunication, err)
		}
		reply, err := ax.schema.Decode(raw)
		if err != nil {
			return fail(actuator.ErrorUnknown, err)
		}
		if reply.Target != "" && reply.Target != req.Target {
			ax.log.WithField("target", reply.Target).Debug("skipping reply to earlier request")
			continue
		}
		if !reply.OK() {
			return result{reply: reply, err: &actuator.AxisError{
				Axis:   ax.index,
				IP:     ax.attr.IP,
				Code:   reply.Code,
				Detail: reply.Detail,
			}}
		}
		return result{reply: reply}
	}
}

// send writes reqs without waiting for replies.
func (g *Group) send(ctx context.Context, op string, reqs []wire.Request) error {
	g.cycle.Lock()
	defer g.cycle.Unlock()

	if g.isClosed() {
		return ErrClosed
	}

	var failed []error
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, ax := range g.axes {
		data, err := wire.Encode(reqs[i])
		if err == nil {
			err = ax.tr.Send(ctx, data)
		}
		if err != nil {
			ae := &actuator.AxisError{Axis: i, IP: ax.attr.IP, Code: actuator.ErrorCommunication, Err: err}
			ax.fail(ae)
			failed = append(failed, ae)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s: %w", actuator.ErrActuator, op, errors.Join(failed...))
	}
	return nil
}

func (g *Group) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

// values extracts reply values from a cycle.
func values(results []result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.reply.Value
	}
	return out
}

// feedback assembles a CVP from a cycle's replies.
func feedback(results []result) actuator.CVP {
	cvp := actuator.NewCVP(len(results))
	for i, r := range results {
		cvp.Set(i, r.reply.Sample)
	}
	return cvp
}
