// Package drivesim runs in-process drives that speak the wire protocol over
// UDP on the loopback interface. Tests and the simulate command use it in
// place of real hardware.
package drivesim

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/wire"
)

// Default controller settings a fresh or cleared drive reports.
var defaults = map[string]float64{
	wire.TargetPositionKp:       20,
	wire.TargetVelocityKp:       0.02,
	wire.TargetVelocityKi:       0.1,
	wire.TargetVelocityLimit:    100000,
	wire.TargetCurrentLimit:     10,
	wire.TargetCurrentBandwidth: 1000,
	wire.TargetProfileAccel:     50000,
	wire.TargetProfileDecel:     50000,
	wire.TargetProfileVelocity:  20000,
}

// Option configures a Drive.
type Option func(*Drive)

// WithIdentity sets the identity flag and with it the response schema.
func WithIdentity(m int) Option {
	return func(d *Drive) { d.identity = m }
}

// WithSerial sets the serial number reported in Attribute.
func WithSerial(serial string) Option {
	return func(d *Drive) { d.serial = serial }
}

// WithCalibrationTime sets how long a calibration run takes.
func WithCalibrationTime(dt time.Duration) Option {
	return func(d *Drive) { d.calTime = dt }
}

// WithPosition sets the initial encoder position.
func WithPosition(pos float64) Option {
	return func(d *Drive) { d.sample.Position = pos }
}

// WithHistory bounds the recorded requests and setpoints to roughly the n
// most recent. Zero keeps everything.
func WithHistory(n int) Option {
	return func(d *Drive) { d.history = n }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Drive) { d.log = l }
}

// Drive is one simulated axis. Position mode follows the setpoint
// immediately; velocity mode integrates the velocity setpoint between reads.
type Drive struct {
	conn     *net.UDPConn
	identity int
	serial   string
	calTime  time.Duration
	history  int
	log      logrus.FieldLogger
	done     chan struct{}

	mu         sync.Mutex
	schema     wire.Schema
	enabled    bool
	mode       actuator.ControlMode
	sample     actuator.Sample
	updated    time.Time
	params     map[string]float64
	saved      map[string]float64
	fault      actuator.ErrorCode
	faultMsg   string
	mute       bool
	calStarted time.Time
	calibrated bool
	reboots    int
	requests   []wire.Request
	setpoints  []float64
	served     int
}

// Start listens on an ephemeral loopback port and serves until Close.
func Start(opts ...Option) (*Drive, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	d := &Drive{
		conn:    conn,
		calTime: 20 * time.Millisecond,
		done:    make(chan struct{}),
		mode:    actuator.PositionMode,
		updated: time.Now(),
		params:  copyParams(defaults),
		saved:   copyParams(defaults),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.log = l
	}
	if d.serial == "" {
		d.serial = fmt.Sprintf("SIM%05d", d.Port())
	}
	d.schema = wire.SchemaFor(d.identity)
	d.log = d.log.WithField("drive", d.Addr())

	go d.serve()
	return d, nil
}

// Addr returns the listening address.
func (d *Drive) Addr() string {
	return d.conn.LocalAddr().String()
}

// Port returns the listening port.
func (d *Drive) Port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

// Attribute describes the drive the way discovery would.
func (d *Drive) Attribute() actuator.Attribute {
	return actuator.Attribute{
		IP:              "127.0.0.1",
		Port:            d.Port(),
		MAC:             fmt.Sprintf("02:00:00:00:%02x:%02x", d.Port()>>8&0xff, d.Port()&0xff),
		Serial:          d.serial,
		FirmwareVersion: "sim",
		HardwareVersion: "sim",
		Identity:        d.identity,
	}
}

// Close stops serving and waits for the serve loop to exit.
func (d *Drive) Close() error {
	err := d.conn.Close()
	<-d.done
	return err
}

// SetMute makes the drive drop every request without replying.
func (d *Drive) SetMute(mute bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mute = mute
}

// InjectFault makes the drive answer every request with code until the
// errors are cleared.
func (d *Drive) InjectFault(code actuator.ErrorCode, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault, d.faultMsg = code, detail
}

// Sample returns the drive's current feedback.
func (d *Drive) Sample() actuator.Sample {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance(time.Now())
	return d.sample
}

// Enabled reports the enable state.
func (d *Drive) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Mode returns the active control mode.
func (d *Drive) Mode() actuator.ControlMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Param returns a controller setting by target.
func (d *Drive) Param(target string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[target]
}

// Calibrated reports whether a calibration run has finished.
func (d *Drive) Calibrated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance(time.Now())
	return d.calibrated
}

// Reboots returns how many reboot commands the drive received.
func (d *Drive) Reboots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reboots
}

// Requests returns every request received so far, oldest first.
func (d *Drive) Requests() []wire.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wire.Request(nil), d.requests...)
}

// Served returns how many requests the drive handled while not muted,
// including those no longer kept in history.
func (d *Drive) Served() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.served
}

// Count returns how many requests addressed target.
func (d *Drive) Count(target string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if r.Target == target {
			n++
		}
	}
	return n
}

// Setpoints returns every position setpoint received, in order.
func (d *Drive) Setpoints() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.setpoints...)
}

// Reset forgets recorded requests and setpoints.
func (d *Drive) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
	d.setpoints = nil
}

func (d *Drive) serve() {
	defer close(d.done)
	buf := make([]byte, 4096)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.log.WithError(err).Debug("read")
			continue
		}

		req, err := wire.DecodeRequest(buf[:n])
		if err != nil {
			d.log.WithError(err).Warn("bad request")
			continue
		}

		reply, ok := d.handle(req)
		if !ok {
			continue
		}
		data, err := d.schema.Encode(reply)
		if err != nil {
			d.log.WithError(err).Error("encode reply")
			continue
		}
		if _, err := d.conn.WriteToUDP(data, from); err != nil && !errors.Is(err, net.ErrClosed) {
			d.log.WithError(err).Debug("write")
		}
	}
}

// handle applies req and returns the reply, or false when none is sent.
func (d *Drive) handle(req wire.Request) (wire.Reply, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mute {
		return wire.Reply{}, false
	}
	d.served++
	d.requests = trim(append(d.requests, req), d.history)
	d.setpoints = trim(d.setpoints, d.history)
	now := time.Now()
	d.advance(now)

	reply := wire.Reply{Target: req.Target}
	if d.fault != actuator.ErrorNone && req.Target != wire.TargetErrorsClear {
		reply.Code, reply.Detail = d.fault, d.faultMsg
		return d.finish(reply), req.ReplyEnable
	}

	set := req.Method == wire.MethodSet
	switch req.Target {
	case wire.TargetCVP:
	case wire.TargetEnable:
		if set && req.Value != nil {
			d.enabled = *req.Value != 0
		}
	case wire.TargetSetPosition:
		if req.Position != nil {
			d.mode = actuator.PositionMode
			d.sample.Position = *req.Position
			d.sample.Velocity = 0
			d.setpoints = append(d.setpoints, *req.Position)
		}
	case wire.TargetSetVelocity:
		if req.Velocity != nil {
			d.mode = actuator.VelocityMode
			d.sample.Velocity = *req.Velocity
		}
	case wire.TargetSetCurrent:
		if req.Current != nil {
			d.mode = actuator.CurrentMode
			d.sample.Current = *req.Current
			d.sample.Velocity = 0
		}
	case wire.TargetControlMode:
		if set && req.ControlMode != nil {
			mode := actuator.ControlMode(*req.ControlMode)
			if !mode.Valid() {
				reply.Code, reply.Detail = actuator.ErrorAxis, "invalid control mode"
				break
			}
			d.mode = mode
			if mode != actuator.VelocityMode {
				d.sample.Velocity = 0
			}
		}
		reply.Value = float64(d.mode)
	case wire.TargetHome:
		d.sample.Position = 0
	case wire.TargetCalibrate:
		d.calStarted, d.calibrated = now, false
	case wire.TargetCalibrateStatus:
		if d.calibrated {
			reply.Value = 1
		}
	case wire.TargetReboot:
		d.reboots++
		d.enabled = false
		d.sample = actuator.Sample{Position: d.sample.Position}
		d.params = copyParams(d.saved)
		return reply, false
	case wire.TargetConfigSave:
		d.saved = copyParams(d.params)
	case wire.TargetConfigClear:
		d.params = copyParams(defaults)
		d.saved = copyParams(defaults)
	case wire.TargetErrorsClear:
		d.fault, d.faultMsg = actuator.ErrorNone, ""
	default:
		if _, ok := d.params[req.Target]; !ok {
			reply.Code, reply.Detail = actuator.ErrorAxis, "unknown target "+req.Target
			break
		}
		if set && req.Value != nil {
			d.params[req.Target] = *req.Value
		}
		reply.Value = d.params[req.Target]
	}
	return d.finish(reply), req.ReplyEnable
}

func (d *Drive) finish(r wire.Reply) wire.Reply {
	enabled := d.enabled
	r.Enabled = &enabled
	r.Sample = d.sample
	if r.Target == wire.TargetEnable {
		r.Value = 0
		if enabled {
			r.Value = 1
		}
	}
	return r
}

// advance integrates velocity mode and completes calibration runs.
func (d *Drive) advance(now time.Time) {
	dt := now.Sub(d.updated).Seconds()
	d.updated = now
	if d.mode == actuator.VelocityMode && d.enabled {
		d.sample.Position += d.sample.Velocity * dt
	}
	if !d.calStarted.IsZero() && now.Sub(d.calStarted) >= d.calTime {
		d.calStarted = time.Time{}
		d.calibrated = true
	}
}

func copyParams(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// trim keeps the last n entries once s holds more than twice that.
func trim[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= 2*n {
		return s
	}
	return append(s[:0], s[len(s)-n:]...)
}
