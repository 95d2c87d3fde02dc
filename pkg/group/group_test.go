package group

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/drivesim"
	"github.com/gwillem/amber/pkg/profile"
	"github.com/gwillem/amber/pkg/transport"
	"github.com/gwillem/amber/pkg/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// setup starts n simulated drives, the second one speaking the abbreviated
// schema, and a group bound to them.
func setup(t *testing.T, n int, opts ...drivesim.Option) (*Group, *drivesim.Rig) {
	t.Helper()
	rig, err := drivesim.NewRig(n, []int{0, 1}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rig.Close() })

	g, err := New(rig.Attributes(), WithTimeout(100*time.Millisecond), WithCadence(2*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g, rig
}

func TestNewRejectsBadAttributes(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	attrs := []actuator.Attribute{{IP: "127.0.0.1", Port: 4000}, {IP: "127.0.0.1", Port: 4000}}
	_, err = New(attrs)
	assert.ErrorContains(t, err, "share endpoint")
}

func TestEnable(t *testing.T) {
	g, rig := setup(t, 3)
	ctx := context.Background()

	on, err := g.IsEnable(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, g.Enable(ctx))
	on, err = g.IsEnable(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	for i, d := range rig.Drives {
		assert.True(t, d.Enabled(), "drive %d", i)
		assert.True(t, g.Info()[i].Enabled, "axis %d", i)
	}

	require.NoError(t, g.Disable(ctx))
	on, err = g.IsEnable(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestEnableFailsOnSilentAxis(t *testing.T) {
	g, rig := setup(t, 3)
	ctx := context.Background()
	rig.Drives[1].SetMute(true)

	err := g.Enable(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, actuator.ErrActuator)
	assert.Equal(t, actuator.ErrorActuator, actuator.CodeOf(err))

	// The healthy axes did switch on.
	assert.True(t, rig.Drives[0].Enabled())
	assert.True(t, rig.Drives[2].Enabled())

	on, err := g.IsEnable(ctx)
	assert.Error(t, err)
	assert.False(t, on)
}

func TestUnresponsiveAxisKeepsLastKnownGood(t *testing.T) {
	g, rig := setup(t, 3)
	ctx := context.Background()

	_, err := g.Step(ctx, []float64{10, 20, 30})
	require.NoError(t, err)
	cvp, err := g.GetCvp(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, cvp.Position)

	rig.Drives[2].SetMute(true)
	_, err = g.Step(ctx, []float64{11, 21, 31})
	require.Error(t, err)

	_, err = g.GetCvp(ctx)
	require.Error(t, err)
	assert.Equal(t, []actuator.ErrorCode{actuator.ErrorNone, actuator.ErrorNone, actuator.ErrorCommunication}, g.ErrorCodes())
	details := g.ErrorDetails()
	assert.Empty(t, details[0])
	assert.Contains(t, details[2], "communication")

	last := g.LastFeedback()
	assert.Equal(t, []float64{11, 21, 30}, last.Position)
}

func TestSetPositionConverges(t *testing.T) {
	g, _ := setup(t, 4)
	ctx := context.Background()

	target := []float64{-100, 0, 2500.5, 42}
	fb, err := g.SetPosition(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, target, fb.Position)

	pos, err := g.GetPosition(ctx)
	require.NoError(t, err)
	assert.InDeltaSlice(t, target, pos, 1e-9)

	cmd, err := g.Commanded(ctx)
	require.NoError(t, err)
	assert.Equal(t, target, cmd)
}

func TestVectorLengthSendsNothing(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	_, err := g.SetPosition(ctx, []float64{1})
	assert.ErrorIs(t, err, ErrVectorLength)
	_, err = g.SetVelocity(ctx, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrVectorLength)
	_, err = g.SetCurrent(ctx, nil)
	assert.ErrorIs(t, err, ErrVectorLength)
	assert.ErrorIs(t, g.SetControlMode(ctx, []actuator.ControlMode{actuator.CurrentMode}), ErrVectorLength)
	assert.ErrorIs(t, g.SetPositionKp(ctx, []float64{1, 2, 3}), ErrVectorLength)
	assert.ErrorIs(t, g.SetProfileParameters(ctx, profile.NewParams(3)), ErrVectorLength)

	for _, d := range rig.Drives {
		assert.Empty(t, d.Requests())
	}
}

func TestVelocityAndCurrent(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()
	require.NoError(t, g.Enable(ctx))

	fb, err := g.SetVelocity(ctx, []float64{500, -500})
	require.NoError(t, err)
	assert.Equal(t, []float64{500, -500}, fb.Velocity)
	assert.Equal(t, actuator.VelocityMode, rig.Drives[0].Mode())

	fb, err = g.SetCurrent(ctx, []float64{0.5, 1.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, fb.Current)

	cur, err := g.GetCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, cur)
	vel, err := g.GetVelocity(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, vel)
}

func TestControlMode(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	modes := []actuator.ControlMode{actuator.CurrentMode, actuator.VelocityMode}
	require.NoError(t, g.SetControlMode(ctx, modes))
	assert.Equal(t, actuator.CurrentMode, rig.Drives[0].Mode())

	got, err := g.ControlModes(ctx)
	require.NoError(t, err)
	assert.Equal(t, modes, got)

	err = g.SetControlMode(ctx, []actuator.ControlMode{actuator.PositionMode, 9})
	assert.ErrorContains(t, err, "invalid control mode")
}

func TestControllerParams(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	tests := []struct {
		name string
		set  func(context.Context, []float64) error
		get  func(context.Context) ([]float64, error)
	}{
		{"position kp", g.SetPositionKp, g.PositionKp},
		{"velocity kp", g.SetVelocityKp, g.VelocityKp},
		{"velocity ki", g.SetVelocityKi, g.VelocityKi},
		{"velocity limit", g.SetVelocityLimit, g.VelocityLimit},
		{"current limit", g.SetCurrentLimit, g.CurrentLimit},
		{"current bandwidth", g.SetCurrentBandwidth, g.CurrentBandwidth},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := []float64{float64(i) + 0.5, float64(i) + 1.5}
			require.NoError(t, tt.set(ctx, want))
			got, err := tt.get(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	require.NoError(t, g.SaveConfig(ctx))
	assert.Equal(t, 1, rig.Drives[0].Count(wire.TargetConfigSave))
	require.NoError(t, g.ClearConfig(ctx))
	kp, err := g.PositionKp(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 20}, kp)
}

func TestParamName(t *testing.T) {
	assert.Equal(t, "position kp", paramName(wire.TargetPositionKp))
	assert.Equal(t, "accel limit", paramName(wire.TargetProfileAccel))
}

func TestProfiledSetPosition(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	assert.False(t, g.PositionProfileActive())
	params := profile.Params{
		Accel:    []float64{20000, 40000},
		Decel:    []float64{20000, 40000},
		Velocity: []float64{2000, 4000},
	}
	require.NoError(t, g.SetProfileParameters(ctx, params))
	got, err := g.ProfileParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, got)

	g.ActivatePositionProfile()
	require.True(t, g.PositionProfileActive())

	fb, err := g.SetPosition(ctx, []float64{100, -100})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, -100}, fb.Position)

	for i, d := range rig.Drives {
		sp := d.Setpoints()
		require.Greater(t, len(sp), 2, "axis %d streamed only %v", i, sp)
		assert.Equal(t, fb.Position[i], sp[len(sp)-1])
		for j := 1; j < len(sp); j++ {
			if fb.Position[i] > 0 {
				assert.GreaterOrEqual(t, sp[j], sp[j-1])
			} else {
				assert.LessOrEqual(t, sp[j], sp[j-1])
			}
		}
	}

	g.DeactivatePositionProfile()
	for _, d := range rig.Drives {
		d.Reset()
	}
	_, err = g.SetPosition(ctx, []float64{0, 0})
	require.NoError(t, err)
	assert.Len(t, rig.Drives[0].Setpoints(), 1)
}

func TestProfiledMoveRejectsZeroAccel(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	require.NoError(t, g.SetProfileAccelLimit(ctx, []float64{0, 0}))
	g.ActivatePositionProfile()

	_, err := g.SetPosition(ctx, []float64{10, 10})
	assert.ErrorIs(t, err, profile.ErrInvalidLimits)
	assert.Empty(t, rig.Drives[0].Setpoints())

	assert.Error(t, g.SetProfileVelocityLimit(ctx, []float64{-1, 1}))
}

func TestSingleLimitUpdatesCache(t *testing.T) {
	g, _ := setup(t, 2)
	ctx := context.Background()

	_, err := g.ProfileParameters(ctx)
	require.NoError(t, err)
	require.NoError(t, g.SetProfileDecelLimit(ctx, []float64{7, 8}))

	p, err := g.cachedParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8}, p.Decel)

	v, err := g.ProfileDecelLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8}, v)
}

func TestCalibration(t *testing.T) {
	g, rig := setup(t, 2, drivesim.WithCalibrationTime(15*time.Millisecond))
	require.NoError(t, g.Calibration(context.Background()))
	for _, d := range rig.Drives {
		assert.True(t, d.Calibrated())
		assert.Greater(t, d.Count(wire.TargetCalibrateStatus), 1)
	}
}

func TestCalibrationTimeout(t *testing.T) {
	rig, err := drivesim.NewRig(2, nil, drivesim.WithCalibrationTime(time.Hour))
	require.NoError(t, err)
	defer rig.Close()

	g, err := New(rig.Attributes(),
		WithTimeout(50*time.Millisecond),
		WithCalibrationTimeout(30*time.Millisecond))
	require.NoError(t, err)
	defer g.Close()

	err = g.Calibration(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, actuator.ErrActuator)
	assert.Equal(t, []actuator.ErrorCode{actuator.ErrorCommunication, actuator.ErrorCommunication}, g.ErrorCodes())
}

func TestCalibrationForgetsMissedPolls(t *testing.T) {
	rig, err := drivesim.NewRig(2, nil, drivesim.WithCalibrationTime(150*time.Millisecond))
	require.NoError(t, err)
	defer rig.Close()

	g, err := New(rig.Attributes(), WithTimeout(10*time.Millisecond), WithCadence(2*time.Millisecond))
	require.NoError(t, err)
	defer g.Close()

	d := rig.Drives[0]
	done := make(chan struct{})
	go func() {
		defer close(done)
		for d.Count(wire.TargetCalibrateStatus) == 0 {
			time.Sleep(time.Millisecond)
		}
		d.SetMute(true)
		assert.Eventually(t, func() bool {
			return g.ErrorCodes()[0] == actuator.ErrorCommunication
		}, time.Second, time.Millisecond)
		d.SetMute(false)
	}()

	require.NoError(t, g.Calibration(context.Background()))
	<-done
	assert.True(t, d.Calibrated())
	assert.Equal(t, []actuator.ErrorCode{actuator.ErrorNone, actuator.ErrorNone}, g.ErrorCodes())
}

func TestReboot(t *testing.T) {
	g, rig := setup(t, 2)
	require.NoError(t, g.Reboot(context.Background()))
	for _, d := range rig.Drives {
		require.Eventually(t, func() bool { return d.Reboots() == 1 }, time.Second, 5*time.Millisecond)
	}
}

func TestHome(t *testing.T) {
	g, _ := setup(t, 2)
	ctx := context.Background()

	_, err := g.Step(ctx, []float64{300, 400})
	require.NoError(t, err)
	require.NoError(t, g.SetHomePosition(ctx))

	pos, err := g.GetPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, pos)
	cmd, err := g.Commanded(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, cmd)
}

func TestDriveFaultAndClearError(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	rig.Drives[0].InjectFault(actuator.ErrorEncoder, "index lost")
	rig.Drives[1].InjectFault(actuator.ErrorDrive, "")

	_, err := g.GetCvp(ctx)
	require.Error(t, err)
	// Axis 1 speaks the abbreviated schema and still reports its code.
	assert.Equal(t, []actuator.ErrorCode{actuator.ErrorEncoder, actuator.ErrorDrive}, g.ErrorCodes())
	assert.Contains(t, g.ErrorDetails()[0], "index lost")

	require.NoError(t, g.ClearError(ctx))
	assert.Equal(t, []actuator.ErrorCode{actuator.ErrorNone, actuator.ErrorNone}, g.ErrorCodes())
	_, err = g.GetCvp(ctx)
	require.NoError(t, err)
}

func TestErrorsPersistUntilCleared(t *testing.T) {
	g, rig := setup(t, 2)
	ctx := context.Background()

	rig.Drives[1].SetMute(true)
	_, err := g.GetCvp(ctx)
	require.Error(t, err)
	rig.Drives[1].SetMute(false)

	_, err = g.GetCvp(ctx)
	require.NoError(t, err)
	assert.Equal(t, actuator.ErrorCommunication, g.ErrorCodes()[1])

	rig.Drives[1].SetMute(true)
	assert.Error(t, g.ClearError(ctx))
	assert.Equal(t, []actuator.ErrorCode{actuator.ErrorNone, actuator.ErrorNone}, g.ErrorCodes())
}

func TestCadence(t *testing.T) {
	g, _ := setup(t, 1)
	assert.Equal(t, 2*time.Millisecond, g.Cadence())
	g.SetCadence(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, g.Cadence())
	g.SetCadence(0)
	assert.Equal(t, 10*time.Millisecond, g.Cadence())
	assert.Equal(t, 1, g.Size())
}

func TestClosed(t *testing.T) {
	g, _ := setup(t, 1)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err := g.GetCvp(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, g.Reboot(context.Background()), ErrClosed)
}

// scripted is a transport that answers from a fixed queue and records the
// order of calls.
type scripted struct {
	replies [][]byte
	events  []string
}

func (s *scripted) Send(_ context.Context, payload []byte) error {
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		return err
	}
	s.events = append(s.events, "send "+req.Target)
	return nil
}

func (s *scripted) Receive(context.Context, time.Duration) ([]byte, error) {
	if len(s.replies) == 0 {
		return nil, transport.ErrTimeout
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	s.events = append(s.events, "receive")
	return r, nil
}

func (s *scripted) Flush() (int, error) {
	s.events = append(s.events, "flush")
	return 0, nil
}

func (s *scripted) Addr() string { return "scripted" }
func (s *scripted) Close() error { return nil }

func TestFlushesThenSkipsStaleReplies(t *testing.T) {
	s := &scripted{replies: [][]byte{
		[]byte(`{"reqTarget":"/enable","status":"OK","value":1}`),
		[]byte(`{"reqTarget":"/cvp","status":"OK","position":7,"velocity":1,"current":0.1}`),
	}}
	g, err := New([]actuator.Attribute{{IP: "10.0.0.2"}},
		WithTransportFactory(func(endpoint string) (transport.Transport, error) {
			assert.Equal(t, fmt.Sprintf("10.0.0.2:%d", actuator.DefaultPort), endpoint)
			return s, nil
		}))
	require.NoError(t, err)
	defer g.Close()

	cvp, err := g.GetCvp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, actuator.Sample{Position: 7, Velocity: 1, Current: 0.1}, cvp.At(0))
	assert.Equal(t, []string{"flush", "send /cvp", "receive", "receive"}, s.events)
}

func TestUndecodableReplyIsUnknown(t *testing.T) {
	s := &scripted{replies: [][]byte{[]byte("garbage")}}
	g, err := New([]actuator.Attribute{{IP: "10.0.0.3"}},
		WithTransportFactory(func(string) (transport.Transport, error) { return s, nil }))
	require.NoError(t, err)
	defer g.Close()

	_, err = g.GetCvp(context.Background())
	require.Error(t, err)
	assert.Equal(t, actuator.ErrorUnknown, g.ErrorCodes()[0])
}
