// Package wire defines the JSON datagrams exchanged with a drive and the two
// response schemas drives answer with.
package wire

import (
	"encoding/json"
	"fmt"
)

// Methods.
const (
	MethodGet = "GET"
	MethodSet = "SET"
)

// Request targets.
const (
	TargetCVP              = "/cvp"
	TargetEnable           = "/enable"
	TargetSetPosition      = "/set_position"
	TargetSetVelocity      = "/set_velocity"
	TargetSetCurrent       = "/set_current"
	TargetControlMode      = "/control_mode"
	TargetHome             = "/home"
	TargetCalibrate        = "/calibrate"
	TargetCalibrateStatus  = "/calibrate/status"
	TargetReboot           = "/reboot"
	TargetConfigSave       = "/config/save"
	TargetConfigClear      = "/config/clear"
	TargetErrorsClear      = "/errors/clear"
	TargetPositionKp       = "/controller/position_kp"
	TargetVelocityKp       = "/controller/velocity_kp"
	TargetVelocityKi       = "/controller/velocity_ki"
	TargetVelocityLimit    = "/controller/velocity_limit"
	TargetCurrentLimit     = "/motor/current_limit"
	TargetCurrentBandwidth = "/motor/current_bandwidth"
	TargetProfileAccel     = "/profile/accel_limit"
	TargetProfileDecel     = "/profile/decel_limit"
	TargetProfileVelocity  = "/profile/velocity_limit"
)

// Request is one datagram sent to a drive.
type Request struct {
	Method      string   `json:"method"`
	Target      string   `json:"reqTarget"`
	Value       *float64 `json:"value,omitempty"`
	Position    *float64 `json:"position,omitempty"`
	Velocity    *float64 `json:"velocity,omitempty"`
	Current     *float64 `json:"current,omitempty"`
	ControlMode *int     `json:"control_mode,omitempty"`
	ReplyEnable bool     `json:"reply_enable"`
}

// Get builds a read request for target.
func Get(target string) Request {
	return Request{Method: MethodGet, Target: target, ReplyEnable: true}
}

// Set builds a write request carrying a scalar value.
func Set(target string, value float64) Request {
	return Request{Method: MethodSet, Target: target, Value: &value, ReplyEnable: true}
}

// Command builds a write request with no payload.
func Command(target string) Request {
	return Request{Method: MethodSet, Target: target, ReplyEnable: true}
}

// SetPosition builds a position setpoint.
func SetPosition(pos float64) Request {
	return Request{Method: MethodSet, Target: TargetSetPosition, Position: &pos, ReplyEnable: true}
}

// SetVelocity builds a velocity setpoint.
func SetVelocity(vel float64) Request {
	return Request{Method: MethodSet, Target: TargetSetVelocity, Velocity: &vel, ReplyEnable: true}
}

// SetCurrent builds a current setpoint.
func SetCurrent(cur float64) Request {
	return Request{Method: MethodSet, Target: TargetSetCurrent, Current: &cur, ReplyEnable: true}
}

// SetControlMode builds a mode switch.
func SetControlMode(mode int) Request {
	return Request{Method: MethodSet, Target: TargetControlMode, ControlMode: &mode, ReplyEnable: true}
}

// Encode serialises r for the wire.
func Encode(r Request) ([]byte, error) {
	if r.Method != MethodGet && r.Method != MethodSet {
		return nil, fmt.Errorf("invalid method %q", r.Method)
	}
	if r.Target == "" {
		return nil, fmt.Errorf("request has no target")
	}
	return json.Marshal(r)
}

// DecodeRequest parses a request datagram. Drives and simulators use it.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return r, nil
}
