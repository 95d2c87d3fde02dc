package actuator

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure. Values below 0x100 are per-axis codes,
// values from 0x100 up are group-level codes.
type ErrorCode int

// Per-axis codes.
const (
	ErrorNone          ErrorCode = 0x000
	ErrorCommunication ErrorCode = 0x001
	ErrorAxis          ErrorCode = 0x002
	ErrorEncoder       ErrorCode = 0x003
	ErrorDrive         ErrorCode = 0x004
	ErrorUnknown       ErrorCode = 0x005
)

// Group-level codes.
const (
	ErrorActuator  ErrorCode = 0x100
	ErrorWriteFile ErrorCode = 0x101
	ErrorReadFile  ErrorCode = 0x102
	ErrorStep      ErrorCode = 0x103
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "none"
	case ErrorCommunication:
		return "communication"
	case ErrorAxis:
		return "axis"
	case ErrorEncoder:
		return "encoder"
	case ErrorDrive:
		return "drive"
	case ErrorUnknown:
		return "unknown"
	case ErrorActuator:
		return "actuator"
	case ErrorWriteFile:
		return "file write"
	case ErrorReadFile:
		return "file read"
	case ErrorStep:
		return "step too large"
	default:
		return fmt.Sprintf("ErrorCode(%#x)", int(c))
	}
}

// GroupError is a group-level failure with a stable code.
type GroupError struct {
	Code ErrorCode
	msg  string
}

func (e *GroupError) Error() string {
	return e.msg
}

// Group-level sentinels. Match them with errors.Is.
var (
	ErrActuator     = &GroupError{Code: ErrorActuator, msg: "actuator error"}
	ErrWriteFile    = &GroupError{Code: ErrorWriteFile, msg: "trajectory write error"}
	ErrReadFile     = &GroupError{Code: ErrorReadFile, msg: "trajectory read error"}
	ErrStepTooLarge = &GroupError{Code: ErrorStep, msg: "step too large"}
)

// AxisError describes why one axis failed a request cycle.
type AxisError struct {
	Axis   int
	IP     string
	Code   ErrorCode
	Detail string
	Err    error
}

func (e *AxisError) Error() string {
	msg := fmt.Sprintf("axis %d (%s): %s error", e.Axis, e.IP, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AxisError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or ErrorNone for nil.
// Errors that carry no code map to ErrorUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}
	var ge *GroupError
	if errors.As(err, &ge) {
		return ge.Code
	}
	var ae *AxisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrorUnknown
}
