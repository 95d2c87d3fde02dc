package wire

import (
	"encoding/json"
	"fmt"

	"github.com/gwillem/amber/pkg/actuator"
)

// Status strings.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Reply is a drive response normalised across both schemas.
type Reply struct {
	Target  string // empty for abbreviated replies
	Code    actuator.ErrorCode
	Detail  string
	Sample  actuator.Sample
	Value   float64
	Enabled *bool // nil when the schema does not carry it
}

// OK reports whether the drive accepted the request.
func (r Reply) OK() bool {
	return r.Code == actuator.ErrorNone
}

// IsEnabled reports the drive's enable state. Schemas without an explicit
// flag encode it in Value.
func (r Reply) IsEnabled() bool {
	if r.Enabled != nil {
		return *r.Enabled
	}
	return r.Value != 0
}

// Schema is one of the two response layouts. Which one an axis speaks is
// fixed by its identity flag and chosen once when the group is built.
type Schema interface {
	Name() string
	Decode(data []byte) (Reply, error)
	Encode(r Reply) ([]byte, error)
}

// SchemaFor returns the schema for an identity flag.
func SchemaFor(identity int) Schema {
	if identity == 0 {
		return Full{}
	}
	return Abbreviated{}
}

// FullError is the fault block of a full response. Non-zero fields flag a fault.
type FullError struct {
	Axis    int    `json:"axis"`
	Encoder int    `json:"encoder"`
	Drive   int    `json:"drive"`
	Detail  string `json:"detail,omitempty"`
}

// FullResponse is the schema of identity-0 axes.
type FullResponse struct {
	Target   string     `json:"reqTarget"`
	Status   string     `json:"status"`
	Position float64    `json:"position"`
	Velocity float64    `json:"velocity"`
	Current  float64    `json:"current"`
	Value    float64    `json:"value"`
	Enabled  bool       `json:"enabled"`
	Error    *FullError `json:"error,omitempty"`
}

// Full decodes FullResponse datagrams.
type Full struct{}

func (Full) Name() string { return "full" }

func (Full) Decode(data []byte) (Reply, error) {
	var resp FullResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode full response: %w", err)
	}

	enabled := resp.Enabled
	r := Reply{
		Target:  resp.Target,
		Sample:  actuator.Sample{Position: resp.Position, Velocity: resp.Velocity, Current: resp.Current},
		Value:   resp.Value,
		Enabled: &enabled,
	}

	switch {
	case resp.Status == StatusOK && resp.Error == nil:
		r.Code = actuator.ErrorNone
	case resp.Error == nil:
		r.Code = actuator.ErrorUnknown
	case resp.Error.Axis != 0:
		r.Code = actuator.ErrorAxis
	case resp.Error.Encoder != 0:
		r.Code = actuator.ErrorEncoder
	case resp.Error.Drive != 0:
		r.Code = actuator.ErrorDrive
	case resp.Status == StatusOK:
		r.Code = actuator.ErrorNone
	default:
		r.Code = actuator.ErrorUnknown
	}
	if resp.Error != nil {
		r.Detail = resp.Error.Detail
	}
	return r, nil
}

func (Full) Encode(r Reply) ([]byte, error) {
	resp := FullResponse{
		Target:   r.Target,
		Status:   StatusOK,
		Position: r.Sample.Position,
		Velocity: r.Sample.Velocity,
		Current:  r.Sample.Current,
		Value:    r.Value,
		Enabled:  r.IsEnabled(),
	}
	if !r.OK() {
		resp.Status = StatusError
		resp.Error = &FullError{Detail: r.Detail}
		switch r.Code {
		case actuator.ErrorAxis:
			resp.Error.Axis = 1
		case actuator.ErrorEncoder:
			resp.Error.Encoder = 1
		case actuator.ErrorDrive:
			resp.Error.Drive = 1
		}
	}
	return json.Marshal(resp)
}

// AbbreviatedResponse is the schema of axes with a non-zero identity flag.
// It carries no target echo, enable flag or fault detail.
type AbbreviatedResponse struct {
	Status   string  `json:"status"`
	Code     int     `json:"code"`
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
	Current  float64 `json:"current"`
	Value    float64 `json:"value"`
}

// Abbreviated decodes AbbreviatedResponse datagrams.
type Abbreviated struct{}

func (Abbreviated) Name() string { return "abbreviated" }

func (Abbreviated) Decode(data []byte) (Reply, error) {
	var resp AbbreviatedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Reply{}, fmt.Errorf("decode abbreviated response: %w", err)
	}

	r := Reply{
		Sample: actuator.Sample{Position: resp.Position, Velocity: resp.Velocity, Current: resp.Current},
		Value:  resp.Value,
	}
	switch code := actuator.ErrorCode(resp.Code); {
	case resp.Status == StatusOK && code == actuator.ErrorNone:
		r.Code = actuator.ErrorNone
	case code == actuator.ErrorAxis, code == actuator.ErrorEncoder, code == actuator.ErrorDrive:
		r.Code = code
	default:
		r.Code = actuator.ErrorUnknown
	}
	return r, nil
}

func (Abbreviated) Encode(r Reply) ([]byte, error) {
	resp := AbbreviatedResponse{
		Status:   StatusOK,
		Code:     int(r.Code),
		Position: r.Sample.Position,
		Velocity: r.Sample.Velocity,
		Current:  r.Sample.Current,
		Value:    r.Value,
	}
	if !r.OK() {
		resp.Status = StatusError
	}
	return json.Marshal(resp)
}
