// Package actuator holds the data model shared by every layer that talks to
// networked servo drives: axis attributes, control modes, feedback samples,
// error codes and the group manifest.
package actuator

import "fmt"

// DefaultPort is the UDP port every drive listens on unless overridden.
const DefaultPort = 2334

// Attribute describes one physical axis on the network.
// Its position in a group's attribute list is the axis index used by every
// vector-shaped group operation.
type Attribute struct {
	IP              string `json:"ip" yaml:"ip"`
	Port            int    `json:"port,omitempty" yaml:"port,omitempty"` // 0 means the group default
	MAC             string `json:"mac_address" yaml:"mac_address"`
	Serial          string `json:"serial_number" yaml:"serial_number"`
	FirmwareVersion string `json:"fw_version,omitempty" yaml:"fw_version,omitempty"`
	HardwareVersion string `json:"hw_version,omitempty" yaml:"hw_version,omitempty"`
	// Identity selects the response schema: 0 answers with the full schema,
	// anything else with the abbreviated one. No other meaning is assumed.
	Identity int    `json:"m" yaml:"m"`
	ID       int    `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// Label returns a short human-readable name for the axis.
func (a Attribute) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Serial != "" {
		return a.Serial
	}
	return a.IP
}

// Endpoint returns the host:port pair the axis is reached at.
func (a Attribute) Endpoint(defaultPort int) string {
	port := a.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", a.IP, port)
}

// ControlMode is the loop a drive closes.
type ControlMode int

const (
	CurrentMode  ControlMode = 1
	VelocityMode ControlMode = 2
	PositionMode ControlMode = 3
)

func (m ControlMode) String() string {
	switch m {
	case CurrentMode:
		return "current"
	case VelocityMode:
		return "velocity"
	case PositionMode:
		return "position"
	default:
		return fmt.Sprintf("ControlMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known modes.
func (m ControlMode) Valid() bool {
	return m >= CurrentMode && m <= PositionMode
}
