// Package amber controls a group of networked servo actuators as one
// vector-valued device.
//
// Every drive answers JSON requests over UDP. A group fans each request out
// to all axes within one communication tick, records per-axis errors and
// keeps the last good feedback of every axis.
//
// # Installation
//
//	go install github.com/gwillem/amber/cmd/amber@latest
//
// # Usage
//
// Enter the axes of a group once, or start simulated drives:
//
//	amber setup
//	amber simulate --axes 3
//
// Then inspect and move the group:
//
//	amber info
//	amber move --enable --to 1000,2000,0
//	amber teach
//	amber replay --count 3
//
// # Packages
//
//   - cmd/amber: CLI for setup, monitoring, motion and drive configuration
//   - pkg/actuator: axis attributes, feedback vectors, error codes and manifests
//   - pkg/wire: request builders and the two response schemas
//   - pkg/transport: datagram transport with receive timeouts
//   - pkg/group: the actuator group
//   - pkg/profile: trapezoidal velocity profiles
//   - pkg/motion: step, profiled move, record and replay sequences
//   - pkg/trajectory: recorded trajectory files
//   - pkg/monitor: feedback polling for live display
//   - pkg/config: environment configuration and logging
//   - pkg/drivesim: simulated drives for tests and demos
package amber
