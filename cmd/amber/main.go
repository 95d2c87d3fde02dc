package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Env string `long:"env" description:"Load settings from this .env file instead of ./.env"`

	Setup     SetupCommand     `command:"setup" description:"Enter the axes of a group and save them to the manifest"`
	Info      InfoCommand      `command:"info" description:"Show axis attributes, feedback and error codes"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Run encoder calibration on every axis"`
	Monitor   MonitorCommand   `command:"monitor" alias:"mon" description:"Chart live feedback"`
	Move      MoveCommand      `command:"move" description:"Move the group to a position or by a delta"`
	Teach     TeachCommand     `command:"teach" description:"Record a trajectory while the axes are moved by hand"`
	Replay    ReplayCommand    `command:"replay" description:"Play back a recorded trajectory"`
	Gains     GainsCommand     `command:"gains" description:"Read or write controller gains and profile limits"`
	Mode      ModeCommand      `command:"mode" description:"Read or set the control mode"`
	Enable    EnableCommand    `command:"enable" description:"Enable every drive"`
	Disable   DisableCommand   `command:"disable" description:"Disable every drive"`
	Home      HomeCommand      `command:"home" description:"Make the current position zero on every axis"`
	Clear     ClearCommand     `command:"clear" description:"Clear drive faults and recorded errors"`
	Reboot    RebootCommand    `command:"reboot" description:"Reboot every drive"`
	Simulate  SimulateCommand  `command:"simulate" alias:"sim" description:"Run simulated drives and write a manifest for them"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "amber - control a group of networked servo actuators"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
