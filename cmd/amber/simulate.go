package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/drivesim"
)

type SimulateCommand struct {
	Axes        int           `short:"n" long:"axes" default:"2" description:"Number of simulated drives"`
	Abbreviated []int         `long:"abbreviated" value-name:"AXIS" description:"Axis that answers with the abbreviated schema (repeatable)"`
	Calibration time.Duration `long:"calibration-time" default:"2s" description:"How long a simulated calibration takes"`
	NoManifest  bool          `long:"no-manifest" description:"Do not write the manifest"`
}

func (c *SimulateCommand) Execute(args []string) error {
	if c.Axes <= 0 {
		return fmt.Errorf("need at least one axis, got %d", c.Axes)
	}
	cfg := loadConfig()
	log := cfg.Logger()

	identities := make([]int, c.Axes)
	for _, i := range c.Abbreviated {
		if i < 0 || i >= c.Axes {
			return fmt.Errorf("abbreviated axis %d out of range", i)
		}
		identities[i] = 1
	}

	rig, err := drivesim.NewRig(c.Axes, identities,
		drivesim.WithCalibrationTime(c.Calibration),
		drivesim.WithHistory(1000),
		drivesim.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer rig.Close()

	attrs := rig.Attributes()
	if !c.NoManifest {
		if err := actuator.SaveManifest(cfg.Manifest, actuator.ManifestFromAttributes(attrs)); err != nil {
			return err
		}
	}

	codes := make([]actuator.ErrorCode, len(attrs))
	fmt.Println(headerStyle.Render("amber simulate"))
	fmt.Println(renderProbe(attrs, codes, cfg.Port))
	if !c.NoManifest {
		fmt.Println(dimStyle.Render("Manifest written to " + cfg.Manifest))
	}
	fmt.Println(dimStyle.Render("Press Ctrl+C to stop"))

	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()

	fmt.Println()
	for i, d := range rig.Drives {
		log.WithFields(logrus.Fields{"axis": i, "requests": d.Served()}).Info("Drive stopped")
	}
	return nil
}
