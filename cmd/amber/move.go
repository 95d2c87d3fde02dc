package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/motion"
)

type MoveCommand struct {
	To       string `long:"to" value-name:"P0,P1,..." description:"Synchronized profiled move to absolute positions"`
	Step     string `long:"step" value-name:"D0,D1,..." description:"Move by a delta from the last commanded position"`
	Velocity string `long:"velocity" value-name:"V0,V1,..." description:"Send velocity setpoints"`
	Current  string `long:"current" value-name:"I0,I1,..." description:"Send current setpoints"`
	Profiled bool   `long:"profiled" description:"Let --step run through the profile generator"`
	Enable   bool   `short:"e" long:"enable" description:"Enable the drives first"`
}

func (c *MoveCommand) Execute(args []string) error {
	set := 0
	for _, v := range []string{c.To, c.Step, c.Velocity, c.Current} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return errors.New("give exactly one of --to, --step, --velocity or --current")
	}

	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		if c.Enable {
			if err := g.Enable(ctx); err != nil {
				return report(g, fmt.Errorf("enable drives: %w", err))
			}
		}
		if c.Profiled {
			g.ActivatePositionProfile()
		}

		var (
			fb  actuator.CVP
			err error
		)
		switch {
		case c.Velocity != "":
			fb, err = c.setpoint(ctx, g, c.Velocity, g.SetVelocity)
		case c.Current != "":
			fb, err = c.setpoint(ctx, g, c.Current, g.SetCurrent)
		default:
			fb, err = c.sequence(ctx, cfg, log, g)
		}
		if err != nil {
			return report(g, err)
		}

		fmt.Println(dimStyle.Render("position ") + formatVector(fb.Position))
		fmt.Println(dimStyle.Render("velocity ") + formatVector(fb.Velocity))
		fmt.Println(dimStyle.Render("current  ") + formatVector(fb.Current))
		return nil
	})
}

func (c *MoveCommand) setpoint(ctx context.Context, g *group.Group, arg string,
	set func(context.Context, []float64) (actuator.CVP, error)) (actuator.CVP, error) {
	v, err := parseVector(arg, g.Size())
	if err != nil {
		return actuator.CVP{}, err
	}
	return set(ctx, v)
}

func (c *MoveCommand) sequence(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) (actuator.CVP, error) {
	session := cfg.Session(log)
	var last actuator.CVP
	session.OnFeedback = func(cvp actuator.CVP) { last = cvp }

	var (
		state motion.State
		err   error
	)
	if c.To != "" {
		target, perr := parseVector(c.To, g.Size())
		if perr != nil {
			return last, perr
		}
		state, err = session.MoveTo(ctx, g, target)
	} else {
		delta, perr := parseVector(c.Step, g.Size())
		if perr != nil {
			return last, perr
		}
		state, err = session.MoveStep(ctx, g, delta)
	}
	if err != nil {
		return last, fmt.Errorf("move %s: %w", state, err)
	}
	if state != motion.Completed {
		return last, fmt.Errorf("move %s", state)
	}
	if last.Len() == 0 {
		return g.GetCvp(ctx)
	}
	return last, nil
}
