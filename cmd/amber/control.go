package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
)

type EnableCommand struct{}

func (c *EnableCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, _ *config.Config, _ *logrus.Logger, g *group.Group) error {
		if err := g.Enable(ctx); err != nil {
			return report(g, fmt.Errorf("enable: %w", err))
		}
		fmt.Println(successStyle.Render("Drives enabled"))
		return nil
	})
}

type DisableCommand struct{}

func (c *DisableCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, _ *config.Config, _ *logrus.Logger, g *group.Group) error {
		if err := g.Disable(ctx); err != nil {
			return report(g, fmt.Errorf("disable: %w", err))
		}
		fmt.Println(successStyle.Render("Drives disabled"))
		return nil
	})
}

type HomeCommand struct {
	Save bool `long:"save" description:"Persist the new zero in the drive configuration"`
}

func (c *HomeCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, _ *config.Config, _ *logrus.Logger, g *group.Group) error {
		if err := g.SetHomePosition(ctx); err != nil {
			return report(g, fmt.Errorf("set home: %w", err))
		}
		if c.Save {
			if err := g.SaveConfig(ctx); err != nil {
				return report(g, fmt.Errorf("save config: %w", err))
			}
		}
		fmt.Println(successStyle.Render("Current position is now zero"))
		return nil
	})
}

type ClearCommand struct{}

func (c *ClearCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, _ *config.Config, _ *logrus.Logger, g *group.Group) error {
		err := g.ClearError(ctx)
		if err != nil {
			return report(g, fmt.Errorf("clear errors: %w", err))
		}
		fmt.Println(successStyle.Render("Errors cleared"))
		return nil
	})
}

type RebootCommand struct{}

func (c *RebootCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, _ *config.Config, _ *logrus.Logger, g *group.Group) error {
		if err := g.Reboot(ctx); err != nil {
			return fmt.Errorf("reboot: %w", err)
		}
		fmt.Println(successStyle.Render("Reboot sent"))
		return nil
	})
}

type ModeCommand struct {
	Args struct {
		Modes string `positional-arg-name:"mode" description:"current, velocity or position; comma separated per axis or one for all"`
	} `positional-args:"yes"`
}

func parseMode(s string) (actuator.ControlMode, error) {
	for _, m := range []actuator.ControlMode{actuator.CurrentMode, actuator.VelocityMode, actuator.PositionMode} {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown control mode %q", s)
}

func (c *ModeCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, _ *config.Config, _ *logrus.Logger, g *group.Group) error {
		if c.Args.Modes != "" {
			fields := strings.Split(c.Args.Modes, ",")
			modes := make([]actuator.ControlMode, g.Size())
			if len(fields) != 1 && len(fields) != len(modes) {
				return fmt.Errorf("got %d modes for %d axes", len(fields), len(modes))
			}
			for i := range modes {
				f := fields[0]
				if len(fields) > 1 {
					f = fields[i]
				}
				m, err := parseMode(f)
				if err != nil {
					return err
				}
				modes[i] = m
			}
			if err := g.SetControlMode(ctx, modes); err != nil {
				return report(g, fmt.Errorf("set control mode: %w", err))
			}
		}

		modes, err := g.ControlModes(ctx)
		if err != nil {
			return report(g, fmt.Errorf("read control mode: %w", err))
		}
		for i, name := range labels(g) {
			fmt.Printf("%s %s\n", tableAxisStyle.Render(name), modes[i])
		}
		return nil
	})
}
