package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
)

type GainsCommand struct {
	Save  bool `long:"save" description:"Persist the drive configuration after writing"`
	Clear bool `long:"clear" description:"Reset every drive to its factory configuration"`
	Args  struct {
		Name   string `positional-arg-name:"name" description:"Gain or limit to read or write"`
		Values string `positional-arg-name:"values" description:"Comma separated value per axis, or one value for all"`
	} `positional-args:"yes"`
}

type gain struct {
	get func(*group.Group, context.Context) ([]float64, error)
	set func(*group.Group, context.Context, []float64) error
}

var gains = map[string]gain{
	"position_kp":       {(*group.Group).PositionKp, (*group.Group).SetPositionKp},
	"velocity_kp":       {(*group.Group).VelocityKp, (*group.Group).SetVelocityKp},
	"velocity_ki":       {(*group.Group).VelocityKi, (*group.Group).SetVelocityKi},
	"velocity_limit":    {(*group.Group).VelocityLimit, (*group.Group).SetVelocityLimit},
	"current_limit":     {(*group.Group).CurrentLimit, (*group.Group).SetCurrentLimit},
	"current_bandwidth": {(*group.Group).CurrentBandwidth, (*group.Group).SetCurrentBandwidth},
	"profile_accel":     {(*group.Group).ProfileAccelLimit, (*group.Group).SetProfileAccelLimit},
	"profile_decel":     {(*group.Group).ProfileDecelLimit, (*group.Group).SetProfileDecelLimit},
	"profile_velocity":  {(*group.Group).ProfileVelocityLimit, (*group.Group).SetProfileVelocityLimit},
}

func gainNames() []string {
	names := make([]string, 0, len(gains))
	for name := range gains {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *GainsCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		if c.Clear {
			if err := g.ClearConfig(ctx); err != nil {
				return report(g, fmt.Errorf("clear config: %w", err))
			}
			fmt.Println(successStyle.Render("Drive configuration cleared"))
		}

		names := gainNames()
		if c.Args.Name != "" {
			if _, ok := gains[c.Args.Name]; !ok {
				return fmt.Errorf("unknown gain %q, choose one of %s", c.Args.Name, strings.Join(names, ", "))
			}
			names = []string{c.Args.Name}
		}

		if c.Args.Values != "" {
			v, err := parseVector(c.Args.Values, g.Size())
			if err != nil {
				return err
			}
			if err := gains[c.Args.Name].set(g, ctx, v); err != nil {
				return report(g, fmt.Errorf("set %s: %w", c.Args.Name, err))
			}
		}

		if c.Save {
			if err := g.SaveConfig(ctx); err != nil {
				return report(g, fmt.Errorf("save config: %w", err))
			}
			fmt.Println(successStyle.Render("Drive configuration saved"))
		}

		rows := make([][]string, 0, len(names))
		for _, name := range names {
			v, err := gains[name].get(g, ctx)
			if err != nil {
				return report(g, fmt.Errorf("read %s: %w", name, err))
			}
			row := []string{name}
			for _, x := range v {
				row = append(row, strconv.FormatFloat(x, 'g', 6, 64))
			}
			rows = append(rows, row)
		}

		headers := append([]string{"Gain"}, labels(g)...)
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dimStyle).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return tableHeaderStyle
				}
				if col == 0 {
					return tableAxisStyle
				}
				return tableCellStyle
			})
		fmt.Println(t.Render())
		return nil
	})
}
