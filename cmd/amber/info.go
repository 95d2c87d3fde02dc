package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/wire"
)

type InfoCommand struct{}

func (c *InfoCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		fmt.Println(headerStyle.Render("amber info"))
		fmt.Println(dimStyle.Render(fmt.Sprintf("%s, %d axes, cadence %s", cfg.Manifest, g.Size(), g.Cadence())))
		fmt.Println()

		// Each read fills what it can; unreachable axes show their error below.
		cvp, cvpErr := g.GetCvp(ctx)
		if cvpErr != nil {
			cvp = g.LastFeedback()
		}
		_, _ = g.IsEnable(ctx)
		modes, modeErr := g.ControlModes(ctx)

		codes := g.ErrorCodes()
		info := g.Info()
		rows := make([][]string, len(info))
		for i, a := range info {
			mode := "?"
			if modeErr == nil {
				mode = modes[i].String()
			}
			pos := "-"
			if i < cvp.Len() {
				pos = strconv.FormatFloat(cvp.Position[i], 'f', 0, 64)
			}
			rows[i] = []string{
				strconv.Itoa(i),
				a.Label(),
				a.Endpoint(cfg.Port),
				a.Serial,
				a.MAC,
				wire.SchemaFor(a.Identity).Name(),
				strconv.FormatBool(a.Enabled),
				mode,
				pos,
				codes[i].String(),
			}
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(dimStyle).
			Headers("#", "Axis", "Endpoint", "Serial", "MAC", "Schema", "Enabled", "Mode", "Position", "Error").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return tableHeaderStyle
				}
				switch col {
				case 1:
					return tableAxisStyle
				case 9:
					if row >= 0 && row < len(codes) && codes[row] != actuator.ErrorNone {
						return tableBadStyle
					}
					return tableGoodStyle
				default:
					return tableCellStyle
				}
			})
		fmt.Println(t.Render())

		if cvpErr != nil {
			fmt.Println()
			fmt.Println(renderErrors(g))
		}
		return nil
	})
}
