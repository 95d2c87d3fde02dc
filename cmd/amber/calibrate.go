package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
)

type CalibrateCommand struct {
	Yes    bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	NoSave bool `long:"no-save" description:"Do not persist the calibration in the drive configuration"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		fmt.Println(headerStyle.Render("amber calibrate"))
		fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
		fmt.Println()

		if !c.Yes {
			confirm := false
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Calibrate %d axes?", g.Size())).
						Description("Every axis turns freely while the encoder offset is measured.").
						Affirmative("Calibrate").
						Negative("Cancel").
						Value(&confirm),
				),
			)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			if !confirm {
				return nil
			}
		}

		var calErr error
		err := spinner.New().
			Title(fmt.Sprintf("Calibrating, up to %s", cfg.CalibrationTimeout)).
			Context(ctx).
			Action(func() { calErr = g.Calibration(ctx) }).
			Run()
		if err != nil {
			return err
		}
		if calErr != nil {
			return report(g, fmt.Errorf("calibrate: %w", calErr))
		}
		fmt.Println(successStyle.Render("Calibration done"))

		if c.NoSave {
			return nil
		}
		if err := g.SaveConfig(ctx); err != nil {
			return report(g, fmt.Errorf("save config: %w", err))
		}
		fmt.Println(successStyle.Render("Saved to drive configuration"))
		return nil
	})
}
