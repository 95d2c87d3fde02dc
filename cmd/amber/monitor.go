package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/monitor"
)

type MonitorCommand struct {
	Hz int `long:"hz" default:"30" description:"Feedback sampling rate"`
}

func (c *MonitorCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		poller := monitor.NewPoller(g, c.Hz)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			if err := poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Poller stopped")
			}
		}()

		p := tea.NewProgram(newChartModel("amber monitor", poller, labels(g)), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run chart: %w", err)
		}
		return nil
	})
}
