package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/monitor"
	"github.com/gwillem/amber/pkg/motion"
	"github.com/gwillem/amber/pkg/trajectory"
)

type TeachCommand struct {
	Output      string `short:"o" long:"output" description:"Trajectory file (default from AMBER_TRAJECTORY)"`
	KeepEnabled bool   `long:"keep-enabled" description:"Leave the drives enabled instead of disabling them for hand guiding"`
}

func (c *TeachCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		path := c.Output
		if path == "" {
			path = cfg.Trajectory
		}

		if !c.KeepEnabled {
			if err := g.Disable(ctx); err != nil {
				return report(g, fmt.Errorf("disable drives: %w", err))
			}
		}

		// The chart owns the terminal, keep the log quiet meanwhile.
		log.SetLevel(logrus.WarnLevel)

		poller := monitor.NewPoller(g, 0)
		session := cfg.Session(log)
		session.OnFeedback = poller.Publish
		poller.Logf("Recording to %s every %s, press q to finish", path, g.Cadence())

		seq := runSequence(func() (motion.State, error) {
			return session.RecordPoint(ctx, g, path)
		})
		state, err := follow("amber teach", path, poller, labels(g), seq, session.Stop.Set)
		if err != nil {
			return report(g, fmt.Errorf("record %s: %w", path, err))
		}

		n := 0
		if _, points, err := trajectory.ReadAll(path); err == nil {
			n = len(points)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Recording %s: %d points written to %s", state, n, path)))
		return nil
	})
}
