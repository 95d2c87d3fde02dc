package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
	"github.com/gwillem/amber/pkg/monitor"
	"github.com/gwillem/amber/pkg/motion"
)

type ReplayCommand struct {
	Input    string `short:"i" long:"input" description:"Trajectory file (default from AMBER_TRAJECTORY)"`
	Count    int    `short:"n" long:"count" default:"1" description:"Number of passes, 0 repeats until stopped"`
	Approach bool   `long:"approach" description:"Move to the first point with a profiled move before streaming"`
}

func (c *ReplayCommand) Execute(args []string) error {
	return withGroup(func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error {
		path := c.Input
		if path == "" {
			path = cfg.Trajectory
		}

		if err := g.Enable(ctx); err != nil {
			return report(g, fmt.Errorf("enable drives: %w", err))
		}

		log.SetLevel(logrus.WarnLevel)

		poller := monitor.NewPoller(g, 0)
		session := cfg.Session(log)
		session.ApproachReplay = c.Approach
		session.OnFeedback = poller.Publish

		passes := fmt.Sprintf("%d passes", c.Count)
		if c.Count == 0 {
			passes = "until stopped"
		}
		poller.Logf("Replaying %s, %s", path, passes)

		seq := runSequence(func() (motion.State, error) {
			return session.Replay(ctx, g, path, c.Count)
		})
		state, err := follow("amber replay", path, poller, labels(g), seq, session.Stop.Set)
		if err != nil {
			return report(g, fmt.Errorf("replay %s: %w", path, err))
		}
		fmt.Println(successStyle.Render("Replay " + state.String()))
		return nil
	})
}
