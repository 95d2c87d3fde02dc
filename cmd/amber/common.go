package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/config"
	"github.com/gwillem/amber/pkg/group"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableAxisStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableGoodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableBadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

// loadConfig reads settings from the environment and the selected .env file.
func loadConfig() *config.Config {
	if opts.Env != "" {
		return config.Load(opts.Env)
	}
	return config.Load()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connect builds a group from the manifest named in cfg.
func connect(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*group.Group, error) {
	if !actuator.ManifestExists(cfg.Manifest) {
		return nil, fmt.Errorf("no manifest at %s, run 'amber setup' or 'amber simulate' first", cfg.Manifest)
	}
	m, err := actuator.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, err
	}
	attrs, err := actuator.StaticResolver{}.Resolve(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest: %w", err)
	}
	g, err := group.New(attrs, cfg.GroupOptions(log)...)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	log.WithField("axes", g.Size()).Debugf("Connected using %s", cfg.Manifest)
	return g, nil
}

// withGroup runs fn against a freshly connected group and closes it after.
func withGroup(fn func(ctx context.Context, cfg *config.Config, log *logrus.Logger, g *group.Group) error) error {
	cfg := loadConfig()
	log := cfg.Logger()

	ctx, cancel := signalContext()
	defer cancel()

	g, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close()

	return fn(ctx, cfg, log, g)
}

// labels returns one display name per axis.
func labels(g *group.Group) []string {
	info := g.Info()
	out := make([]string, len(info))
	for i, a := range info {
		out[i] = fmt.Sprintf("%d:%s", i, a.Label())
	}
	return out
}

// parseVector parses a comma separated list of n numbers. A single number
// is repeated for every axis.
func parseVector(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) == 1 && n > 1 {
		fields = slices.Repeat(fields, n)
	}
	if len(fields) != n {
		return nil, fmt.Errorf("got %d values for %d axes", len(fields), n)
	}
	v := make([]float64, n)
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		v[i] = x
	}
	return v, nil
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

// renderErrors renders the recorded error of every axis that has one.
func renderErrors(g *group.Group) string {
	codes := g.ErrorCodes()
	details := g.ErrorDetails()
	names := labels(g)

	var rows [][]string
	for i, c := range codes {
		if c == actuator.ErrorNone {
			continue
		}
		rows = append(rows, []string{names[i], c.String(), details[i]})
	}
	if len(rows) == 0 {
		return successStyle.Render("No axis errors")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Axis", "Error", "Detail").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableAxisStyle
			case 1:
				return tableBadStyle
			default:
				return tableCellStyle
			}
		})
	return t.Render()
}

// report prints err and the per-axis errors behind it.
func report(g *group.Group, err error) error {
	if err == nil {
		return nil
	}
	fmt.Println(renderErrors(g))
	return err
}
