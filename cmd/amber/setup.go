package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/amber/pkg/actuator"
	"github.com/gwillem/amber/pkg/group"
)

type SetupCommand struct {
	NoProbe bool `long:"no-probe" description:"Save without checking that every axis answers"`
}

func (c *SetupCommand) Execute(args []string) error {
	cfg := loadConfig()
	log := cfg.Logger()

	fmt.Println(headerStyle.Render("amber setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	if actuator.ManifestExists(cfg.Manifest) {
		overwrite := false
		if err := runForm(huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Replace it?", cfg.Manifest)).
			Affirmative("Replace").
			Negative("Keep").
			Value(&overwrite)); err != nil || !overwrite {
			return err
		}
	}

	var manifest actuator.Manifest
	for {
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ Axis %d ━━━", len(manifest))))
		entry, err := askAxis(len(manifest))
		if err != nil {
			return err
		}
		manifest = append(manifest, entry)

		more := false
		if err := runForm(huh.NewConfirm().
			Title("Add another axis?").
			Affirmative("Yes").
			Negative("No, done").
			Value(&more)); err != nil {
			return err
		}
		if !more {
			break
		}
	}

	attrs, err := actuator.StaticResolver{}.Resolve(context.Background(), manifest)
	if err != nil {
		return err
	}

	if !c.NoProbe {
		g, err := group.New(attrs, cfg.GroupOptions(log)...)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		_, probeErr := g.GetCvp(ctx)
		cancel()
		fmt.Println(renderProbe(attrs, g.ErrorCodes(), cfg.Port))
		g.Close()

		if probeErr != nil {
			save := false
			if err := runForm(huh.NewConfirm().
				Title("Not every axis answered. Save anyway?").
				Affirmative("Save").
				Negative("Discard").
				Value(&save)); err != nil || !save {
				return err
			}
		}
	}

	if err := actuator.SaveManifest(cfg.Manifest, manifest); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render(fmt.Sprintf("Saved %d axes to %s", len(manifest), cfg.Manifest)))
	fmt.Println()
	fmt.Println("Check the group with: " + headerStyle.Render("amber info"))
	return nil
}

func runForm(fields ...huh.Field) error {
	err := huh.NewForm(huh.NewGroup(fields...)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Println()
		os.Exit(0)
	}
	return err
}

func askAxis(i int) (actuator.ManifestEntry, error) {
	var (
		name     string
		ip       string
		port     = strconv.Itoa(actuator.DefaultPort)
		serial   string
		mac      string
		identity int
	)

	err := runForm(
		huh.NewInput().
			Title("Name").
			Placeholder(fmt.Sprintf("axis %d", i)).
			Value(&name),
		huh.NewInput().
			Title("IP address").
			Value(&ip).
			Validate(func(s string) error {
				if net.ParseIP(strings.TrimSpace(s)) == nil {
					return errors.New("not an IP address")
				}
				return nil
			}),
		huh.NewInput().
			Title("Port").
			Value(&port).
			Validate(func(s string) error {
				p, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil || p <= 0 || p > 65535 {
					return errors.New("not a port number")
				}
				return nil
			}),
		huh.NewInput().
			Title("Serial number").
			Value(&serial),
		huh.NewInput().
			Title("MAC address").
			Value(&mac),
		huh.NewSelect[int]().
			Title("Status replies").
			Options(
				huh.NewOption("Full (reqTarget, status, error object)", 0),
				huh.NewOption("Abbreviated (status and code only)", 1),
			).
			Value(&identity),
	)
	if err != nil {
		return actuator.ManifestEntry{}, err
	}

	p, _ := strconv.Atoi(strings.TrimSpace(port))
	if p == actuator.DefaultPort {
		p = 0
	}
	return actuator.ManifestEntry{
		Serial:   strings.TrimSpace(serial),
		MAC:      strings.TrimSpace(mac),
		IP:       strings.TrimSpace(ip),
		Port:     p,
		Name:     strings.TrimSpace(name),
		Identity: identity,
	}, nil
}

func renderProbe(attrs []actuator.Attribute, codes []actuator.ErrorCode, defaultPort int) string {
	rows := make([][]string, len(attrs))
	for i, a := range attrs {
		status := "ok"
		if codes[i] != actuator.ErrorNone {
			status = codes[i].String()
		}
		rows[i] = []string{a.Label(), a.Endpoint(defaultPort), status}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Axis", "Endpoint", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableAxisStyle
			case 2:
				if row >= 0 && row < len(codes) && codes[row] == actuator.ErrorNone {
					return tableGoodStyle
				}
				return tableBadStyle
			default:
				return tableCellStyle
			}
		})
	return t.Render()
}
