package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/plane-spotter/internal/spotter"
	"github.com/unklstewy/plane-spotter/pkg/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1)

	okColor   = lipgloss.Color("46")
	infoColor = lipgloss.Color("39")
	failColor = lipgloss.Color("196")
)

// renderReport draws the end-of-run summary box.
func renderReport(r spotter.Report) string {
	var rows []string
	row := func(label, value string) {
		rows = append(rows, labelStyle.Render(label)+valueStyle.Render(value))
	}

	row("Aircraft", r.AircraftID)
	if r.Position != nil {
		p := r.Position
		row("Position", fmt.Sprintf("%.4f, %.4f", p.Latitude, p.Longitude))
		if p.Callsign != "" {
			row("Callsign", p.Callsign)
		}
		if !p.LastSeen.IsZero() {
			row("Last seen", p.LastSeen.Local().Format("2006-01-02 15:04:05"))
		}
	}
	if r.Match != nil {
		row("Airport", fmt.Sprintf("%s (%s)", r.Match.Airport.Name, r.Match.Airport.Code))
		row("Distance", fmt.Sprintf("%.2f km", r.Match.DistanceKm))
	}
	if r.Message != "" {
		row("Message", r.Message)
	}
	row("Outcome", strings.ReplaceAll(r.Outcome(), "_", " "))
	if !r.FinishedAt.IsZero() {
		row("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	}

	color := infoColor
	switch r.Outcome() {
	case spotter.OutcomeMatched:
		color = okColor
	case spotter.OutcomeFailed:
		color = failColor
		var stageErr *spotter.StageError
		if errors.As(r.Err, &stageErr) {
			row("Stage", fmt.Sprintf("%s (%s)", stageErr.Stage, stageErr.Backend))
			row("Error", stageErr.Err.Error())
		}
	}

	title := titleStyle.Render("PLANE SPOTTER  " + r.State.String())
	return title + "\n" + boxStyle.BorderForeground(color).Render(strings.Join(rows, "\n"))
}

// renderStartupError draws the box for errors raised before any run.
func renderStartupError(err error) string {
	var rows []string
	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		rows = append(rows, labelStyle.Render("Setting")+valueStyle.Render(ce.Field))
		rows = append(rows, labelStyle.Render("Problem")+valueStyle.Render(ce.Reason))
	} else {
		rows = append(rows, valueStyle.Render(err.Error()))
	}

	title := titleStyle.Render("PLANE SPOTTER  startup failed")
	return title + "\n" + boxStyle.BorderForeground(failColor).Render(strings.Join(rows, "\n"))
}

// reportLine is the one-line form used between watch runs.
func reportLine(r spotter.Report) string {
	ts := r.StartedAt.Local().Format("15:04:05")
	switch r.Outcome() {
	case spotter.OutcomeMatched:
		return fmt.Sprintf("%s  %s", ts, lipgloss.NewStyle().Foreground(okColor).Render(r.Message))
	case spotter.OutcomeSkipped:
		return fmt.Sprintf("%s  still at %s, not announced again", ts, r.Match.Airport.Code)
	case spotter.OutcomeFailed:
		return fmt.Sprintf("%s  %s", ts, lipgloss.NewStyle().Foreground(failColor).Render(r.Err.Error()))
	}
	return fmt.Sprintf("%s  not near any known airport", ts)
}
