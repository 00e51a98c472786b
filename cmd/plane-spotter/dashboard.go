package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/plane-spotter/internal/db"
	"github.com/unklstewy/plane-spotter/internal/spotter"
)

// historySize is how many past runs and notifications the dashboard lists.
const historySize = 10

// trackWindow is how far back the dashboard counts stored positions.
const trackWindow = 24 * time.Hour

type reportMsg spotter.Report

type summaryMsg struct {
	summary db.Summary
	err     error
}

type watchDoneMsg struct{ err error }

// dashboard is the live view for watch mode.
type dashboard struct {
	aircraft string
	interval time.Duration
	cancel   context.CancelFunc

	latest  *spotter.Report
	history []spotter.Report
	runs    int
	matched int
	failed  int
	err     error

	summary    *db.Summary
	summaryErr error
}

func newDashboard(aircraft string, interval time.Duration, cancel context.CancelFunc) dashboard {
	return dashboard{aircraft: aircraft, interval: interval, cancel: cancel}
}

func (m dashboard) Init() tea.Cmd {
	return nil
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			return m, tea.Quit
		}
	case reportMsg:
		r := spotter.Report(msg)
		m.latest = &r
		m.runs++
		switch r.Outcome() {
		case spotter.OutcomeMatched:
			m.matched++
		case spotter.OutcomeFailed:
			m.failed++
		}
		m.history = append([]spotter.Report{r}, m.history...)
		if len(m.history) > historySize {
			m.history = m.history[:historySize]
		}
	case summaryMsg:
		m.summaryErr = msg.err
		if msg.err == nil {
			m.summary = &msg.summary
		}
	case watchDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m dashboard) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("PLANE SPOTTER WATCH"))
	s.WriteString("\n\n")

	status := fmt.Sprintf("aircraft %s  every %s  runs %d  matched %d  failed %d",
		m.aircraft, m.interval, m.runs, m.matched, m.failed)
	s.WriteString(valueStyle.Render(status))
	s.WriteString("\n\n")

	if m.latest == nil {
		s.WriteString(labelStyle.UnsetWidth().Render("waiting for first run..."))
	} else {
		s.WriteString(renderReport(*m.latest))
		s.WriteString("\n\n")
		for _, r := range m.history {
			s.WriteString(reportLine(r))
			s.WriteString("\n")
		}
	}

	if m.summary != nil || m.summaryErr != nil {
		s.WriteString("\n")
		s.WriteString(renderSummary(m.summary, m.summaryErr))
	}

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(failColor).Render(m.err.Error()))
	}

	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("q: quit"))
	return s.String()
}

func renderSummary(sum *db.Summary, err error) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("DATABASE"))
	s.WriteString("\n")
	if err != nil {
		s.WriteString(lipgloss.NewStyle().Foreground(failColor).Render(err.Error()))
		s.WriteString("\n")
		if sum == nil {
			return s.String()
		}
	}

	s.WriteString(valueStyle.Render(fmt.Sprintf("aircraft %d  positions %d  notifications %d  fixes in last %.0fh %d",
		sum.Stats.TrackedAircraft, sum.Stats.PositionRecords, sum.Stats.Notifications, trackWindow.Hours(), len(sum.Track))))
	s.WriteString("\n")
	for _, n := range sum.Recent {
		fmt.Fprintf(&s, "%s  %-8s %s\n", n.CreatedAt.Local().Format("01-02 15:04"), n.Backend, n.Message)
	}
	return s.String()
}

// runDashboard runs the watch loop behind the dashboard until the user quits
// or ctx ends. onReport sees every report before the dashboard does. When
// summarize is set, its result is shown after every run.
func runDashboard(ctx context.Context, s *spotter.Spotter, aircraft string, interval time.Duration, onReport func(spotter.Report), summarize func(context.Context) (db.Summary, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newDashboard(aircraft, interval, cancel), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := s.Watch(ctx, interval, func(r spotter.Report) {
			onReport(r)
			p.Send(reportMsg(r))
			if summarize != nil {
				sum, err := summarize(ctx)
				p.Send(summaryMsg{summary: sum, err: err})
			}
		})
		p.Send(watchDoneMsg{err: err})
		done <- err
	}()

	_, runErr := p.Run()
	cancel()
	watchErr := <-done

	if runErr != nil {
		return runErr
	}
	return watchErr
}
