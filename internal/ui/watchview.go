package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/preview"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// visibleObservations bounds the live history shown under the spinner
const visibleObservations = 8

// WatchFunc runs a watch and reports each observation through observe
type WatchFunc func(ctx context.Context, observe func(preview.Observation)) (preview.Result, error)

type observationMsg preview.Observation

type watchDoneMsg struct {
	res preview.Result
	err error
}

// WatchModel is the live view of a deployment watch
type WatchModel struct {
	app          string
	url          string
	spinner      spinner.Model
	observations []preview.Observation
	aborting     bool
	done         bool
	result       preview.Result
	err          error
	cancel       context.CancelFunc
}

// NewWatchModel returns the view for app; cancel aborts the watch on ctrl+c
func NewWatchModel(app, url string, cancel context.CancelFunc) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorCyan)
	return WatchModel{app: app, url: url, spinner: s, cancel: cancel}
}

func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The watch returns an aborted result, which ends the program
			if !m.aborting && m.cancel != nil {
				m.aborting = true
				m.cancel()
			}
		}
		return m, nil
	case observationMsg:
		m.observations = append(m.observations, preview.Observation(msg))
		return m, nil
	case watchDoneMsg:
		m.done = true
		m.result = msg.res
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(SectionHeader("WATCH "+m.app, ColorBlue) + "\n")
	if m.url != "" {
		b.WriteString(KeyValue("url", Colored(m.url, ColorCyan)) + "\n")
	}

	obs := m.observations
	if len(obs) > visibleObservations {
		b.WriteString(Colored(fmt.Sprintf("    … %d earlier observations\n", len(obs)-visibleObservations), ColorDarkGray))
		obs = obs[len(obs)-visibleObservations:]
	}
	for _, o := range obs {
		b.WriteString(ObservationLine(o) + "\n")
	}

	switch {
	case m.done:
		b.WriteString("\n" + ResultLine(m.result, m.err) + "\n")
	case m.aborting:
		b.WriteString("\n  " + Colored("aborting…", ColorYellow) + "\n")
	default:
		b.WriteString("\n  " + m.spinner.View() + " waiting " + Colored("(ctrl+c to abort)", ColorDarkGray) + "\n")
	}
	return b.String()
}

// ObservationLine renders one poll for the live view and plain output
func ObservationLine(o preview.Observation) string {
	prefix := Colored(fmt.Sprintf("    #%-3d +%-6s", o.Poll, o.Elapsed.Round(time.Second)), ColorDarkGray)
	state := lipgloss.NewStyle().Width(16).Render(string(o.State))
	line := prefix + " " + state + " " +
		Colored(string(o.Status.Health), HealthColor(o.Status.Health)) + "/" +
		Colored(string(o.Status.Sync), SyncColor(o.Status.Sync))
	if o.State == preview.StateCreationPending {
		line = prefix + " " + state + " " + Colored("waiting for the application to appear", ColorDarkGray)
	}
	if o.Err != nil && o.State != preview.StateCreationPending && o.State != preview.StateMissing {
		line += "  " + Colored(o.Err.Error(), ColorYellow)
	}
	return line
}

// ResultLine renders the terminal outcome of a watch
func ResultLine(res preview.Result, err error) string {
	if err == nil && res.Succeeded() {
		return StatusLine("success", res.App,
			fmt.Sprintf("Healthy and Synced after %d polls (%s)", res.Polls, res.Elapsed.Round(time.Second)))
	}
	if err == nil {
		return StatusLine("pending", res.App, string(res.State))
	}
	if res.State == preview.StateAborted {
		return StatusLine("skipped", res.App, "aborted after "+res.Elapsed.Round(time.Second).String())
	}
	return StatusLine("failed", res.App, err.Error())
}

// RunWatch runs a watch with a live spinner view when interactive, or as
// plain line output otherwise
func RunWatch(ctx context.Context, out io.Writer, app, url string, interactive bool, run WatchFunc) (preview.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !interactive {
		fmt.Fprintln(out, SectionHeader("WATCH "+app, ColorBlue))
		if url != "" {
			fmt.Fprintln(out, KeyValue("url", url))
		}
		res, err := run(ctx, func(o preview.Observation) {
			fmt.Fprintln(out, ObservationLine(o))
		})
		fmt.Fprintln(out, ResultLine(res, err))
		return res, err
	}

	p := tea.NewProgram(NewWatchModel(app, url, cancel), tea.WithOutput(out))

	type outcome struct {
		res preview.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := run(ctx, func(o preview.Observation) {
			p.Send(observationMsg(o))
		})
		done <- outcome{res, err}
		p.Send(watchDoneMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
	}
	o := <-done
	return o.res, o.err
}
