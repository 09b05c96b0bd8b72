package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/fridgewatch/internal/api"
)

// timeRange is a user-chosen history interval.
type timeRange struct {
	start, end time.Time
}

// rangeForm is the start/end entry opened from the dashboard.
type rangeForm struct {
	active bool
	inputs [2]textinput.Model
	focus  int
	err    string
}

func newRangeInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = len(api.QueryTimeLayout)
	in.Width = len(api.QueryTimeLayout)
	return in
}

// open fills both fields with r and focuses the start field.
func (f *rangeForm) open(r timeRange) {
	f.inputs[0] = newRangeInput("start")
	f.inputs[1] = newRangeInput("end")
	f.inputs[0].SetValue(r.start.In(time.Local).Format(api.QueryTimeLayout))
	f.inputs[1].SetValue(r.end.In(time.Local).Format(api.QueryTimeLayout))
	f.focus = 0
	f.err = ""
	f.active = true
	f.inputs[0].Focus()
}

func (f *rangeForm) close() {
	f.active = false
	f.inputs[0].Blur()
	f.inputs[1].Blur()
}

func (f *rangeForm) switchField() {
	f.inputs[f.focus].Blur()
	f.focus = 1 - f.focus
	f.inputs[f.focus].Focus()
}

// parse reads both fields as local wall-clock times.
func (f rangeForm) parse() (timeRange, error) {
	var out [2]time.Time
	for i, in := range f.inputs {
		v := strings.TrimSpace(in.Value())
		t, err := time.ParseInLocation(api.QueryTimeLayout, v, time.Local)
		if err != nil {
			field := "start"
			if i == 1 {
				field = "end"
			}
			return timeRange{}, fmt.Errorf("%s must look like %s", field, api.QueryTimeLayout)
		}
		out[i] = t
	}
	if !out[1].After(out[0]) {
		return timeRange{}, errors.New("end must be after start")
	}
	return timeRange{start: out[0], end: out[1]}, nil
}

// currentRange is what the chart shows right now.
func (m Model) currentRange() timeRange {
	if m.pinned != nil {
		return *m.pinned
	}
	window := m.prefs.Window()
	if m.ctrl != nil {
		window = m.ctrl.Window()
	}
	return timeRange{start: m.now.Add(-window), end: m.now}
}

// handleRangeKey feeds the range form while it is open.
func (m Model) handleRangeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.rangeForm
	switch msg.Type {
	case tea.KeyEsc:
		f.close()
		return m, nil
	case tea.KeyTab, tea.KeyShiftTab:
		f.switchField()
		return m, nil
	case tea.KeyEnter:
		r, err := f.parse()
		if err != nil {
			f.err = err.Error()
			return m, nil
		}
		f.close()
		m.pinned = &r
		if m.ctrl == nil {
			return m, nil
		}
		return m, setRangeCmd(m.ctx, m.ctrl, r)
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return m, cmd
}

func (m Model) renderRangeForm() string {
	styles := m.theme.Styles()
	f := m.rangeForm
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("  Search history"))
	b.WriteString("\n")
	for i, label := range []string{"From", "To"} {
		b.WriteString("  " + styles.MutedText.Render(padRight(label, 6)) + f.inputs[i].View() + "\n")
	}
	if f.err != "" {
		b.WriteString(styles.DangerText.Render("  " + f.err))
		b.WriteString("\n")
	}
	return b.String()
}

// formatRange renders a pinned range for the chart title.
func formatRange(r timeRange) string {
	const layout = "Jan 2 15:04"
	return r.start.In(time.Local).Format(layout) + " → " + r.end.In(time.Local).Format(layout)
}

func setRangeCmd(ctx context.Context, ctrl Controller, r timeRange) tea.Cmd {
	return func() tea.Msg {
		_ = ctrl.SetRange(ctx, r.start, r.end)
		return nil
	}
}
