package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fridgewatch/internal/logtail"
)

const logTailLines = 500

func readLogsCmd(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.Tail(path, logTailLines)
		if err != nil {
			return logEntriesMsg{logtail.Parse("failed to read " + path + ": " + err.Error())}
		}
		return logEntriesMsg(entries)
	}
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logFollow = !m.logFollow
		if m.logFollow {
			m.logViewport.GotoBottom()
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logFollow = false
		m.logViewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logViewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	if !m.logViewport.AtBottom() {
		m.logFollow = false
	}
	return m, cmd
}

func (m *Model) updateLogViewport() {
	if !m.ready {
		return
	}
	rendered := make([]string, len(m.logEntries))
	for i, e := range m.logEntries {
		rendered[i] = m.formatLogLine(e)
	}
	m.logViewport.SetContent(strings.Join(rendered, "\n"))
	if m.logFollow {
		m.logViewport.GotoBottom()
	}
}

// formatLogLine colors one structured log entry by level.
func (m Model) formatLogLine(e logtail.Entry) string {
	styles := m.theme.Styles()
	if e.Level == "" {
		return styles.MutedText.Render(e.Raw)
	}

	levelStyle := styles.InfoText
	switch strings.ToLower(e.Level) {
	case "debug":
		levelStyle = styles.FaintText
	case "warn":
		levelStyle = styles.WarningText
	case "error", "dpanic", "panic", "fatal":
		levelStyle = styles.DangerText
	}

	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(styles.FaintText.Render(e.Time.Format("15:04:05")))
		b.WriteString(" ")
	}
	b.WriteString(levelStyle.Render(padRight(strings.ToUpper(e.Level), 5)))
	b.WriteString(" ")
	b.WriteString(styles.Text.Render(e.Message))

	for _, k := range e.FieldKeys() {
		b.WriteString(" ")
		b.WriteString(styles.AccentText.Render(k + "="))
		b.WriteString(styles.MutedText.Render(e.Fields[k]))
	}
	return b.String()
}

func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	if m.logPath == "" {
		return styles.MutedText.Render("  Logging to stderr; nothing to show.")
	}
	status := "following"
	if !m.logFollow {
		status = "paused"
	}
	title := styles.AccentText.Bold(true).Render("  "+m.logPath) + styles.FaintText.Render("  "+status)
	body := m.logViewport.View()
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}
