package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fridgewatch/internal/settings"
	"github.com/five82/fridgewatch/internal/state"
)

// settingsPanel holds the staged edits of the notification settings. The
// reconciled view in the store is never touched until a save succeeds.
type settingsPanel struct {
	draft   settings.Draft
	dirty   bool
	row     int
	editing bool
	input   textinput.Model
	saving  bool
	err     string
}

// reset discards staged edits and copies view.
func (p *settingsPanel) reset(view settings.View) {
	p.draft = view.Draft()
	p.dirty = false
	p.err = ""
	p.clamp()
}

func (p *settingsPanel) clamp() {
	p.row = max(0, min(p.row, len(p.draft.Entries)-1))
}

func (p *settingsPanel) current() (settings.Entry, bool) {
	if p.row < 0 || p.row >= len(p.draft.Entries) {
		return settings.Entry{}, false
	}
	return p.draft.Entries[p.row], true
}

// handleSettingsKey handles keys on the settings view outside of editing.
func (m Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.panel
	if p.saving {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Down):
		p.row = min(p.row+1, len(p.draft.Entries)-1)
	case key.Matches(msg, m.keys.Up):
		p.row = max(p.row-1, 0)
	case key.Matches(msg, m.keys.Top):
		p.row = 0
	case key.Matches(msg, m.keys.Bottom):
		p.row = max(0, len(p.draft.Entries)-1)

	case key.Matches(msg, m.keys.Edit):
		entry, ok := p.current()
		if !ok {
			return m, nil
		}
		p.editing = true
		p.err = ""
		p.input.SetValue(entry.Threshold)
		p.input.CursorEnd()
		return m, p.input.Focus()

	case key.Matches(msg, m.keys.Clear):
		if entry, ok := p.current(); ok && entry.Threshold != "" {
			p.draft.Set(entry.DeviceID, "")
			p.dirty = true
		}

	case key.Matches(msg, m.keys.ToggleActive):
		p.draft.IsActive = !p.draft.IsActive
		p.dirty = true

	case key.Matches(msg, m.keys.Revert):
		p.reset(m.snapshot.Settings)

	case key.Matches(msg, m.keys.Save):
		if m.ctrl == nil {
			return m, nil
		}
		if m.snapshot.Subscription != state.Subscribed {
			p.err = "Enable notifications (s) before saving."
			return m, nil
		}
		p.saving = true
		p.err = ""
		return m, saveCmd(m.ctx, m.ctrl, cloneDraft(p.draft))
	}
	return m, nil
}

// handleEditKey feeds the threshold input.
func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.panel
	switch msg.Type {
	case tea.KeyEsc:
		p.editing = false
		p.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(p.input.Value())
		if _, err := settings.Normalize(value); err != nil {
			p.err = err.Error()
			return m, nil
		}
		if entry, ok := p.current(); ok && entry.Threshold != value {
			p.draft.Set(entry.DeviceID, value)
			p.dirty = true
		}
		p.editing = false
		p.err = ""
		p.input.Blur()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return m, cmd
}

func cloneDraft(d settings.Draft) settings.Draft {
	out := settings.Draft{IsActive: d.IsActive}
	out.Entries = append([]settings.Entry(nil), d.Entries...)
	return out
}

// renderSettings renders the notification settings panel.
func (m Model) renderSettings() string {
	styles := m.theme.Styles()
	p := m.panel
	snap := m.snapshot

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(styles.AccentText.Bold(true).Render("  Notification settings"))
	b.WriteString("\n\n")

	if snap.Subscription != state.Subscribed {
		b.WriteString(styles.WarningText.Render("  Notifications are " + snap.Subscription.String() + ". Press s to enable them."))
		b.WriteString("\n\n")
	}

	active := "off"
	activeStyle := styles.MutedText
	if p.draft.IsActive {
		active = "on"
		activeStyle = styles.SuccessText
	}
	b.WriteString("  " + styles.Text.Render("Alerts: ") + activeStyle.Bold(true).Render(active))
	if p.dirty {
		b.WriteString(styles.WarningText.Render("   • unsaved changes"))
	}
	if p.saving {
		b.WriteString(styles.FaintText.Render("   saving..."))
	}
	b.WriteString("\n\n")

	if len(p.draft.Entries) == 0 {
		b.WriteString(styles.MutedText.Render("  No devices to configure."))
		b.WriteString("\n")
	}

	b.WriteString(styles.FaintText.Render("  " + padRight("DEVICE", nameWidth+2) + "THRESHOLD (°C)"))
	b.WriteString("\n")
	for i, e := range p.draft.Entries {
		selected := i == p.row
		marker := "  "
		if selected {
			marker = "▸ "
		}
		var value string
		switch {
		case selected && p.editing:
			value = p.input.View()
		case e.Threshold == "":
			value = styles.FaintText.Render("no alert")
		default:
			value = styles.Text.Render(e.Threshold)
		}
		if saved, _ := snap.Settings.Threshold(e.DeviceID); saved != e.Threshold && !(selected && p.editing) {
			value += styles.WarningText.Render(" *")
		}
		line := styles.AccentText.Render(marker) +
			styles.Text.Render(padRight(truncate(e.DeviceName, nameWidth), nameWidth+2)) +
			value
		if selected {
			line = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.SelectionBg)).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if p.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.DangerText.Render("  " + p.err))
		b.WriteString("\n")
	}
	return b.String()
}
