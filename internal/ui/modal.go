package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal is the interface for modal dialogs.
// The Update method returns the updated modal, a command, and a bool indicating if the modal should close.
type Modal interface {
	Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool)
	View(theme Theme, width, height int) string
}

// permissionModal asks whether notifications may be shown. The answer goes
// back to the waiting push platform exactly once.
type permissionModal struct {
	reply chan<- bool
}

func (p permissionModal) Update(msg tea.Msg, keys keyMap) (Modal, tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil, false
	}
	switch {
	case key.Matches(keyMsg, keys.Confirm):
		p.answer(true)
		return p, nil, true
	case key.Matches(keyMsg, keys.Deny), key.Matches(keyMsg, keys.Quit):
		p.answer(false)
		return p, nil, true
	}
	return p, nil, false
}

func (p permissionModal) answer(allow bool) {
	select {
	case p.reply <- allow:
	default:
	}
}

func (p permissionModal) View(theme Theme, width, height int) string {
	styles := theme.Styles()
	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Allow notifications?"))
	b.WriteString("\n\n")
	b.WriteString(styles.MutedText.Render("fridgewatch wants to show alerts when a\nfridge gets too warm."))
	b.WriteString("\n\n")
	b.WriteString(styles.AccentText.Render("y"))
	b.WriteString(styles.Text.Render(" Allow   "))
	b.WriteString(styles.AccentText.Render("n"))
	b.WriteString(styles.Text.Render(" Block"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.Warning)).
		Padding(1, 2).
		Width(46)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(theme.Background)),
	)
}
