package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	ShiftTab   key.Binding
	Escape     key.Binding
	Refresh    key.Binding

	// View switching
	ViewDashboard key.Binding
	ViewSettings  key.Binding
	ViewLogs      key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Dashboard
	Subscribe     key.Binding
	ShorterWindow key.Binding
	LongerWindow  key.Binding
	PickRange     key.Binding
	ToggleTemp    key.Binding
	TogglePress   key.Binding

	// Settings
	Edit         key.Binding
	Clear        key.Binding
	ToggleActive key.Binding
	Save         key.Binding
	Revert       key.Binding

	// Notifications
	OpenToast    key.Binding
	DismissToast key.Binding

	// Logs
	ToggleFollow key.Binding

	// Modal
	Confirm key.Binding
	Deny    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Next view"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "Previous view"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back to dashboard"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh now"),
		),

		ViewDashboard: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Dashboard"),
		),
		ViewSettings: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Notification settings"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Logs"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		Subscribe: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Enable notifications"),
		),
		ShorterWindow: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Shorter history"),
		),
		LongerWindow: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Longer history"),
		),
		PickRange: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search a date range"),
		),
		ToggleTemp: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "Show/hide temperature"),
		),
		TogglePress: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Show/hide pressure"),
		),

		Edit: key.NewBinding(
			key.WithKeys("enter", "e"),
			key.WithHelp("enter", "Edit threshold"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "Clear threshold"),
		),
		ToggleActive: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Toggle alerts"),
		),
		Save: key.NewBinding(
			key.WithKeys("w", "ctrl+s"),
			key.WithHelp("w", "Save settings"),
		),
		Revert: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Discard edits"),
		),

		OpenToast: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "Open notification"),
		),
		DismissToast: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Dismiss notification"),
		),

		ToggleFollow: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("Space", "Toggle follow mode"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "Allow"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n", "Block"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view, one group per
// section of the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewDashboard, k.ViewSettings, k.ViewLogs, k.Escape, k.Up, k.Down},
		{k.Subscribe, k.ShorterWindow, k.LongerWindow, k.PickRange, k.ToggleTemp, k.TogglePress, k.Refresh},
		{k.Edit, k.Clear, k.ToggleActive, k.Save, k.Revert},
		{k.OpenToast, k.DismissToast, k.ToggleFollow},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
