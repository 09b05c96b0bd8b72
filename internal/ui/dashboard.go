package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/settings"
	"github.com/five82/fridgewatch/internal/state"
)

// renderHeader renders the top status line: logo, connection, device count,
// subscription state and freshness, with the latest notice on the right.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	snap := m.snapshot

	parts := []string{styles.Logo.Bold(true).Render("fridgewatch")}

	switch {
	case snap.IsOffline():
		label := classifyConnectionError(snap.LastError)
		if label == "" {
			label = "OFFLINE"
		}
		parts = append(parts, bg.Render(label, styles.DangerText.Bold(true)))
	case !snap.HasStatus && snap.LastError != nil:
		parts = append(parts, bg.Render("connecting", styles.WarningText))
	case !snap.HasStatus:
		parts = append(parts, bg.Render("loading", styles.MutedText))
	default:
		parts = append(parts, bg.Render("online", styles.SuccessText))
	}

	parts = append(parts, bg.Render(fmt.Sprintf("%d devices", len(snap.Devices)), styles.Text))

	subStyle := styles.MutedText
	switch snap.Subscription {
	case state.Subscribed:
		subStyle = styles.SuccessText
	case state.PermissionPending, state.Registering:
		subStyle = styles.WarningText
	}
	parts = append(parts, bg.Render(snap.Subscription.String(), subStyle))

	if !snap.LastUpdated.IsZero() {
		parts = append(parts, bg.Render("updated "+formatAge(m.now.Sub(snap.LastUpdated)), styles.FaintText))
	}

	left := bg.Join(parts, " │ ")

	right := ""
	if snap.Notice != "" {
		noticeStyle := styles.InfoText
		if snap.NoticeError {
			noticeStyle = styles.DangerText
		}
		room := m.width - lipgloss.Width(left) - 4
		if room > 8 {
			right = bg.Render(truncate(snap.Notice, room), noticeStyle)
		}
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	line := bg.Space() + left + bg.Spaces(gap) + right + bg.Space()
	return lipgloss.NewStyle().Background(lipgloss.Color(m.theme.Surface)).Width(m.width).Render(line)
}

// renderCommandBar lists the keys that matter in the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := NewBgStyle(m.theme.Background)

	type hint struct{ key, desc string }
	var hints []hint
	switch m.currentView {
	case ViewSettings:
		if m.panel.editing {
			hints = []hint{{"enter", "apply"}, {"esc", "cancel"}}
		} else {
			hints = []hint{{"j/k", "move"}, {"enter", "edit"}, {"x", "clear"}, {"a", "alerts"}, {"w", "save"}, {"u", "revert"}}
		}
	case ViewLogs:
		hints = []hint{{"j/k", "scroll"}, {"space", "follow"}, {"1", "dashboard"}}
	default:
		if m.rangeForm.active {
			hints = []hint{{"tab", "field"}, {"enter", "search"}, {"esc", "cancel"}}
			break
		}
		hints = []hint{{"j/k", "device"}, {"[ ]", "window"}, {"/", "range"}, {"t/p", "series"}, {"r", "refresh"}, {"2", "settings"}, {"3", "logs"}}
		if m.snapshot.Subscription == state.NoSubscription {
			hints = append(hints, hint{"s", "notify me"})
		}
	}
	if m.toast != nil {
		hints = append(hints, hint{"o", "open"}, hint{"d", "dismiss"})
	}
	hints = append(hints, hint{"?", "help"}, hint{"q", "quit"})

	parts := make([]string, len(hints))
	for i, h := range hints {
		parts[i] = bg.Render(h.key, styles.AccentText) + bg.Space() + bg.Render(h.desc, styles.MutedText)
	}
	return bg.Space() + bg.Join(parts, "  ")
}

// renderDashboard renders the device table and the selected device's chart.
func (m Model) renderDashboard() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	if len(snap.Devices) == 0 {
		msg := "Waiting for the first status poll..."
		switch {
		case snap.LastError != nil:
			msg = "Cannot reach the fridge API: " + snap.LastError.Error()
		case snap.HasStatus:
			msg = "No devices reported."
		}
		return "\n" + styles.MutedText.Render("  "+msg)
	}

	var b strings.Builder
	b.WriteString(m.renderDeviceTable())
	b.WriteString("\n")
	if m.rangeForm.active {
		b.WriteString(m.renderRangeForm())
		b.WriteString("\n")
	}
	b.WriteString(m.renderHistory())
	return b.String()
}

const (
	nameWidth     = 18
	locationWidth = 14
	valueWidth    = 10
)

func (m Model) renderDeviceTable() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	var b strings.Builder
	head := "  " + padRight("DEVICE", nameWidth) + padRight("LOCATION", locationWidth) +
		padRight("TEMP", valueWidth) + padRight("PRESSURE", valueWidth+2) + padRight("ALERT AT", valueWidth) + "SEEN"
	b.WriteString(styles.FaintText.Render(head))
	b.WriteString("\n")

	for i, d := range snap.Devices {
		threshold, _ := snap.Settings.Threshold(d.DeviceID)
		row := m.deviceRow(d, threshold, i == m.selectedRow)
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) deviceRow(d api.Device, threshold string, selected bool) string {
	styles := m.theme.Styles()
	rowBg := m.theme.Background
	marker := "  "
	if selected {
		rowBg = m.theme.SelectionBg
		marker = "▸ "
	}
	styles = styles.WithBackground(rowBg)

	var temp, press *float64
	if t, ok := d.LastReading.Temperature(); ok {
		temp = &t
	}
	if pa, ok := d.LastReading.PressurePa(); ok {
		hpa := api.PascalToHectopascal(pa)
		press = &hpa
	}

	tempStyle := styles.Text
	if isOverThreshold(temp, threshold) {
		tempStyle = styles.DangerText.Bold(true)
	}

	seen := "--"
	if d.LastReading != nil && d.LastReading.Time != "" {
		if t := (api.Reading{Time: d.LastReading.Time}).ParsedTime(); !t.IsZero() {
			seen = formatAge(m.now.Sub(t))
		}
	}

	alert := "--"
	if threshold != "" {
		alert = threshold + "°C"
	}

	cells := []string{
		styles.AccentText.Render(marker),
		styles.Text.Render(padRight(truncate(d.DisplayName(), nameWidth-1), nameWidth)),
		styles.MutedText.Render(padRight(truncate(d.Location, locationWidth-1), locationWidth)),
		tempStyle.Render(padRight(formatFloat(temp, 1, "°C"), valueWidth)),
		styles.Text.Render(padRight(formatFloat(press, 1, " hPa"), valueWidth+2)),
		styles.MutedText.Render(padRight(alert, valueWidth)),
		styles.FaintText.Render(seen),
	}
	line := strings.Join(cells, "")
	return lipgloss.NewStyle().Background(lipgloss.Color(rowBg)).Width(m.width).Render(line)
}

// isOverThreshold reports whether temp is above a device's alert level,
// the same comparison the server alerts on.
func isOverThreshold(temp *float64, threshold string) bool {
	if temp == nil {
		return false
	}
	limit, err := settings.Normalize(threshold)
	if err != nil || limit == nil {
		return false
	}
	return *temp > *limit
}

// renderHistory draws the temperature and pressure sparklines, skipping
// whichever series the user has hidden.
func (m Model) renderHistory() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	span := ""
	if m.pinned != nil {
		span = formatRange(*m.pinned)
	} else {
		window := m.prefs.Window()
		if m.ctrl != nil {
			window = m.ctrl.Window()
		}
		span = "last " + formatWindow(window)
	}

	name := snap.Selected
	if d, ok := snap.Device(snap.Selected); ok {
		name = d.DisplayName()
	}

	var b strings.Builder
	title := fmt.Sprintf("  History · %s · %s", name, span)
	b.WriteString(styles.AccentText.Bold(true).Render(title))
	if snap.HistoryLoading {
		b.WriteString(styles.FaintText.Render("  loading..."))
	}
	b.WriteString("\n")

	if snap.HistoryError != nil {
		b.WriteString(styles.DangerText.Render("  " + snap.HistoryError.Error()))
		b.WriteString("\n")
	}

	points := snap.History
	if snap.HistoryDevice != snap.Selected {
		points = nil
	}
	if len(points) == 0 {
		if !snap.HistoryLoading && snap.HistoryError == nil {
			b.WriteString(styles.MutedText.Render("  No measurements in this window."))
			b.WriteString("\n")
		}
		return b.String()
	}

	labelWidth := 12
	width := max(10, m.width-labelWidth-4)
	threshold, _ := snap.Settings.Threshold(snap.Selected)
	dim := lipgloss.Color(m.theme.Faint)

	temps := temperatures(points)
	if lo, hi, ok := seriesRange(temps); ok && !m.hideTemp {
		tempColor := lipgloss.Color(m.theme.TempSeries)
		danger := lipgloss.Color(m.theme.Danger)
		line := renderSparkline(temps, width, lo, hi, dim, func(v float64) lipgloss.Color {
			if isOverThreshold(&v, threshold) {
				return danger
			}
			return tempColor
		})
		b.WriteString(m.seriesLine("Temp", line, fmt.Sprintf("%.1f–%.1f°C", lo, hi)))
	}

	press := pressures(points)
	if lo, hi, ok := seriesRange(press); ok && !m.hidePress {
		pressColor := lipgloss.Color(m.theme.PressureSeries)
		line := renderSparkline(press, width, lo, hi, dim, func(float64) lipgloss.Color { return pressColor })
		b.WriteString(m.seriesLine("Pressure", line, fmt.Sprintf("%.1f–%.1f hPa", lo, hi)))
	}

	if tl := renderTimeline(points, width); tl != "" {
		b.WriteString(strings.Repeat(" ", labelWidth+2))
		b.WriteString(styles.FaintText.Render(tl))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) seriesLine(label, spark, extent string) string {
	styles := m.theme.Styles()
	return "  " + styles.MutedText.Render(padRight(label, 12)) + spark + "\n" +
		strings.Repeat(" ", 14) + styles.FaintText.Render(extent) + "\n"
}

// renderToast shows the most recent notification until it is opened,
// dismissed, closed by its tag or times out.
func (m Model) renderToast() string {
	if m.toast == nil {
		return ""
	}
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	n := m.toast
	body := styles.WarningText.Bold(true).Render(n.Title) + "\n" + styles.Text.Render(n.Body)
	box := lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.SurfaceAlt)).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Warning)).
		Padding(0, 1).
		Width(min(60, max(20, m.width-4)))
	return box.Render(body)
}

// formatAge renders a short relative time.
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatWindow renders a history window as "6h" or "7d".
func formatWindow(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
