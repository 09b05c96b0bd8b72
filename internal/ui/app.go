package ui

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/fridgewatch/internal/agent"
	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/logtail"
	"github.com/five82/fridgewatch/internal/prefs"
	"github.com/five82/fridgewatch/internal/settings"
	"github.com/five82/fridgewatch/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewDashboard View = iota
	ViewSettings
	ViewLogs
)

var viewRoutes = map[View]string{
	ViewDashboard: "/",
	ViewSettings:  "/settings",
	ViewLogs:      "/logs",
}

// windowPresets are the selectable chart windows, shortest first.
var windowPresets = []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour}

// toastTTL is how long a notification stays on screen untouched.
const toastTTL = 20 * time.Second

// Controller is the part of app.Controller the dashboard drives.
type Controller interface {
	RefreshStatus(ctx context.Context) error
	Subscribe(ctx context.Context) error
	SaveSettings(ctx context.Context, draft settings.Draft) error
	SelectDevice(ctx context.Context, deviceID string) error
	SetWindow(ctx context.Context, window time.Duration) error
	SetRange(ctx context.Context, start, end time.Time) error
	Window() time.Duration
}

// Clicker routes a clicked notification.
type Clicker interface {
	HandleClick(ctx context.Context, n agent.Notification) error
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Store      *state.Store
	Controller Controller
	Clicker    Clicker
	Events     <-chan agent.Event
	Bridge     *Bridge
	LogPath    string
	PrefsPath  string
	Prefs      prefs.Prefs
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx       context.Context
	store     *state.Store
	ctrl      Controller
	clicker   Clicker
	events    <-chan agent.Event
	bridge    *Bridge
	watch     <-chan struct{}
	logPath   string
	prefsPath string
	prefs     prefs.Prefs
	keys      keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	now         time.Time

	// Data state
	snapshot    state.Snapshot
	selectedRow int

	// History chart
	rangeForm rangeForm
	pinned    *timeRange // nil while a rolling window is shown
	hideTemp  bool
	hidePress bool

	// Settings panel
	panel settingsPanel

	// Notification toast
	toast   *agent.Notification
	toastAt time.Time

	// Logs
	logViewport viewport.Model
	logEntries  []logtail.Entry
	logFollow   bool

	// Overlays
	showHelp bool
	modal    Modal
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	input := textinput.New()
	input.Placeholder = "no alert"
	input.CharLimit = 12
	input.Width = 12

	m := Model{
		ctx:         ctx,
		store:       opts.Store,
		ctrl:        opts.Controller,
		clicker:     opts.Clicker,
		events:      opts.Events,
		bridge:      opts.Bridge,
		logPath:     opts.LogPath,
		prefsPath:   prefsPath,
		prefs:       opts.Prefs,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.Prefs.Theme),
		currentView: ViewDashboard,
		now:         time.Now(),
		panel:       settingsPanel{input: input},
		logFollow:   true,
	}
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(time.Second)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.watch != nil {
		cmds = append(cmds, waitForChangeCmd(m.ctx, m.watch, m.store))
	}
	if m.events != nil {
		cmds = append(cmds, waitForEventCmd(m.ctx, m.events))
	}
	if m.bridge != nil {
		cmds = append(cmds, m.bridge.wait(m.ctx))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.logViewport = viewport.New(msg.Width, m.contentHeight())
		}
		m.ready = true
		m.logViewport.Width = msg.Width
		m.logViewport.Height = m.contentHeight()
		m.updateLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick(time.Time(msg))

	case snapshotMsg:
		return m.applySnapshot(state.Snapshot(msg))

	case storeChangedMsg:
		next, cmd := m.applySnapshot(msg.snapshot)
		return next, tea.Batch(cmd, waitForChangeCmd(m.ctx, m.watch, m.store))

	case agentEventMsg:
		m.handleAgentEvent(agent.Event(msg))
		return m, waitForEventCmd(m.ctx, m.events)

	case permissionRequestMsg:
		m.modal = permissionModal{reply: msg.reply}
		m.showHelp = false
		return m, m.bridge.wait(m.ctx)

	case focusMsg:
		m.toast = nil
		if m.currentView != ViewDashboard && m.currentView != ViewSettings {
			m.setView(ViewDashboard)
		}
		return m, m.bridge.wait(m.ctx)

	case saveDoneMsg:
		m.panel.saving = false
		if msg.err == nil {
			m.panel.dirty = false
			m.panel.err = ""
			if m.store != nil {
				m.snapshot = m.store.Snapshot()
			}
			m.panel.reset(m.snapshot.Settings)
		} else {
			m.panel.err = msg.err.Error()
		}
		return m, nil

	case logEntriesMsg:
		m.logEntries = msg
		m.updateLogViewport()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal != nil {
		modal, cmd, closed := m.modal.Update(msg, m.keys)
		if closed {
			m.modal = nil
		} else {
			m.modal = modal
		}
		return m, cmd
	}

	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	// While a threshold is being typed, keys belong to the input.
	if m.currentView == ViewSettings && m.panel.editing {
		return m.handleEditKey(msg)
	}
	if m.currentView == ViewDashboard && m.rangeForm.active {
		return m.handleRangeKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		m.setView((m.currentView + 1) % 3)
		return m, m.enterViewCmd()

	case key.Matches(msg, m.keys.ShiftTab):
		m.setView((m.currentView + 2) % 3)
		return m, m.enterViewCmd()

	case key.Matches(msg, m.keys.ViewDashboard), key.Matches(msg, m.keys.Escape):
		m.setView(ViewDashboard)
		return m, nil

	case key.Matches(msg, m.keys.ViewSettings):
		m.setView(ViewSettings)
		return m, nil

	case key.Matches(msg, m.keys.ViewLogs):
		m.setView(ViewLogs)
		return m, m.enterViewCmd()

	case key.Matches(msg, m.keys.Refresh):
		if m.ctrl == nil {
			return m, nil
		}
		return m, refreshCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.Subscribe):
		if m.ctrl == nil || m.snapshot.Subscription != state.NoSubscription {
			return m, nil
		}
		return m, subscribeCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.OpenToast):
		if m.toast == nil || m.clicker == nil {
			return m, nil
		}
		n := *m.toast
		return m, clickCmd(m.ctx, m.clicker, n)

	case key.Matches(msg, m.keys.DismissToast):
		m.toast = nil
		return m, nil
	}

	switch m.currentView {
	case ViewDashboard:
		return m.handleDashboardKey(msg)
	case ViewSettings:
		return m.handleSettingsKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m *Model) setView(v View) {
	m.currentView = v
	if m.bridge != nil {
		m.bridge.setRoute(viewRoutes[v])
	}
}

func (m Model) enterViewCmd() tea.Cmd {
	if m.currentView == ViewLogs {
		return readLogsCmd(m.logPath)
	}
	return nil
}

// handleDashboardKey moves the device selection and changes what the
// history chart shows.
func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	devices := m.snapshot.Devices
	switch {
	case key.Matches(msg, m.keys.ShorterWindow), key.Matches(msg, m.keys.LongerWindow):
		if m.ctrl == nil {
			return m, nil
		}
		step := 1
		if key.Matches(msg, m.keys.ShorterWindow) {
			step = -1
		}
		next := stepWindow(m.ctrl.Window(), step)
		if m.pinned != nil {
			// Leaving a searched range returns to the current preset.
			next = m.ctrl.Window()
		}
		m.pinned = nil
		m.prefs = m.prefs.WithWindow(next)
		m.savePrefs()
		return m, setWindowCmd(m.ctx, m.ctrl, next)

	case key.Matches(msg, m.keys.PickRange):
		m.rangeForm.open(m.currentRange())
		return m, textinput.Blink

	case key.Matches(msg, m.keys.ToggleTemp):
		m.hideTemp = !m.hideTemp
		return m, nil

	case key.Matches(msg, m.keys.TogglePress):
		m.hidePress = !m.hidePress
		return m, nil
	}

	if len(devices) == 0 {
		return m, nil
	}
	row := m.selectedRow
	switch {
	case key.Matches(msg, m.keys.Down):
		row = min(row+1, len(devices)-1)
	case key.Matches(msg, m.keys.Up):
		row = max(row-1, 0)
	case key.Matches(msg, m.keys.Top):
		row = 0
	case key.Matches(msg, m.keys.Bottom):
		row = len(devices) - 1
	default:
		return m, nil
	}
	if row == m.selectedRow {
		return m, nil
	}
	m.selectedRow = row
	return m, m.selectDevice(devices[row].DeviceID)
}

func (m *Model) selectDevice(id string) tea.Cmd {
	m.prefs.Device = id
	m.savePrefs()
	if m.ctrl == nil {
		return nil
	}
	return selectDeviceCmd(m.ctx, m.ctrl, id)
}

// stepWindow moves to the neighbouring history preset.
func stepWindow(current time.Duration, step int) time.Duration {
	presets := windowPresets
	idx := slices.Index(presets, current)
	if idx < 0 {
		// Snap unknown windows to the nearest preset below.
		idx = 0
		for i, p := range presets {
			if p <= current {
				idx = i
			}
		}
		if step < 0 {
			return presets[idx]
		}
	}
	idx = max(0, min(idx+step, len(presets)-1))
	return presets[idx]
}

// applySnapshot stores a new snapshot and reconciles selection and draft.
func (m Model) applySnapshot(snap state.Snapshot) (tea.Model, tea.Cmd) {
	m.snapshot = snap
	if !m.panel.dirty && !m.panel.editing && !m.panel.saving {
		m.panel.reset(snap.Settings)
	}
	m.panel.clamp()

	if len(snap.Devices) == 0 {
		m.selectedRow = 0
		return m, nil
	}

	if snap.Selected != "" {
		if idx := slices.IndexFunc(snap.Devices, func(d api.Device) bool { return d.DeviceID == snap.Selected }); idx >= 0 {
			m.selectedRow = idx
			return m, nil
		}
	}

	// Nothing selected yet, or the selected device disappeared.
	idx := 0
	if m.prefs.Device != "" {
		if i := slices.IndexFunc(snap.Devices, func(d api.Device) bool { return d.DeviceID == m.prefs.Device }); i >= 0 {
			idx = i
		}
	}
	m.selectedRow = idx
	if m.ctrl == nil {
		return m, nil
	}
	return m, selectDeviceCmd(m.ctx, m.ctrl, snap.Devices[idx].DeviceID)
}

func (m *Model) handleAgentEvent(ev agent.Event) {
	switch ev.Kind {
	case agent.Shown:
		n := ev.Notification
		m.toast = &n
		m.toastAt = m.now
	case agent.Closed:
		if m.toast != nil && m.toast.Tag == ev.Tag {
			m.toast = nil
		}
	}
}

// handleTick expires the toast and keeps the log pane following.
func (m Model) handleTick(now time.Time) (tea.Model, tea.Cmd) {
	m.now = now
	if m.toast != nil && now.Sub(m.toastAt) > toastTTL {
		m.toast = nil
	}
	cmds := []tea.Cmd{tickCmd(time.Second)}
	if m.currentView == ViewLogs && m.logFollow {
		cmds = append(cmds, readLogsCmd(m.logPath))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, m.prefs)
}

func (m Model) contentHeight() int {
	// header, command bar, notice line
	return max(1, m.height-3)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	switch m.currentView {
	case ViewSettings:
		b.WriteString(m.renderSettings())
	case ViewLogs:
		b.WriteString(m.renderLogs())
	default:
		b.WriteString(m.renderDashboard())
	}

	if toast := m.renderToast(); toast != "" {
		b.WriteString("\n")
		b.WriteString(toast)
	}
	return b.String()
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type storeChangedMsg struct {
	snapshot state.Snapshot
}

type agentEventMsg agent.Event

type saveDoneMsg struct {
	err error
}

type logEntriesMsg []logtail.Entry

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func waitForChangeCmd(ctx context.Context, watch <-chan struct{}, store *state.Store) tea.Cmd {
	if watch == nil || store == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-watch:
			return storeChangedMsg{snapshot: store.Snapshot()}
		case <-ctx.Done():
			return nil
		}
	}
}

func waitForEventCmd(ctx context.Context, events <-chan agent.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			return agentEventMsg(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func refreshCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		_ = ctrl.RefreshStatus(ctx)
		return nil
	}
}

func subscribeCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		// Outcome is reported through the store notice.
		_ = ctrl.Subscribe(ctx)
		return nil
	}
}

func selectDeviceCmd(ctx context.Context, ctrl Controller, id string) tea.Cmd {
	return func() tea.Msg {
		_ = ctrl.SelectDevice(ctx, id)
		return nil
	}
}

func setWindowCmd(ctx context.Context, ctrl Controller, window time.Duration) tea.Cmd {
	return func() tea.Msg {
		_ = ctrl.SetWindow(ctx, window)
		return nil
	}
}

func saveCmd(ctx context.Context, ctrl Controller, draft settings.Draft) tea.Cmd {
	return func() tea.Msg {
		return saveDoneMsg{err: ctrl.SaveSettings(ctx, draft)}
	}
}

func clickCmd(ctx context.Context, clicker Clicker, n agent.Notification) tea.Cmd {
	return func() tea.Msg {
		_ = clicker.HandleClick(ctx, n)
		return nil
	}
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	if m.store != nil {
		watch, cancel := m.store.Watch()
		defer cancel()
		m.watch = watch
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		// Cancelled from outside, e.g. SIGTERM.
		return nil
	}
	return err
}
