package ui

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/fridgewatch/internal/agent"
	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/prefs"
	"github.com/five82/fridgewatch/internal/settings"
	"github.com/five82/fridgewatch/internal/state"
)

type fakeController struct {
	mu       sync.Mutex
	selected []string
	windows  []time.Duration
	saved    []settings.Draft
	ranges   []timeRange
	window   time.Duration
}

func (c *fakeController) RefreshStatus(context.Context) error { return nil }
func (c *fakeController) Subscribe(context.Context) error { return nil }

func (c *fakeController) SaveSettings(_ context.Context, d settings.Draft) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, d)
	return nil
}

func (c *fakeController) SelectDevice(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = append(c.selected, id)
	return nil
}

func (c *fakeController) SetWindow(_ context.Context, w time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = append(c.windows, w)
	c.window = w
	return nil
}

func (c *fakeController) SetRange(_ context.Context, start, end time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranges = append(c.ranges, timeRange{start: start, end: end})
	return nil
}

func (c *fakeController) Window() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.window == 0 {
		return 6 * time.Hour
	}
	return c.window
}

type fakeClicker struct {
	clicked []agent.Notification
}

func (c *fakeClicker) HandleClick(_ context.Context, n agent.Notification) error {
	c.clicked = append(c.clicked, n)
	return nil
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testStore() *state.Store {
	store := &state.Store{}
	store.UpdateStatus(&api.StatusResponse{
		VAPIDPublicKey: "key",
		Devices: []api.Device{
			{DeviceID: "a", Name: "Kitchen"},
			{DeviceID: "b", Name: "Garage"},
		},
	}, nil)
	return store
}

func newTestModel(t *testing.T, store *state.Store, ctrl Controller, p prefs.Prefs) Model {
	t.Helper()
	m := New(Options{
		Store:      store,
		Controller: ctrl,
		PrefsPath:  filepath.Join(t.TempDir(), "prefs.toml"),
		Prefs:      p,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestSnapshot_SelectsPreferredDevice(t *testing.T) {
	store := testStore()
	ctrl := &fakeController{}
	m := newTestModel(t, store, ctrl, prefs.Prefs{Device: "b"})

	m, cmd := update(t, m, snapshotMsg(store.Snapshot()))
	// Devices are sorted by id, so b is the second row.
	if m.snapshot.Devices[m.selectedRow].DeviceID != "b" {
		t.Fatalf("selected row %d, want device b", m.selectedRow)
	}
	if cmd == nil {
		t.Fatalf("expected a select command")
	}
	cmd()
	if len(ctrl.selected) != 1 || ctrl.selected[0] != "b" {
		t.Fatalf("SelectDevice calls = %v, want [b]", ctrl.selected)
	}
}

func TestSnapshot_KeepsStoreSelection(t *testing.T) {
	store := testStore()
	store.SelectDevice("a")
	ctrl := &fakeController{}
	m := newTestModel(t, store, ctrl, prefs.Prefs{Device: "b"})

	m, cmd := update(t, m, snapshotMsg(store.Snapshot()))
	if m.snapshot.Devices[m.selectedRow].DeviceID != "a" {
		t.Fatalf("selected row %d, want device a", m.selectedRow)
	}
	if cmd != nil {
		t.Fatalf("selection already known; expected no command")
	}
}

func TestDashboard_MoveSelection(t *testing.T) {
	store := testStore()
	store.SelectDevice(store.Snapshot().Devices[0].DeviceID)
	ctrl := &fakeController{}
	m := newTestModel(t, store, ctrl, prefs.Prefs{})
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))

	m, cmd := update(t, m, runeKey("j"))
	if m.selectedRow != 1 {
		t.Fatalf("selectedRow = %d, want 1", m.selectedRow)
	}
	cmd()
	want := m.snapshot.Devices[1].DeviceID
	if len(ctrl.selected) != 1 || ctrl.selected[0] != want {
		t.Fatalf("SelectDevice calls = %v, want [%s]", ctrl.selected, want)
	}
	if m.prefs.Device != want {
		t.Fatalf("prefs.Device = %q, want %q", m.prefs.Device, want)
	}

	// At the bottom already: no further call.
	m, cmd = update(t, m, runeKey("j"))
	if cmd != nil || m.selectedRow != 1 {
		t.Fatalf("moving past the end should be a no-op")
	}
}

func TestDashboard_WindowKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, testStore(), ctrl, prefs.Prefs{})

	m, cmd := update(t, m, runeKey("]"))
	cmd()
	if ctrl.Window() != 24*time.Hour {
		t.Fatalf("window = %v, want 24h", ctrl.Window())
	}
	if m.prefs.Window() != 24*time.Hour {
		t.Fatalf("prefs window = %v, want 24h", m.prefs.Window())
	}

	_, cmd = update(t, m, runeKey("["))
	cmd()
	if ctrl.Window() != 6*time.Hour {
		t.Fatalf("window = %v, want 6h", ctrl.Window())
	}
}

func TestDashboard_RangeSearch(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, testStore(), ctrl, prefs.Prefs{})

	m, _ = update(t, m, runeKey("/"))
	if !m.rangeForm.active {
		t.Fatalf("/ should open the range form")
	}
	// Prefilled with the rolling window, so it parses as is.
	if _, err := m.rangeForm.parse(); err != nil {
		t.Fatalf("prefilled range does not parse: %v", err)
	}

	m.rangeForm.inputs[0].SetValue("yesterday")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || !m.rangeForm.active || !strings.Contains(m.rangeForm.err, "start") {
		t.Fatalf("bad start should keep the form open with an error, err=%q", m.rangeForm.err)
	}

	m.rangeForm.inputs[0].SetValue("2025-01-02T12:00:00")
	m.rangeForm.inputs[1].SetValue("2025-01-02T08:00:00")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.rangeForm.err != "end must be after start" {
		t.Fatalf("err = %q, want end must be after start", m.rangeForm.err)
	}

	m.rangeForm.inputs[1].SetValue("2025-01-03T08:00:00")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.rangeForm.active || cmd == nil {
		t.Fatalf("valid range should close the form and search")
	}
	cmd()
	wantStart := time.Date(2025, 1, 2, 12, 0, 0, 0, time.Local)
	wantEnd := time.Date(2025, 1, 3, 8, 0, 0, 0, time.Local)
	if len(ctrl.ranges) != 1 || !ctrl.ranges[0].start.Equal(wantStart) || !ctrl.ranges[0].end.Equal(wantEnd) {
		t.Fatalf("SetRange calls = %+v", ctrl.ranges)
	}
	if !containsPlain(m.View(), "Jan 2 12:00 → Jan 3 08:00") {
		t.Fatalf("chart title should show the searched range")
	}

	// A window key returns to the rolling preset.
	m, cmd = update(t, m, runeKey("]"))
	cmd()
	if m.pinned != nil || ctrl.Window() != 6*time.Hour {
		t.Fatalf("pinned = %v, window = %v; want rolling 6h", m.pinned, ctrl.Window())
	}
}

func TestDashboard_RangeFormCancel(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(t, testStore(), ctrl, prefs.Prefs{})

	m, _ = update(t, m, runeKey("/"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.rangeForm.focus != 1 {
		t.Fatalf("tab should move to the end field")
	}
	// Keys go to the form, not the dashboard.
	m, _ = update(t, m, runeKey("q"))
	if m.currentView != ViewDashboard || !m.rangeForm.active {
		t.Fatalf("q should be typed into the form")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.rangeForm.active || m.pinned != nil || len(ctrl.ranges) != 0 {
		t.Fatalf("esc should close the form without searching")
	}
}

func TestDashboard_SeriesToggles(t *testing.T) {
	store := testStore()
	store.SelectDevice("a")
	temp, press := 4.5, 1013.2
	store.SetHistory("a", []state.Point{
		{Time: "10:00", Temp: &temp, Press: &press},
		{Time: "11:00", Temp: &temp, Press: &press},
	}, nil)
	m := newTestModel(t, store, &fakeController{}, prefs.Prefs{})
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))

	out := m.View()
	if !containsPlain(out, "4.5–4.5°C") || !containsPlain(out, "1013.2–1013.2 hPa") {
		t.Fatalf("both series should be drawn by default")
	}

	m, _ = update(t, m, runeKey("t"))
	out = m.View()
	if containsPlain(out, "4.5–4.5°C") || !containsPlain(out, "1013.2–1013.2 hPa") {
		t.Fatalf("t should hide only the temperature series")
	}

	m, _ = update(t, m, runeKey("p"))
	m, _ = update(t, m, runeKey("t"))
	out = m.View()
	if !containsPlain(out, "4.5–4.5°C") || containsPlain(out, "1013.2–1013.2 hPa") {
		t.Fatalf("p should hide pressure and t should bring temperature back")
	}
}

func TestStepWindow(t *testing.T) {
	cases := []struct {
		current time.Duration
		step    int
		want    time.Duration
	}{
		{6 * time.Hour, 1, 24 * time.Hour},
		{6 * time.Hour, -1, time.Hour},
		{time.Hour, -1, time.Hour},
		{7 * 24 * time.Hour, 1, 7 * 24 * time.Hour},
		{3 * time.Hour, 1, 6 * time.Hour},
		{3 * time.Hour, -1, time.Hour},
	}
	for _, tc := range cases {
		if got := stepWindow(tc.current, tc.step); got != tc.want {
			t.Fatalf("stepWindow(%v, %d) = %v, want %v", tc.current, tc.step, got, tc.want)
		}
	}
}

func TestSettings_EditValidatesAndStages(t *testing.T) {
	store := testStore()
	ctrl := &fakeController{}
	m := newTestModel(t, store, ctrl, prefs.Prefs{})
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))
	m, _ = update(t, m, runeKey("2"))
	if m.currentView != ViewSettings {
		t.Fatalf("currentView = %v, want settings", m.currentView)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.panel.editing {
		t.Fatalf("enter should start editing")
	}
	for _, r := range "abc" {
		m, _ = update(t, m, runeKey(string(r)))
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.panel.editing || m.panel.err == "" {
		t.Fatalf("invalid threshold should keep editing with an error, got %+v", m.panel)
	}

	m.panel.input.SetValue("4.5")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.panel.editing || !m.panel.dirty {
		t.Fatalf("valid threshold should be staged, got %+v", m.panel)
	}
	if got := m.panel.draft.Entries[0].Threshold; got != "4.5" {
		t.Fatalf("draft threshold = %q, want 4.5", got)
	}
	if saved, _ := store.Snapshot().Settings.Threshold(m.panel.draft.Entries[0].DeviceID); saved != "" {
		t.Fatalf("store view changed before save: %q", saved)
	}

	// Store updates do not clobber a dirty draft.
	store.SetNotice("poll", false)
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))
	if got := m.panel.draft.Entries[0].Threshold; got != "4.5" {
		t.Fatalf("draft lost after snapshot: %q", got)
	}

	m, _ = update(t, m, runeKey("u"))
	if m.panel.dirty || m.panel.draft.Entries[0].Threshold != "" {
		t.Fatalf("revert should restore the saved view, got %+v", m.panel)
	}
}

func TestSettings_SaveRequiresSubscription(t *testing.T) {
	store := testStore()
	ctrl := &fakeController{}
	m := newTestModel(t, store, ctrl, prefs.Prefs{})
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))
	m, _ = update(t, m, runeKey("2"))
	m, _ = update(t, m, runeKey("a"))

	m, cmd := update(t, m, runeKey("w"))
	if cmd != nil || m.panel.err == "" {
		t.Fatalf("save without a subscription should be refused")
	}

	store.SetSubscription(state.Subscribed, "https://push.example/1")
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))
	m, cmd = update(t, m, runeKey("w"))
	if cmd == nil || !m.panel.saving {
		t.Fatalf("expected save to start")
	}
	msg := cmd()
	if len(ctrl.saved) != 1 || !ctrl.saved[0].IsActive {
		t.Fatalf("SaveSettings calls = %+v", ctrl.saved)
	}
	m, _ = update(t, m, msg)
	if m.panel.saving || m.panel.dirty {
		t.Fatalf("save completion should clear state, got %+v", m.panel)
	}
}

func TestToast_ShowOpenAndClose(t *testing.T) {
	clicker := &fakeClicker{}
	m := New(Options{Clicker: clicker, PrefsPath: filepath.Join(t.TempDir(), "prefs.toml")})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	n := agent.Notification{Title: "ALARM", Body: "9.5°C", URL: "/settings", Tag: agent.Tag}
	m, _ = update(t, m, agentEventMsg(agent.Event{Kind: agent.Shown, Notification: n, Tag: n.Tag}))
	if m.toast == nil || m.toast.Title != "ALARM" {
		t.Fatalf("toast = %+v", m.toast)
	}

	_, cmd := update(t, m, runeKey("o"))
	cmd()
	if len(clicker.clicked) != 1 || clicker.clicked[0].URL != "/settings" {
		t.Fatalf("clicked = %+v", clicker.clicked)
	}

	m, _ = update(t, m, agentEventMsg(agent.Event{Kind: agent.Closed, Tag: "other"}))
	if m.toast == nil {
		t.Fatalf("closing another tag should keep the toast")
	}
	m, _ = update(t, m, agentEventMsg(agent.Event{Kind: agent.Closed, Tag: n.Tag}))
	if m.toast != nil {
		t.Fatalf("closing the tag should clear the toast")
	}
}

func TestToast_Expires(t *testing.T) {
	m := New(Options{PrefsPath: filepath.Join(t.TempDir(), "prefs.toml")})
	start := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	m.now = start
	m, _ = update(t, m, agentEventMsg(agent.Event{Kind: agent.Shown, Notification: agent.Notification{Title: "x"}}))

	m, _ = update(t, m, tickMsg(start.Add(5*time.Second)))
	if m.toast == nil {
		t.Fatalf("toast expired too early")
	}
	m, _ = update(t, m, tickMsg(start.Add(toastTTL+time.Second)))
	if m.toast != nil {
		t.Fatalf("toast should expire")
	}
}

func TestPermissionModal_AnswersPrompt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bridge := NewBridge()
	m := New(Options{Context: ctx, Bridge: bridge, PrefsPath: filepath.Join(t.TempDir(), "prefs.toml")})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	answer := make(chan bool, 1)
	go func() {
		ok, _ := bridge.Prompt(ctx)
		answer <- ok
	}()

	msg := bridge.wait(ctx)()
	m, _ = update(t, m, msg)
	if m.modal == nil {
		t.Fatalf("permission request should open a modal")
	}
	m, _ = update(t, m, runeKey("y"))
	if m.modal != nil {
		t.Fatalf("modal should close after answering")
	}
	select {
	case ok := <-answer:
		if !ok {
			t.Fatalf("Prompt() = false, want true")
		}
	case <-ctx.Done():
		t.Fatalf("Prompt() never returned")
	}
}

func TestBridge_RouteFollowsView(t *testing.T) {
	bridge := NewBridge()
	m := New(Options{Bridge: bridge, PrefsPath: filepath.Join(t.TempDir(), "prefs.toml")})
	if bridge.URL() != "/" {
		t.Fatalf("initial route = %q", bridge.URL())
	}
	m, _ = update(t, m, runeKey("2"))
	if bridge.URL() != "/settings" {
		t.Fatalf("route = %q, want /settings", bridge.URL())
	}
	if !agent.MatchesTarget(bridge.URL(), "/settings") {
		t.Fatalf("settings view should match its own target")
	}
	_, _ = update(t, m, runeKey("1"))
	if bridge.URL() != "/" {
		t.Fatalf("route = %q, want /", bridge.URL())
	}
}

func TestView_RendersDashboard(t *testing.T) {
	store := testStore()
	m := newTestModel(t, store, &fakeController{}, prefs.Prefs{})
	m, _ = update(t, m, snapshotMsg(store.Snapshot()))
	out := m.View()
	for _, want := range []string{"fridgewatch", "Kitchen", "Garage", "2 devices"} {
		if !containsPlain(out, want) {
			t.Fatalf("View() missing %q", want)
		}
	}
}

func TestLogs_ReadAndRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fridgewatch.log")
	content := `{"level":"warn","timestamp":"2025-01-02T10:15:00.000Z","message":"status poll failed","error":"connection refused"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := New(Options{LogPath: path, PrefsPath: filepath.Join(t.TempDir(), "prefs.toml")})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 20})
	m, cmd := update(t, m, runeKey("3"))
	if m.currentView != ViewLogs || cmd == nil {
		t.Fatalf("switching to logs should read the file")
	}
	m, _ = update(t, m, cmd())
	if len(m.logEntries) != 1 {
		t.Fatalf("logEntries = %+v", m.logEntries)
	}
	out := m.View()
	for _, want := range []string{"WARN", "status poll failed", "error=", "connection refused"} {
		if !containsPlain(out, want) {
			t.Fatalf("logs view missing %q", want)
		}
	}

	m, _ = update(t, m, runeKey(" "))
	if m.logFollow {
		t.Fatalf("space should pause following")
	}
}

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func containsPlain(rendered, want string) bool {
	return strings.Contains(ansiSeq.ReplaceAllString(rendered, ""), want)
}
