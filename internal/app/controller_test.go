package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/push"
	"github.com/five82/fridgewatch/internal/settings"
	"github.com/five82/fridgewatch/internal/state"
)

// A valid uncompressed P-256 point (the curve generator), base64url.
const testVAPIDKey = "BGsX0fLhLEJH-Lzm5WOkQPJ3A32BLeszoPShOUXYmMKWT-NC4v4af5uO5-tKfA-eFivOM1drMV7Oy7ZAaDe_UfU"

func ptr(v float64) *float64 { return &v }

type fakeBackend struct {
	mu sync.Mutex

	status     *api.StatusResponse
	statusErr  error
	statusN    atomic.Int32
	statusHook func(n int32) *api.StatusResponse

	rules    *api.RulesResponse
	rulesErr error
	rulesN   atomic.Int32

	registerErr error
	registered  []api.Subscription

	updateErr map[string]error
	updates   []api.RuleUpdate

	readings     []api.Reading
	readingsErr  error
	measurementN atomic.Int32
	measureHook  func(api.MeasurementQuery)
	measureErr   func(api.MeasurementQuery) error
}

func (f *fakeBackend) FetchStatus(ctx context.Context) (*api.StatusResponse, error) {
	n := f.statusN.Add(1)
	if f.statusHook != nil {
		return f.statusHook(n), nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeBackend) FetchRules(ctx context.Context, endpoint string) (*api.RulesResponse, error) {
	f.rulesN.Add(1)
	return f.rules, f.rulesErr
}

func (f *fakeBackend) RegisterSubscriber(ctx context.Context, sub api.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, sub)
	return f.registerErr
}

func (f *fakeBackend) UpdateRule(ctx context.Context, u api.RuleUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return f.updateErr[u.DeviceID]
}

func (f *fakeBackend) FetchMeasurements(ctx context.Context, q api.MeasurementQuery) ([]api.Reading, error) {
	f.measurementN.Add(1)
	if f.measureHook != nil {
		f.measureHook(q)
	}
	if f.measureErr != nil {
		if err := f.measureErr(q); err != nil {
			return nil, err
		}
	}
	return f.readings, f.readingsErr
}

type fakePlatform struct {
	existing   *push.Subscription
	existErr   error
	permission push.Permission
	subscribed *push.Subscription
	gotKey     []byte
}

func (p *fakePlatform) Existing(ctx context.Context) (*push.Subscription, error) {
	return p.existing, p.existErr
}

func (p *fakePlatform) RequestPermission(ctx context.Context) (push.Permission, error) {
	return p.permission, nil
}

func (p *fakePlatform) Subscribe(ctx context.Context, key []byte) (*push.Subscription, error) {
	p.gotKey = key
	return p.subscribed, nil
}

func newController(b *fakeBackend, p push.Platform) (*Controller, *state.Store) {
	store := &state.Store{}
	c := NewController(ControllerOptions{
		Backend:  b,
		Platform: p,
		Store:    store,
		Now:      func() time.Time { return time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC) },
	})
	return c, store
}

func TestRefreshStatus_FailureKeepsDevices(t *testing.T) {
	b := &fakeBackend{status: &api.StatusResponse{VAPIDPublicKey: "k", Devices: []api.Device{{DeviceID: "A"}}}}
	c, store := newController(b, nil)

	require.NoError(t, c.RefreshStatus(context.Background()))
	b.status, b.statusErr = nil, errors.New("connection refused")
	require.Error(t, c.RefreshStatus(context.Background()))

	snap := store.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "A", snap.Devices[0].DeviceID)
	assert.Equal(t, "k", snap.VAPIDKey)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
}

func TestStartAndStop(t *testing.T) {
	b := &fakeBackend{status: &api.StatusResponse{Devices: []api.Device{{DeviceID: "A"}}}}
	store := &state.Store{}
	c := NewController(ControllerOptions{Backend: b, Store: store, PollInterval: time.Hour, HistoryInterval: time.Hour})

	c.Start(context.Background())
	c.Start(context.Background())
	require.Eventually(t, func() bool { return b.statusN.Load() == 1 }, time.Second, 5*time.Millisecond,
		"first refresh should fire without waiting for the interval")
	c.Stop()

	b.status = &api.StatusResponse{Devices: []api.Device{{DeviceID: "B"}}}
	assert.ErrorIs(t, c.RefreshStatus(context.Background()), errStale)
	assert.Equal(t, "A", store.Snapshot().Devices[0].DeviceID, "responses after Stop are ignored")
}

func TestFetchHistory_NoDeviceIsNoop(t *testing.T) {
	b := &fakeBackend{}
	c, store := newController(b, nil)
	store.SetHistory("A", []state.Point{{Time: "10:00"}}, nil)

	points, err := c.FetchHistory(context.Background(), c.CurrentRange(), "")
	require.NoError(t, err)
	assert.Nil(t, points)
	assert.Zero(t, b.measurementN.Load())
	assert.Len(t, store.Snapshot().History, 1)
}

func TestFetchHistory_ReshapesAndStores(t *testing.T) {
	var got api.MeasurementQuery
	b := &fakeBackend{
		readings: []api.Reading{{Time: "2025-01-02T10:15:00", Temp: ptr(3.5), Press: ptr(101325)}},
		measureHook: func(q api.MeasurementQuery) {
			got = q
		},
	}
	c, store := newController(b, nil)

	r := c.CurrentRange()
	points, err := c.FetchHistory(context.Background(), r, "A")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "10:15", points[0].Time)
	assert.Equal(t, "2025-01-02T10:15:00", points[0].FullDate)
	assert.Equal(t, 1013.25, *points[0].Press)
	assert.Equal(t, "A", got.DeviceID)
	assert.Equal(t, 6*time.Hour, got.End.Sub(got.Start))

	snap := store.Snapshot()
	assert.Equal(t, "A", snap.HistoryDevice)
	assert.False(t, snap.HistoryLoading)
	assert.Len(t, snap.History, 1)
}

func TestFetchHistory_LastIssuedWins(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	b := &fakeBackend{}
	b.measureHook = func(q api.MeasurementQuery) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	}
	b.readings = []api.Reading{{Time: "2025-01-02T10:00:00", Temp: ptr(1)}}
	c, store := newController(b, nil)

	slow := make(chan error, 1)
	go func() {
		_, err := c.FetchHistory(context.Background(), c.CurrentRange(), "A")
		slow <- err
	}()
	<-entered

	_, err := c.FetchHistory(context.Background(), c.CurrentRange(), "B")
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-slow, errStale)
	assert.Equal(t, "B", store.Snapshot().HistoryDevice)
}

func TestFetchHistory_StaleFailureLeavesNewerSeries(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := &fakeBackend{}
	b.measureHook = func(q api.MeasurementQuery) {
		if q.DeviceID == "A" {
			close(entered)
			<-release
		}
	}
	b.measureErr = func(q api.MeasurementQuery) error {
		if q.DeviceID == "A" {
			return errors.New("connection reset")
		}
		return nil
	}
	b.readings = []api.Reading{{Time: "2025-01-02T10:00:00", Temp: ptr(1)}}
	c, store := newController(b, nil)

	slow := make(chan error, 1)
	go func() {
		_, err := c.FetchHistory(context.Background(), c.CurrentRange(), "A")
		slow <- err
	}()
	<-entered

	_, err := c.FetchHistory(context.Background(), c.CurrentRange(), "B")
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-slow, errStale)
	snap := store.Snapshot()
	assert.Equal(t, "B", snap.HistoryDevice)
	assert.NoError(t, snap.HistoryError)
	assert.Len(t, snap.History, 1)
}

func TestRefreshStatus_LastIssuedWins(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	b := &fakeBackend{}
	b.statusHook = func(n int32) *api.StatusResponse {
		if n == 1 {
			close(entered)
			<-release
			return &api.StatusResponse{VAPIDPublicKey: "old", Devices: []api.Device{{DeviceID: "old"}}}
		}
		return &api.StatusResponse{VAPIDPublicKey: "new", Devices: []api.Device{{DeviceID: "new"}}}
	}
	c, store := newController(b, nil)

	slow := make(chan error, 1)
	go func() {
		slow <- c.RefreshStatus(context.Background())
	}()
	<-entered

	require.NoError(t, c.RefreshStatus(context.Background()))
	close(release)

	assert.ErrorIs(t, <-slow, errStale)
	snap := store.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "new", snap.Devices[0].DeviceID)
	assert.Equal(t, "new", snap.VAPIDKey)
}

func TestReshape_MissingValues(t *testing.T) {
	points := Reshape([]api.Reading{{Time: "garbage"}})
	require.Len(t, points, 1)
	assert.Equal(t, "--:--", points[0].Time)
	assert.Nil(t, points[0].Temp)
	assert.Nil(t, points[0].Press)
	assert.Empty(t, Reshape(nil))
}

func TestStartup_NoExistingSubscription(t *testing.T) {
	b := &fakeBackend{}
	c, store := newController(b, &fakePlatform{})

	require.NoError(t, c.Startup(context.Background()))
	assert.Equal(t, state.NoSubscription, store.Snapshot().Subscription)
	assert.Zero(t, b.rulesN.Load(), "no rule fetch without a subscription")
}

func TestStartup_ExistingSubscriptionLoadsRules(t *testing.T) {
	b := &fakeBackend{
		status: &api.StatusResponse{Devices: []api.Device{{DeviceID: "A"}, {DeviceID: "B"}}},
		rules:  &api.RulesResponse{IsActive: true, Devices: []api.Rule{{DeviceID: "B", CustomThreshold: ptr(5)}}},
	}
	c, store := newController(b, &fakePlatform{existing: &push.Subscription{Endpoint: "http://h/push/1"}})
	require.NoError(t, c.RefreshStatus(context.Background()))

	require.NoError(t, c.Startup(context.Background()))

	snap := store.Snapshot()
	assert.Equal(t, state.Subscribed, snap.Subscription)
	assert.Equal(t, "http://h/push/1", snap.Endpoint)
	assert.Equal(t, []settings.Entry{
		{DeviceID: "A", DeviceName: "A", Threshold: ""},
		{DeviceID: "B", DeviceName: "B", Threshold: "5"},
	}, snap.Settings.Devices)
}

func TestStartup_MissingServerRecordIsNotAnError(t *testing.T) {
	b := &fakeBackend{rulesErr: &api.StatusError{Path: "/subscribe", Code: 404}}
	c, store := newController(b, &fakePlatform{existing: &push.Subscription{Endpoint: "e"}})

	require.NoError(t, c.Startup(context.Background()))
	snap := store.Snapshot()
	assert.Equal(t, state.Subscribed, snap.Subscription)
	assert.False(t, snap.NoticeError)
}

func TestSubscribe_PermissionDenied(t *testing.T) {
	b := &fakeBackend{status: &api.StatusResponse{VAPIDPublicKey: testVAPIDKey}}
	c, store := newController(b, &fakePlatform{permission: push.PermissionDenied})
	require.NoError(t, c.RefreshStatus(context.Background()))

	err := c.Subscribe(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)

	snap := store.Snapshot()
	assert.Equal(t, state.NoSubscription, snap.Subscription)
	assert.True(t, snap.NoticeError)
	assert.Empty(t, b.registered)
}

func TestSubscribe_MissingKey(t *testing.T) {
	c, store := newController(&fakeBackend{}, &fakePlatform{permission: push.PermissionGranted})
	require.ErrorIs(t, c.Subscribe(context.Background()), ErrMissingKey)
	assert.Equal(t, state.NoSubscription, store.Snapshot().Subscription)
}

func TestSubscribe_RegistersThenLoadsRules(t *testing.T) {
	sub := &push.Subscription{Endpoint: "http://h/push/9"}
	b := &fakeBackend{
		status:   &api.StatusResponse{VAPIDPublicKey: testVAPIDKey},
		rulesErr: &api.StatusError{Path: "/subscribe", Code: 404},
	}
	p := &fakePlatform{permission: push.PermissionGranted, subscribed: sub}
	c, store := newController(b, p)
	require.NoError(t, c.RefreshStatus(context.Background()))

	require.NoError(t, c.Subscribe(context.Background()))

	want, err := push.DecodeKey(testVAPIDKey)
	require.NoError(t, err)
	assert.Equal(t, want, p.gotKey)
	require.Len(t, b.registered, 1)
	assert.Equal(t, sub.Endpoint, b.registered[0].Endpoint)
	snap := store.Snapshot()
	assert.Equal(t, state.Subscribed, snap.Subscription)
	assert.Equal(t, sub.Endpoint, snap.Endpoint)
	assert.Equal(t, int32(1), b.rulesN.Load())
}

func TestSubscribe_RegistrationFailureIsNotSuccess(t *testing.T) {
	b := &fakeBackend{
		status:      &api.StatusResponse{VAPIDPublicKey: testVAPIDKey},
		registerErr: errors.New("500"),
	}
	c, store := newController(b, &fakePlatform{permission: push.PermissionGranted, subscribed: &push.Subscription{Endpoint: "e"}})
	require.NoError(t, c.RefreshStatus(context.Background()))

	require.Error(t, c.Subscribe(context.Background()))
	snap := store.Snapshot()
	assert.Equal(t, state.NoSubscription, snap.Subscription)
	assert.Empty(t, snap.Endpoint)
	assert.True(t, snap.NoticeError)
}

func TestSaveSettings(t *testing.T) {
	b := &fakeBackend{
		status: &api.StatusResponse{Devices: []api.Device{{DeviceID: "A"}, {DeviceID: "B"}}},
		rules:  &api.RulesResponse{IsActive: true, Devices: []api.Rule{{DeviceID: "A", CustomThreshold: ptr(4)}}},
	}
	c, store := newController(b, &fakePlatform{existing: &push.Subscription{Endpoint: "ep"}})
	require.NoError(t, c.RefreshStatus(context.Background()))
	require.NoError(t, c.Startup(context.Background()))

	draft := store.Snapshot().Settings.Draft()
	draft.Set("A", "")
	draft.Set("B", "7.5")

	// Editing the draft leaves the canonical view alone.
	got, _ := store.Snapshot().Settings.Threshold("A")
	assert.Equal(t, "4", got)

	b.updateErr = map[string]error{"B": errors.New("timeout")}
	require.Error(t, c.SaveSettings(context.Background(), draft))
	got, _ = store.Snapshot().Settings.Threshold("A")
	assert.Equal(t, "4", got, "failed save must not touch the canonical view")

	b.updateErr = nil
	require.NoError(t, c.SaveSettings(context.Background(), draft))
	view := store.Snapshot().Settings
	a, _ := view.Threshold("A")
	bb, _ := view.Threshold("B")
	assert.Equal(t, "", a)
	assert.Equal(t, "7.5", bb)
}

func TestSaveSettings_RequiresSubscription(t *testing.T) {
	c, _ := newController(&fakeBackend{}, &fakePlatform{})
	assert.ErrorIs(t, c.SaveSettings(context.Background(), settings.Draft{}), ErrNotSubscribed)
}

func TestSetWindow(t *testing.T) {
	c, _ := newController(&fakeBackend{}, nil)
	require.Error(t, c.SetWindow(context.Background(), 0))
	require.NoError(t, c.SetWindow(context.Background(), time.Hour))
	assert.Equal(t, time.Hour, c.Window())
	r := c.CurrentRange()
	assert.Equal(t, time.Hour, r.End.Sub(r.Start))
}

func TestSetRange_PinsUntilSetWindow(t *testing.T) {
	var queries []api.MeasurementQuery
	b := &fakeBackend{measureHook: func(q api.MeasurementQuery) { queries = append(queries, q) }}
	c, store := newController(b, nil)
	store.SelectDevice("A")

	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	require.ErrorIs(t, c.SetRange(context.Background(), end, start), ErrInvalidRange)
	require.ErrorIs(t, c.SetRange(context.Background(), start, start), ErrInvalidRange)
	assert.Empty(t, queries)

	require.NoError(t, c.SetRange(context.Background(), start, end))
	require.Len(t, queries, 1)
	assert.Equal(t, start, queries[0].Start)
	assert.Equal(t, end, queries[0].End)
	assert.Equal(t, Range{Start: start, End: end}, c.CurrentRange())

	require.NoError(t, c.SetWindow(context.Background(), time.Hour))
	r := c.CurrentRange()
	assert.Equal(t, time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), r.End)
	assert.Equal(t, time.Hour, r.End.Sub(r.Start))
}
