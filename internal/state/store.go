package state

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/settings"
)

// SubscriptionState is the push subscription lifecycle position.
type SubscriptionState int

const (
	NoSubscription SubscriptionState = iota
	PermissionPending
	Registering
	Subscribed
)

func (s SubscriptionState) String() string {
	switch s {
	case PermissionPending:
		return "permission pending"
	case Registering:
		return "registering"
	case Subscribed:
		return "subscribed"
	default:
		return "not subscribed"
	}
}

// Point is one chart-ready history sample. Press is in hPa.
type Point struct {
	Time     string
	FullDate string
	Temp     *float64
	Press    *float64
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Devices             []api.Device
	HasStatus           bool
	VAPIDKey            string
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive status poll failures

	Subscription SubscriptionState
	Endpoint     string
	Rules        []api.Rule
	Settings     settings.View

	Selected       string
	History        []Point
	HistoryDevice  string
	HistoryLoading bool
	HistoryError   error

	Notice      string
	NoticeError bool
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Device returns the device with the given id.
func (s Snapshot) Device(id string) (api.Device, bool) {
	for _, d := range s.Devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return api.Device{}, false
}

// Store coordinates concurrent updates to the snapshot. It is the single
// owner of the device list, rule cache and merged settings view.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	watchers map[int]chan struct{}
	nextID   int
}

// Watch returns a channel that receives a value after every change. Bursts
// coalesce into one notification. The cancel func releases the channel.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers == nil {
		s.watchers = make(map[int]chan struct{})
	}
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) notifyLocked() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// UpdateStatus replaces the device list from a /status poll. When err is
// non-nil the previous data is kept but the error is recorded for visibility.
func (s *Store) UpdateStatus(status *api.StatusResponse, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	if status != nil {
		s.snapshot.Devices = sortDevices(status.Devices)
		if key := strings.TrimSpace(status.VAPIDPublicKey); key != "" {
			s.snapshot.VAPIDKey = key
		}
		s.snapshot.HasStatus = true
	}
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
	s.remergeLocked()
}

// SetRules replaces the server rule cache and recomputes the settings view.
func (s *Store) SetRules(isActive bool, rules []api.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()

	s.snapshot.Rules = cloneRules(rules)
	s.snapshot.Settings.IsActive = isActive
	s.remergeLocked()
}

// CommitSettings applies a successful save: rule cache and view change
// together under one lock.
func (s *Store) CommitSettings(isActive bool, saved []api.Rule) {
	s.SetRules(isActive, saved)
}

// SetSubscription records the lifecycle state and, when known, the endpoint.
func (s *Store) SetSubscription(state SubscriptionState, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()

	s.snapshot.Subscription = state
	s.snapshot.Endpoint = endpoint
	if state != Subscribed {
		s.snapshot.Rules = nil
		s.snapshot.Settings.IsActive = false
		s.remergeLocked()
	}
}

// SelectDevice changes the device whose history is shown.
func (s *Store) SelectDevice(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()
	s.snapshot.Selected = id
}

// SetHistoryLoading flags an in-flight history request.
func (s *Store) SetHistoryLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()
	s.snapshot.HistoryLoading = loading
}

// SetHistory stores a fetched series. On error the previous series is kept.
func (s *Store) SetHistory(deviceID string, points []Point, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()

	s.snapshot.HistoryLoading = false
	if err != nil {
		s.snapshot.HistoryError = err
		return
	}
	s.snapshot.HistoryError = nil
	s.snapshot.HistoryDevice = deviceID
	s.snapshot.History = slices.Clone(points)
}

// SetNotice records a user-visible status line.
func (s *Store) SetNotice(msg string, isError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.notifyLocked()
	s.snapshot.Notice = msg
	s.snapshot.NoticeError = isError
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Devices = slices.Clone(s.snapshot.Devices)
	snap.Rules = cloneRules(s.snapshot.Rules)
	snap.Settings = s.snapshot.Settings.Clone()
	snap.History = slices.Clone(s.snapshot.History)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func (s *Store) remergeLocked() {
	s.snapshot.Settings = settings.Merge(s.snapshot.Devices, s.snapshot.Rules, s.snapshot.Settings.IsActive)
}

func sortDevices(devices []api.Device) []api.Device {
	if len(devices) == 0 {
		return nil
	}
	dup := slices.Clone(devices)
	slices.SortStableFunc(dup, func(a, b api.Device) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return dup
}

func cloneRules(rules []api.Rule) []api.Rule {
	if len(rules) == 0 {
		return nil
	}
	dup := make([]api.Rule, len(rules))
	for i, r := range rules {
		dup[i] = r
		if r.CustomThreshold != nil {
			v := *r.CustomThreshold
			dup[i].CustomThreshold = &v
		}
	}
	return dup
}
