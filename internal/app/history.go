package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/five82/fridgewatch/internal/api"
	"github.com/five82/fridgewatch/internal/state"
)

// Range is a closed time interval for history queries.
type Range struct {
	Start time.Time
	End   time.Time
}

// Window returns the current rolling history window.
func (c *Controller) Window() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// ErrInvalidRange is returned by SetRange when end is not after start.
var ErrInvalidRange = errors.New("history range must end after it starts")

// CurrentRange is the pinned range when one is set, otherwise the rolling
// window ending now.
func (c *Controller) CurrentRange() Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned != nil {
		return *c.pinned
	}
	end := c.now()
	return Range{Start: end.Add(-c.window), End: end}
}

// SetRange pins history to [start, end] until the next SetWindow, and
// refetches.
func (c *Controller) SetRange(ctx context.Context, start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidRange
	}
	c.mu.Lock()
	c.pinned = &Range{Start: start, End: end}
	c.mu.Unlock()
	return c.RefreshHistory(ctx)
}

// SelectDevice changes the charted device and refetches its history.
func (c *Controller) SelectDevice(ctx context.Context, deviceID string) error {
	c.store.SelectDevice(deviceID)
	return c.RefreshHistory(ctx)
}

// SetWindow changes the rolling window, drops any pinned range and
// refetches history.
func (c *Controller) SetWindow(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		return fmt.Errorf("history window must be positive")
	}
	c.mu.Lock()
	c.window = window
	c.pinned = nil
	c.mu.Unlock()
	return c.RefreshHistory(ctx)
}

// RefreshHistory refetches the selected device over the current window.
func (c *Controller) RefreshHistory(ctx context.Context) error {
	selected := c.store.Snapshot().Selected
	_, err := c.FetchHistory(ctx, c.CurrentRange(), selected)
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

// FetchHistory loads readings for deviceID within r and stores them reshaped
// for the chart. An empty deviceID is a no-op that leaves history untouched.
// Only the most recently issued request may update the store.
func (c *Controller) FetchHistory(ctx context.Context, r Range, deviceID string) ([]state.Point, error) {
	if deviceID == "" {
		return nil, nil
	}
	seq := c.historySeq.Add(1)
	c.store.SetHistoryLoading(true)

	readings, err := c.backend.FetchMeasurements(ctx, api.MeasurementQuery{
		Start:    r.Start,
		End:      r.End,
		DeviceID: deviceID,
	})
	var points []state.Point
	if err == nil {
		points = Reshape(readings)
	}

	// The staleness check and the write happen under one lock so a newer
	// request cannot be issued and applied in between.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || seq != c.historySeq.Load() {
		return nil, errStale
	}
	if err != nil {
		c.logger.Warn("history fetch failed", zap.String("device_id", deviceID), zap.Error(err))
		c.store.SetHistory(deviceID, nil, err)
		return nil, err
	}
	c.store.SetHistory(deviceID, points, nil)
	return points, nil
}

// Reshape converts API readings into chart points. Pressure is converted to
// hPa here and nowhere else in the history path.
func Reshape(readings []api.Reading) []state.Point {
	points := make([]state.Point, 0, len(readings))
	for _, r := range readings {
		p := state.Point{
			Time:     "--:--",
			FullDate: r.Time,
			Temp:     r.Temp,
		}
		if t := r.ParsedTime(); !t.IsZero() {
			p.Time = t.Format("15:04")
		}
		if r.Press != nil {
			hpa := api.PascalToHectopascal(*r.Press)
			p.Press = &hpa
		}
		points = append(points, p)
	}
	return points
}
