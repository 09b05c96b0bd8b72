package settings

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/five82/fridgewatch/internal/api"
)

// RuleWriter is the write half of the rules API.
type RuleWriter interface {
	UpdateRule(ctx context.Context, update api.RuleUpdate) error
}

// SaveError reports the devices whose writes failed. Writes for other
// devices may already have been applied server-side.
type SaveError struct {
	Failed []string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save failed for %s: %v", strings.Join(e.Failed, ", "), e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Updates builds one rule write per draft entry. Any unparsable threshold
// fails the whole batch before a write is issued.
func Updates(endpoint string, draft Draft) ([]api.RuleUpdate, error) {
	updates := make([]api.RuleUpdate, 0, len(draft.Entries))
	for _, e := range draft.Entries {
		threshold, err := Normalize(e.Threshold)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", e.DeviceID, err)
		}
		updates = append(updates, api.RuleUpdate{
			Endpoint:        endpoint,
			DeviceID:        e.DeviceID,
			IsActive:        draft.IsActive,
			CustomThreshold: threshold,
		})
	}
	return updates, nil
}

// Save issues all rule writes concurrently and waits for every one of them.
// It returns the saved rules only when all writes succeeded.
func Save(ctx context.Context, w RuleWriter, endpoint string, draft Draft) ([]api.Rule, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("save settings: no subscription endpoint")
	}
	updates, err := Updates(endpoint, draft)
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
		errs   error
	)
	for _, update := range updates {
		g.Go(func() error {
			if err := w.UpdateRule(ctx, update); err != nil {
				wrapped := fmt.Errorf("device %s: %w", update.DeviceID, err)
				mu.Lock()
				failed = append(failed, update.DeviceID)
				errs = multierr.Append(errs, wrapped)
				mu.Unlock()
				return wrapped
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &SaveError{Failed: slices.Sorted(slices.Values(failed)), Err: errs}
	}

	rules := make([]api.Rule, len(updates))
	for i, u := range updates {
		rules[i] = api.Rule{DeviceID: u.DeviceID, CustomThreshold: u.CustomThreshold}
	}
	return rules, nil
}

