// Package settings reconciles live devices with server-held notification
// rules and stages user edits apart from the reconciled view.
package settings

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/five82/fridgewatch/internal/api"
)

// Entry is one device row of the settings view. Threshold is the text form
// of the rule: "" means no rule, anything else is a decimal number. A server
// null also shows as "".
type Entry struct {
	DeviceID   string
	DeviceName string
	Threshold  string
}

// View is the reconciled, read-only settings model.
type View struct {
	IsActive bool
	Devices  []Entry
}

// Merge left-joins devices with rules on device id. Display fields come
// from the device, the threshold from the rule.
func Merge(devices []api.Device, rules []api.Rule, isActive bool) View {
	byID := make(map[string]api.Rule, len(rules))
	for _, r := range rules {
		byID[r.DeviceID] = r
	}
	entries := make([]Entry, 0, len(devices))
	for _, d := range devices {
		entry := Entry{DeviceID: d.DeviceID, DeviceName: d.DisplayName()}
		if rule, ok := byID[d.DeviceID]; ok {
			entry.Threshold = FormatThreshold(rule.CustomThreshold)
		}
		entries = append(entries, entry)
	}
	return View{IsActive: isActive, Devices: entries}
}

// Clone returns a copy that shares no storage with v.
func (v View) Clone() View {
	out := View{IsActive: v.IsActive}
	if v.Devices != nil {
		out.Devices = make([]Entry, len(v.Devices))
		copy(out.Devices, v.Devices)
	}
	return out
}

// Threshold returns the text threshold for a device and whether the device
// is in the view.
func (v View) Threshold(deviceID string) (string, bool) {
	for _, e := range v.Devices {
		if e.DeviceID == deviceID {
			return e.Threshold, true
		}
	}
	return "", false
}

// Draft is an editable copy of a View's device rows.
type Draft struct {
	IsActive bool
	Entries  []Entry
}

// Draft copies the view for editing.
func (v View) Draft() Draft {
	c := v.Clone()
	return Draft{IsActive: c.IsActive, Entries: c.Devices}
}

// Set stages a threshold text for a device. It reports false for unknown ids.
func (d *Draft) Set(deviceID, threshold string) bool {
	for i := range d.Entries {
		if d.Entries[i].DeviceID == deviceID {
			d.Entries[i].Threshold = threshold
			return true
		}
	}
	return false
}

// decimalPattern is plain decimal text: no exponents, hex, underscores or
// named values such as NaN and Inf.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Normalize converts a staged threshold into its wire form: blank and
// "null" clear the rule, anything else must parse as a decimal.
func Normalize(threshold string) (*float64, error) {
	trimmed := strings.TrimSpace(threshold)
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	text := strings.Replace(trimmed, ",", ".", 1)
	if !decimalPattern.MatchString(text) {
		return nil, fmt.Errorf("threshold %q is not a number", threshold)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("threshold %q is not a number", threshold)
	}
	return &v, nil
}

// FormatThreshold renders a wire threshold for the view.
func FormatThreshold(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
