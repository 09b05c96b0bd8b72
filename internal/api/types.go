package api

import (
	"bytes"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Subscription is the W3C PushSubscription JSON shape posted to /subscribe.
type Subscription = webpush.Subscription

// StatusResponse mirrors the payload returned by /status.
type StatusResponse struct {
	VAPIDPublicKey string   `json:"vapid_public_key"`
	Devices        []Device `json:"devices"`
}

// Device is one sensor as reported by /status.
type Device struct {
	DeviceID    string       `json:"device_id"`
	Name        string       `json:"name"`
	Location    string       `json:"location"`
	LastReading *LastReading `json:"last_reading"`
}

// DisplayName falls back to the id when the server has no name.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.DeviceID
}

// LastReading is the latest measurement attached to a device. Older server
// builds emit "press" instead of "pressure"; both are accepted.
type LastReading struct {
	Temp     *float64 `json:"temp"`
	Pressure *float64 `json:"pressure"`
	Press    *float64 `json:"press"`
	Time     string   `json:"time"`
}

// PressurePa returns the pressure in pascals when present.
func (r *LastReading) PressurePa() (float64, bool) {
	if r == nil {
		return 0, false
	}
	if r.Pressure != nil {
		return *r.Pressure, true
	}
	if r.Press != nil {
		return *r.Press, true
	}
	return 0, false
}

// Temperature returns the temperature in °C when present.
func (r *LastReading) Temperature() (float64, bool) {
	if r == nil || r.Temp == nil {
		return 0, false
	}
	return *r.Temp, true
}

// RulesResponse mirrors GET /subscribe?endpoint=.
type RulesResponse struct {
	IsActive bool   `json:"is_active"`
	Devices  []Rule `json:"devices"`
}

// Rule is the server-held threshold for one device. A nil threshold is an
// explicit null on the wire.
type Rule struct {
	DeviceID        string   `json:"device_id"`
	CustomThreshold *float64 `json:"custom_threshold"`
}

// RuleUpdate is the PUT /subscribe body. CustomThreshold is always sent so a
// nil value clears the rule server-side.
type RuleUpdate struct {
	Endpoint        string   `json:"endpoint"`
	DeviceID        string   `json:"device_id"`
	IsActive        bool     `json:"is_active"`
	CustomThreshold *float64 `json:"custom_threshold"`
}

// MeasurementsResponse mirrors /measurements. Data is kept raw so a
// malformed payload degrades to an empty series.
type MeasurementsResponse struct {
	Count int             `json:"count"`
	Data  json.RawMessage `json:"data"`
}

// Readings decodes Data, treating a missing or non-array value as empty.
// Elements that do not decode as a reading are skipped.
func (m MeasurementsResponse) Readings() []Reading {
	trimmed := bytes.TrimSpace(m.Data)
	readings := []Reading{}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return readings
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return readings
	}
	for _, item := range items {
		var r Reading
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// decodeMeasurements reads a /measurements body. Anything other than an
// object carrying a data array yields no readings.
func decodeMeasurements(body []byte) []Reading {
	var payload MeasurementsResponse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &payload) != nil {
		return []Reading{}
	}
	return payload.Readings()
}

// Reading is one historical measurement.
type Reading struct {
	Time  string   `json:"time"`
	Temp  *float64 `json:"temp"`
	Press *float64 `json:"press"`
}

// ParsedTime returns the timestamp as time.Time when possible.
func (r Reading) ParsedTime() time.Time {
	return parseTime(r.Time)
}

// PascalToHectopascal converts a raw sensor pressure for display.
func PascalToHectopascal(pa float64) float64 {
	return pa / 100
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", QueryTimeLayout, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
