package agent

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	DefaultTitle = "Smart Fridge"
	DefaultBody  = "You have a new message!"
	DefaultURL   = "/"

	// Tag groups notifications so a new one replaces the previous one.
	Tag = "smart-fridge-notification"

	defaultIcon = "/icon-192.png"
)

// Notification is what the agent displays for one push message.
type Notification struct {
	Title      string
	Body       string
	URL        string
	Icon       string
	Tag        string
	Renotify   bool
	ReceivedAt time.Time
}

// Target is the location a click on n should lead to.
func (n Notification) Target() string {
	if n.URL == "" {
		return DefaultURL
	}
	return n.URL
}

// DecodePayload builds a notification from a decrypted push body. A JSON
// object overrides the default title, body and url field by field; any
// other non-empty body that is not JSON becomes the notification text.
func DecodePayload(payload []byte, receivedAt time.Time) Notification {
	n := Notification{
		Title:      DefaultTitle,
		Body:       DefaultBody,
		URL:        DefaultURL,
		Icon:       defaultIcon,
		Tag:        Tag,
		Renotify:   true,
		ReceivedAt: receivedAt,
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return n
	}
	if !json.Valid(payload) {
		n.Body = string(payload)
		return n
	}

	// Valid JSON that is not an object, or has non-string fields, keeps the
	// defaults for whatever it cannot supply.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return n
	}
	override(&n.Title, fields["title"])
	override(&n.Body, fields["body"])
	override(&n.URL, fields["url"])
	return n
}

func override(dst *string, raw json.RawMessage) {
	var v string
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
		return
	}
	*dst = v
}
