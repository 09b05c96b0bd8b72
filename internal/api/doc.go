// Package api provides the HTTP client for the fridge sensor API.
//
// The client is a thin wrapper around net/http with a fixed base URL and a
// fixed set of headers (Accept, User-Agent, Content-Type for bodies). It
// covers the endpoints the dashboard consumes:
//
//	GET  /status                       device snapshot + VAPID public key
//	GET  /subscribe?endpoint=          rules stored for a subscriber
//	POST /subscribe                    register a push subscription
//	PUT  /subscribe                    upsert one device rule
//	GET  /measurements?start&end&...   time-range history
//
// Non-2xx responses are returned as *StatusError; a 404 matches ErrNotFound
// via errors.Is so callers can treat "no record yet" as a normal outcome.
//
// Thresholds travel as *float64 so that an explicit JSON null (rule cleared)
// stays distinct from a numeric zero.
package api
