// Package logtail reads the tail of the dashboard's JSON log for display.
//
// # Reading
//
// Read returns the last N lines of a file using a ring buffer, so memory is
// O(N) regardless of file size. A non-positive N returns every line, and a
// missing file is treated as empty.
//
//	lines, err := logtail.Read(cfg.LogFile, 200)
//
// # Parsing
//
// The dashboard logs one JSON object per line with timestamp, level,
// message and caller keys. Parse splits such a line into an Entry, keeping
// every other key as a string field; lines that are not JSON (a panic
// trace, say) keep their text as the message. Tail combines both steps.
//
// Styling the entries is left to the UI.
package logtail
