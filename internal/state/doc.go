// Package state provides thread-safe state management for fridgewatch.
//
// # Overview
//
// Store is the single owner of everything the dashboard renders: the
// device list from /status, the cached VAPID key, the server rule cache,
// the merged settings view, the subscription lifecycle state, and the
// selected device's history. Pollers and the subscription manager write
// through its update methods; the UI reads immutable Snapshots.
//
//	Producers (app.Controller):    Consumer (UI):
//	┌──────────────────────┐       ┌────────────────────┐
//	│ UpdateStatus()       │       │                    │
//	│ SetRules()           │──────→│ <-Watch()          │
//	│ SetSubscription()    │ mutex │ store.Snapshot()   │
//	│ SetHistory()         │       │ render             │
//	└──────────────────────┘       └────────────────────┘
//
// # Update Semantics
//
// A failed status poll keeps the previous devices and key, records the
// error and bumps ConsecutiveFailures; two failures in a row mark the
// snapshot offline. Every change to devices or rules recomputes the merged
// settings view with settings.Merge, so the view always reflects the
// latest of both inputs.
//
// The view handed out in a Snapshot is a clone. Edit surfaces take a
// settings.Draft from it, which is never written back except through
// CommitSettings after a successful save.
//
// # Change Notification
//
// Watch hands out a buffered channel per consumer. Every update performs a
// non-blocking send, so a burst of updates collapses into one wake-up and
// a slow consumer never blocks a producer.
package state
