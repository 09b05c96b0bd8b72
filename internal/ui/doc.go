// Package ui is the fridgewatch terminal dashboard, built on Bubble Tea.
//
// # Views
//
// Three views share one header and command bar:
//
//   - Dashboard: every device with its latest temperature and pressure,
//     plus sparklines of the selected device's history
//   - Settings: the notification thresholds, edited as a draft and saved
//     explicitly
//   - Logs: the tail of the structured log file, optionally following
//
// # Data flow
//
// The model never calls the API itself. Background work happens in
// app.Controller, which writes to a state.Store; the model waits on the
// store's Watch channel and re-reads the snapshot whenever it fires.
// Key presses that need I/O (refresh, subscribe, save, select device)
// become tea.Cmds that call the Controller.
//
// Bridge carries the two requests that originate outside the UI loop: the
// push platform's permission prompt, shown as a modal, and the agent's
// focus request when a notification is clicked. Bridge also reports the
// current view's route so clicks can match the dashboard against a
// notification's target URL.
//
// Notifications shown by the agent arrive on an event channel and render as
// a toast that can be opened, dismissed or replaced by tag.
package ui
