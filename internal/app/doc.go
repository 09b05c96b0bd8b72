// Package app is the composition root of fridgewatch and owns its
// background work.
//
// # Wiring
//
// Run loads config, opens the log file and the push keystore, then starts:
//
//   - a Controller polling /status and the selected device's history
//   - the push receiver (agent.Receiver) on push_listen
//   - the Bubble Tea dashboard, which blocks until the user quits
//
// RunAgent and Subscribe are the headless variants used by the CLI: the
// first serves pushes and prints them, the second performs one status poll
// and the subscribe flow with a terminal prompt.
//
// # Controller
//
// Controller writes every state change to a state.Store; nothing else does.
// Each request kind carries a sequence number so that only the most
// recently issued request of that kind may apply its response. After Stop,
// late responses are dropped.
//
//	Start ─┬─> status loop   RefreshStatus every poll_interval (first tick immediate)
//	       └─> history loop  RefreshHistory every history_interval
//
//	Startup ──> Existing subscription? ──yes──> LoadRules
//	Subscribe ──> permission ──> platform.Subscribe ──> POST /subscribe ──> LoadRules
//	SaveSettings ──> settings.Save (one PUT per device) ──> CommitSettings
//
// Status poll failures keep the last known devices and only bump the
// failure counter; the dashboard shows OFFLINE after two in a row.
package app
