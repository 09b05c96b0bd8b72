// Package agent is the background notification agent.
//
// A Receiver accepts Web Push messages for subscriptions opened by
// push.LocalPlatform, checks their VAPID signature, decrypts them and passes
// the plaintext to Agent.HandlePush, which turns it into a Notification and
// hands it to a Displayer. Agent.HandleClick routes a clicked notification
// to the first open View whose location matches its target, or opens a new
// one.
//
// The agent and the dashboard share no state. Inside the dashboard process
// the agent reports through a ChannelDisplayer; the standalone
// "fridgewatch agent" command uses a PrintDisplayer.
package agent
