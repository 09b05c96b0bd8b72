// Package push implements the subscriber side of Web Push.
//
// DecodeKey turns the server's base64url VAPID public key into the raw
// application server key. Platform is the surface the dashboard drives to
// find, authorize and open a subscription; LocalPlatform implements it
// without a browser by generating the P-256 key pair and auth secret itself
// and pointing the endpoint at the agent's receiver.
//
// Decrypt and VerifyVAPID are used by that receiver to accept RFC 8291
// aes128gcm messages signed per RFC 8292.
package push
