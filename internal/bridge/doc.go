// ABOUTME: Package documentation for the Matrix bridge
// ABOUTME: Describes the transport boundary and what the bridge does not decide

// Package bridge connects a Matrix account to the command dispatcher.
//
// The bridge is a pure transport: it filters room traffic down to prefixed
// commands, passes the Matrix sender through as the identity the dispatcher
// authorizes against, and renders outcomes back as formatted messages. It
// holds no permission state and makes no authorization decisions.
//
// Replies that dump the full permission state are redacted a few seconds
// after sending so they do not persist in room history. End-to-end
// encryption is always enabled; a configured recovery key additionally
// verifies the device for cross-signing.
package bridge
