// Package protocol defines the contract with the messaging-protocol
// socket adapter. The adapter owns wire encryption, handshake, and
// framing; the orchestrator consumes it as an opaque event source.
package protocol

import "context"

// EventType identifies a socket lifecycle event.
type EventType string

const (
	// EventChallenge carries a QR challenge payload. Pairing-mode sockets
	// may emit it with an empty payload.
	EventChallenge EventType = "challenge"
	// EventOpen signals a fully authenticated connection.
	EventOpen EventType = "open"
	// EventClose signals the socket is gone, with a reason code.
	EventClose EventType = "close"
	// EventCredentialsChanged carries new durable credential state that
	// must be persisted.
	EventCredentialsChanged EventType = "credentials-changed"
)

// Event is one socket lifecycle event.
type Event struct {
	Type EventType

	// Challenge payload, for EventChallenge.
	Challenge string

	// Identity of the authenticated account, for EventOpen.
	Identity string

	// Reason the socket closed, for EventClose.
	Reason ReasonCode

	// Credentials is the new durable state, for EventCredentialsChanged.
	Credentials []byte
}

// SendOptions modifies message delivery.
type SendOptions struct {
	// Ephemeral requests a disappearing message.
	Ephemeral bool
}

// Socket is one live protocol connection. Implementations must close
// the Events channel when the connection is finished, after emitting
// the final close event.
type Socket interface {
	// Events returns the socket's lifecycle event stream. Events for one
	// socket arrive in order.
	Events() <-chan Event

	// Send delivers a message to the given identity.
	Send(ctx context.Context, to, content string, opts SendOptions) error

	// RequestPairingCode asks the server for a numeric pairing code tied
	// to the given phone number.
	RequestPairingCode(ctx context.Context, phone string) (string, error)

	// Logout invalidates the session server-side. Best-effort teardown.
	Logout(ctx context.Context) error

	// Close tears the connection down without logging out.
	Close() error
}

// Dialer produces a socket from stored credential state. A directory
// with a valid durable credential file resumes that session; an empty
// directory starts a fresh credential exchange.
type Dialer interface {
	Dial(ctx context.Context, credentialDir string) (Socket, error)
}
