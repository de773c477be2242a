package registry

import "time"

// Mode is how a session's challenge is presented to the user.
type Mode string

const (
	ModeQR      Mode = "qr"
	ModePairing Mode = "pairing"
)

// Status is a session's position in the connection state machine.
type Status string

const (
	StatusInit            Status = "init"
	StatusChallengeIssued Status = "challenge_issued"
	StatusAuthenticating  Status = "authenticating"
	StatusConnected       Status = "connected"
	StatusFinalizing      Status = "finalizing"
	StatusCompleted       Status = "completed"
	StatusReconnecting    Status = "reconnecting"
	StatusFailed          Status = "failed"
	StatusTimedOut        Status = "timed_out"
)

// Terminal reports whether no further transition occurs from this status
// without external re-creation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// Session is a registry record: metadata only. Live socket handles are
// owned exclusively by the orchestrator and never persisted.
type Session struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"status"`
	Phone     string    `json:"phone,omitempty"`
	Identity  string    `json:"identity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// Good and Permanent are set together on successful finalization.
	// Once set, the record is exempt from all sweeps except explicit
	// privileged deletion.
	Good      bool `json:"good"`
	Permanent bool `json:"permanent"`

	// Attempts counts reconnects for the current connection attempt.
	Attempts int `json:"attempts"`
}

// Expired reports whether the record's TTL has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
