package client

import (
	"fmt"
	"time"
)

// CreateResult is the daemon's answer to a session creation request.
type CreateResult struct {
	ID             string `json:"id"`
	ChallengeImage string `json:"challenge_image,omitempty"`
	PairingCode    string `json:"pairing_code,omitempty"`
}

// Session is one persisted session record.
type Session struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Phone     string    `json:"phone,omitempty"`
	Identity  string    `json:"identity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Good      bool      `json:"good,omitempty"`
	Permanent bool      `json:"permanent,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
}

// ActiveSession is the live view of a session still being established.
type ActiveSession struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	Connected bool      `json:"connected"`
}

// SessionList is the /api/sessions response.
type SessionList struct {
	Sessions []Session       `json:"sessions"`
	Active   []ActiveSession `json:"active"`
}

// SessionDetail is one record plus live credential facts.
type SessionDetail struct {
	Session
	CredentialsValid bool       `json:"credentials_valid"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

// FileInfo describes one file in a session's credential directory.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// RunningConfig is the daemon's active configuration snapshot.
type RunningConfig struct {
	MaxSessions       int           `json:"max_sessions"`
	QRTimeout         time.Duration `json:"qr_timeout"`
	PairingTimeout    time.Duration `json:"pairing_timeout"`
	ExpiredInterval   time.Duration `json:"expired_interval"`
	OrphanInterval    time.Duration `json:"orphan_interval"`
	InvalidInterval   time.Duration `json:"invalid_interval"`
	UnscannedInterval time.Duration `json:"unscanned_interval"`
	StartedAt         time.Time     `json:"started_at"`
}

// Event is one session lifecycle notification.
type Event struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload,omitempty"`
	Time      time.Time `json:"time"`
}

// APIError is a structured error response from the daemon.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
