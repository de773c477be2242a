package errors

import "fmt"

// CapacityExceeded creates an error for a creation refused at the
// concurrent-session ceiling.
func CapacityExceeded(limit int) *LinkError {
	return New(ErrCodeCapacityExceeded,
		fmt.Sprintf("maximum of %d concurrent sessions reached", limit)).
		WithDetail("limit", limit)
}

// AuthRejected creates an error for a terminal protocol-level rejection.
func AuthRejected(sessionID, reason string) *LinkError {
	return New(ErrCodeAuthRejected,
		fmt.Sprintf("session '%s' rejected by server: %s", sessionID, reason)).
		WithDetail("session", sessionID).
		WithDetail("reason", reason)
}

// ReconnectExhausted creates an error for a session abandoned after
// exceeding the reconnect-attempt ceiling.
func ReconnectExhausted(sessionID string, attempts int) *LinkError {
	return New(ErrCodeTransientDisconnect,
		fmt.Sprintf("session '%s' abandoned after %d reconnect attempts", sessionID, attempts)).
		WithDetail("session", sessionID).
		WithDetail("attempts", attempts)
}

// FinalizationFailed creates an error for a connected session that
// could not prove live message delivery.
func FinalizationFailed(sessionID string, cause error) *LinkError {
	return Wrap(cause, ErrCodeFinalizationFailed,
		fmt.Sprintf("session '%s' connected but failed delivery check", sessionID)).
		WithDetail("session", sessionID)
}

// ConnectionTimeout creates an error for a session that reached its
// deadline while still non-terminal.
func ConnectionTimeout(sessionID string, timeout string) *LinkError {
	return New(ErrCodeTimeout,
		fmt.Sprintf("session '%s' did not connect within %s", sessionID, timeout)).
		WithDetail("session", sessionID).
		WithDetail("timeout", timeout)
}

// SessionNotFound creates an error for an operation on an unknown id.
func SessionNotFound(sessionID string) *LinkError {
	return New(ErrCodeNotFound, fmt.Sprintf("session '%s' not found", sessionID)).
		WithDetail("session", sessionID)
}

// SessionProtected creates an error for a mutation refused on a
// permanent session without the admin override.
func SessionProtected(sessionID string) *LinkError {
	return New(ErrCodeProtected,
		fmt.Sprintf("session '%s' is permanent and requires the admin override to delete", sessionID)).
		WithDetail("session", sessionID)
}

// ChallengeExpired creates an error for a QR challenge that was not
// consumed before the server re-issued one.
func ChallengeExpired(sessionID string) *LinkError {
	return New(ErrCodeChallengeExpired,
		fmt.Sprintf("session '%s' challenge expired before it was scanned", sessionID)).
		WithDetail("session", sessionID)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *LinkError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *LinkError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}
