package protocol

// ReasonCode is an opaque close reason from the protocol adapter. The
// orchestrator only interprets the enumerated subset below; everything
// else falls through the default classification.
type ReasonCode string

const (
	ReasonLoggedOut          ReasonCode = "logged-out"
	ReasonBadSession         ReasonCode = "bad-session"
	ReasonUnauthorized       ReasonCode = "unauthorized"
	ReasonForbidden          ReasonCode = "forbidden"
	ReasonPreconditionFailed ReasonCode = "precondition-failed"

	ReasonConnectionLost   ReasonCode = "connection-lost"
	ReasonConnectionClosed ReasonCode = "connection-closed"
	ReasonStreamError      ReasonCode = "stream-error"
	ReasonTimedOut         ReasonCode = "timed-out"
	ReasonServerError      ReasonCode = "server-error"
	ReasonUnavailable      ReasonCode = "service-unavailable"
)

// Class partitions reason codes for retry decisions.
type Class int

const (
	// ClassTransient reasons are retried up to the attempt ceiling.
	ClassTransient Class = iota
	// ClassAuthoritative reasons are terminal: the server has rejected
	// the session and retrying cannot help.
	ClassAuthoritative
)

// reasonClasses is the single classification table. New reason codes
// are added here, never in control flow.
var reasonClasses = map[ReasonCode]Class{
	ReasonLoggedOut:          ClassAuthoritative,
	ReasonBadSession:         ClassAuthoritative,
	ReasonUnauthorized:       ClassAuthoritative,
	ReasonForbidden:          ClassAuthoritative,
	ReasonPreconditionFailed: ClassAuthoritative,

	ReasonConnectionLost:   ClassTransient,
	ReasonConnectionClosed: ClassTransient,
	ReasonStreamError:      ClassTransient,
	ReasonTimedOut:         ClassTransient,
	ReasonServerError:      ClassTransient,
	ReasonUnavailable:      ClassTransient,
}

// Classify returns the retry class for a reason code. Unknown codes are
// transient: failing open is safer than discarding a user's in-progress
// authentication.
func Classify(reason ReasonCode) Class {
	if class, ok := reasonClasses[reason]; ok {
		return class
	}
	return ClassTransient
}

// Retryable reports whether a close with this reason may be retried.
func Retryable(reason ReasonCode) bool {
	return Classify(reason) == ClassTransient
}
