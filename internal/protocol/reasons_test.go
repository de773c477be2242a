package protocol

import "testing"

func TestClassifyAuthoritative(t *testing.T) {
	authoritative := []ReasonCode{
		ReasonLoggedOut,
		ReasonBadSession,
		ReasonUnauthorized,
		ReasonForbidden,
		ReasonPreconditionFailed,
	}

	for _, reason := range authoritative {
		if Classify(reason) != ClassAuthoritative {
			t.Errorf("reason %q should be authoritative", reason)
		}
		if Retryable(reason) {
			t.Errorf("reason %q must never be retried", reason)
		}
	}
}

func TestClassifyTransient(t *testing.T) {
	transient := []ReasonCode{
		ReasonConnectionLost,
		ReasonConnectionClosed,
		ReasonStreamError,
		ReasonTimedOut,
		ReasonServerError,
		ReasonUnavailable,
	}

	for _, reason := range transient {
		if Classify(reason) != ClassTransient {
			t.Errorf("reason %q should be transient", reason)
		}
		if !Retryable(reason) {
			t.Errorf("reason %q should be retryable", reason)
		}
	}
}

// Unknown codes fail open: a new server-side reason must not destroy an
// in-progress authentication.
func TestClassifyUnknownDefaultsToTransient(t *testing.T) {
	unknowns := []ReasonCode{"", "mystery-reason", "code-499"}
	for _, reason := range unknowns {
		if !Retryable(reason) {
			t.Errorf("unknown reason %q should default to retryable", reason)
		}
	}
}

// Every entry in the table must be one of the two classes; guards
// against a bad constant slipping into the table.
func TestTableCoversBothClasses(t *testing.T) {
	authoritative, transient := 0, 0
	for reason, class := range reasonClasses {
		switch class {
		case ClassAuthoritative:
			authoritative++
		case ClassTransient:
			transient++
		default:
			t.Errorf("reason %q has unknown class %d", reason, class)
		}
	}
	if authoritative == 0 || transient == 0 {
		t.Error("classification table should contain both classes")
	}
}
