package errors

import (
	"fmt"
	"testing"
)

func TestLinkError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeNotFound, "session not found")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeFinalizationFailed, "delivery check failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeFinalizationFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("session", "abc").WithDetail("attempts", 3)
	if detailed.Details["session"] != "abc" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	// Test CapacityExceeded
	err := CapacityExceeded(5)
	if err.Code != ErrCodeCapacityExceeded {
		t.Errorf("expected code %s, got %s", ErrCodeCapacityExceeded, err.Code)
	}
	if err.Details["limit"] != 5 {
		t.Error("CapacityExceeded should include limit detail")
	}

	// Test AuthRejected
	err = AuthRejected("abc", "logged-out")
	if err.Code != ErrCodeAuthRejected {
		t.Errorf("expected code %s, got %s", ErrCodeAuthRejected, err.Code)
	}
	if err.Details["reason"] != "logged-out" {
		t.Error("AuthRejected should include reason detail")
	}

	// Test SessionProtected
	err = SessionProtected("abc")
	if err.Code != ErrCodeProtected {
		t.Errorf("expected code %s, got %s", ErrCodeProtected, err.Code)
	}
	if err.Details["session"] != "abc" {
		t.Error("SessionProtected should include session detail")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should return empty code")
	}

	err := SessionNotFound("abc")
	if GetCode(err) != ErrCodeNotFound {
		t.Errorf("expected %s, got %s", ErrCodeNotFound, GetCode(err))
	}

	// Wrapped in a plain fmt error
	wrapped := fmt.Errorf("request failed: %w", err)
	if GetCode(wrapped) != ErrCodeNotFound {
		t.Error("GetCode should unwrap plain wrapped errors")
	}
}
