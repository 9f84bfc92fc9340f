package models

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorClassification tests the retryable/quota helpers across the taxonomy
func TestErrorClassification(t *testing.T) {
	connectivity := &ConnectivityError{Service: "redis", Err: fmt.Errorf("dial refused")}
	validation := &ValidationError{Reason: "empty content"}
	quota := &QuotaExceededError{UserID: "u1", Operation: "store", Limit: 10, Used: 11}
	decode := &DecodeError{Key: "context:u1", Err: fmt.Errorf("bad json")}

	tests := []struct {
		name      string
		err       error
		retryable bool
		quota     bool
	}{
		{"Connectivity is retryable", connectivity, true, false},
		{"Wrapped connectivity is retryable", fmt.Errorf("store: %w", connectivity), true, false},
		{"Validation is terminal", validation, false, false},
		{"Quota fails fast", quota, false, true},
		{"Wrapped quota detected", fmt.Errorf("op: %w", quota), false, true},
		{"Decode is terminal", decode, false, false},
		{"Nil error", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := IsQuotaExceeded(tt.err); got != tt.quota {
				t.Errorf("IsQuotaExceeded = %v, want %v", got, tt.quota)
			}
		})
	}
}

// TestConnectivityErrorUnwrap verifies the cause is preserved for errors.Is.
func TestConnectivityErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := &ConnectivityError{Service: "neo4j", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ConnectivityError should unwrap to its cause")
	}
}
