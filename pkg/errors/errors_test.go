package errors_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/hallvik/gatekeeper/pkg/errors"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name         string
		err          *errors.Error
		expectedType errors.ErrorType
	}{
		{
			name:         "Connection Error",
			err:          errors.NewConnectionError("example.com", 443, fmt.Errorf("connection refused")),
			expectedType: errors.ErrorTypeConnection,
		},
		{
			name:         "Timeout Error",
			err:          errors.NewTimeoutError("connect", 5*time.Second),
			expectedType: errors.ErrorTypeTimeout,
		},
		{
			name:         "Protocol Error",
			err:          errors.NewProtocolError("invalid request line", fmt.Errorf("parse error")),
			expectedType: errors.ErrorTypeProtocol,
		},
		{
			name:         "IO Error",
			err:          errors.NewIOError("reading", fmt.Errorf("broken pipe")),
			expectedType: errors.ErrorTypeIO,
		},
		{
			name:         "Validation Error",
			err:          errors.NewValidationError("host cannot be empty"),
			expectedType: errors.ErrorTypeValidation,
		},
		{
			name:         "Admission Error",
			err:          errors.NewAdmissionError("thread pool full"),
			expectedType: errors.ErrorTypeAdmission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.expectedType {
				t.Errorf("expected type %v, got %v", tt.expectedType, tt.err.Type)
			}
			if tt.err.Error() == "" {
				t.Error("error message should not be empty")
			}
			if tt.err.Timestamp.IsZero() {
				t.Error("timestamp should be set")
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := errors.NewConnectionError("example.com", 443, cause)

	if err.Unwrap() != cause {
		t.Errorf("expected unwrapped error to be %v, got %v", cause, err.Unwrap())
	}
}

func TestErrorIs(t *testing.T) {
	err1 := errors.NewConnectionError("example.com", 443, fmt.Errorf("refused"))
	err2 := &errors.Error{Type: errors.ErrorTypeConnection}

	if !err1.Is(err2) {
		t.Error("errors with same type should match")
	}

	err3 := &errors.Error{Type: errors.ErrorTypeProtocol}
	if err1.Is(err3) {
		t.Error("errors with different types should not match")
	}
}

func TestIsTimeoutError(t *testing.T) {
	timeoutErr := errors.NewTimeoutError("connect", 5*time.Second)
	if !errors.IsTimeoutError(timeoutErr) {
		t.Error("should identify timeout error")
	}

	connErr := errors.NewConnectionError("example.com", 443, fmt.Errorf("refused"))
	if errors.IsTimeoutError(connErr) {
		t.Error("connection error should not be a timeout error")
	}
}

func TestGetErrorType(t *testing.T) {
	err := errors.NewProtocolError("bad request line", nil)
	if errors.GetErrorType(err) != errors.ErrorTypeProtocol {
		t.Errorf("expected protocol type, got %v", errors.GetErrorType(err))
	}

	if errors.GetErrorType(fmt.Errorf("plain")) != "" {
		t.Error("plain errors should have no structured type")
	}
}
