package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewValidationError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		err     error
		want    string
	}{
		{
			name:    "validation error with underlying error",
			message: "Invalid input",
			err:     NewValidationError("field required", nil),
			want:    "VALIDATION_ERROR: Invalid input",
		},
		{
			name:    "validation error without underlying error",
			message: "Invalid input",
			err:     nil,
			want:    "VALIDATION_ERROR: Invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidationError(tt.message, tt.err)
			if err == nil {
				t.Error("NewValidationError() returned nil")
			}
			if err.Code != "VALIDATION_ERROR" {
				t.Errorf("Code = %v, want VALIDATION_ERROR", err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Message = %v, want %v", err.Message, tt.message)
			}
		})
	}
}

func TestNewInternalError(t *testing.T) {
	message := "Database connection failed"
	err := NewInternalError(message, nil)

	if err.Code != "INTERNAL_ERROR" {
		t.Errorf("Code = %v, want INTERNAL_ERROR", err.Code)
	}
	if err.Message != message {
		t.Errorf("Message = %v, want %v", err.Message, message)
	}
}

func TestNewNotFoundError(t *testing.T) {
	message := "Resource not found"
	err := NewNotFoundError(message, nil)

	if err.Code != "NOT_FOUND" {
		t.Errorf("Code = %v, want NOT_FOUND", err.Code)
	}
	if err.Message != message {
		t.Errorf("Message = %v, want %v", err.Message, message)
	}
}

func TestNewUnauthorizedError(t *testing.T) {
	message := "Invalid credentials"
	err := NewUnauthorizedError(message, nil)

	if err.Code != "UNAUTHORIZED" {
		t.Errorf("Code = %v, want UNAUTHORIZED", err.Code)
	}
	if err.Message != message {
		t.Errorf("Message = %v, want %v", err.Message, message)
	}
}

func TestNewRateLimitedError(t *testing.T) {
	err := NewRateLimitedError("slow down")

	if err.Code != CodeRateLimited {
		t.Errorf("Code = %v, want %v", err.Code, CodeRateLimited)
	}
	if err.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus() = %d, want 429", err.HTTPStatus())
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name    string
		appErr  *AppError
		wantStr string
	}{
		{
			name: "error with underlying error",
			appErr: &AppError{
				Code:    "TEST_ERROR",
				Message: "Test message",
				Err:     stderrors.New("boom"),
			},
			wantStr: "TEST_ERROR: Test message - boom",
		},
		{
			name: "error without underlying error",
			appErr: &AppError{
				Code:    "TEST_ERROR",
				Message: "Test message",
				Err:     nil,
			},
			wantStr: "TEST_ERROR: Test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.wantStr {
				t.Errorf("Error() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewValidationError("bad", nil), http.StatusBadRequest},
		{NewNotFoundError("gone", nil), http.StatusNotFound},
		{NewUnauthorizedError("who", nil), http.StatusUnauthorized},
		{NewUnavailableError("full", nil), http.StatusServiceUnavailable},
		{NewInternalError("oops", nil), http.StatusInternalServerError},
		{&AppError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAsAppError(t *testing.T) {
	root := stderrors.New("db down")
	wrapped := fmt.Errorf("listing: %w", NewNotFoundError("notification not found", root))

	got := AsAppError(wrapped)
	if got.Code != CodeNotFound {
		t.Errorf("Code = %v, want NOT_FOUND", got.Code)
	}
	if !stderrors.Is(got, root) {
		t.Error("AppError should unwrap to the root cause")
	}

	plain := AsAppError(root)
	if plain.Code != CodeInternal {
		t.Errorf("Code = %v, want INTERNAL_ERROR", plain.Code)
	}
}
