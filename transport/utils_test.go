package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorToHttpCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not_found", status.Error(codes.NotFound, "missing"), http.StatusNotFound},
		{"already_exists", status.Error(codes.AlreadyExists, "dup"), http.StatusConflict},
		{"invalid_argument", status.Error(codes.InvalidArgument, "bad"), http.StatusBadRequest},
		{"permission_denied", status.Error(codes.PermissionDenied, "no"), http.StatusForbidden},
		{"unclassified", status.Error(codes.Internal, "boom"), http.StatusInternalServerError},
		{"plain_error", &plainError{"boom"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorToHttpCode(tt.err); got != tt.want {
				t.Errorf("ErrorToHttpCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

type plainError struct{ msg string }

func (e *plainError) Error() string { return e.msg }

func TestSendJsonResponse_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJsonResponse(rec, map[string]any{"ok": true}, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %v, want 200", rec.Code)
	}
}

func TestSendJsonResponse_Error(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJsonResponse(rec, nil, status.Error(codes.NotFound, "missing"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %v, want 404", rec.Code)
	}
}
