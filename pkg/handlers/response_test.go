package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	if err := ErrorResponse(w, http.StatusNotFound, apperrors.CodeDiffJobNotFound, "Diff job not found."); err != nil {
		t.Fatalf("ErrorResponse returned error: %v", err)
	}

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["error"] != apperrors.CodeDiffJobNotFound {
		t.Errorf("body[error] = %q, want %q", body["error"], apperrors.CodeDiffJobNotFound)
	}
	if body["message"] != "Diff job not found." {
		t.Errorf("body[message] = %q", body["message"])
	}
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()

	if err := WriteJSON(w, http.StatusOK, make(chan int)); err == nil {
		t.Error("expected error for unencodable data, got nil")
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        apperrors.New(apperrors.ErrNotFound, apperrors.CodeDiffJobNotFound, "Diff job not found."),
			wantStatus: http.StatusNotFound,
			wantCode:   apperrors.CodeDiffJobNotFound,
		},
		{
			name:       "tenant denied",
			err:        apperrors.New(apperrors.ErrAccessDenied, apperrors.CodeTenantAccessDenied, "Cross-tenant access is not allowed."),
			wantStatus: http.StatusForbidden,
			wantCode:   apperrors.CodeTenantAccessDenied,
		},
		{
			name:       "wrapped invalid input",
			err:        fmt.Errorf("start: %w", apperrors.New(apperrors.ErrInvalidInput, apperrors.CodeRevisionRowsUnavailable, "unavailable")),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeRevisionRowsUnavailable,
		},
		{
			name:       "feature disabled",
			err:        apperrors.New(apperrors.ErrFeatureDisabled, apperrors.CodeDiffEngineDisabled, "off"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   apperrors.CodeDiffEngineDisabled,
		},
		{
			name:       "uncoded",
			err:        errors.New("password=hunter2 connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteServiceError(w, tt.err, zap.NewNop())

			if w.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("body[error] = %q, want %q", body["error"], tt.wantCode)
			}
		})
	}
}
