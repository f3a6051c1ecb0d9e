package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/middleware"
	"github.com/hitoshi/gatekeeper/internal/model"
	"github.com/hitoshi/gatekeeper/internal/repository"
	"github.com/hitoshi/gatekeeper/internal/resource"
)

// decodeErrorBody はエラーエンベロープをデコードする。
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var env middleware.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode error envelope: %v (body=%q)", err, w.Body.String())
	}
	return env.Error
}

// decodeData は成功エンベロープのdataをdstにデコードする。
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode data envelope: %v", err)
	}
	if len(env.Data) == 0 {
		t.Fatal("response has no data field")
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

func TestHandleServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantField  string
	}{
		{"api error", model.NewValidationError("age", "bad"), http.StatusBadRequest, model.ErrKindValidation, "age"},
		{"validation error", &resource.ValidationError{Field: "email", Reason: "bad"}, http.StatusBadRequest, model.ErrKindValidation, "email"},
		{"wrapped not found", fmt.Errorf("lookup: %w", repository.ErrNotFound), http.StatusNotFound, model.ErrKindNotFound, ""},
		{"forbidden", auth.ErrForbidden, http.StatusForbidden, model.ErrKindForbidden, ""},
		{"expired", auth.ErrExpired, http.StatusUnauthorized, model.ErrKindUnauthorized, ""},
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, model.ErrKindUnauthorized, ""},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, model.ErrKindInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/resources/users/1", nil)
			w := httptest.NewRecorder()

			handleServiceError(w, req, "user", tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeErrorBody(t, w)
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
		})
	}
}

func TestHandleServiceError_InternalErrorDoesNotLeakDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleServiceError(w, req, "user", errors.New("signing key sk-secret-value"))

	if strings.Contains(w.Body.String(), "sk-secret-value") {
		t.Errorf("response leaked internal error: %s", w.Body.String())
	}
}

func TestHandleServiceError_NotFoundUsesResourceName(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleServiceError(w, req, "product", repository.ErrNotFound)

	body := decodeErrorBody(t, w)
	if body.Message != "product not found" {
		t.Errorf("message = %q, want %q", body.Message, "product not found")
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{model.ErrKindUnauthorized, http.StatusUnauthorized},
		{model.ErrKindForbidden, http.StatusForbidden},
		{model.ErrKindRateLimitExceeded, http.StatusTooManyRequests},
		{model.ErrKindNotFound, http.StatusNotFound},
		{model.ErrKindValidation, http.StatusBadRequest},
		{model.ErrKindInvalidRequest, http.StatusBadRequest},
		{model.ErrKindMethodNotAllowed, http.StatusMethodNotAllowed},
		{model.ErrKindInternal, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(&model.APIError{Kind: tt.kind}); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%q) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name *string `json:"name"`
		Age  *int    `json:"age"`
	}

	tests := []struct {
		name      string
		body      string
		wantErr   bool
		wantKind  string
		wantField string
	}{
		{"valid", `{"name":"John","age":30}`, false, "", ""},
		{"unknown field", `{"name":"John","admin":true}`, true, model.ErrKindInvalidRequest, ""},
		{"trailing data", `{"name":"John"}{"name":"Jane"}`, true, model.ErrKindInvalidRequest, ""},
		{"not json", `name=John`, true, model.ErrKindInvalidRequest, ""},
		{"empty body", ``, true, model.ErrKindInvalidRequest, ""},
		{"string for number", `{"age":"thirty"}`, true, model.ErrKindValidation, "age"},
		{"fractional number for int", `{"age":30.5}`, true, model.ErrKindValidation, "age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst payload
			err := decodeJSON(w, req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}

			writeDecodeError(w, err)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			body := decodeErrorBody(t, w)
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
		})
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, req, &dst); err == nil {
		t.Error("expected error for oversized body")
	}
}

func TestWriteData_Envelope(t *testing.T) {
	w := httptest.NewRecorder()

	writeData(w, http.StatusCreated, healthResponse{Status: "ok"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":{"status":"ok"}}` {
		t.Errorf("body = %s", got)
	}
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got healthResponse
	decodeData(t, w, &got)
	if got.Status != "ok" {
		t.Errorf("status = %q, want ok", got.Status)
	}
}
