package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pawkeeper/internal/types"
)

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error
}

func TestError_PaymentErrorKinds(t *testing.T) {
	cases := []struct {
		kind       types.PaymentErrorKind
		wantStatus int
		wantStepUp bool
	}{
		{types.KindCardError, http.StatusPaymentRequired, false},
		{types.KindValidationError, http.StatusBadRequest, false},
		{types.KindAuthenticationError, http.StatusPaymentRequired, true},
		{types.KindAPIError, http.StatusBadGateway, false},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		Error(rec, req, &types.PaymentError{
			Code:        "x",
			Message:     "m",
			Kind:        tc.kind,
			DeclineCode: "dc",
		})

		if rec.Code != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.kind, rec.Code, tc.wantStatus)
		}
		detail := errorBody(t, rec)
		if detail.Code != string(tc.kind) {
			t.Errorf("%s: code = %s", tc.kind, detail.Code)
		}
		if detail.StepUp != tc.wantStepUp {
			t.Errorf("%s: requires_authentication = %v", tc.kind, detail.StepUp)
		}
		if detail.DeclineCode != "dc" {
			t.Errorf("%s: decline_code = %s", tc.kind, detail.DeclineCode)
		}
	}
}

func TestError_AppErrorMapsThroughStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	Error(rec, req, types.NewAppError(types.ErrCodeNotFoundPet, "pet not found", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if detail := errorBody(t, rec); detail.Code != string(types.ErrCodeNotFoundPet) {
		t.Errorf("code = %s", detail.Code)
	}
}

func TestError_UnknownErrorIsOpaque500(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	Error(rec, req, errors.New("pgx: connection refused to db-internal:5432"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "db-internal") {
		t.Error("internal error text must not leak to clients")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	var p payload
	if err := DecodeJSON(req, &p); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if p.Name != "ok" {
		t.Errorf("Name = %s", p.Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":1}`))
	if err := DecodeJSON(req, &p); err == nil {
		t.Error("unknown fields must be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := DecodeJSON(req, &p); err == nil {
		t.Error("empty body must be rejected")
	}
}
