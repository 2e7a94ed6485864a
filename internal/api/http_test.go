package api_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"VaultQueue/internal/api"
)

func TestWrapHandlerFunc_StatusFromError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"nil error", nil, http.StatusOK},
		{"bad request", api.BadRequest(errors.New("bad input")), http.StatusBadRequest},
		{"not found", api.NotFound(errors.New("missing")), http.StatusNotFound},
		{"forbidden", api.Forbidden(errors.New("nope")), http.StatusForbidden},
		{"custom status", api.HTTPError(errors.New("teapot"), http.StatusTeapot), http.StatusTeapot},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := api.WrapHandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
				return c.err
			})
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != c.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, c.wantStatus)
			}
		})
	}
}

func TestParseJSON_RejectsUnknownFields(t *testing.T) {
	var body struct {
		Shares int64 `json:"shares"`
	}
	err := api.ParseJSON(strings.NewReader(`{"shares":1,"bogus":2}`), &body)
	if err == nil {
		t.Error("unknown field should fail strict parsing")
	}

	if err := api.ParseJSON(strings.NewReader(`{"shares":1}`), &body); err != nil {
		t.Errorf("valid body: %v", err)
	}
	if body.Shares != 1 {
		t.Errorf("shares: %d", body.Shares)
	}
}

func TestWriteJSON_ContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := api.WriteJSON(rec, map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), `"n":1`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}
