package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
)

func newTestSession(t *testing.T) *app.Session {
	t.Helper()
	s, err := app.New(app.Config{
		Camera:          capture.NewMockCamera(nil, false),
		Detector:        detector.NewMockDetector(),
		Predictor:       newReadyPredictor(t, fixedNetwork{}),
		DetectByDefault: true,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestToggleHandler(t *testing.T) {
	session := newTestSession(t)
	h := NewToggleHandler(session, nil)

	post := func(body string) (*httptest.ResponseRecorder, toggleResponse) {
		req := httptest.NewRequest(http.MethodPost, "/toggle_detection", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		var resp toggleResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		return rec, resp
	}

	t.Run("disables and enables", func(t *testing.T) {
		rec, resp := post(`{"detect": false}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if !resp.Success || resp.Message == "" || resp.Detect {
			t.Errorf("unexpected response %+v", resp)
		}
		if session.Detecting() {
			t.Error("expected detection to be off")
		}

		_, resp = post(`{"detect": true}`)
		if !resp.Success || !resp.Detect || !session.Detecting() {
			t.Errorf("expected detection to be on, got %+v", resp)
		}
	})

	t.Run("rejects bad bodies", func(t *testing.T) {
		tests := []struct {
			body   string
			status int
		}{
			{body: `not json`, status: http.StatusBadRequest},
			{body: `{}`, status: http.StatusUnprocessableEntity},
			{body: `{"detect": "yes"}`, status: http.StatusUnprocessableEntity},
		}
		for _, tt := range tests {
			rec, _ := post(tt.body)
			if rec.Code != tt.status {
				t.Errorf("body %s: expected status %d, got %d", tt.body, tt.status, rec.Code)
			}
		}
		if !session.Detecting() {
			t.Error("rejected requests must not change the toggle")
		}
	})

	t.Run("reports state on GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/toggle_detection", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		var resp toggleResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if rec.Code != http.StatusOK || !resp.Detect {
			t.Errorf("unexpected response %d %+v", rec.Code, resp)
		}
	})
}
