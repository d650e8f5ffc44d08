package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/metrics"
)

// fixedNetwork answers "Peace" with confidence 0.8.
type fixedNetwork struct{}

func (fixedNetwork) Forward([]float64) ([]float64, error) { return []float64{0.2, 0.8}, nil }
func (fixedNetwork) InputSize() int                       { return detector.VectorLen }
func (fixedNetwork) OutputSize() int                      { return 2 }

func newTestPredictor(t *testing.T) *inference.Predictor {
	t.Helper()
	p, err := inference.NewPredictor(fixedNetwork{}, gesture.FitEncoder([]string{"Hello", "Peace"}), inference.RawLandmarks{})
	if err != nil {
		t.Fatalf("NewPredictor() error = %v", err)
	}
	return p
}

func newTestSession(t *testing.T, p *inference.Predictor) *app.Session {
	t.Helper()

	frames := capture.SyntheticFrames(4, 320, 240)
	t.Cleanup(func() { capture.CloseFrames(frames) })

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.PeaceLandmarks()})

	s, err := app.New(app.Config{
		Camera:          capture.NewMockCamera(frames, true),
		Detector:        det,
		Predictor:       p,
		DetectByDefault: true,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if response["ready"] != false || response["model"] != "NOT_READY" {
			t.Errorf("expected not ready without a predictor, got %v", response)
		}
	})

	t.Run("reports predictor and session", func(t *testing.T) {
		p := newTestPredictor(t)
		s := New(Config{Predictor: p, Session: newTestSession(t, p)})

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		var response healthResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !response.Ready || response.Model != "READY" || len(response.Classes) != 2 {
			t.Errorf("unexpected health %+v", response)
		}
		if response.Detect == nil || !*response.Detect {
			t.Error("expected detect to be reported")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/predict", "/video_feed", "/api/gestures"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_CORS(t *testing.T) {
	s := New(Config{Predictor: newTestPredictor(t)})

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected preflight status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected allow origin *, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("expected POST to be allowed, got %q", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.NewManager()
	s := New(Config{Predictor: newTestPredictor(t), Metrics: m})

	body := `{"landmarks":[` + strings.TrimSuffix(strings.Repeat("0,", detector.VectorLen), ",") + `]}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `endpoint="/predict"`) {
		t.Error("expected /predict to be recorded")
	}
}

func TestServer_ToggleDoesNotAffectPredict(t *testing.T) {
	p := newTestPredictor(t)
	session := newTestSession(t, p)
	s := New(Config{Predictor: p, Session: session})

	body := `{"landmarks":[` + strings.TrimSuffix(strings.Repeat("0.5,", detector.VectorLen), ",") + `]}`
	predict := func() string {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		return rec.Body.String()
	}

	before := predict()
	for _, detect := range []string{"false", "true"} {
		req := httptest.NewRequest(http.MethodPost, "/toggle_detection", strings.NewReader(`{"detect":`+detect+`}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle: expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if got := predict(); got != before {
			t.Errorf("detect=%s changed /predict: %s vs %s", detect, got, before)
		}
	}
}

func TestServer_VideoFeed(t *testing.T) {
	p := newTestPredictor(t)
	ts := httptest.NewServer(New(Config{Predictor: p, Session: newTestSession(t, p)}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/video_feed")
	if err != nil {
		t.Fatalf("GET /video_feed error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("unexpected Content-Type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	if line != "--frame\r\n" {
		t.Errorf("expected frame boundary, got %q", line)
	}
	line, _ = reader.ReadString('\n')
	if line != "Content-Type: image/jpeg\r\n" {
		t.Errorf("expected JPEG part, got %q", line)
	}

	t.Run("second viewer gets 409", func(t *testing.T) {
		second, err := http.Get(ts.URL + "/video_feed")
		if err != nil {
			t.Fatalf("GET /video_feed error = %v", err)
		}
		defer second.Body.Close()
		io.Copy(io.Discard, second.Body)

		if second.StatusCode != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, second.StatusCode)
		}
	})

	resp.Body.Close()
}

func TestServer_PredictionsWebsocket(t *testing.T) {
	p := newTestPredictor(t)
	ts := httptest.NewServer(New(Config{Predictor: p, Session: newTestSession(t, p)}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/predictions", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	// predictions only flow while the feed is being watched
	feed, err := http.Get(ts.URL + "/video_feed")
	if err != nil {
		t.Fatalf("GET /video_feed error = %v", err)
	}
	defer feed.Body.Close()
	go io.Copy(io.Discard, feed.Body)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var update app.Update
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !update.Hand || update.Label != "Peace" || update.Confidence != 0.8 {
		t.Errorf("unexpected update %+v", update)
	}
}

func TestServer_Catalog(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()
	st.Gestures().Upsert(&store.Gesture{Label: "Hello", Samples: 3, Captured: 1, Augmented: 2})

	s := New(Config{Store: st})
	for _, path := range []string{"/api/gestures", "/api/gestures/Hello", "/api/training/runs", "/api/captures"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusOK, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
