package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/pkg/logger"
)

// StreamHandler serves the session's annotated frames as MJPEG.
type StreamHandler struct {
	session *app.Session
	log     logger.Logger
}

// NewStreamHandler creates a new StreamHandler for session.
func NewStreamHandler(session *app.Session, log logger.Logger) *StreamHandler {
	return &StreamHandler{session: session, log: log}
}

// ServeHTTP streams frames until the client goes away or the camera stops.
// A second viewer gets 409 while the first is connected.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false

	for jpeg, err := range h.session.Frames(r.Context()) {
		if err != nil {
			switch {
			case errors.Is(err, app.ErrSessionBusy):
				writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			case !started:
				h.log.Error(r.Context(), "video feed unavailable", logger.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			default:
				h.log.Warn(r.Context(), "video feed ended", logger.Error(err))
			}
			return
		}

		if !started {
			w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
			return
		}
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
