package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/pkg/logger"
)

// ToggleHandler serves /toggle_detection.
type ToggleHandler struct {
	session *app.Session
	log     logger.Logger
}

// NewToggleHandler creates a ToggleHandler for session.
func NewToggleHandler(session *app.Session, log logger.Logger) *ToggleHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ToggleHandler{session: session, log: log}
}

type toggleRequest struct {
	Detect *bool `json:"detect"`
}

type toggleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detect  bool   `json:"detect"`
}

func (h *ToggleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toggleResponse{Success: true, Message: detectMessage(h.session.Detecting()), Detect: h.session.Detecting()})
	case http.MethodPost:
		h.toggle(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ToggleHandler) toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if status, err := decodeBody(w, r, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}
	if req.Detect == nil {
		writeError(w, http.StatusUnprocessableEntity, `missing field "detect"`)
		return
	}

	if err := h.session.SetDetect(r.Context(), *req.Detect); err != nil {
		// the toggle itself took effect, only persisting it failed
		h.log.Warn(r.Context(), "failed to persist detection toggle", logger.Error(err))
	}
	writeJSON(w, http.StatusOK, toggleResponse{Success: true, Message: detectMessage(*req.Detect), Detect: *req.Detect})
}

func detectMessage(enabled bool) string {
	if enabled {
		return "Detection enabled"
	}
	return "Detection disabled"
}
