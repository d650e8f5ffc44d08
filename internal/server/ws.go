package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/pkg/logger"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PredictionsHandler pushes the session's live predictions over a websocket.
// Predictions only flow while some client is watching /video_feed.
type PredictionsHandler struct {
	session *app.Session
	log     logger.Logger
}

// NewPredictionsHandler creates a PredictionsHandler for session.
func NewPredictionsHandler(session *app.Session, log logger.Logger) *PredictionsHandler {
	return &PredictionsHandler{session: session, log: log}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PredictionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	// the read loop only notices the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	}
}
