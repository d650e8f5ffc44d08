package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/store"
)

// defaultRunLimit is how many training runs a list returns without ?limit.
const defaultRunLimit = 20

// TrainingHandler serves recorded training runs under /api/training/runs.
type TrainingHandler struct {
	store *store.Store
}

// NewTrainingHandler creates a TrainingHandler.
func NewTrainingHandler(s *store.Store) *TrainingHandler {
	return &TrainingHandler{store: s}
}

type listRunsResponse struct {
	Runs []*store.TrainingRun `json:"runs"`
}

func (h *TrainingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := itemID(r.URL.Path, "/api/training/runs")
	if id != "" {
		h.get(w, id)
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.TrainingRuns().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list training runs")
		return
	}
	if runs == nil {
		runs = []*store.TrainingRun{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs})
}

func (h *TrainingHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.TrainingRuns().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Training run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get training run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
