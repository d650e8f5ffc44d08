package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/pkg/logger"
)

// PredictHandler serves POST /predict.
type PredictHandler struct {
	predictor *inference.Predictor
	log       logger.Logger
}

// NewPredictHandler creates a PredictHandler.
func NewPredictHandler(p *inference.Predictor, log logger.Logger) *PredictHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PredictHandler{predictor: p, log: log}
}

// PredictResponse is the body of every /predict response. Prediction and
// Label carry the same value; both are null on failure.
type PredictResponse struct {
	Prediction    *string            `json:"prediction"`
	Label         *string            `json:"label"`
	Confidence    *float64           `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Error         string             `json:"error,omitempty"`
}

func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inference.Request
	if status, err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, status, PredictResponse{Error: err.Error()})
		return
	}

	pred, err := h.predictor.PredictRequest(r.Context(), req)
	if err != nil {
		status := predictStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error(r.Context(), "prediction failed", logger.Error(err))
		}
		writeJSON(w, status, PredictResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		Prediction:    &pred.Label,
		Label:         &pred.Label,
		Confidence:    &pred.Confidence,
		Probabilities: pred.Probabilities,
	})
}

// predictStatus maps predictor errors onto HTTP status codes.
func predictStatus(err error) int {
	switch {
	case errors.Is(err, inference.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, inference.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, detector.ErrInvalidVectorLength), errors.Is(err, inference.ErrInputLength),
		errors.Is(err, inference.ErrMissingInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON body into v. Syntax errors are 400, values of
// the wrong type 422.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return 0, nil
	}

	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		return http.StatusUnprocessableEntity, fmt.Errorf("invalid value for %q: expected %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
	case errors.Is(err, io.EOF):
		return http.StatusBadRequest, errors.New("request body is empty")
	default:
		return http.StatusBadRequest, fmt.Errorf("invalid JSON body: %v", err)
	}
}
