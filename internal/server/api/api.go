// Package api provides the HTTP handlers of the mudra service.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// maxBodyBytes bounds request bodies; base64 images are the largest payloads.
const maxBodyBytes = 16 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// itemID returns the path segment after prefix, or "" for the collection itself.
func itemID(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
