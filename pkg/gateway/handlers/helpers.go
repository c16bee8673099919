// Package handlers contains the HTTP surface of the gateway: health
// endpoints, the voice WebSocket, and the agent/document/metrics REST API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/relaykit/voicerelay/pkg/gateway/mw"
)

type apiError struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, status, errorEnvelope{Error: apiError{Message: message, RequestID: reqID}})
}

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not found")
}
