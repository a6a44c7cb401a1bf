package http

import (
	"encoding/json"
	"net/http"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// StatusResponse is the envelope every recorder write answers with
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// headers are already sent, nothing useful to do on failure
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends {"status":"error","message":...}
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, StatusResponse{
		Status:  statusError,
		Message: message,
	})
}

func respondOK(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, StatusResponse{Status: statusOK})
}
