package handlers

import (
	"encoding/json"
	"net/http"

	"media-grabber/internal/fault"
	"media-grabber/internal/logging"
	"media-grabber/internal/pipeline"
)

// errInvalidRequest is the error code for malformed request parameters.
const errInvalidRequest = "InvalidRequest"

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	writeJSON(w, ErrorResponse{Error: code, Message: message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, statusCode int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"status": status})
}

// writeFault answers a failed request. A client that went away gets nothing,
// and a response whose headers were already sent is aborted so the client
// sees a truncated transfer instead of a well-formed one.
func writeFault(w http.ResponseWriter, err error) {
	if pipeline.ClientGone(err) {
		return
	}
	if pipeline.Committed(err) {
		panic(http.ErrAbortHandler)
	}
	writeJSONError(w, fault.KindOf(err).String(), fault.Message(err), fault.HTTPStatus(err))
}
