package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"subject-focus/internal/apiclient"
	"subject-focus/internal/logging"
	"subject-focus/internal/session"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are only logged; the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps err to a status code and writes it.
func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, err.Error(), statusFor(err))
}

// statusFor maps session and client errors to HTTP status codes. State
// conflicts are 409, bad input is 400, and failures of the processing
// service are 502.
func statusFor(err error) int {
	var ve *apiclient.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrPlaying),
		errors.Is(err, session.ErrNoTarget),
		errors.Is(err, session.ErrNoFrame),
		errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case apiclient.IsUnknownSession(err):
		return http.StatusGone
	default:
		return http.StatusBadGateway
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
