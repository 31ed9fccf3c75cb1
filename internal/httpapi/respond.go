// Package httpapi is the thin HTTP entrypoint's route table: SSE chat and
// retrieval endpoints over the chat runner and retrieval service, matching
// the memory service's gorilla/mux router + JSON-respond helper shape.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// envelope is every JSON response's shape: {success, code,
// message, data?}.
type envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeData(w http.ResponseWriter, log zerolog.Logger, httpStatus int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	env := envelope{Success: true, Code: 0, Data: data}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeErr(w http.ResponseWriter, log zerolog.Logger, err error) {
	httpStatus, code, message := classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	env := envelope{Success: false, Code: code, Message: message}
	if jerr := json.NewEncoder(w).Encode(env); jerr != nil {
		log.Error().Err(jerr).Msg("failed to encode JSON error response")
	}
}
