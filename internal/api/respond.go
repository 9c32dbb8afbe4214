package api

import (
	"encoding/json"
	"net/http"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// maxRequestBytes bounds every JSON request body.
const maxRequestBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeStatus writes the {success, message} envelope.
func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, wire.StatusResponse{
		Success: status < http.StatusBadRequest,
		Message: message,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	return dec.Decode(dest)
}
