package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/banshee-data/chromatic/internal/monitoring"
)

// ErrorResponse is the body of every JSON error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON encodes data and writes it with status. The body is encoded
// before the header goes out, so an unencodable value (a NaN float, say)
// turns into a 500 instead of a truncated 2xx.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		monitoring.Logf("httputil: encode %T: %v", data, err)
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Error: "failed to encode response"})
		status = http.StatusInternalServerError
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// MethodNotAllowed writes a 405 listing the allowed methods, if given.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}
