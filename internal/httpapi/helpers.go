package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cuentas.dev/internal/audit"
	"cuentas.dev/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the {message} error shape used across the API.
func writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	payload := map[string]any{
		"message": message,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeInternal converts an unexpected failure into a 500. The underlying
// error detail is attached only when the expose flag is on; raw store and
// codec errors are an information leak otherwise.
func (a *API) writeInternal(w http.ResponseWriter, r *http.Request, message string, err error) {
	obs.LogError(message, err, map[string]any{
		"path":       r.URL.Path,
		"request_id": audit.RequestIDFromContext(r.Context()),
	})
	payload := map[string]any{
		"message": message,
	}
	if a.exposeErrors {
		payload["error"] = err.Error()
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusInternalServerError, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
