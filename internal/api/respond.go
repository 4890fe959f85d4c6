/**
 * @description
 * Response helpers for the buyer-service API. Every response body is the
 * shared envelope: {ok:true, data:...} on success, {ok:false, error:{code,
 * message, details?}} on failure. Unexpected errors are logged server-side
 * and returned as a generic INTERNAL error; stack traces never reach the
 * client.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sokoyetu/buyer-service/internal/domain"
)

type envelope struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *domain.Error `json:"error,omitempty"`
}

// respondData writes a success envelope.
func respondData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{OK: true, Data: data})
}

// respondError translates an error into the failure envelope. Typed domain
// errors carry their own status and code; everything else becomes a 500.
func respondError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var apiErr *domain.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", r.URL.Path, "code", apiErr.Code, "error", apiErr.Message)
		}
		writeJSON(w, apiErr.Status, envelope{OK: false, Error: apiErr})
		return
	}

	logger.Error("unhandled error", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, envelope{OK: false, Error: &domain.Error{
		Code:    domain.CodeInternal,
		Message: "internal server error",
	}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
