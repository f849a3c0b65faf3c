package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"bridge-ledger/internal/domain"
)

// statusOf maps an error to its HTTP status and kind label.
func statusOf(err error) (int, string) {
	if errors.Is(err, ErrUnauthenticated) {
		return http.StatusUnauthorized, "authentication"
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindAuthorization:
		return http.StatusForbidden, string(kind)
	case domain.KindPolicy:
		return http.StatusUnprocessableEntity, string(kind)
	case domain.KindIntegrity:
		return http.StatusConflict, string(kind)
	case domain.KindState:
		switch {
		case errors.Is(err, domain.ErrPaused):
			return http.StatusServiceUnavailable, string(kind)
		case errors.Is(err, domain.ErrTransferNotFound):
			return http.StatusNotFound, string(kind)
		}
		return http.StatusConflict, string(kind)
	}
	return http.StatusInternalServerError, string(domain.KindInternal)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
