package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Strob0t/spacegate/internal/domain"
)

// writeError writes a JSON error body. Handlers in adapter/http use the same shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeResolveError maps a resolution failure to a response. Dependency
// failures get a generic message so directory details never leak.
func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "space could not be determined from request")
	case errors.Is(err, domain.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, "space not found")
	default:
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
}
