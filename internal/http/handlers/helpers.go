package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lewisdonovan/isleno-sub001/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Not-found stays distinguishable from transport failure, and forbidden
// leaks no partial data.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, service.ErrBudgetNotFound):
		writeError(w, http.StatusNotFound, "budget impact unavailable")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrERPUnavailable):
		writeError(w, http.StatusBadGateway, "budget lookup failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
