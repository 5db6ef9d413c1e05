package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"secops-service/internal/hunt"
	"secops-service/internal/incident"
	"secops-service/internal/soc"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, soc.ErrNotFound),
		errors.Is(err, incident.ErrNotFound),
		errors.Is(err, hunt.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, soc.ErrInvalidTransition),
		errors.Is(err, incident.ErrInvalidTransition),
		errors.Is(err, incident.ErrClosed),
		errors.Is(err, hunt.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
