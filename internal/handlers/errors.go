package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"readalong/internal/apperr"
	"readalong/internal/service"
	"readalong/internal/validation"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, r *http.Request, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg(logMsg)
	}

	respondJSON(w, status, errorBody{Error: userMsg})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondWithServiceError maps service and authorization errors to a status.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr validation.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, r, http.StatusBadRequest, verr.Error(), "", nil)
	case errors.Is(err, service.ErrEmailTaken):
		respondWithError(w, r, http.StatusConflict, err.Error(), "", nil)
	case errors.Is(err, service.ErrProfileNotFound):
		respondWithError(w, r, http.StatusNotFound, ErrNotFound, "", nil)
	case errors.Is(err, apperr.ErrForbidden):
		respondWithError(w, r, http.StatusForbidden, err.Error(), "", nil)
	case errors.Is(err, apperr.ErrUnauthorized):
		respondWithError(w, r, http.StatusUnauthorized, err.Error(), "", nil)
	default:
		respondWithError(w, r, http.StatusInternalServerError, ErrInternalServerError, "request_failed", err)
	}
}
