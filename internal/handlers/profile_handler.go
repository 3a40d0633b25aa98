package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"readalong/internal/models"
	"readalong/internal/service"
)

// ProfileHandler serves reader profiles
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get returns a profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), actorID(r), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// Update applies a partial profile update
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd models.ProfileUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&upd); err != nil {
		respondWithError(w, r, http.StatusBadRequest, ErrInvalidJSON, "", nil)
		return
	}

	profile, err := h.profiles.Update(r.Context(), actorID(r), r.PathValue("id"), upd)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// History lists recent score changes
func (h *ProfileHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.profiles.History(r.Context(), actorID(r), r.PathValue("id"), limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []models.ReadingRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
