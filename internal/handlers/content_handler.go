package handlers

import (
	"errors"
	"net/http"

	"readalong/internal/content"
)

// ContentHandler serves the passage catalogue
type ContentHandler struct {
	library *content.Library
}

// NewContentHandler creates a new content handler
func NewContentHandler(library *content.Library) *ContentHandler {
	return &ContentHandler{library: library}
}

type passageSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Theme       string   `json:"theme,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	Sentences   int      `json:"sentences"`
}

// List returns every passage, optionally filtered with ?theme=
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	passages := h.library.List()
	if theme := r.URL.Query().Get("theme"); theme != "" {
		passages = h.library.ByTheme(theme)
	}

	out := make([]passageSummary, 0, len(passages))
	for _, p := range passages {
		out = append(out, passageSummary{
			ID:          p.ID,
			Title:       p.Title,
			Theme:       p.Theme,
			Tags:        p.Tags,
			Description: p.Description,
			Sentences:   p.Len(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one passage with its sentences
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.library.Get(r.PathValue("id"))
	if errors.Is(err, content.ErrPassageNotFound) {
		respondWithError(w, r, http.StatusNotFound, ErrNotFound, "", nil)
		return
	}
	if err != nil {
		respondWithError(w, r, http.StatusInternalServerError, ErrInternalServerError, "passage_lookup_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
