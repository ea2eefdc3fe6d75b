package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
	"github.com/ashureev/gita-reflect/internal/store"
)

// VerseHandler serves read-only verse and chapter endpoints.
type VerseHandler struct {
	verses store.VerseRepository
}

// NewVerseHandler creates a verse handler.
func NewVerseHandler(verses store.VerseRepository) *VerseHandler {
	return &VerseHandler{verses: verses}
}

type verseResponse struct {
	Verse   *domain.Verse   `json:"verse"`
	Chapter *domain.Chapter `json:"chapter"`
}

// GetVerse handles GET /api/verses/{id}.
func (h *VerseHandler) GetVerse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	verse, err := h.verses.GetVerse(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	chapter, err := h.verses.GetChapter(r.Context(), verse.ChapterID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, verseResponse{Verse: verse, Chapter: chapter})
}

// SearchVerses handles GET /api/verses?q=.
func (h *VerseHandler) SearchVerses(w http.ResponseWriter, r *http.Request) {
	verses, err := h.verses.SearchVerses(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(verses))
}

// ListChapters handles GET /api/chapters.
func (h *VerseHandler) ListChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := h.verses.ListChapters(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(chapters))
}

// ListChapterVerses handles GET /api/chapters/{id}/verses.
func (h *VerseHandler) ListChapterVerses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	verses, err := h.verses.ListVersesByChapter(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(verses))
}

// RegisterRoutes registers verse and chapter routes.
func (h *VerseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/verses", h.SearchVerses)
	r.Get("/verses/{id}", h.GetVerse)
	r.Get("/chapters", h.ListChapters)
	r.Get("/chapters/{id}/verses", h.ListChapterVerses)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.InvalidInput("invalid %s %q", name, raw)
	}
	return id, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
