package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/happysentences/internal/library"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/pkg/types"
)

type saveRequest struct {
	Text    string `json:"text"`
	Variant string `json:"variant"`
	Replace bool   `json:"replace"`
	Lang    string `json:"lang"`
}

func (s *Server) libraryFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		writeError(w, http.StatusNotFound, "Sentence not found")
	case errors.Is(err, library.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		observe.Logger(r.Context()).Error("library request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleListSentences serves GET /api/sentences.
func (s *Server) handleListSentences(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Library.All(r.Context())
	if err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// handleTodaySentence serves GET /api/sentences/today. The body is null when
// nothing was saved today.
func (s *Server) handleTodaySentence(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Library.TodaySentence(r.Context())
	if err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleRecentSentences serves GET /api/sentences/recent?n=7.
func (s *Server) handleRecentSentences(w http.ResponseWriter, r *http.Request) {
	n := library.DefaultRecent
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	recent, err := s.deps.Library.Recent(r.Context(), n)
	if err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

// handleFavoriteSentences serves GET /api/sentences/favorites.
func (s *Server) handleFavoriteSentences(w http.ResponseWriter, r *http.Request) {
	favs, err := s.deps.Library.Favorites(r.Context())
	if err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

// handleSentenceByDate serves GET /api/sentences/date/{date}.
func (s *Server) handleSentenceByDate(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Library.ByDate(r.Context(), r.PathValue("date"))
	if err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "Sentence not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSaveSentence serves POST /api/sentences. The body is always a
// library.Result; the status tells created (201), already saved (409),
// invalid (400) and failed (500) apart.
func (s *Server) handleSaveSentence(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	lang := languageOr(req.Lang, types.LangKorean)
	variant, err := library.ParseVariant(req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		st       library.Sentence
		replaced bool
	)
	if req.Replace {
		st, replaced, err = s.deps.Library.ReplaceToday(r.Context(), req.Text, variant)
	} else {
		st, err = s.deps.Library.Save(r.Context(), req.Text, variant)
	}
	res := library.ResultOf(st, replaced, err, lang)

	status := http.StatusCreated
	switch {
	case err == nil && replaced:
		status = http.StatusOK
	case errors.Is(err, library.ErrAlreadySaved):
		status = http.StatusConflict
	case errors.Is(err, library.ErrInvalidInput):
		status = http.StatusBadRequest
	case err != nil:
		observe.Logger(r.Context()).Error("saving sentence failed", "err", err)
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

// handleToggleFavorite serves POST /api/sentences/{id}/favorite.
func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Library.ToggleFavorite(r.Context(), r.PathValue("id"))
	if err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleDeleteSentence serves DELETE /api/sentences/{id}.
func (s *Server) handleDeleteSentence(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.libraryFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
