package server

import (
	"errors"
	"net/http"

	"github.com/MrWong99/happysentences/internal/generate"
	"github.com/MrWong99/happysentences/pkg/types"
)

type generateRequest struct {
	Input string `json:"input"`
	Lang  string `json:"lang"`
}

// handleGenerate serves POST /api/generate.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, generate.UserMessage(generate.ErrEmptyInput, types.LangKorean))
		return
	}
	lang := languageOr(req.Lang, types.LangKorean)

	res, err := s.deps.Generator.Generate(r.Context(), req.Input, lang)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, generate.ErrEmptyInput), errors.Is(err, generate.ErrInputTooLong):
		writeError(w, http.StatusBadRequest, generate.UserMessage(err, lang))
	default:
		writeError(w, http.StatusInternalServerError, generate.UserMessage(err, lang))
	}
}

// languageOr parses s, falling back to def for empty or unknown values.
func languageOr(s string, def types.Language) types.Language {
	if l, err := types.ParseLanguage(s); err == nil {
		return l
	}
	return def
}
