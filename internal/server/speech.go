package server

import (
	"net/http"

	"github.com/MrWong99/happysentences/internal/speaker"
	"github.com/MrWong99/happysentences/pkg/emotion"
	"github.com/MrWong99/happysentences/pkg/types"
)

type speakRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts"`
	Lang  string   `json:"lang"`
	Card  string   `json:"card"`
}

type speakAllResponse struct {
	Success  bool            `json:"success"`
	Outcomes []types.Outcome `json:"outcomes"`
}

const msgSpeechUnavailable = "speech is not available on this host"

// handleSpeak serves POST /api/tts/speak. A single "text" answers with one
// outcome; "texts" plays the sentences in order and answers with all
// outcomes.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if s.deps.Speaker == nil {
		writeError(w, http.StatusServiceUnavailable, msgSpeechUnavailable)
		return
	}
	var req speakRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	lang := languageOr(req.Lang, types.LangKorean)

	var card *emotion.Card
	if req.Card != "" {
		c, err := emotion.ParseCard(req.Card)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid card")
			return
		}
		card = &c
	}

	if len(req.Texts) > 0 {
		reqs := make([]speaker.Request, len(req.Texts))
		for i, t := range req.Texts {
			reqs[i] = speaker.Request{Text: t, Language: lang, Card: card}
		}
		outcomes := s.deps.Speaker.SpeakAll(r.Context(), reqs, s.cfg.SentencePause)
		ok := len(outcomes) == len(reqs)
		for _, o := range outcomes {
			ok = ok && o.Success
		}
		writeJSON(w, http.StatusOK, speakAllResponse{Success: ok, Outcomes: outcomes})
		return
	}

	out := s.deps.Speaker.Speak(r.Context(), speaker.Request{Text: req.Text, Language: lang, Card: card})
	writeJSON(w, http.StatusOK, out)
}

// handleStop serves POST /api/tts/stop.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Speaker == nil {
		writeError(w, http.StatusServiceUnavailable, msgSpeechUnavailable)
		return
	}
	s.deps.Speaker.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// handleAvailable serves GET /api/tts/available.
func (s *Server) handleAvailable(w http.ResponseWriter, _ *http.Request) {
	available := s.deps.Speaker != nil && s.deps.Speaker.IsAvailable()
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}
