package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/happysentences/internal/entitlement"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/pkg/provider/premium"
	"github.com/MrWong99/happysentences/pkg/provider/tts"
	"github.com/MrWong99/happysentences/pkg/types"
)

const msgPremiumDenied = "Premium voice requires a subscription, credits or an ad pass"

// handlePremium serves POST /api/tts/premium. The response shape is the one
// premium.Client consumes.
func (s *Server) handlePremium(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var req premium.Request
	if err := decode(r, &req); err != nil {
		s.deps.Metrics.RecordPremiumRequest(ctx, "invalid")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.deps.Metrics.RecordPremiumRequest(ctx, "invalid")
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	lang, err := types.ParseLanguage(string(req.Lang))
	if err != nil {
		s.deps.Metrics.RecordPremiumRequest(ctx, "invalid")
		writeError(w, http.StatusBadRequest, "Invalid language")
		return
	}

	bypass := s.devBypass(r)
	perm := entitlement.BypassPermission()
	if bypass {
		log.Info("premium voice dev bypass active, skipping permission check")
	} else {
		perm, err = s.deps.Entitlements.CheckPremium(ctx)
		if err != nil {
			log.Error("premium permission check failed", "err", err)
			s.deps.Metrics.RecordPremiumRequest(ctx, "error")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}
	if !perm.Allowed {
		s.deps.Metrics.RecordPremiumRequest(ctx, "denied")
		writeJSON(w, http.StatusPaymentRequired, premium.Response{
			Error:          msgPremiumDenied,
			RequiresAction: perm.RequiresAction,
		})
		return
	}

	if utf8.RuneCountInString(req.Text) > s.cfg.MaxTextLength {
		s.deps.Metrics.RecordPremiumRequest(ctx, "invalid")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Text too long (max %d characters)", s.cfg.MaxTextLength))
		return
	}

	if s.deps.Synthesizer == nil {
		log.Error("premium synthesis requested but no synthesizer is configured")
		s.deps.Metrics.RecordPremiumRequest(ctx, "error")
		writeError(w, http.StatusServiceUnavailable, "Failed to generate audio")
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	started := time.Now()
	clip, err := s.deps.Synthesizer.Synthesize(ctx, tts.Request{
		Text:     req.Text,
		Language: lang,
		Voice:    types.VoiceProfile{ID: voice},
	})
	s.deps.Metrics.RecordSynthesis(ctx, string(lang), err == nil, time.Since(started))
	if err != nil || clip == nil || len(clip.Data) == 0 {
		log.Error("premium synthesis failed", "err", err, "lang", lang)
		s.deps.Metrics.RecordPremiumRequest(ctx, "error")
		writeError(w, http.StatusInternalServerError, "Failed to generate audio")
		return
	}

	if !bypass {
		charged, err := s.deps.Entitlements.ConsumePremium(ctx)
		if err != nil {
			log.Error("premium charge failed", "err", err)
		} else {
			log.Debug("premium playback charged", "charged", charged)
		}
	}

	s.deps.Metrics.RecordPremiumRequest(ctx, "ok")
	writeJSON(w, http.StatusOK, premium.Response{
		Success:     true,
		AudioBase64: base64.StdEncoding.EncodeToString(clip.Data),
	})
}

// devBypass reports whether r may skip the entitlement check: only outside
// production, only with the bypass switched on, and only when the request asks
// for it.
func (s *Server) devBypass(r *http.Request) bool {
	return !s.cfg.Production && s.cfg.DevBypass && r.Header.Get(premium.DevBypassHeader) == "true"
}
