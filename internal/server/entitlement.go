package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/happysentences/internal/entitlement"
	"github.com/MrWong99/happysentences/internal/observe"
)

type entitlementResponse struct {
	Entitlement entitlement.Entitlement `json:"entitlement"`
	Permission  entitlement.Permission  `json:"permission"`
}

// handleGetEntitlement serves GET /api/entitlement.
func (s *Server) handleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := s.deps.Entitlements.Get(ctx)
	if err != nil {
		s.entitlementFailure(w, r, err)
		return
	}
	perm, err := s.deps.Entitlements.CheckPremium(ctx)
	if err != nil {
		s.entitlementFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementResponse{Entitlement: e, Permission: perm})
}

// handleAddCredits serves POST /api/entitlement/credits {"amount": n}.
func (s *Server) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := s.deps.Entitlements.AddCredits(r.Context(), req.Amount)
	if err != nil {
		if errors.Is(err, entitlement.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.entitlementFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleGrantAdPass serves POST /api/entitlement/adpass {"minutes": n}. An
// empty body grants the default pass.
func (s *Server) handleGrantAdPass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := s.deps.Entitlements.GrantAdPass(r.Context(), time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		s.entitlementFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleSubscribe serves POST /api/entitlement/subscription {"until": RFC3339}.
// A missing "until" subscribes without expiry.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Until time.Time `json:"until"`
	}
	if err := decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	e, err := s.deps.Entitlements.Subscribe(r.Context(), req.Until)
	if err != nil {
		s.entitlementFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) entitlementFailure(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context()).Error("entitlement request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
