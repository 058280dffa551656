package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/happysentences/internal/diag"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/pkg/types"
)

// streamBuffer is how many status snapshots a slow websocket client may lag
// behind before updates are dropped for it.
const streamBuffer = 16

// streamWriteTimeout bounds a single websocket frame write.
const streamWriteTimeout = 5 * time.Second

func (s *Server) debugStore(w http.ResponseWriter) (*diag.Store, bool) {
	if s.deps.Speaker == nil {
		writeError(w, http.StatusServiceUnavailable, msgSpeechUnavailable)
		return nil, false
	}
	return s.deps.Speaker.Store(), true
}

// handleDebugStatus serves GET /debug/tts/status.
func (s *Server) handleDebugStatus(w http.ResponseWriter, _ *http.Request) {
	store, ok := s.debugStore(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, store.Status())
}

// handleDebugStream serves GET /debug/tts/ws. The client first receives the
// current status and then one message per change until it disconnects.
func (s *Server) handleDebugStream(w http.ResponseWriter, r *http.Request) {
	store, ok := s.debugStore(w)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("debug stream: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends anything; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	s.deps.Metrics.ActiveStreams.Add(ctx, 1)
	defer s.deps.Metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	updates := make(chan diag.Status, streamBuffer)
	unsubscribe := store.Subscribe(func(st diag.Status) {
		select {
		case updates <- st:
		default:
		}
	})
	defer unsubscribe()

	if err := writeFrame(ctx, conn, store.Status()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case st := <-updates:
			if err := writeFrame(ctx, conn, st); err != nil {
				if !errors.Is(err, context.Canceled) {
					observe.Logger(r.Context()).Debug("debug stream: write failed", "err", err)
				}
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, st diag.Status) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, st)
}

// handleDebugSelfTest serves POST /debug/tts/selftest {"lang": "kr"}. The run
// blocks until every round has settled.
func (s *Server) handleDebugSelfTest(w http.ResponseWriter, r *http.Request) {
	if s.deps.SelfTest == nil {
		writeError(w, http.StatusServiceUnavailable, msgSpeechUnavailable)
		return
	}
	var req struct {
		Lang types.Language `json:"lang"`
	}
	if err := decode(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	lang := languageOr(string(req.Lang), types.LangKorean)
	res := s.deps.SelfTest.Run(r.Context(), lang, nil)
	writeJSON(w, http.StatusOK, res)
}

// handleDebugReset serves POST /debug/tts/reset.
func (s *Server) handleDebugReset(w http.ResponseWriter, _ *http.Request) {
	store, ok := s.debugStore(w)
	if !ok {
		return
	}
	store.Reset()
	w.WriteHeader(http.StatusNoContent)
}

type breakerView struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// handleListBreakers serves GET /debug/breakers.
func (s *Server) handleListBreakers(w http.ResponseWriter, _ *http.Request) {
	out := make([]breakerView, 0, len(s.deps.Breakers))
	for _, cb := range s.deps.Breakers {
		out = append(out, breakerView{Name: cb.Name(), State: cb.State().String()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleResetBreakers serves POST /debug/breakers/reset. It closes every
// provider breaker so a fixed backend is tried again at once.
func (s *Server) handleResetBreakers(w http.ResponseWriter, r *http.Request) {
	for _, cb := range s.deps.Breakers {
		cb.Reset()
	}
	observe.Logger(r.Context()).Info("provider circuit breakers reset", "count", len(s.deps.Breakers))
	w.WriteHeader(http.StatusNoContent)
}
