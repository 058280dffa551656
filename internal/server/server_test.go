package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/happysentences/internal/diag"
	"github.com/MrWong99/happysentences/internal/entitlement"
	"github.com/MrWong99/happysentences/internal/generate"
	"github.com/MrWong99/happysentences/internal/kv"
	"github.com/MrWong99/happysentences/internal/library"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/internal/selftest"
	"github.com/MrWong99/happysentences/internal/speaker"
	"github.com/MrWong99/happysentences/pkg/provider/llm/mock"
	"github.com/MrWong99/happysentences/pkg/provider/premium"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
	speechmock "github.com/MrWong99/happysentences/pkg/provider/speech/mock"
	"github.com/MrWong99/happysentences/pkg/provider/tts"
	ttsmock "github.com/MrWong99/happysentences/pkg/provider/tts/mock"
	"github.com/MrWong99/happysentences/pkg/types"
)

const generatedReply = `{
  "lines": {
    "gentle": "오늘 많이 지쳤다면, 잠시 쉬어도 괜찮아요.",
    "clear": "지친 건 당신이 그만큼 애썼다는 뜻이에요.",
    "brave": "물 한 잔 마시고, 딱 한 가지만 해봐요."
  },
  "narration": "오늘 하루, 정말 애썼어요. 잠깐 숨을 고르고, 천천히 다시 시작해요.",
  "keywords": ["하루", "지침", "휴식"],
  "safety": {"noReligion": true, "noMedical": true}
}`

type fixture struct {
	llm          *mock.Provider
	synth        *ttsmock.Provider
	engine       *speechmock.Engine
	entitlements *entitlement.Manager
	library      *library.Store
	speaker      *speaker.Speaker
}

func newFixture(t *testing.T, cfg Config) (*fixture, http.Handler) {
	t.Helper()
	f := &fixture{
		llm:   &mock.Provider{},
		synth: &ttsmock.Provider{SynthesizeResult: &tts.Audio{Data: []byte("ID3"), MIME: tts.MIMEMPEG}},
		engine: &speechmock.Engine{
			VoiceLists: [][]speech.Voice{{{ID: "ko", Name: "Yuna", Lang: "ko-KR", Local: true}}},
		},
	}
	store := kv.NewMemory()
	f.entitlements = entitlement.NewManager(store)
	f.library = library.New(store)
	f.speaker = speaker.New(f.engine, speaker.Config{
		StabilizeDelay: time.Millisecond,
		Poll:           resilience.RetryPolicy{MaxAttempts: 1, Backoff: time.Millisecond},
		SentencePause:  time.Millisecond,
	})

	srv := New(cfg, Deps{
		Generator:    generate.New(f.llm, generate.DefaultConfig()),
		Synthesizer:  f.synth,
		Entitlements: f.entitlements,
		Library:      f.library,
		Speaker:      f.speaker,
		SelfTest:     selftest.New(f.speaker, selftest.WithRounds(2), selftest.WithInterval(time.Millisecond)),
	}, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})))
	return f, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestGenerateRoute(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{})
	f.llm.Responses = []mock.Response{{Content: generatedReply}}

	rec := do(t, h, http.MethodPost, "/api/generate", `{"input":"오늘 너무 지쳤어","lang":"kr"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decodeBody[generate.Result](t, rec)
	if res.Lines.Gentle == "" || len(res.Keywords) != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestGenerateRoute_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		reply      string
		wantStatus int
		wantError  string
	}{
		{"empty input", `{"input":"   ","lang":"kr"}`, "", http.StatusBadRequest, "단어 하나만 적어도 됩니다."},
		{"too long", `{"input":"` + strings.Repeat("a", 1001) + `","lang":"en"}`, "", http.StatusBadRequest, "Please write a little shorter."},
		{"malformed body", `{"input":`, "", http.StatusBadRequest, "단어 하나만 적어도 됩니다."},
		{"generation failed", `{"input":"hi"}`, "nope", http.StatusInternalServerError, "문장 생성에 실패했어요. 잠시 후 다시 시도해주세요."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, h := newFixture(t, Config{})
			if tt.reply != "" {
				f.llm.Responses = []mock.Response{{Content: tt.reply}, {Content: tt.reply}}
			}
			rec := do(t, h, http.MethodPost, "/api/generate", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			got := decodeBody[errorBody](t, rec)
			if got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}
		})
	}
}

func TestPremiumRoute_DeniedWithoutEntitlement(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{})

	rec := do(t, h, http.MethodPost, "/api/tts/premium", `{"text":"안녕하세요","lang":"kr"}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	resp := decodeBody[premium.Response](t, rec)
	if resp.RequiresAction != types.ActionWatchAd {
		t.Errorf("requiresAction = %q, want watch_ad", resp.RequiresAction)
	}
	if n := len(f.synth.Calls()); n != 0 {
		t.Errorf("synthesize calls = %d, want 0", n)
	}
}

func TestPremiumRoute_ChargesCredit(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{DefaultVoice: "alloy"})
	ctx := context.Background()
	if _, err := f.entitlements.AddCredits(ctx, 1); err != nil {
		t.Fatal(err)
	}

	rec := do(t, h, http.MethodPost, "/api/tts/premium", `{"text":"Hello there","lang":"en"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	resp := decodeBody[premium.Response](t, rec)
	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if !resp.Success || err != nil || string(audio) != "ID3" {
		t.Errorf("response = %+v (decode err %v)", resp, err)
	}

	calls := f.synth.Calls()
	if len(calls) != 1 || calls[0].Req.Voice.ID != "alloy" || calls[0].Req.Language != types.LangEnglish {
		t.Errorf("synthesize calls = %+v", calls)
	}
	e, err := f.entitlements.Get(ctx)
	if err != nil || e.Credits != 0 {
		t.Errorf("credits after play = %d (%v), want 0", e.Credits, err)
	}

	rec = do(t, h, http.MethodPost, "/api/tts/premium", `{"text":"Hello again","lang":"en"}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("second play status = %d, want 402", rec.Code)
	}
}

func TestPremiumRoute_DevBypass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		header     string
		wantStatus int
	}{
		{"bypass honoured", Config{DevBypass: true}, "true", http.StatusOK},
		{"header missing", Config{DevBypass: true}, "", http.StatusPaymentRequired},
		{"bypass off", Config{}, "true", http.StatusPaymentRequired},
		{"production", Config{DevBypass: true, Production: true}, "true", http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, h := newFixture(t, tt.cfg)
			rec := do(t, h, http.MethodPost, "/api/tts/premium", `{"text":"안녕","lang":"kr"}`,
				premium.DevBypassHeader, tt.header)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPremiumRoute_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"malformed", `{"text":`, "Invalid request body"},
		{"blank text", `{"text":"  ","lang":"kr"}`, "Text is required"},
		{"bad lang", `{"text":"hi","lang":"fr"}`, "Invalid language"},
		{"too long", `{"text":"` + strings.Repeat("가", 11) + `","lang":"kr"}`, "Text too long (max 10 characters)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, h := newFixture(t, Config{DevBypass: true, MaxTextLength: 10})
			rec := do(t, h, http.MethodPost, "/api/tts/premium", tt.body, premium.DevBypassHeader, "true")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeBody[errorBody](t, rec); got.Error != tt.wantError {
				t.Errorf("error = %q, want %q", got.Error, tt.wantError)
			}
		})
	}
}

func TestPremiumRoute_SynthesisFailureKeepsCredit(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.entitlements.AddCredits(ctx, 1); err != nil {
		t.Fatal(err)
	}
	f.synth.SynthesizeErr = errors.New("upstream down")

	rec := do(t, h, http.MethodPost, "/api/tts/premium", `{"text":"안녕","lang":"kr"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if e, _ := f.entitlements.Get(ctx); e.Credits != 1 {
		t.Errorf("credits = %d, want 1", e.Credits)
	}
}

func TestPremiumRoute_NoSynthesizer(t *testing.T) {
	t.Parallel()
	store := kv.NewMemory()
	h := New(Config{DevBypass: true}, Deps{
		Entitlements: entitlement.NewManager(store),
		Library:      library.New(store),
	}).Handler()

	rec := do(t, h, http.MethodPost, "/api/tts/premium", `{"text":"안녕","lang":"kr"}`,
		premium.DevBypassHeader, "true")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeBody[errorBody](t, rec); got.Error != "Failed to generate audio" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestSpeakRoute(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{})

	rec := do(t, h, http.MethodPost, "/api/tts/speak", `{"text":"천천히 해도 괜찮아요.","lang":"kr","card":"KIND"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	out := decodeBody[types.Outcome](t, rec)
	if !out.Success {
		t.Errorf("outcome = %+v", out)
	}
	if n := f.engine.SpeakCallCount(); n != 1 {
		t.Errorf("engine speak calls = %d, want 1", n)
	}
	if st := f.speaker.Store().Status(); st.LastAction != diag.ActionEnd {
		t.Errorf("last action = %q, want end", st.LastAction)
	}
}

func TestSpeakRoute_Texts(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{SentencePause: time.Millisecond})

	rec := do(t, h, http.MethodPost, "/api/tts/speak", `{"texts":["하나.","둘."],"lang":"kr"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[speakAllResponse](t, rec)
	if !resp.Success || len(resp.Outcomes) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if n := f.engine.SpeakCallCount(); n != 2 {
		t.Errorf("engine speak calls = %d, want 2", n)
	}
}

func TestSpeakRoute_InvalidCard(t *testing.T) {
	t.Parallel()
	_, h := newFixture(t, Config{})
	rec := do(t, h, http.MethodPost, "/api/tts/speak", `{"text":"hi","card":"ANGRY"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSpeechRoutes_NoSpeaker(t *testing.T) {
	t.Parallel()
	h := New(Config{}, Deps{}).Handler()

	for _, path := range []string{"/api/tts/speak", "/api/tts/stop"} {
		if rec := do(t, h, http.MethodPost, path, `{"text":"hi"}`); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/api/tts/available", "")
	if got := decodeBody[map[string]bool](t, rec); got["available"] {
		t.Error("available = true without a speaker")
	}
}

func TestLibraryRoutes(t *testing.T) {
	t.Parallel()
	_, h := newFixture(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/sentences/today", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("today before save = %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/sentences", `{"text":"오늘도 잘했어요.","variant":"gentle"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body)
	}
	saved := decodeBody[library.Sentence](t, rec)

	if rec := do(t, h, http.MethodPost, "/api/sentences", `{"text":"또 저장","variant":"clear"}`); rec.Code != http.StatusConflict {
		t.Errorf("second save status = %d, want 409", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/sentences", `{"text":"바꿔요","variant":"brave","replace":true}`); rec.Code != http.StatusOK {
		t.Errorf("replace status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/sentences", `{"text":"x","variant":"loud"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad variant status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/sentences/"+saved.ID+"/favorite", "")
	if rec.Code != http.StatusOK || !decodeBody[library.Sentence](t, rec).Favorite {
		t.Errorf("toggle favorite = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/sentences/favorites", "")
	if favs := decodeBody[[]library.Sentence](t, rec); len(favs) != 1 || favs[0].Text != "바꿔요" {
		t.Errorf("favorites = %+v", favs)
	}

	if rec := do(t, h, http.MethodGet, "/api/sentences/date/1999-01-01", ""); rec.Code != http.StatusNotFound {
		t.Errorf("by missing date status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/sentences/recent?n=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("recent bad n status = %d, want 400", rec.Code)
	}

	if rec := do(t, h, http.MethodDelete, "/api/sentences/"+saved.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/sentences/"+saved.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/sentences", "")
	if all := decodeBody[[]library.Sentence](t, rec); len(all) != 0 {
		t.Errorf("sentences after delete = %+v", all)
	}
}

func TestEntitlementRoutes(t *testing.T) {
	t.Parallel()
	_, h := newFixture(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/entitlement", "")
	got := decodeBody[entitlementResponse](t, rec)
	if got.Entitlement.Type != entitlement.TypeFree || got.Permission.Allowed {
		t.Fatalf("initial entitlement = %+v", got)
	}

	if rec := do(t, h, http.MethodPost, "/api/entitlement/credits", `{"amount":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero credits status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/entitlement/credits", `{"amount":3}`); rec.Code != http.StatusOK {
		t.Fatalf("add credits status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/entitlement", "")
	got = decodeBody[entitlementResponse](t, rec)
	if got.Entitlement.Credits != 3 || !got.Permission.Allowed {
		t.Errorf("entitlement after credits = %+v", got)
	}

	if rec := do(t, h, http.MethodPost, "/api/entitlement/adpass", ""); rec.Code != http.StatusOK {
		t.Errorf("ad pass status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/entitlement/subscription", `{"until":"2999-01-01T00:00:00Z"}`); rec.Code != http.StatusOK {
		t.Errorf("subscribe status = %d", rec.Code)
	}
}

func TestProductionHidesDevRoutes(t *testing.T) {
	t.Parallel()
	_, h := newFixture(t, Config{Production: true})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/debug/tts/status"},
		{http.MethodPost, "/debug/tts/reset"},
		{http.MethodPost, "/api/entitlement/credits"},
	} {
		if rec := do(t, h, r.method, r.path, ""); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want it hidden", r.method, r.path, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/entitlement", ""); rec.Code != http.StatusOK {
		t.Errorf("entitlement read status = %d, want 200", rec.Code)
	}
}

func TestDebugRoutes(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{})
	f.speaker.Store().RecordError("synthesis-failed", "boom")

	rec := do(t, h, http.MethodGet, "/debug/tts/status", "")
	st := decodeBody[diag.Status](t, rec)
	if st.LastAction != diag.ActionError || st.LastError == nil {
		t.Fatalf("status = %+v", st)
	}

	rec = do(t, h, http.MethodPost, "/debug/tts/selftest", `{"lang":"en"}`)
	res := decodeBody[selftest.Result](t, rec)
	if res.Pass != 2 || res.Fail != 0 {
		t.Errorf("self-test = %+v", res)
	}
	if calls := f.engine.SpeakCalls; len(calls) == 0 || calls[0].Lang != "en-US" {
		t.Errorf("self-test spoke %+v", calls)
	}

	if rec := do(t, h, http.MethodPost, "/debug/tts/reset", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if st := f.speaker.Store().Status(); st.LastAction != diag.ActionIdle || st.LastError != nil {
		t.Errorf("status after reset = %+v", st)
	}
}

func TestDebugStream(t *testing.T) {
	t.Parallel()
	f, h := newFixture(t, Config{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/debug/tts/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var first diag.Status
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.LastAction != diag.ActionIdle {
		t.Errorf("snapshot action = %q, want idle", first.LastAction)
	}

	f.speaker.Store().RecordError("synthesis-failed", "boom")
	var next diag.Status
	if err := wsjson.Read(ctx, conn, &next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.LastAction != diag.ActionError || next.LastError == nil || next.LastError.Code != "synthesis-failed" {
		t.Errorf("update = %+v", next)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	_, h := newFixture(t, Config{})

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body)
	}
}

func TestDebugBreakers(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm:openai", MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(func() error { return errors.New("down") })
	h := New(Config{}, Deps{Breakers: []*resilience.CircuitBreaker{cb}}).Handler()

	views := decodeBody[[]breakerView](t, do(t, h, http.MethodGet, "/debug/breakers", ""))
	if len(views) != 1 || views[0].Name != "llm:openai" || views[0].State != "open" {
		t.Fatalf("breakers = %+v", views)
	}

	if rec := do(t, h, http.MethodPost, "/debug/breakers/reset", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("state after reset = %v, want closed", cb.State())
	}

	prod := New(Config{Production: true}, Deps{Breakers: []*resilience.CircuitBreaker{cb}}).Handler()
	if rec := do(t, prod, http.MethodPost, "/debug/breakers/reset", ""); rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("production reset status = %d, want it hidden", rec.Code)
	}
}
