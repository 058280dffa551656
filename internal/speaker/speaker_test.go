package speaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/happysentences/internal/diag"
	resmock "github.com/MrWong99/happysentences/internal/resilience/mock"
	"github.com/MrWong99/happysentences/pkg/emotion"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
	speechmock "github.com/MrWong99/happysentences/pkg/provider/speech/mock"
	"github.com/MrWong99/happysentences/pkg/types"
)

var koreanVoices = []speech.Voice{
	{ID: "en-us", Name: "English", Lang: "en-US", Local: true},
	{ID: "ko-remote", Name: "Remote Korean", Lang: "ko-KR"},
	{ID: "ko", Name: "Yuna", Lang: "ko-KR", Local: true},
}

func newSpeaker(t *testing.T, eng *speechmock.Engine, cfg Config) (*Speaker, *resmock.Clock) {
	t.Helper()
	clk := resmock.NewClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	return New(eng, cfg, WithClock(clk)), clk
}

func speakAsync(sp *Speaker, ctx context.Context, req Request) <-chan types.Outcome {
	ch := make(chan types.Outcome, 1)
	go func() { ch <- sp.Speak(ctx, req) }()
	return ch
}

// step waits until n timers are pending and advances the clock by d.
func step(clk *resmock.Clock, n int, d time.Duration) {
	clk.BlockUntil(n)
	clk.Advance(d)
}

func wait(t *testing.T, ch <-chan types.Outcome) types.Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("speak did not settle")
		return types.Outcome{}
	}
}

func TestSpeak_Success(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}}
	sp, clk := newSpeaker(t, eng, Config{})

	card := emotion.CardReal
	done := speakAsync(sp, context.Background(), Request{
		Text:     "나는 오늘 너무 힘들고 혼자인 것 같아",
		Language: types.LangKorean,
		Card:     &card,
	})
	step(clk, 1, 50*time.Millisecond)
	out := wait(t, done)

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.Emotion != string(emotion.Comfort) {
		t.Errorf("Emotion = %q, want COMFORT", out.Emotion)
	}
	if len(eng.SpeakCalls) != 1 {
		t.Fatalf("SpeakCalls = %d, want 1", len(eng.SpeakCalls))
	}
	u := eng.SpeakCalls[0]
	if u.Lang != "ko-KR" {
		t.Errorf("utterance Lang = %q, want ko-KR", u.Lang)
	}
	if u.Voice == nil || u.Voice.Name != "Yuna" {
		t.Errorf("utterance Voice = %+v, want Yuna", u.Voice)
	}
	want := emotion.ProfileFor(emotion.Comfort)
	if u.Rate != want.Rate || u.Pitch != want.Pitch || u.Volume != want.Volume {
		t.Errorf("prosody = %v/%v/%v, want %v/%v/%v", u.Rate, u.Pitch, u.Volume, want.Rate, want.Pitch, want.Volume)
	}

	st := sp.Store().Status()
	if st.LastAction != diag.ActionEnd {
		t.Errorf("LastAction = %q, want end", st.LastAction)
	}
	if st.SelectedVoiceName != "Yuna" || st.VoicesCount != 3 || !st.VoicesLoaded {
		t.Errorf("status = %+v", st)
	}
	if st.CurrentEmotion != "COMFORT" || st.LastSpokenLang != "kr" {
		t.Errorf("status = %+v", st)
	}
}

func TestSpeak_EmptyText(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}}
	sp, _ := newSpeaker(t, eng, Config{})

	out := sp.Speak(context.Background(), Request{Text: " \n\t ", Language: types.LangKorean})
	if out.Kind != types.KindEmptyText {
		t.Fatalf("Kind = %q, want empty-text", out.Kind)
	}
	if eng.SpeakCallCount() != 0 {
		t.Fatal("engine must not be called for empty text")
	}
}

func TestSpeak_NotSupported(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{Unsupported: true}
	sp, _ := newSpeaker(t, eng, Config{})

	if sp.IsAvailable() {
		t.Fatal("IsAvailable() = true, want false")
	}
	out := sp.Speak(context.Background(), Request{Text: "hello", Language: types.LangEnglish})
	if out.Kind != types.KindNotSupported {
		t.Fatalf("Kind = %q, want not-supported", out.Kind)
	}
	st := sp.Store().Status()
	if st.Supported || st.LastError == nil || st.LastError.Code != "not-supported" {
		t.Fatalf("status = %+v", st)
	}
}

func TestSpeak_NoVoicesAfterRetries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		userAgent string
		want      types.ErrorKind
	}{
		{"plain browser", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0 Safari/537.36", types.KindNoVoices},
		{"embedded browser", "Mozilla/5.0 (Linux; Android 13; wv) Chrome/119.0 Mobile Safari/537.36", types.KindWebViewLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eng := &speechmock.Engine{}
			sp, clk := newSpeaker(t, eng, Config{UserAgent: tt.userAgent})

			done := speakAsync(sp, context.Background(), Request{Text: "hello there", Language: types.LangEnglish})
			// Stabilization delay, then three backoffs between four polls.
			for i := 0; i < 4; i++ {
				step(clk, 1, 100*time.Millisecond)
			}
			out := wait(t, done)

			if out.Kind != tt.want {
				t.Fatalf("Kind = %q, want %q", out.Kind, tt.want)
			}
			if eng.VoicesCallCount != 4 {
				t.Errorf("VoicesCallCount = %d, want 4", eng.VoicesCallCount)
			}
			if eng.SpeakCallCount() != 0 {
				t.Error("engine Speak must not be called without voices")
			}
			st := sp.Store().Status()
			if st.LastError == nil || st.LastError.Code != string(tt.want) {
				t.Errorf("LastError = %+v", st.LastError)
			}
			if st.VoicesLoaded {
				t.Error("VoicesLoaded = true, want false")
			}
		})
	}
}

func TestSpeak_VoicesArriveLate(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{nil, nil, koreanVoices}}
	sp, clk := newSpeaker(t, eng, Config{})

	done := speakAsync(sp, context.Background(), Request{Text: "hello", Language: types.LangEnglish})
	for i := 0; i < 3; i++ {
		step(clk, 1, 100*time.Millisecond)
	}
	out := wait(t, done)

	if !out.Success {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if eng.SpeakCalls[0].Voice.Name != "English" {
		t.Errorf("voice = %q, want English", eng.SpeakCalls[0].Voice.Name)
	}
	if eng.SpeakCalls[0].Lang != "en-US" {
		t.Errorf("Lang = %q, want en-US", eng.SpeakCalls[0].Lang)
	}
}

func TestSpeak_EngineError(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{
		VoiceLists: [][]speech.Voice{koreanVoices},
		Script: []speech.Event{
			{Type: speech.EventStart},
			{Type: speech.EventError, Code: speech.CodeSynthesisFailed, Message: "device busy"},
		},
	}
	sp, clk := newSpeaker(t, eng, Config{})

	done := speakAsync(sp, context.Background(), Request{Text: "괜찮아", Language: types.LangKorean})
	step(clk, 1, 50*time.Millisecond)
	out := wait(t, done)

	if out.Success || out.Kind != types.KindGeneric || out.Code != speech.CodeSynthesisFailed {
		t.Fatalf("outcome = %+v", out)
	}
	st := sp.Store().Status()
	if st.LastAction != diag.ActionError || st.LastError.Message != "device busy" {
		t.Fatalf("status = %+v", st)
	}
}

func TestSpeak_SubmitError(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{
		VoiceLists: [][]speech.Voice{koreanVoices},
		SpeakErr:   errors.New("engine offline"),
	}
	sp, clk := newSpeaker(t, eng, Config{})

	done := speakAsync(sp, context.Background(), Request{Text: "hello", Language: types.LangEnglish})
	step(clk, 1, 50*time.Millisecond)
	if out := wait(t, done); out.Kind != types.KindSpeakFailed {
		t.Fatalf("Kind = %q, want speak-failed", out.Kind)
	}
}

func TestSpeak_Timeout(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}, Manual: true}
	sp, clk := newSpeaker(t, eng, Config{Timeout: 30 * time.Second})

	done := speakAsync(sp, context.Background(), Request{Text: "hello", Language: types.LangEnglish})
	step(clk, 1, 50*time.Millisecond)
	step(clk, 1, 30*time.Second)
	out := wait(t, done)

	if out.Kind != types.KindTimeout {
		t.Fatalf("Kind = %q, want timeout", out.Kind)
	}
	if eng.CancelCallCount != 1 {
		t.Errorf("CancelCallCount = %d, want 1", eng.CancelCallCount)
	}
	if st := sp.Store().Status(); st.LastError == nil || st.LastError.Code != "timeout" {
		t.Errorf("LastError = %+v", st.LastError)
	}
}

// terminalRecorder counts terminal diagnostics (end or error).
type terminalRecorder struct {
	mu    sync.Mutex
	count int
	last  diag.Action
}

func (r *terminalRecorder) listen(st diag.Status) {
	if st.LastAction != diag.ActionEnd && st.LastAction != diag.ActionError {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	r.last = st.LastAction
}

func TestSpeak_SecondCallSupersedesFirst(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}, Manual: true}
	sp, clk := newSpeaker(t, eng, Config{})
	rec := &terminalRecorder{}
	unsubscribe := sp.OnStatusChange(rec.listen)
	defer unsubscribe()

	firstSubmitted := eng.WaitSpeak()
	first := speakAsync(sp, context.Background(), Request{Text: "first sentence", Language: types.LangEnglish})
	step(clk, 1, 50*time.Millisecond)
	<-firstSubmitted

	secondSubmitted := eng.WaitSpeak()
	second := speakAsync(sp, context.Background(), Request{Text: "second sentence", Language: types.LangEnglish})

	if out := wait(t, first); out.Kind != types.KindCanceled {
		t.Fatalf("first outcome = %+v, want canceled", out)
	}

	// The first call's timeout timer stays pending on the fake clock.
	step(clk, 2, 50*time.Millisecond)
	<-secondSubmitted
	eng.Emit(1, speech.Event{Type: speech.EventStart})
	eng.Emit(1, speech.Event{Type: speech.EventEnd})

	if out := wait(t, second); !out.Success {
		t.Fatalf("second outcome = %+v, want success", out)
	}
	if eng.CancelCallCount != 1 {
		t.Errorf("CancelCallCount = %d, want 1", eng.CancelCallCount)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.count != 1 || rec.last != diag.ActionEnd {
		t.Fatalf("terminal diagnostics = %d (last %q), want exactly one end", rec.count, rec.last)
	}
}

func TestStop_CancelsCurrent(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}, Manual: true}
	sp, clk := newSpeaker(t, eng, Config{})

	submitted := eng.WaitSpeak()
	done := speakAsync(sp, context.Background(), Request{Text: "hello", Language: types.LangEnglish})
	step(clk, 1, 50*time.Millisecond)
	<-submitted

	sp.Stop()
	out := wait(t, done)
	if out.Kind != types.KindCanceled {
		t.Fatalf("Kind = %q, want canceled", out.Kind)
	}
	st := sp.Store().Status()
	if st.LastAction != diag.ActionCancel || st.Speaking {
		t.Fatalf("status = %+v", st)
	}
	if st.LastError != nil {
		t.Errorf("Stop must not record an error, got %+v", st.LastError)
	}
}

func TestSpeak_CallerContextCanceled(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}, Manual: true}
	sp, clk := newSpeaker(t, eng, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	submitted := eng.WaitSpeak()
	done := speakAsync(sp, ctx, Request{Text: "hello", Language: types.LangEnglish})
	step(clk, 1, 50*time.Millisecond)
	<-submitted

	cancel()
	if out := wait(t, done); out.Kind != types.KindCanceled {
		t.Fatalf("Kind = %q, want canceled", out.Kind)
	}
	if eng.CancelCallCount != 1 {
		t.Errorf("CancelCallCount = %d, want 1", eng.CancelCallCount)
	}
	if st := sp.Store().Status(); st.LastAction != diag.ActionCancel {
		t.Errorf("LastAction = %q, want cancel", st.LastAction)
	}
}

func TestSpeakAll_Sequential(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}}
	sp, clk := newSpeaker(t, eng, Config{})

	done := make(chan []types.Outcome, 1)
	go func() {
		done <- sp.SpeakAll(context.Background(), []Request{
			{Text: "첫 번째 문장", Language: types.LangKorean},
			{Text: "두 번째 문장", Language: types.LangKorean},
		}, 0)
	}()

	// Timeout timers of finished utterances stay pending on the fake clock.
	step(clk, 1, 50*time.Millisecond)  // first stabilization
	step(clk, 2, 800*time.Millisecond) // sentence pause
	step(clk, 2, 50*time.Millisecond)  // second stabilization

	var outs []types.Outcome
	select {
	case outs = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SpeakAll did not finish")
	}
	if len(outs) != 2 || !outs[0].Success || !outs[1].Success {
		t.Fatalf("outcomes = %+v", outs)
	}
	if eng.SpeakCallCount() != 2 {
		t.Errorf("SpeakCallCount = %d, want 2", eng.SpeakCallCount())
	}
	found := false
	for _, d := range clk.AfterCalls {
		if d == 800*time.Millisecond {
			found = true
		}
	}
	if !found {
		t.Errorf("AfterCalls = %v, want an 800ms sentence pause", clk.AfterCalls)
	}
}

func TestSpeakAll_StopsOnFailure(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{koreanVoices}}
	sp, _ := newSpeaker(t, eng, Config{})

	outs := sp.SpeakAll(context.Background(), []Request{
		{Text: "", Language: types.LangKorean},
		{Text: "never spoken", Language: types.LangKorean},
	}, time.Second)
	if len(outs) != 1 || outs[0].Kind != types.KindEmptyText {
		t.Fatalf("outcomes = %+v", outs)
	}
	if eng.SpeakCallCount() != 0 {
		t.Error("engine must not be called")
	}
}

func TestPreload(t *testing.T) {
	t.Parallel()
	eng := &speechmock.Engine{VoiceLists: [][]speech.Voice{nil, koreanVoices}}
	sp, clk := newSpeaker(t, eng, Config{})

	done := make(chan int, 1)
	go func() {
		n, err := sp.Preload(context.Background())
		if err != nil {
			t.Errorf("Preload: %v", err)
		}
		done <- n
	}()
	step(clk, 1, 100*time.Millisecond)

	if n := <-done; n != 3 {
		t.Fatalf("Preload() = %d, want 3", n)
	}
	st := sp.Store().Status()
	if st.LastAction != diag.ActionPreload || st.VoicesCount != 3 || !st.VoicesLoaded {
		t.Fatalf("status = %+v", st)
	}
}

func TestSelectVoice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		voices []speech.Voice
		lang   types.Language
		want   string
	}{
		{"local match wins", koreanVoices, types.LangKorean, "Yuna"},
		{"english local", koreanVoices, types.LangEnglish, "English"},
		{
			"prefix match without local",
			[]speech.Voice{{Name: "Fr", Lang: "fr"}, {Name: "Ko", Lang: "ko"}},
			types.LangKorean,
			"Ko",
		},
		{
			"case insensitive prefix",
			[]speech.Voice{{Name: "Fr", Lang: "fr"}, {Name: "Us", Lang: "EN-us"}},
			types.LangEnglish,
			"Us",
		},
		{
			"first voice fallback",
			[]speech.Voice{{Name: "Fr", Lang: "fr"}, {Name: "De", Lang: "de"}},
			types.LangKorean,
			"Fr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SelectVoice(tt.voices, tt.lang); got.Name != tt.want {
				t.Errorf("SelectVoice() = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"  hello   world ", "hello world"},
		{"첫 줄\n둘째 줄", "첫 줄. 둘째 줄"},
		{"a\r\nb", "a. b"},
		{"\n\n", ""},
		{"끝.\n", "끝."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	sp := New(&speechmock.Engine{}, Config{})
	cfg := sp.Config()
	if cfg.StabilizeDelay != 50*time.Millisecond || cfg.Timeout != 30*time.Second || cfg.SentencePause != 800*time.Millisecond {
		t.Fatalf("defaults = %+v", cfg)
	}
}
