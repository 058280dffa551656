// Package speaker drives an on-device speech engine for Happy Sentences.
//
// A [Speaker] turns a text request into one settled [types.Outcome]: it picks
// the tone with the emotion classifier, reshapes the text for pauses, waits for
// the engine's voices, selects a voice for the language and submits the
// utterance. Only one utterance is active at a time. Starting a new one
// swaps the single current-operation slot and cancels the previous operation,
// whose call then settles quietly as [types.KindCanceled].
//
// Every transition is written to a [diag.Store] so development tooling can
// follow the pipeline.
package speaker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/happysentences/internal/diag"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/pkg/breath"
	"github.com/MrWong99/happysentences/pkg/emotion"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
	"github.com/MrWong99/happysentences/pkg/types"
)

// Config tunes the speaker. Zero fields take the defaults noted per field.
type Config struct {
	// StabilizeDelay is waited after cancelling a previous utterance and before
	// polling voices. Default: 50ms.
	StabilizeDelay time.Duration

	// Timeout bounds the wait for a terminal engine event. Default: 30s.
	Timeout time.Duration

	// Poll is the voice-list polling budget. Default: 4 attempts, 100ms apart.
	Poll resilience.RetryPolicy

	// UserAgent is the client user agent, used to tell embedded browsers apart
	// when no voices are available.
	UserAgent string

	// SentencePause is the gap [Speaker.SpeakAll] leaves between utterances.
	// Default: 800ms.
	SentencePause time.Duration
}

func (c Config) withDefaults() Config {
	if c.StabilizeDelay <= 0 {
		c.StabilizeDelay = 50 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Poll.Name == "" {
		c.Poll.Name = "voice poll"
	}
	if c.SentencePause <= 0 {
		c.SentencePause = 800 * time.Millisecond
	}
	return c
}

// Request is a single request to read text aloud.
type Request struct {
	Text     string         `json:"text"`
	Language types.Language `json:"lang"`
	Card     *emotion.Card  `json:"card,omitempty"`
}

// operation is the single-slot handle of an in-flight Speak call.
type operation struct {
	id     uint64
	cancel context.CancelFunc

	// preempted is set when a newer Speak or Stop took over. A preempted
	// operation settles as canceled without recording a terminal diagnostic.
	preempted atomic.Bool
}

// Speaker reads text aloud through a [speech.Engine]. It is safe for
// concurrent use; concurrent calls follow "last call wins".
type Speaker struct {
	engine  speech.Engine
	store   *diag.Store
	clock   resilience.Clock
	metrics *observe.Metrics
	cfg     Config

	mu      sync.Mutex
	current *operation
	nextID  uint64
	stops   uint64
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithStore sets the diagnostics store. By default a private store is created.
func WithStore(s *diag.Store) Option {
	return func(sp *Speaker) {
		sp.store = s
	}
}

// WithClock sets the clock used for delays, polling and the timeout.
func WithClock(c resilience.Clock) Option {
	return func(sp *Speaker) {
		sp.clock = c
	}
}

// WithMetrics enables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(sp *Speaker) {
		sp.metrics = m
	}
}

// New creates a Speaker over engine.
func New(engine speech.Engine, cfg Config, opts ...Option) *Speaker {
	s := &Speaker{
		engine: engine,
		clock:  resilience.SystemClock{},
		cfg:    cfg.withDefaults(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = diag.NewStore(diag.WithClock(s.clock))
	}
	s.store.Update(func(st *diag.Status) { st.Supported = engine.Supported() })
	return s
}

// Store returns the diagnostics store the speaker writes to.
func (s *Speaker) Store() *diag.Store { return s.store }

// Config returns the effective configuration.
func (s *Speaker) Config() Config { return s.cfg }

// IsAvailable reports whether the engine can speak on this host.
func (s *Speaker) IsAvailable() bool { return s.engine.Supported() }

// OnStatusChange subscribes l to diagnostic status changes.
func (s *Speaker) OnStatusChange(l diag.Listener) (unsubscribe func()) {
	return s.store.Subscribe(l)
}

// Preload polls the engine until it reports voices or the polling budget is
// spent, and records the voice count. It returns the number of voices found.
func (s *Speaker) Preload(ctx context.Context) (int, error) {
	s.store.RecordAction(diag.ActionPreload, func(st *diag.Status) {
		st.Supported = s.engine.Supported()
	})
	if !s.engine.Supported() {
		return 0, nil
	}
	voices, err := s.pollVoices(ctx)
	if err != nil && !errors.Is(err, resilience.ErrExhausted) {
		return 0, err
	}
	slog.Info("speech voices preloaded", "count", len(voices))
	return len(voices), nil
}

// Speak reads req aloud and blocks until the utterance settles. It never
// returns an error: failures are described by the outcome's Kind.
func (s *Speaker) Speak(ctx context.Context, req Request) types.Outcome {
	ctx, span := observe.StartSpan(ctx, "speaker.speak", observe.AttrLang.String(string(req.Language)))
	start := s.clock.Now()
	out := s.speak(ctx, req)
	observe.EndOutcome(span, out)
	if s.metrics != nil {
		s.metrics.RecordSpeakOutcome(ctx, out.Emotion, string(out.Kind), s.clock.Now().Sub(start).Seconds())
	}
	return out
}

func (s *Speaker) speak(ctx context.Context, req Request) types.Outcome {
	text := cleanText(req.Text)
	emo := emotion.Classify(text, req.Card)
	profile := emotion.ProfileFor(emo)

	if text == "" {
		s.store.RecordError(string(types.KindEmptyText), "text is empty")
		return withEmotion(types.Failed(types.KindEmptyText, "text is empty"), emo)
	}
	if !s.engine.Supported() {
		s.store.Update(func(st *diag.Status) { st.Supported = false })
		s.store.RecordError(string(types.KindNotSupported), "speech synthesis is not supported")
		return withEmotion(types.Failed(types.KindNotSupported, "speech synthesis is not supported"), emo)
	}

	shaped := breath.Apply(text, profile.PauseStyle)
	lang := req.Language
	if !lang.IsValid() {
		lang = types.LangKorean
	}

	op, opCtx, hadPrevious := s.begin(ctx)
	defer s.finish(op)
	log := slog.With("op", op.id, "lang", lang, "emotion", emo)

	s.store.RecordAction(diag.ActionSpeak, func(st *diag.Status) {
		st.Supported = true
		st.Pending = true
		st.LastSpokenTextLen = utf8.RuneCountInString(text)
		st.LastSpokenLang = string(lang)
		st.CurrentEmotion = string(emo)
	})
	log.Debug("speak requested", "rate", profile.Rate, "pitch", profile.Pitch, "pause", profile.PauseStyle)

	if hadPrevious || s.engine.Speaking() {
		s.engine.Cancel()
		s.store.RecordAction(diag.ActionCancel, nil)
		log.Debug("previous utterance cancelled")
	}

	if err := resilience.Sleep(opCtx, s.clock, s.cfg.StabilizeDelay); err != nil {
		return s.canceled(op, emo, log)
	}

	voices, err := s.pollVoices(opCtx)
	switch {
	case op.preempted.Load() || opCtx.Err() != nil:
		return s.canceled(op, emo, log)
	case errors.Is(err, resilience.ErrExhausted):
		kind := types.KindNoVoices
		msg := "no voices available after retries"
		if IsEmbeddedBrowser(s.cfg.UserAgent) {
			kind = types.KindWebViewLimit
			msg = "no voices available in this embedded browser"
		}
		s.store.RecordError(string(kind), msg)
		log.Warn("speak failed", "kind", kind)
		return withEmotion(types.Failed(kind, msg), emo)
	case err != nil:
		s.store.RecordError(string(types.KindSpeakFailed), err.Error())
		log.Warn("voice listing failed", "err", err)
		return withEmotion(types.Failed(types.KindSpeakFailed, err.Error()), emo)
	}

	voice := SelectVoice(voices, lang)
	s.store.Update(func(st *diag.Status) {
		st.SelectedVoiceName = voice.Name
		st.SelectedVoiceLang = voice.Lang
	})
	log.Debug("voice selected", "voice", voice.Name, "voice_lang", voice.Lang, "local", voice.Local)

	events, err := s.submit(opCtx, op, speech.Utterance{
		Text:   shaped,
		Lang:   lang.Locale(),
		Voice:  &voice,
		Rate:   profile.Rate,
		Pitch:  profile.Pitch,
		Volume: profile.Volume,
	})
	if err != nil {
		if errors.Is(err, errPreempted) {
			return s.canceled(op, emo, log)
		}
		s.store.RecordError(string(types.KindSpeakFailed), err.Error())
		log.Warn("speak submission failed", "err", err)
		return withEmotion(types.Failed(types.KindSpeakFailed, err.Error()), emo)
	}

	return withEmotion(s.await(opCtx, op, events, log), emo)
}

var errPreempted = errors.New("speaker: preempted")

// submit hands u to the engine unless op was preempted. Holding s.mu across
// the submission orders it against the slot swap in begin, so a newer call
// either sees this utterance and cancels it, or this call sees the newer one
// and never submits.
func (s *Speaker) submit(ctx context.Context, op *operation, u speech.Utterance) (<-chan speech.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.preempted.Load() {
		return nil, errPreempted
	}
	return s.engine.Speak(ctx, u)
}

// await resolves the utterance exactly once from its event stream, the
// timeout, or cancellation.
func (s *Speaker) await(ctx context.Context, op *operation, events <-chan speech.Event, log *slog.Logger) types.Outcome {
	timeout := s.clock.After(s.cfg.Timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if op.preempted.Load() {
					return types.Failed(types.KindCanceled, "superseded")
				}
				s.store.RecordError(string(types.KindGeneric), "engine closed the utterance without a result")
				return types.Failed(types.KindGeneric, "engine closed the utterance without a result")
			}
			switch ev.Type {
			case speech.EventStart:
				s.store.RecordAction(diag.ActionStart, func(st *diag.Status) {
					st.Speaking = true
					st.Pending = false
				})
				log.Debug("utterance started")
			case speech.EventEnd:
				if op.preempted.Load() {
					return types.Failed(types.KindCanceled, "superseded")
				}
				s.store.RecordAction(diag.ActionEnd, func(st *diag.Status) {
					st.Speaking = false
					st.Pending = false
				})
				log.Debug("utterance ended")
				return types.Succeeded()
			case speech.EventError:
				if op.preempted.Load() {
					return types.Failed(types.KindCanceled, "superseded")
				}
				s.store.RecordError(ev.Code, ev.Message)
				log.Warn("utterance failed", "code", ev.Code, "message", ev.Message)
				return types.Outcome{Kind: types.KindGeneric, Code: ev.Code, Message: ev.Message}
			}
		case <-timeout:
			s.engine.Cancel()
			s.store.RecordError(string(types.KindTimeout), "no terminal event within "+s.cfg.Timeout.String())
			log.Warn("utterance timed out", "timeout", s.cfg.Timeout)
			return types.Failed(types.KindTimeout, "speech timed out")
		case <-ctx.Done():
			return s.canceled(op, "", log)
		}
	}
}

// canceled settles op as canceled. Only a caller-side cancellation (not a
// newer Speak or a Stop) is recorded, because the preempting call records its
// own transitions.
func (s *Speaker) canceled(op *operation, emo emotion.Emotion, log *slog.Logger) types.Outcome {
	if !op.preempted.Load() {
		s.engine.Cancel()
		s.store.RecordAction(diag.ActionCancel, func(st *diag.Status) {
			st.Speaking = false
			st.Pending = false
		})
		log.Debug("speak canceled by caller")
	} else {
		log.Debug("speak superseded")
	}
	return withEmotion(types.Failed(types.KindCanceled, "speech was canceled"), emo)
}

// begin installs a new operation in the slot and preempts the previous one.
func (s *Speaker) begin(ctx context.Context) (*operation, context.Context, bool) {
	opCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	op := &operation{id: s.nextID, cancel: cancel}
	prev := s.current
	if prev != nil {
		prev.preempted.Store(true)
		prev.cancel()
	}
	s.current = op
	return op, opCtx, prev != nil
}

func (s *Speaker) finish(op *operation) {
	s.mu.Lock()
	if s.current == op {
		s.current = nil
	}
	s.mu.Unlock()
	op.cancel()
}

// Stop cancels the current utterance, if any, and silences the engine.
func (s *Speaker) Stop() {
	s.mu.Lock()
	s.stops++
	if op := s.current; op != nil {
		op.preempted.Store(true)
		op.cancel()
		s.current = nil
	}
	s.mu.Unlock()

	s.engine.Cancel()
	s.store.RecordAction(diag.ActionCancel, func(st *diag.Status) {
		st.Speaking = false
		st.Pending = false
	})
	slog.Debug("speech stopped")
}

// SpeakAll reads reqs one after another, leaving pause between them (the
// configured SentencePause when pause is zero). It stops at the first
// unsuccessful outcome, on Stop, or when ctx ends, and returns the outcomes
// of the requests it attempted.
func (s *Speaker) SpeakAll(ctx context.Context, reqs []Request, pause time.Duration) []types.Outcome {
	if pause <= 0 {
		pause = s.cfg.SentencePause
	}
	s.mu.Lock()
	stops := s.stops
	s.mu.Unlock()

	outcomes := make([]types.Outcome, 0, len(reqs))
	for i, req := range reqs {
		if i > 0 {
			if err := resilience.Sleep(ctx, s.clock, pause); err != nil {
				break
			}
			if s.stoppedSince(stops) {
				break
			}
		}
		out := s.Speak(ctx, req)
		outcomes = append(outcomes, out)
		if !out.Success {
			break
		}
	}
	return outcomes
}

func (s *Speaker) stoppedSince(stops uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops != stops
}

func (s *Speaker) pollVoices(ctx context.Context) ([]speech.Voice, error) {
	var voices []speech.Voice
	_, err := s.cfg.Poll.Do(ctx, s.clock, func(ctx context.Context, _ int) (bool, error) {
		v, err := s.engine.Voices(ctx)
		if err != nil {
			return false, err
		}
		voices = v
		return len(v) > 0, nil
	})
	s.store.Update(func(st *diag.Status) {
		st.VoicesLoaded = len(voices) > 0
		st.VoicesCount = len(voices)
	})
	return voices, err
}

// SelectVoice picks the voice for lang: a local voice whose language starts
// with the language code, then any voice with that prefix, then the first
// voice. voices must not be empty.
func SelectVoice(voices []speech.Voice, lang types.Language) speech.Voice {
	code := lang.Code()
	matches := func(v speech.Voice) bool {
		return strings.HasPrefix(strings.ToLower(v.Lang), code)
	}
	for _, v := range voices {
		if v.Local && matches(v) {
			return v
		}
	}
	for _, v := range voices {
		if matches(v) {
			return v
		}
	}
	return voices[0]
}

// cleanText turns line breaks into sentence breaks and collapses whitespace.
func cleanText(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	s = strings.ReplaceAll(s, "\n", ". ")
	return strings.Join(strings.Fields(s), " ")
}

func withEmotion(o types.Outcome, e emotion.Emotion) types.Outcome {
	if e != "" {
		o.Emotion = string(e)
	}
	return o
}
