// Package selftest replays a fixed sentence through the speaker several times
// in a row. It is a development aid for spotting flaky speech engines, not a
// test suite: it only counts passes and failures.
package selftest

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/happysentences/internal/diag"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/internal/speaker"
	"github.com/MrWong99/happysentences/pkg/types"
)

const (
	// DefaultRounds is the number of rounds [Runner.Run] plays.
	DefaultRounds = 10

	// DefaultInterval is the pause between two rounds.
	DefaultInterval = 500 * time.Millisecond
)

var sentences = map[types.Language]string{
	types.LangKorean:  "테스트 문장입니다.",
	types.LangEnglish: "This is a test sentence.",
}

// Sentence returns the fixed test sentence for lang.
func Sentence(lang types.Language) string {
	if s, ok := sentences[lang]; ok {
		return s
	}
	return sentences[types.LangKorean]
}

// Speaker is the part of [speaker.Speaker] the runner needs.
type Speaker interface {
	Speak(ctx context.Context, req speaker.Request) types.Outcome
	Store() *diag.Store
}

// RoundError is a failed round with its outcome and the diagnostic error the
// round recorded. Error is nil when the round settled without recording one,
// as a caller cancellation does.
type RoundError struct {
	Round   int             `json:"round"`
	Kind    types.ErrorKind `json:"errorKind,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   *diag.ErrorInfo `json:"error"`
}

// Result summarises a self-test run.
type Result struct {
	Pass      int           `json:"pass"`
	Fail      int           `json:"fail"`
	Errors    []RoundError  `json:"errors"`
	TotalTime time.Duration `json:"totalTime"`
}

// Progress is called before each round with the 1-based round number.
type Progress func(round, total int)

// Runner plays the self-test.
type Runner struct {
	speaker  Speaker
	clock    resilience.Clock
	rounds   int
	interval time.Duration
}

// Option configures a [Runner].
type Option func(*Runner)

// WithClock sets the clock used for the pause between rounds and the total
// time.
func WithClock(c resilience.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithRounds overrides the number of rounds.
func WithRounds(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.rounds = n
		}
	}
}

// WithInterval overrides the pause between rounds.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// New creates a runner over sp.
func New(sp Speaker, opts ...Option) *Runner {
	r := &Runner{
		speaker:  sp,
		clock:    resilience.SystemClock{},
		rounds:   DefaultRounds,
		interval: DefaultInterval,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run speaks the test sentence for lang once per round, waiting for each
// round to settle before pausing and starting the next. A canceled ctx ends
// the run early; rounds not played are not counted.
func (r *Runner) Run(ctx context.Context, lang types.Language, progress Progress) Result {
	start := r.clock.Now()
	res := Result{Errors: []RoundError{}}
	text := Sentence(lang)
	slog.Info("speech self-test started", "lang", lang, "rounds", r.rounds)

	for round := 1; round <= r.rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		if progress != nil {
			progress(round, r.rounds)
		}

		prev := r.speaker.Store().Status().LastError
		out := r.speaker.Speak(ctx, speaker.Request{Text: text, Language: lang})
		if out.Success {
			res.Pass++
		} else {
			res.Fail++
			res.Errors = append(res.Errors, RoundError{
				Round:   round,
				Kind:    out.Kind,
				Code:    out.Code,
				Message: out.Message,
				Error:   recordedSince(prev, r.speaker.Store().Status().LastError),
			})
			slog.Warn("speech self-test round failed", "round", round, "kind", out.Kind, "code", out.Code)
		}

		if round < r.rounds {
			if err := resilience.Sleep(ctx, r.clock, r.interval); err != nil {
				break
			}
		}
	}

	res.TotalTime = r.clock.Now().Sub(start)
	slog.Info("speech self-test finished", "pass", res.Pass, "fail", res.Fail, "total_time", res.TotalTime)
	return res
}

// recordedSince returns last when it differs from prev, the error seen before
// the round started.
func recordedSince(prev, last *diag.ErrorInfo) *diag.ErrorInfo {
	if last == nil || (prev != nil && *prev == *last) {
		return nil
	}
	return last
}

// Quick speaks the test sentence once and reports whether it played.
func (r *Runner) Quick(ctx context.Context, lang types.Language) bool {
	return r.speaker.Speak(ctx, speaker.Request{Text: Sentence(lang), Language: lang}).Success
}
