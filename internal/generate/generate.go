// Package generate turns a user's free-text input into three short sentence
// variants and a narration line by asking an LLM for a JSON reply and checking
// it against a fixed schema.
//
// A reply that is not valid JSON or does not satisfy the schema is retried
// once with a stricter prompt and a lower temperature. Provider errors are not
// retried here; wrap the provider in a resilience.LLMFallback for that.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/pkg/provider/llm"
	"github.com/MrWong99/happysentences/pkg/types"
)

// MaxInputLength is the longest accepted input in characters.
const MaxInputLength = 1000

var (
	// ErrEmptyInput is returned for blank input.
	ErrEmptyInput = errors.New("generate: input is empty")

	// ErrInputTooLong is returned for input over MaxInputLength characters.
	ErrInputTooLong = errors.New("generate: input is too long")

	// ErrGeneration is returned when the model could not produce a valid reply.
	ErrGeneration = errors.New("generate: generation failed")

	// ErrNotConfigured means no LLM provider is available, usually because no
	// API key was given.
	ErrNotConfigured = errors.New("generate: no provider configured")
)

// Config tunes the completion requests.
type Config struct {
	Temperature      float64
	RetryTemperature float64
	MaxTokens        int
}

// DefaultConfig returns the settings the service ships with.
func DefaultConfig() Config {
	return Config{Temperature: 0.8, RetryTemperature: 0.7, MaxTokens: 800}
}

// Generator produces sentences through an LLM provider.
type Generator struct {
	provider llm.Provider
	cfg      Config
	metrics  *observe.Metrics
}

// Option configures a [Generator].
type Option func(*Generator)

// WithMetrics records durations and retries on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a generator. Zero fields in cfg take the defaults.
func New(p llm.Provider, cfg Config, opts ...Option) *Generator {
	def := DefaultConfig()
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.RetryTemperature == 0 {
		cfg.RetryTemperature = def.RetryTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	g := &Generator{provider: p, cfg: cfg}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ValidateInput checks input before any model call.
func ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}
	if utf8.RuneCountInString(input) > MaxInputLength {
		return ErrInputTooLong
	}
	return nil
}

// Generate returns sentences for input written in lang.
func (g *Generator) Generate(ctx context.Context, input string, lang types.Language) (res *Result, err error) {
	if err := ValidateInput(input); err != nil {
		return nil, err
	}
	if !lang.IsValid() {
		lang = types.LangKorean
	}
	if g == nil || g.provider == nil {
		return nil, ErrNotConfigured
	}

	ctx, span := observe.StartSpan(ctx, "generate.sentences",
		observe.AttrLang.String(string(lang)),
		observe.AttrLength.Int(utf8.RuneCountInString(input)),
	)
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		if g.metrics != nil {
			g.metrics.GenerateDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("status", status)))
		}
		observe.EndSpan(span, err)
	}()

	log := observe.Logger(ctx)

	res, err = g.attempt(ctx, input, lang, false)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, errProvider) {
		log.Error("generation request failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	log.Warn("generation reply rejected, retrying with strict prompt", "err", err)
	if g.metrics != nil {
		g.metrics.GenerateRetries.Add(ctx, 1)
	}
	res, err = g.attempt(ctx, input, lang, true)
	if err != nil {
		log.Error("generation retry failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return res, nil
}

var errProvider = errors.New("provider error")

func (g *Generator) attempt(ctx context.Context, input string, lang types.Language, strict bool) (*Result, error) {
	temp := g.cfg.Temperature
	if strict {
		temp = g.cfg.RetryTemperature
	}
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt(lang, strict),
		Messages:     []types.Message{{Role: "user", Content: userPrompt(input, lang)}},
		Temperature:  temp,
		MaxTokens:    g.cfg.MaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errProvider, err)
	}
	if resp == nil {
		return nil, errors.New("empty reply")
	}
	if resp.Truncated {
		return nil, fmt.Errorf("reply cut off at %d tokens", g.cfg.MaxTokens)
	}
	return parse(resp.Content)
}

// UserMessage returns the message shown to the user for an error returned by
// Generate.
func UserMessage(err error, lang types.Language) string {
	en := lang == types.LangEnglish
	switch {
	case errors.Is(err, ErrNotConfigured):
		if en {
			return "The service is not set up correctly. Please try again later."
		}
		return "서비스 설정에 문제가 있습니다. 잠시 후 다시 시도해주세요."
	case errors.Is(err, ErrEmptyInput):
		if en {
			return "Just one word is enough."
		}
		return "단어 하나만 적어도 됩니다."
	case errors.Is(err, ErrInputTooLong):
		if en {
			return "Please write a little shorter."
		}
		return "내용을 조금만 짧게 적어주세요."
	default:
		if en {
			return "Failed to generate sentences. Please try again in a moment."
		}
		return "문장 생성에 실패했어요. 잠시 후 다시 시도해주세요."
	}
}
