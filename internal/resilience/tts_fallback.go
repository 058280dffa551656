package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/happysentences/pkg/provider/tts"
	"github.com/MrWong99/happysentences/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker.
//
// A voice ID is provider specific, so when a fallback serves a request that
// named a voice, the voice is dropped and the fallback uses its default.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Breakers returns the per-backend circuit breakers in failover order.
func (f *TTSFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Synthesize renders req with the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	primary := f.group.Primary()
	audio, served, err := ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Audio, error) {
		r := req
		if p != primary {
			r.Voice = types.VoiceProfile{}
		}
		return p.Synthesize(ctx, r)
	})
	if err == nil && served != f.group.entries[0].name {
		slog.Info("premium synthesis served by fallback", "provider", served)
	}
	return audio, err
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	voices, _, err := ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
	return voices, err
}
