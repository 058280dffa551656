package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/happysentences/pkg/provider/llm"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
	"github.com/MrWong99/happysentences/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods for a name no
// factory was registered under.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory signatures, one per provider kind.
type (
	LLMFactory    func(ProviderEntry) (llm.Provider, error)
	TTSFactory    func(ProviderEntry) (tts.Provider, error)
	SpeechFactory func(SpeechConfig) (speech.Engine, error)
)

// factories is one kind's name → constructor table. The registry lock guards
// it.
type factories[F any] struct {
	kind   string
	byName map[string]F
}

func newFactories[F any](kind string) factories[F] {
	return factories[F]{kind: kind, byName: make(map[string]F)}
}

func (f factories[F]) lookup(name string) (F, error) {
	fn, ok := f.byName[name]
	if !ok {
		return fn, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return fn, nil
}

// Registry maps provider names to constructors for the LLM, premium synthesis
// and host speech kinds. A later registration under the same name replaces
// the earlier one. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	llm    factories[LLMFactory]
	tts    factories[TTSFactory]
	speech factories[SpeechFactory]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:    newFactories[LLMFactory]("llm"),
		tts:    newFactories[TTSFactory]("tts"),
		speech: newFactories[SpeechFactory]("speech"),
	}
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byName[name] = f
}

// RegisterTTS registers a premium synthesis factory under name.
func (r *Registry) RegisterTTS(name string, f TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.byName[name] = f
}

// RegisterSpeech registers a host speech engine factory under name.
func (r *Registry) RegisterSpeech(name string, f SpeechFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech.byName[name] = f
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateTTS builds the synthesis provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateSpeech builds the engine named by cfg.Engine. A factory may return a
// nil engine to mean host speech is off.
func (r *Registry) CreateSpeech(cfg SpeechConfig) (speech.Engine, error) {
	r.mu.RLock()
	f, err := r.speech.lookup(cfg.Engine)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// Names returns the sorted names registered for kind: "llm", "tts" or
// "speech". Unknown kinds have no names.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.llm.kind:
		return slices.Sorted(maps.Keys(r.llm.byName))
	case r.tts.kind:
		return slices.Sorted(maps.Keys(r.tts.byName))
	case r.speech.kind:
		return slices.Sorted(maps.Keys(r.speech.byName))
	}
	return nil
}
