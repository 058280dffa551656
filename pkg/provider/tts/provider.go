// Package tts defines the Provider interface for premium speech synthesis
// backends.
//
// A provider turns one sentence into one encoded audio clip (MP3 or WAV). The
// premium voice endpoint calls it once per request and ships the clip to the
// client as base64, so there is no streaming surface: sentences are short and
// the client plays the clip as a whole.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/happysentences/pkg/types"
)

// Common MIME types returned in [Audio.MIME].
const (
	MIMEMPEG = "audio/mpeg"
	MIMEWAV  = "audio/wav"
)

// ErrEmptyText is returned by providers when asked to synthesise blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Request is a single synthesis request.
type Request struct {
	// Text is the sentence to synthesise.
	Text string

	// Language is the content language of Text.
	Language types.Language

	// Voice selects the voice. A zero ID lets the provider use its default.
	Voice types.VoiceProfile
}

// Audio is an encoded audio clip.
type Audio struct {
	// Data holds the encoded bytes.
	Data []byte

	// MIME is the content type of Data (see [MIMEMPEG], [MIMEWAV]).
	MIME string
}

// Provider is the abstraction over any premium synthesis backend.
type Provider interface {
	// Synthesize renders req into a single encoded clip.
	//
	// Returns [ErrEmptyText] for blank text. A clip with no data is an error.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// ListVoices returns the voices this provider offers. The list may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
