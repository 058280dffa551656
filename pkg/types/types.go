// Package types defines the shared types used across all Happy Sentences packages.
//
// These types form the lingua franca between the speech pipeline, the premium
// voice client, the HTTP layer, and the CLI. Each package defines its own domain
// types, but cross-cutting data structures live here to avoid circular imports.
package types

import "fmt"

// Language is the content language of a sentence. The application only ever
// produces Korean or English text.
type Language string

const (
	// LangKorean is the Korean language tag used throughout the application.
	LangKorean Language = "kr"

	// LangEnglish is the English language tag.
	LangEnglish Language = "en"
)

// ParseLanguage converts s into a [Language]. Returns an error for anything
// other than "kr" or "en".
func ParseLanguage(s string) (Language, error) {
	l := Language(s)
	if !l.IsValid() {
		return "", fmt.Errorf("types: invalid language %q; valid values: kr, en", s)
	}
	return l, nil
}

// IsValid reports whether l is a recognised language.
func (l Language) IsValid() bool {
	return l == LangKorean || l == LangEnglish
}

// Code returns the ISO 639-1 code used to match voice languages ("ko" / "en").
func (l Language) Code() string {
	if l == LangKorean {
		return "ko"
	}
	return "en"
}

// Locale returns the BCP-47 tag assigned to an utterance ("ko-KR" / "en-US").
func (l Language) Locale() string {
	if l == LangKorean {
		return "ko-KR"
	}
	return "en-US"
}

// ErrorKind classifies why a speech or playback attempt did not succeed.
// Engine-reported failures use [KindGeneric] and carry the raw engine code in
// [Outcome.Code].
type ErrorKind string

const (
	KindNotSupported   ErrorKind = "not-supported"
	KindNoVoices       ErrorKind = "no-voices"
	KindWebViewLimit   ErrorKind = "webview-limit"
	KindTimeout        ErrorKind = "timeout"
	KindGeneric        ErrorKind = "generic"
	KindSpeakFailed    ErrorKind = "speak-failed"
	KindEmptyText      ErrorKind = "empty-text"
	KindCanceled       ErrorKind = "canceled"
	KindNetwork        ErrorKind = "network"
	KindEntitlement    ErrorKind = "entitlement"
	KindInvalidRequest ErrorKind = "invalid-request"
	KindNoAudio        ErrorKind = "no-audio"
	KindPlayback       ErrorKind = "playback-failed"
)

// Action tells a caller which entitlement step must happen before premium
// playback is allowed.
type Action string

const (
	ActionWatchAd    Action = "watch_ad"
	ActionSubscribe  Action = "subscribe"
	ActionBuyCredits Action = "buy_credits"
)

// IsValid reports whether a is one of the known actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionWatchAd, ActionSubscribe, ActionBuyCredits:
		return true
	}
	return false
}

// Outcome is the single settled result of a speak or play call. The pipeline
// never returns errors to its callers; failures are described here instead.
type Outcome struct {
	// Success is true when playback ran to its natural end.
	Success bool `json:"success"`

	// Kind classifies the failure. Empty on success.
	Kind ErrorKind `json:"errorKind,omitempty"`

	// Code is the raw engine or server error code, when one was reported.
	Code string `json:"code,omitempty"`

	// Message is a human-readable description of the failure.
	Message string `json:"message,omitempty"`

	// Emotion is the tone the text was spoken with (speech path only).
	Emotion string `json:"emotion,omitempty"`

	// RequiresAction is set by the premium path when an entitlement step is
	// needed before playback can succeed.
	RequiresAction Action `json:"requiresAction,omitempty"`
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// Failed returns a failed outcome of the given kind.
func Failed(kind ErrorKind, msg string) Outcome {
	return Outcome{Kind: kind, Message: msg}
}

// VoiceProfile identifies a premium synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name,omitempty"`

	// Provider identifies which synthesis backend this voice belongs to.
	Provider string `json:"provider,omitempty"`

	// Language is the voice's primary language, when known.
	Language string `json:"language,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message is a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}
