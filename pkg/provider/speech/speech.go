// Package speech defines the Engine interface for on-device speech synthesis.
//
// An Engine wraps whatever the host offers for speaking text aloud (a system
// synthesizer binary, an OS speech service, or a scripted test double). It
// mirrors the shape of browser speech APIs: a voice catalogue that may be
// empty while the engine warms up, a fire-and-observe Speak call that reports
// start/end/error events, and a global Cancel.
//
// Implementations must be safe for concurrent use.
package speech

import "context"

// Voice is a voice offered by the engine.
type Voice struct {
	// ID is the engine-specific identifier passed back in [Utterance.Voice].
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Lang is the BCP-47-ish language tag reported by the engine ("ko",
	// "en-US", "en-gb" ...).
	Lang string `json:"lang"`

	// Local is true when synthesis happens on the device rather than through a
	// remote service.
	Local bool `json:"local"`

	// Default marks the engine's default voice.
	Default bool `json:"default"`
}

// Utterance is a single request to speak text.
type Utterance struct {
	// Text is the text to speak, already reshaped for pauses.
	Text string

	// Lang is the locale of the text ("ko-KR", "en-US").
	Lang string

	// Voice selects the voice. Nil lets the engine choose.
	Voice *Voice

	// Rate, Pitch and Volume use 1.0 as the neutral value.
	Rate   float64
	Pitch  float64
	Volume float64
}

// EventType classifies engine events.
type EventType int

const (
	// EventStart is emitted once audio output begins.
	EventStart EventType = iota

	// EventEnd is emitted when the utterance finished normally.
	EventEnd

	// EventError is emitted when the utterance failed or was interrupted.
	EventError
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification for an utterance.
type Event struct {
	Type EventType

	// Code is the engine's error code for [EventError] (e.g. "interrupted",
	// "synthesis-failed").
	Code string

	// Message is a human-readable error description.
	Message string
}

// Common error codes reported in [Event.Code].
const (
	CodeInterrupted     = "interrupted"
	CodeSynthesisFailed = "synthesis-failed"
)

// Engine is the abstraction over an on-device speech synthesizer.
type Engine interface {
	// Supported reports whether the engine can speak at all on this host.
	Supported() bool

	// Voices returns the current voice catalogue. An empty list is not an
	// error: engines may still be loading their voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak submits u and returns a channel of lifecycle events. The channel
	// carries at most one [EventStart] followed by exactly one terminal
	// [EventEnd] or [EventError], and is then closed. A non-nil error means the
	// utterance could not be submitted at all.
	Speak(ctx context.Context, u Utterance) (<-chan Event, error)

	// Cancel immediately stops every utterance that is playing or queued.
	// Interrupted utterances report [EventError] with [CodeInterrupted].
	Cancel()

	// Speaking reports whether an utterance is currently playing.
	Speaking() bool
}
