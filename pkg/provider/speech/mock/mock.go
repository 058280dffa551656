// Package mock provides a scripted test double for the speech.Engine interface.
//
// By default every Speak call immediately emits [Engine.Script] and closes the
// event channel. With Manual set, the channel stays open until the test drives
// it with [Engine.Emit], which lets tests overlap utterances and exercise
// timeouts.
//
// Example:
//
//	e := &mock.Engine{
//	    VoiceLists: [][]speech.Voice{nil, {{Name: "Yuna", Lang: "ko-KR"}}},
//	    Script:     []speech.Event{{Type: speech.EventStart}, {Type: speech.EventEnd}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/happysentences/pkg/provider/speech"
)

// Engine is a mock implementation of speech.Engine.
type Engine struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// Unsupported makes Supported return false.
	Unsupported bool

	// VoiceLists is consumed one entry per Voices call. Once exhausted the last
	// entry is repeated. Nil means no voices at all.
	VoiceLists [][]speech.Voice

	// VoicesErr, if non-nil, is returned by Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned by Speak instead of opening a channel.
	SpeakErr error

	// Script is emitted on every Speak channel when Manual is false. A nil
	// Script emits start followed by end.
	Script []speech.Event

	// Manual keeps Speak channels open until driven through Emit.
	Manual bool

	// --- Call records (read after test) ---

	// SpeakCalls records every utterance passed to Speak in order.
	SpeakCalls []speech.Utterance

	// VoicesCallCount is the number of Voices calls.
	VoicesCallCount int

	// CancelCallCount is the number of Cancel calls.
	CancelCallCount int

	open     map[int]chan speech.Event
	speaking bool
	spoken   chan struct{}
}

var _ speech.Engine = (*Engine)(nil)

// Supported implements speech.Engine.
func (e *Engine) Supported() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Unsupported
}

// Voices implements speech.Engine.
func (e *Engine) Voices(_ context.Context) ([]speech.Voice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.VoicesCallCount
	e.VoicesCallCount++
	if e.VoicesErr != nil {
		return nil, e.VoicesErr
	}
	if len(e.VoiceLists) == 0 {
		return nil, nil
	}
	if idx >= len(e.VoiceLists) {
		idx = len(e.VoiceLists) - 1
	}
	out := make([]speech.Voice, len(e.VoiceLists[idx]))
	copy(out, e.VoiceLists[idx])
	return out, nil
}

// Speak implements speech.Engine.
func (e *Engine) Speak(_ context.Context, u speech.Utterance) (<-chan speech.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SpeakCalls = append(e.SpeakCalls, u)
	if e.spoken != nil {
		close(e.spoken)
		e.spoken = nil
	}
	if e.SpeakErr != nil {
		return nil, e.SpeakErr
	}

	ch := make(chan speech.Event, 8)
	if e.Manual {
		if e.open == nil {
			e.open = make(map[int]chan speech.Event)
		}
		e.open[len(e.SpeakCalls)-1] = ch
		e.speaking = true
		return ch, nil
	}

	script := e.Script
	if script == nil {
		script = []speech.Event{{Type: speech.EventStart}, {Type: speech.EventEnd}}
	}
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// Cancel implements speech.Engine. Every open manual channel receives an
// interrupted error and is closed.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CancelCallCount++
	for i, ch := range e.open {
		ch <- speech.Event{Type: speech.EventError, Code: speech.CodeInterrupted}
		close(ch)
		delete(e.open, i)
	}
	e.speaking = false
}

// Speaking implements speech.Engine.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// Emit sends ev on the channel of the i-th Speak call (0-based). Terminal
// events close the channel. Emit on a closed or unknown call is a no-op.
func (e *Engine) Emit(i int, ev speech.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.open[i]
	if !ok {
		return
	}
	ch <- ev
	if ev.Type != speech.EventStart {
		close(ch)
		delete(e.open, i)
		e.speaking = len(e.open) > 0
	}
}

// WaitSpeak returns a channel that is closed on the next Speak call.
func (e *Engine) WaitSpeak() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spoken == nil {
		e.spoken = make(chan struct{})
	}
	return e.spoken
}

// SpeakCallCount returns the number of Speak calls so far.
func (e *Engine) SpeakCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.SpeakCalls)
}

// Reset clears all recorded calls and closes open channels.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, ch := range e.open {
		close(ch)
		delete(e.open, i)
	}
	e.SpeakCalls = nil
	e.VoicesCallCount = 0
	e.CancelCallCount = 0
	e.speaking = false
}
