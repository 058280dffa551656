// Package mock provides a test double for the audio.Player interface.
//
// By default Play returns PlayErr immediately. With Block set, Play waits
// until Stop is called (returning audio.ErrStopped) or ctx ends.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/happysentences/pkg/audio"
)

// Player is a mock implementation of audio.Player.
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play when Block is false.
	PlayErr error

	// Block makes Play wait for Stop or ctx cancellation.
	Block bool

	// PlayCalls records every clip passed to Play in order.
	PlayCalls []audio.Clip

	// StopCallCount is the number of Stop calls.
	StopCallCount int

	stop chan struct{}
}

var _ audio.Player = (*Player)(nil)

// Play implements audio.Player.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.PlayCalls = append(p.PlayCalls, audio.Clip{Data: append([]byte(nil), clip.Data...), MIME: clip.MIME})
	if !p.Block {
		err := p.PlayErr
		p.mu.Unlock()
		return err
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	select {
	case <-stop:
		return audio.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements audio.Player.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCallCount++
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// Calls returns a copy of the recorded clips. Thread-safe.
func (p *Player) Calls() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Clip, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = nil
	p.StopCallCount = 0
}
