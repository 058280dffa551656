// Package audio plays encoded audio clips on the host.
//
// A [Player] plays one clip at a time: starting a new clip stops the previous
// one, and Stop ends playback immediately. [ExecPlayer] is the production
// implementation and shells out to ffplay or mpg123.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrStopped is returned by Play when playback was ended by Stop or by a
// newer Play call.
var ErrStopped = errors.New("audio: playback stopped")

// ErrNoPlayer is returned when no supported player binary is installed.
var ErrNoPlayer = errors.New("audio: no player binary available (install ffmpeg or mpg123)")

// Clip is one encoded audio payload.
type Clip struct {
	// Data holds the encoded bytes.
	Data []byte

	// MIME is the content type ("audio/mpeg", "audio/wav"). Empty means MP3.
	MIME string
}

// Player plays encoded clips.
type Player interface {
	// Play blocks until the clip finished, failed, was stopped, or ctx ended.
	Play(ctx context.Context, clip Clip) error

	// Stop ends the current playback, if any.
	Stop()
}

// playerSpec describes how to invoke a player binary on a file.
type playerSpec struct {
	name string
	args []string
	// mp3Only players cannot decode WAV.
	mp3Only bool
}

var players = []playerSpec{
	{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "error"}},
	{name: "mpg123", args: []string{"-q"}, mp3Only: true},
}

// ExecOption configures an [ExecPlayer].
type ExecOption func(*ExecPlayer)

// WithPlayerBinary forces a specific binary and argument list. The clip path
// is appended as the last argument.
func WithPlayerBinary(path string, args ...string) ExecOption {
	return func(p *ExecPlayer) {
		p.spec = &playerSpec{name: path, args: args}
	}
}

// WithTempDir sets the directory used for clip files.
func WithTempDir(dir string) ExecOption {
	return func(p *ExecPlayer) {
		p.tempDir = dir
	}
}

// ExecPlayer implements [Player] by running an external player process.
type ExecPlayer struct {
	spec    *playerSpec
	tempDir string

	mu      sync.Mutex
	current *playback
}

var _ Player = (*ExecPlayer)(nil)

type playback struct {
	cmd     *exec.Cmd
	stopped bool
}

// NewExecPlayer probes PATH for a supported player.
func NewExecPlayer(opts ...ExecOption) *ExecPlayer {
	p := &ExecPlayer{}
	for _, o := range opts {
		o(p)
	}
	if p.spec == nil {
		for i := range players {
			if path, err := exec.LookPath(players[i].name); err == nil {
				spec := players[i]
				spec.name = path
				p.spec = &spec
				break
			}
		}
	}
	if p.spec == nil {
		slog.Warn("audio: no ffplay or mpg123 on PATH; premium playback disabled")
	}
	return p
}

// Available reports whether a player binary was found.
func (p *ExecPlayer) Available() bool { return p.spec != nil }

// Play implements [Player].
func (p *ExecPlayer) Play(ctx context.Context, clip Clip) error {
	if p.spec == nil {
		return ErrNoPlayer
	}
	if len(clip.Data) == 0 {
		return errors.New("audio: empty clip")
	}
	wav := strings.Contains(clip.MIME, "wav")
	if wav && p.spec.mp3Only {
		return fmt.Errorf("audio: %s cannot play %s", p.spec.name, clip.MIME)
	}

	ext := ".mp3"
	if wav {
		ext = ".wav"
	}
	f, err := os.CreateTemp(p.tempDir, "happysentences-*"+ext)
	if err != nil {
		return fmt.Errorf("audio: create clip file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		return fmt.Errorf("audio: write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close clip file: %w", err)
	}

	var stderr bytes.Buffer
	args := append(append([]string{}, p.spec.args...), f.Name())
	cmd := exec.Command(p.spec.name, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = 500 * time.Millisecond

	pb := &playback{cmd: cmd}
	p.Stop()
	p.mu.Lock()
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("audio: start %s: %w", p.spec.name, err)
	}
	p.current = pb
	p.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.stop(pb)
		case <-done:
		}
	}()

	err = cmd.Wait()

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
	}
	stopped := pb.stopped
	p.mu.Unlock()

	switch {
	case stopped && ctx.Err() != nil:
		return ctx.Err()
	case stopped:
		return ErrStopped
	case err != nil:
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("audio: %s: %w: %s", p.spec.name, err, msg)
		}
		return fmt.Errorf("audio: %s: %w", p.spec.name, err)
	}
	return nil
}

// Stop implements [Player].
func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	pb := p.current
	p.mu.Unlock()
	if pb != nil {
		p.stop(pb)
	}
}

func (p *ExecPlayer) stop(pb *playback) {
	p.mu.Lock()
	if pb.stopped {
		p.mu.Unlock()
		return
	}
	pb.stopped = true
	p.mu.Unlock()
	if pb.cmd.Process != nil {
		_ = pb.cmd.Process.Kill()
	}
}
