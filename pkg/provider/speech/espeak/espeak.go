// Package espeak provides a speech.Engine that shells out to espeak-ng (or
// classic espeak) and plays through the host's default audio device.
//
// One process runs per utterance. The text is fed on stdin so that it is
// never interpreted as a flag.
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/happysentences/pkg/provider/speech"
)

// candidates are probed on PATH in order.
var candidates = []string{"espeak-ng", "espeak"}

const (
	// baseWPM is espeak's default speaking rate in words per minute.
	baseWPM = 175
	// basePitch is espeak's default pitch (0-99).
	basePitch = 50
	// baseAmplitude is espeak's default amplitude (0-200).
	baseAmplitude = 100
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithBinary uses path instead of probing PATH.
func WithBinary(path string) Option {
	return func(e *Engine) {
		e.binary = path
	}
}

// Engine implements speech.Engine on top of the espeak command line.
type Engine struct {
	binary string

	mu      sync.Mutex
	running map[*run]struct{}
}

var _ speech.Engine = (*Engine)(nil)

type run struct {
	cmd      *exec.Cmd
	canceled bool
}

// New creates an Engine. When no binary can be found the engine is still
// returned but reports Supported() == false.
func New(opts ...Option) *Engine {
	e := &Engine{running: make(map[*run]struct{})}
	for _, o := range opts {
		o(e)
	}
	if e.binary == "" {
		for _, c := range candidates {
			if p, err := exec.LookPath(c); err == nil {
				e.binary = p
				break
			}
		}
	}
	if e.binary == "" {
		slog.Warn("espeak: no espeak-ng or espeak binary on PATH")
	}
	return e
}

// Binary returns the resolved executable path, or "" when none was found.
func (e *Engine) Binary() string { return e.binary }

// Supported implements speech.Engine.
func (e *Engine) Supported() bool { return e.binary != "" }

// Voices implements speech.Engine by parsing `espeak --voices`.
func (e *Engine) Voices(ctx context.Context) ([]speech.Voice, error) {
	if !e.Supported() {
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, e.binary, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}
	return parseVoices(out), nil
}

// Speak implements speech.Engine.
func (e *Engine) Speak(ctx context.Context, u speech.Utterance) (<-chan speech.Event, error) {
	if !e.Supported() {
		return nil, errors.New("espeak: engine not available")
	}

	var stderr bytes.Buffer
	cmd := exec.Command(e.binary, buildArgs(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	cmd.Stderr = &stderr
	cmd.WaitDelay = 500 * time.Millisecond

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("espeak: start: %w", err)
	}

	r := &run{cmd: cmd}
	e.mu.Lock()
	e.running[r] = struct{}{}
	e.mu.Unlock()

	events := make(chan speech.Event, 2)
	events <- speech.Event{Type: speech.EventStart}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.kill(r)
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		err := cmd.Wait()
		close(done)

		e.mu.Lock()
		delete(e.running, r)
		canceled := r.canceled
		e.mu.Unlock()

		switch {
		case canceled:
			events <- speech.Event{Type: speech.EventError, Code: speech.CodeInterrupted, Message: "utterance interrupted"}
		case err != nil:
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			events <- speech.Event{Type: speech.EventError, Code: speech.CodeSynthesisFailed, Message: msg}
		default:
			events <- speech.Event{Type: speech.EventEnd}
		}
	}()

	return events, nil
}

// Cancel implements speech.Engine by killing every running process.
func (e *Engine) Cancel() {
	e.mu.Lock()
	runs := make([]*run, 0, len(e.running))
	for r := range e.running {
		runs = append(runs, r)
	}
	e.mu.Unlock()
	for _, r := range runs {
		e.kill(r)
	}
}

// Speaking implements speech.Engine.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running) > 0
}

func (e *Engine) kill(r *run) {
	e.mu.Lock()
	if _, ok := e.running[r]; !ok {
		e.mu.Unlock()
		return
	}
	r.canceled = true
	e.mu.Unlock()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
}

// buildArgs maps an utterance onto espeak flags. Rate, pitch and volume are
// multipliers around espeak's defaults and are clamped to its valid ranges.
func buildArgs(u speech.Utterance) []string {
	voice := ""
	if u.Voice != nil {
		voice = u.Voice.ID
	}
	if voice == "" && u.Lang != "" {
		voice = strings.ToLower(strings.SplitN(u.Lang, "-", 2)[0])
	}

	args := make([]string, 0, 9)
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args,
		"-s", strconv.Itoa(scale(u.Rate, baseWPM, 80, 450)),
		"-p", strconv.Itoa(scale(u.Pitch, basePitch, 0, 99)),
		"-a", strconv.Itoa(scale(u.Volume, baseAmplitude, 0, 200)),
		"--stdin",
	)
	return args
}

// scale multiplies base by f (0 means 1) and clamps the result to [lo, hi].
func scale(f float64, base, lo, hi int) int {
	if f <= 0 {
		f = 1
	}
	v := int(f*float64(base) + 0.5)
	return max(lo, min(hi, v))
}

// parseVoices parses the table printed by `espeak --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  ko              --/M      Korean             sit/ko
func parseVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if header {
			header = false
			if strings.HasPrefix(line, "Pty") {
				continue
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		lang := fields[1]
		voices = append(voices, speech.Voice{
			ID:    lang,
			Name:  strings.ReplaceAll(fields[3], "_", " "),
			Lang:  lang,
			Local: true,
		})
	}
	return voices
}
