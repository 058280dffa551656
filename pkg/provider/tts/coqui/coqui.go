// Package coqui synthesises premium clips on a self-hosted Coqui TTS server
// (ghcr.io/coqui-ai/tts-cpu). Clips come from GET /api/tts as WAV and are
// checked for a RIFF/WAVE header with a non-empty data chunk before they are
// handed on; voices come from GET /details.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithTimeout(15*time.Second))
//	clip, err := p.Synthesize(ctx, tts.Request{Text: "오늘도 수고했어요.", Language: types.LangKorean})
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/happysentences/pkg/provider/tts"
	"github.com/MrWong99/happysentences/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout = 30 * time.Second

	// maxClip caps a response body. One sentence of 22kHz mono PCM is well
	// under a megabyte.
	maxClip = 16 << 20
)

// Provider talks to one Coqui server.
type Provider struct {
	base    string
	speaker string
	client  *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithTimeout bounds each request. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithSpeaker sets the speaker for requests that name no voice. Only
// multi-speaker models use it.
func WithSpeaker(id string) Option {
	return func(p *Provider) { p.speaker = id }
}

// New creates a provider for the server at serverURL, e.g.
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: server URL is required")
	}
	p := &Provider{
		base:   strings.TrimRight(serverURL, "/"),
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}

	q := url.Values{"text": {req.Text}}
	if spk := cmp.Or(req.Voice.ID, p.speaker); spk != "" {
		q.Set("speaker_id", spk)
	}
	if req.Language.IsValid() {
		q.Set("language_id", req.Language.Code())
	}

	wav, err := p.get(ctx, "/api/tts", q, tts.MIMEWAV)
	if err != nil {
		return nil, err
	}
	if err := checkWAV(wav); err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return &tts.Audio{Data: wav, MIME: tts.MIMEWAV}, nil
}

// details is the body of GET /details. Speakers is empty for single-speaker
// models.
type details struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ListVoices returns one voice per speaker, sorted, or a single voice named
// after the model when it has no speakers.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	body, err := p.get(ctx, "/details", nil, "application/json")
	if err != nil {
		return nil, err
	}
	var d details
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("coqui: decode /details: %w", err)
	}

	model := cmp.Or(d.ModelName, "default")
	voice := func(id string) types.VoiceProfile {
		return types.VoiceProfile{
			ID:       id,
			Name:     id,
			Provider: "coqui",
			Language: d.Language,
			Metadata: map[string]string{"model_name": model},
		}
	}
	if len(d.Speakers) == 0 {
		return []types.VoiceProfile{voice(model)}, nil
	}

	speakers := slices.Clone(d.Speakers)
	slices.Sort(speakers)
	out := make([]types.VoiceProfile, 0, len(speakers))
	for _, s := range slices.Compact(speakers) {
		out = append(out, voice(s))
	}
	return out, nil
}

// get performs one GET against the server and returns the body of a 200
// answer. Other answers become errors carrying the start of the body.
func (p *Provider) get(ctx context.Context, path string, q url.Values, accept string) ([]byte, error) {
	target := p.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build %s request: %w", path, err)
	}
	req.Header.Set("Accept", accept)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClip+1))
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s: status %d: %s", path, resp.StatusCode, snippet(body))
	}
	if len(body) > maxClip {
		return nil, fmt.Errorf("coqui: GET %s: body larger than %d bytes", path, maxClip)
	}
	return body, nil
}

// checkWAV accepts a RIFF/WAVE file whose data chunk holds at least one byte.
// Chunks are walked in order and are padded to an even size.
func checkWAV(b []byte) error {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return errors.New("response is not a RIFF/WAVE file")
	}
	for off := 12; off+8 <= len(b); {
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if bytes.Equal(b[off:off+4], []byte("data")) {
			if size == 0 || off+8 >= len(b) {
				return errors.New("WAV data chunk is empty")
			}
			return nil
		}
		off += 8 + size + size%2
	}
	return errors.New("WAV has no data chunk")
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
