// Package placeholder provides a tts.Provider that always returns the same
// short silent MP3 clip.
//
// It keeps the premium endpoint usable end to end when no synthesis backend is
// configured: clients receive a valid clip and exercise their playback path.
package placeholder

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/MrWong99/happysentences/pkg/provider/tts"
	"github.com/MrWong99/happysentences/pkg/types"
)

// silentMP3 is a one-second silent MP3 frame pair with an ID3 header.
const silentMP3 = "SUQzBAAAAAAAI1RTU0UAAAAPAAADTGF2ZjU4Ljc2LjEwMAAAAAAAAAAAAAAA//tQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWGluZwAAAA8AAAACAAADhAC7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7////////////////////////////////////////////AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABMYXZmNTguNzYuMTAwAAAAAAAAAAAAAAAAJAAAAAAAAAAAA4SxRNMbAAAAAAAAAAAAAAAAAAAA//tQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWGluZwAAAA8AAAACAAADhAC7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7////////////////////////////////////////////"

// Provider implements tts.Provider with a fixed silent clip.
type Provider struct {
	clip []byte
}

var _ tts.Provider = (*Provider)(nil)

// New returns a placeholder provider.
func New() *Provider {
	// The payload is a compile-time constant; a decode failure is a programming error.
	clip, err := base64.StdEncoding.DecodeString(silentMP3)
	if err != nil {
		panic("placeholder: invalid embedded clip: " + err.Error())
	}
	return &Provider{clip: clip}
}

// Synthesize returns the silent clip for any non-empty text.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	data := make([]byte, len(p.clip))
	copy(data, p.clip)
	return &tts.Audio{Data: data, MIME: tts.MIMEMPEG}, nil
}

// ListVoices returns a single "silent" voice.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	return []types.VoiceProfile{{ID: "silent", Name: "Silent", Provider: "placeholder"}}, nil
}
