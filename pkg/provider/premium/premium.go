// Package premium plays server-synthesized speech.
//
// A [Client] posts the text to the premium TTS endpoint, receives either an
// audio URL or an inline base64 payload, and plays the clip through an
// [audio.Player]. Each call makes a single attempt. A circuit breaker stops
// the client from hammering an endpoint that keeps failing at the transport
// level; the breaker never trips on entitlement or validation answers.
package premium

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/pkg/audio"
	"github.com/MrWong99/happysentences/pkg/types"
)

// DevBypassHeader is the request header that asks a development server to
// skip the entitlement check.
const DevBypassHeader = "X-Dev-Bypass"

// maxAudioBytes caps the size of a fetched audio URL.
const maxAudioBytes = 20 << 20

// Request is the JSON body posted to the endpoint.
type Request struct {
	Text  string         `json:"text"`
	Lang  types.Language `json:"lang"`
	Voice string         `json:"voice,omitempty"`
}

// Response is the JSON body returned by the endpoint.
type Response struct {
	Success        bool         `json:"success"`
	AudioURL       string       `json:"audioUrl,omitempty"`
	AudioBase64    string       `json:"audioBase64,omitempty"`
	Error          string       `json:"error,omitempty"`
	RequiresAction types.Action `json:"requiresAction,omitempty"`
}

// errServer marks 5xx answers so they count against the breaker.
var errServer = errors.New("premium: server error")

// Client is the premium voice client. It is safe for concurrent use, but the
// underlying player only plays one clip at a time.
type Client struct {
	endpoint  string
	http      *http.Client
	player    audio.Player
	devBypass bool
	breaker   *resilience.CircuitBreaker
	metrics   *observe.Metrics
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for the endpoint and audio URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithDevBypass sends the dev-bypass header on every request.
func WithDevBypass(on bool) Option {
	return func(cl *Client) { cl.devBypass = on }
}

// WithBreaker replaces the default circuit breaker configuration.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(cl *Client) {
		if cfg.Name == "" {
			cfg.Name = "premium"
		}
		cl.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WithMetrics enables request counting.
func WithMetrics(m *observe.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// New creates a client posting to endpoint and playing through player.
func New(endpoint string, player audio.Player, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		player:   player,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "premium",
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Breaker exposes the client's circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Stop ends the current playback.
func (c *Client) Stop() { c.player.Stop() }

// Play requests audio for text and plays it. voiceID may be empty. Failures
// are described by the outcome; RequiresAction is set when the server asks for
// an entitlement step.
func (c *Client) Play(ctx context.Context, text string, lang types.Language, voiceID string) types.Outcome {
	ctx, span := observe.StartSpan(ctx, "premium.play", observe.AttrLang.String(string(lang)))

	out := c.play(ctx, text, lang, voiceID)
	if c.metrics != nil {
		status := "ok"
		if !out.Success {
			status = string(out.Kind)
		}
		c.metrics.RecordPremiumRequest(ctx, status)
	}
	observe.EndOutcome(span, out)
	return out
}

func (c *Client) play(ctx context.Context, text string, lang types.Language, voiceID string) types.Outcome {
	log := observe.Logger(ctx).With("lang", lang)
	if strings.TrimSpace(text) == "" {
		return types.Failed(types.KindEmptyText, "Text is empty")
	}
	c.player.Stop()

	var (
		resp     *Response
		status   int
		canceled error
	)
	err := c.breaker.Execute(func() error {
		var err error
		resp, status, err = c.generate(ctx, Request{Text: text, Lang: lang, Voice: voiceID})
		if ctx.Err() != nil {
			canceled = ctx.Err()
			return nil
		}
		return err
	})
	switch {
	case canceled != nil:
		return types.Failed(types.KindCanceled, canceled.Error())
	case errors.Is(err, resilience.ErrCircuitOpen):
		log.Warn("premium endpoint circuit open")
		return types.Failed(types.KindNetwork, "premium voice is temporarily unavailable")
	case errors.Is(err, errServer):
		log.Warn("premium generation failed", "status", status, "error", resp.Error)
		return types.Failed(types.KindNetwork, resp.Error)
	case err != nil:
		log.Warn("premium request failed", "err", err)
		return types.Failed(types.KindNetwork, err.Error())
	}

	if status < 200 || status > 299 {
		out := types.Outcome{Kind: types.KindInvalidRequest, Message: resp.Error, RequiresAction: resp.RequiresAction}
		if resp.RequiresAction != "" {
			out.Kind = types.KindEntitlement
		}
		log.Info("premium generation refused", "status", status, "requires_action", resp.RequiresAction)
		return out
	}

	clip, err := c.clip(ctx, resp)
	if err != nil {
		log.Warn("premium audio unavailable", "err", err)
		if errors.Is(err, errNoAudio) {
			return types.Failed(types.KindNoAudio, "No audio data received")
		}
		return types.Failed(types.KindNetwork, err.Error())
	}

	if err := c.player.Play(ctx, clip); err != nil {
		if errors.Is(err, audio.ErrStopped) || ctx.Err() != nil {
			return types.Failed(types.KindCanceled, "playback stopped")
		}
		log.Warn("premium playback failed", "err", err)
		return types.Failed(types.KindPlayback, "Audio playback failed")
	}
	log.Debug("premium playback completed", "bytes", len(clip.Data))
	return types.Succeeded()
}

// generate posts req and decodes the answer. Transport failures and 5xx
// answers return an error; other non-2xx answers return the decoded body.
func (c *Client) generate(ctx context.Context, req Request) (*Response, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("premium: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("premium: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.devBypass {
		httpReq.Header.Set(DevBypassHeader, "true")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("premium: request: %w", err)
	}
	defer httpResp.Body.Close()

	resp := &Response{}
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 64<<20)).Decode(resp); err != nil {
		slog.Debug("premium: undecodable response body", "status", httpResp.StatusCode, "err", err)
	}
	if resp.Error == "" && (httpResp.StatusCode < 200 || httpResp.StatusCode > 299) {
		resp.Error = "Failed to generate audio"
	}
	if httpResp.StatusCode >= 500 {
		return resp, httpResp.StatusCode, fmt.Errorf("%w: status %d", errServer, httpResp.StatusCode)
	}
	return resp, httpResp.StatusCode, nil
}

var errNoAudio = errors.New("premium: no audio in response")

// clip resolves the audio carried by resp.
func (c *Client) clip(ctx context.Context, resp *Response) (audio.Clip, error) {
	switch {
	case strings.HasPrefix(resp.AudioURL, "data:"):
		return decodeDataURL(resp.AudioURL)
	case resp.AudioURL != "":
		return c.fetch(ctx, resp.AudioURL)
	case resp.AudioBase64 != "":
		data, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("premium: decode audio: %w", err)
		}
		if len(data) == 0 {
			return audio.Clip{}, errNoAudio
		}
		return audio.Clip{Data: data, MIME: "audio/mpeg"}, nil
	default:
		return audio.Clip{}, errNoAudio
	}
}

func (c *Client) fetch(ctx context.Context, url string) (audio.Clip, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("premium: build audio request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("premium: fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("premium: fetch audio: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("premium: read audio: %w", err)
	}
	if len(data) == 0 {
		return audio.Clip{}, errNoAudio
	}
	return audio.Clip{Data: data, MIME: mimeOf(resp.Header.Get("Content-Type"))}, nil
}

// decodeDataURL handles "data:audio/mp3;base64,..." URLs.
func decodeDataURL(u string) (audio.Clip, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return audio.Clip{}, fmt.Errorf("premium: unsupported data url")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("premium: decode data url: %w", err)
	}
	if len(data) == 0 {
		return audio.Clip{}, errNoAudio
	}
	return audio.Clip{Data: data, MIME: mimeOf(strings.TrimSuffix(meta, ";base64"))}, nil
}

func mimeOf(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "audio/wav"
	default:
		slog.Debug("treating premium audio as mp3", "content_type", contentType)
		return "audio/mpeg"
	}
}
