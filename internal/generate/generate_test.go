package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/happysentences/pkg/provider/llm"
	"github.com/MrWong99/happysentences/pkg/provider/llm/mock"
	"github.com/MrWong99/happysentences/pkg/types"
)

const validReply = `{
  "summary": "지친 하루",
  "lines": {
    "gentle": "오늘 많이 지쳤다면, 잠시 쉬어도 괜찮아요.",
    "clear": "지친 건 당신이 그만큼 애썼다는 뜻이에요.",
    "brave": "물 한 잔 마시고, 딱 한 가지만 해봐요."
  },
  "narration": "오늘 하루, 정말 애썼어요. 잠깐 숨을 고르고, 천천히 다시 시작해요.",
  "keywords": ["하루", "지침", "휴식"],
  "safety": {"noReligion": true, "noMedical": true}
}`

func TestGenerate_Success(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []mock.Response{{Content: validReply}}}
	g := New(p, Config{})

	res, err := g.Generate(context.Background(), "오늘 너무 지쳤어", types.LangKorean)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Lines.Brave != "물 한 잔 마시고, 딱 한 가지만 해봐요." {
		t.Errorf("Brave = %q", res.Lines.Brave)
	}
	if len(res.Keywords) != 3 || res.Summary != "지친 하루" {
		t.Errorf("result = %+v", res)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONMode || req.Temperature != 0.8 || req.MaxTokens != 800 {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "오늘 너무 지쳤어") {
		t.Errorf("user prompt does not contain the input: %q", req.Messages[0].Content)
	}
}

func TestGenerate_RetriesOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		first     string
		truncated bool
	}{
		{name: "not json", first: "here you go: {"},
		{name: "truncated", first: validReply, truncated: true},
		{name: "empty", first: ""},
		{name: "line too short", first: strings.Replace(validReply, "오늘 많이 지쳤다면, 잠시 쉬어도 괜찮아요.", "짧음", 1)},
		{name: "too few keywords", first: strings.Replace(validReply, `["하루", "지침", "휴식"]`, `["하루"]`, 1)},
		{name: "missing narration", first: `{"lines":{"gentle":"0123456789","clear":"0123456789","brave":"0123456789"},"keywords":["a","b","c"],"safety":{"noReligion":true,"noMedical":true}}`},
		{name: "unsafe", first: strings.Replace(validReply, `"noMedical": true`, `"noMedical": false`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{Responses: []mock.Response{{Content: tt.first, Truncated: tt.truncated}, {Content: validReply}}}
			g := New(p, Config{})

			if _, err := g.Generate(context.Background(), "input", types.LangKorean); err != nil {
				t.Fatalf("Generate: %v", err)
			}
			calls := p.Calls()
			if len(calls) != 2 {
				t.Fatalf("calls = %d, want 2", len(calls))
			}
			retry := calls[1].Req
			if retry.Temperature != 0.7 {
				t.Errorf("retry temperature = %v, want 0.7", retry.Temperature)
			}
			if !strings.Contains(retry.SystemPrompt, strictSuffixKR) {
				t.Error("retry must use the strict system prompt")
			}
		})
	}
}

func TestGenerate_SecondFailure(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []mock.Response{{Content: "nope"}, {Content: "still nope"}}}
	g := New(p, Config{})

	_, err := g.Generate(context.Background(), "input", types.LangEnglish)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if len(p.Calls()) != 2 {
		t.Fatalf("calls = %d, want 2", len(p.Calls()))
	}
}

func TestGenerate_ProviderErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []mock.Response{{Err: errors.New("rate limited")}}}
	g := New(p, Config{})

	_, err := g.Generate(context.Background(), "input", types.LangKorean)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("err = %v, want ErrGeneration", err)
	}
	if len(p.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(p.Calls()))
	}
}

func TestGenerate_RefusalIsNotRetried(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []mock.Response{{Err: fmt.Errorf("openai: %w: no", llm.ErrRefused)}}}
	g := New(p, Config{})

	_, err := g.Generate(context.Background(), "input", types.LangKorean)
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, llm.ErrRefused) {
		t.Fatalf("err = %v, want ErrGeneration wrapping ErrRefused", err)
	}
	if len(p.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(p.Calls()))
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{}
	g := New(p, Config{})

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmptyInput},
		{"blank", "   \n", ErrEmptyInput},
		{"too long", strings.Repeat("가", MaxInputLength+1), ErrInputTooLong},
	}
	for _, tt := range tests {
		if _, err := g.Generate(context.Background(), tt.input, types.LangKorean); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
	if len(p.Calls()) != 0 {
		t.Fatalf("provider called %d times for invalid input", len(p.Calls()))
	}

	if err := ValidateInput(strings.Repeat("가", MaxInputLength)); err != nil {
		t.Fatalf("input of exactly MaxInputLength runes rejected: %v", err)
	}
}

func TestGenerate_EnglishPrompt(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Responses: []mock.Response{{Content: validReply}}}
	g := New(p, Config{Temperature: 0.5})

	if _, err := g.Generate(context.Background(), "tired", types.LangEnglish); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	req := p.Calls()[0].Req
	if !strings.HasPrefix(req.SystemPrompt, "You write short sentences") {
		t.Errorf("system prompt is not English: %q", req.SystemPrompt[:40])
	}
	if req.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", req.Temperature)
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		lang types.Language
		want string
	}{
		{ErrEmptyInput, types.LangKorean, "단어 하나만 적어도 됩니다."},
		{ErrInputTooLong, types.LangEnglish, "Please write a little shorter."},
		{ErrGeneration, types.LangKorean, "문장 생성에 실패했어요. 잠시 후 다시 시도해주세요."},
		{ErrNotConfigured, types.LangKorean, "서비스 설정에 문제가 있습니다. 잠시 후 다시 시도해주세요."},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err, tt.lang); got != tt.want {
			t.Errorf("UserMessage(%v, %s) = %q, want %q", tt.err, tt.lang, got, tt.want)
		}
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	t.Parallel()
	var g *Generator
	if _, err := g.Generate(context.Background(), "input", types.LangKorean); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("nil generator: err = %v, want ErrNotConfigured", err)
	}
	if _, err := New(nil, Config{}).Generate(context.Background(), "input", types.LangKorean); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("nil provider: err = %v, want ErrNotConfigured", err)
	}
}
