package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Lines holds the three sentence variants.
type Lines struct {
	Gentle string `json:"gentle"`
	Clear  string `json:"clear"`
	Brave  string `json:"brave"`
}

// Safety carries the model's own content flags.
type Safety struct {
	NoReligion bool `json:"noReligion"`
	NoMedical  bool `json:"noMedical"`
}

// Result is a validated generation.
type Result struct {
	Summary   string   `json:"summary,omitempty"`
	Lines     Lines    `json:"lines"`
	Narration string   `json:"narration"`
	Keywords  []string `json:"keywords"`
	Safety    Safety   `json:"safety"`
}

var errUnsafe = errors.New("safety flags not set")

func intPtr(n int) *int { return &n }

func lineSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: intPtr(10), MaxLength: intPtr(120)}
}

// Schema returns the JSON schema a model reply must satisfy.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"summary": {Type: "string"},
			"lines": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"gentle": lineSchema(),
					"clear":  lineSchema(),
					"brave":  lineSchema(),
				},
				Required: []string{"gentle", "clear", "brave"},
			},
			"narration": {Type: "string", MinLength: intPtr(20), MaxLength: intPtr(200)},
			"keywords": {
				Type:     "array",
				Items:    &jsonschema.Schema{Type: "string"},
				MinItems: intPtr(3),
				MaxItems: intPtr(10),
			},
			"safety": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"noReligion": {Type: "boolean"},
					"noMedical":  {Type: "boolean"},
				},
				Required: []string{"noReligion", "noMedical"},
			},
		},
		Required: []string{"lines", "narration", "keywords", "safety"},
	}
}

var resolvedSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	return Schema().Resolve(nil)
})

// parse decodes and validates a model reply.
func parse(content string) (*Result, error) {
	if content == "" {
		return nil, errors.New("empty reply")
	}
	var instance map[string]any
	if err := json.Unmarshal([]byte(content), &instance); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	rs, err := resolvedSchema()
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	if err := rs.Validate(instance); err != nil {
		return nil, fmt.Errorf("validate reply: %w", err)
	}
	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if !res.Safety.NoReligion || !res.Safety.NoMedical {
		return nil, errUnsafe
	}
	return &res, nil
}
