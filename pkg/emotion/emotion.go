// Package emotion classifies sentence text into one of six speaking tones and
// maps each tone to a fixed prosody profile.
//
// Classification is a keyword heuristic: each tone owns a list of Korean
// substrings and scores one point per keyword contained in the text. The
// strongest tone wins outright with two or more hits; a single hit only
// overrides the card's default tone when it disagrees with it.
package emotion

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/happysentences/pkg/types"
)

// Emotion is a speaking tone.
type Emotion string

const (
	Calm      Emotion = "CALM"
	Comfort   Emotion = "COMFORT"
	Encourage Emotion = "ENCOURAGE"
	Hope      Emotion = "HOPE"
	Joy       Emotion = "JOY"
	Firm      Emotion = "FIRM"
)

// order is the scoring order. A later emotion only takes the lead with a
// strictly higher score, so earlier entries win ties.
var order = []Emotion{Calm, Comfort, Encourage, Hope, Joy, Firm}

// All returns every emotion in scoring order.
func All() []Emotion {
	out := make([]Emotion, len(order))
	copy(out, order)
	return out
}

// IsValid reports whether e is one of the six known emotions.
func (e Emotion) IsValid() bool {
	_, ok := keywords[e]
	return ok
}

// Label returns the human-readable adjective for e in the given language.
func (e Emotion) Label(lang types.Language) string {
	l, ok := labels[e]
	if !ok {
		return string(e)
	}
	if lang == types.LangEnglish {
		return l.en
	}
	return l.kr
}

var labels = map[Emotion]struct{ kr, en string }{
	Calm:      {"차분한", "calm"},
	Comfort:   {"위로하는", "comforting"},
	Encourage: {"격려하는", "encouraging"},
	Hope:      {"희망적인", "hopeful"},
	Joy:       {"기쁜", "joyful"},
	Firm:      {"단호한", "firm"},
}

// Card is the generated sentence variant being read aloud.
type Card string

const (
	CardKind    Card = "KIND"
	CardReal    Card = "REAL"
	CardCourage Card = "COURAGE"
)

// ParseCard converts s into a [Card]. Lower-case input is accepted.
func ParseCard(s string) (Card, error) {
	c := Card(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CardKind, CardReal, CardCourage:
		return c, nil
	}
	return "", fmt.Errorf("emotion: invalid card %q; valid values: KIND, REAL, COURAGE", s)
}

// DefaultEmotion returns the tone used when keyword scoring is inconclusive.
func (c Card) DefaultEmotion() Emotion {
	switch c {
	case CardKind:
		return Comfort
	case CardCourage:
		return Encourage
	default:
		return Calm
	}
}

// Scores returns the keyword score of every emotion for text. Each keyword
// counts at most once regardless of how often it occurs.
func Scores(text string) map[Emotion]int {
	lower := strings.ToLower(text)
	scores := make(map[Emotion]int, len(order))
	for _, e := range order {
		n := 0
		for _, kw := range keywords[e] {
			if strings.Contains(lower, kw) {
				n++
			}
		}
		scores[e] = n
	}
	return scores
}

// Classify returns the tone text should be spoken with. card may be nil, in
// which case the fallback tone is [Calm].
func Classify(text string, card *Card) Emotion {
	def := Calm
	if card != nil {
		def = card.DefaultEmotion()
	}

	scores := Scores(text)
	best, detected := 0, Emotion("")
	for _, e := range order {
		if scores[e] > best {
			best, detected = scores[e], e
		}
	}

	var (
		result Emotion
		reason string
	)
	switch {
	case best >= 2:
		result, reason = detected, "strong"
	case best == 1 && detected != def:
		result, reason = detected, "weak"
	case best == 1:
		result, reason = def, "weak-default"
	default:
		result, reason = def, "none"
	}

	slog.Debug("emotion classified",
		"emotion", result,
		"signal", reason,
		"score", best,
		"default", def,
	)
	return result
}
