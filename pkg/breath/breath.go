// Package breath reshapes sentence text so a speech engine pauses in natural
// places. Pauses are suggested purely through punctuation: commas around
// connective words, a comma near the middle of long clauses, and periods
// between clauses for the strongest style.
//
// The transform is lossy. [Remove] strips inserted commas again but does not
// restore the original spacing or punctuation.
package breath

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/happysentences/pkg/emotion"
)

const (
	// normalSplitMin is the length above which a comma-free text gets one
	// midpoint pause under the normal style.
	normalSplitMin = 40

	// normalTailGuard keeps the midpoint pause away from the very end.
	normalTailGuard = 10

	// strongClauseMax is the clause length above which the strong style adds a
	// midpoint pause.
	strongClauseMax = 20
)

// connectors are the words a listener expects a breath around.
var connectors = []string{
	"하지만", "그래도", "그래서", "그리고", "그러니", "즉",
	"또한", "그런데", "그러나", "따라서", "그러므로",
	"그렇지만", "그럼에도", "그래야", "그랬다면",
	"but", "so", "however", "therefore", "and yet",
}

type connectorRule struct {
	before *regexp.Regexp
	after  *regexp.Regexp
}

var (
	sentenceEnd = regexp.MustCompile(`([.!?])\s*`)
	multiSpace  = regexp.MustCompile(`\s{2,}`)
	commaSpace  = regexp.MustCompile(`,\s*`)
	clauseSep   = regexp.MustCompile(`[,.!?]`)

	rules = compileRules(connectors)
)

func compileRules(words []string) []connectorRule {
	out := make([]connectorRule, 0, len(words))
	for _, w := range words {
		q := regexp.QuoteMeta(w)
		var before, after string
		if isASCII(w) {
			before = `(?i)([^,\s])\s+(` + q + `)\b`
			after = `(?i)\b(` + q + `)\s+([^,\s])`
		} else {
			before = `([^,\s])\s+(` + q + `)`
			after = `(` + q + `)\s+([^,\s])`
		}
		out = append(out, connectorRule{
			before: regexp.MustCompile(before),
			after:  regexp.MustCompile(after),
		})
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Apply returns text reshaped for the given pause style. The result never
// contains runs of whitespace and never starts or ends with whitespace.
func Apply(text string, style emotion.PauseStyle) string {
	result := sentenceEnd.ReplaceAllString(text, "${1} ")

	switch style {
	case emotion.PauseSoft:
		result = commaBefore(result)
	case emotion.PauseNormal:
		result = commaAround(result)
		result = splitLong(result)
	case emotion.PauseStrong:
		result = commaAround(result)
		result = splitClauses(result)
	}

	result = strings.TrimSpace(multiSpace.ReplaceAllString(result, " "))
	slog.Debug("breathing applied", "style", style, "in_len", utf8.RuneCountInString(text), "out_len", utf8.RuneCountInString(result))
	return result
}

// Remove strips commas and collapses whitespace. It is the lossy inverse of
// [Apply].
func Remove(text string) string {
	s := commaSpace.ReplaceAllString(text, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func commaBefore(s string) string {
	for _, r := range rules {
		s = r.before.ReplaceAllString(s, "${1}, ${2}")
	}
	return s
}

func commaAround(s string) string {
	for _, r := range rules {
		s = r.before.ReplaceAllString(s, "${1}, ${2}")
		s = r.after.ReplaceAllString(s, "${1}, ${2}")
	}
	return s
}

// splitLong inserts a single comma at the first space at or after the
// midpoint of a long, comma-free text.
func splitLong(s string) string {
	runes := []rune(s)
	n := len(runes)
	if n <= normalSplitMin || strings.Contains(s, ",") {
		return s
	}
	idx := indexSpaceFrom(runes, n/2)
	if idx > 0 && idx < n-normalTailGuard {
		return string(runes[:idx]) + "," + string(runes[idx:])
	}
	return s
}

// splitClauses breaks the text at every punctuation mark, gives each long
// clause a midpoint comma, and rejoins the clauses with periods.
func splitClauses(s string) string {
	if utf8.RuneCountInString(s) <= strongClauseMax {
		return s
	}
	parts := clauseSep.Split(s, -1)
	for i, part := range parts {
		if utf8.RuneCountInString(strings.TrimSpace(part)) <= strongClauseMax {
			continue
		}
		runes := []rune(part)
		idx := indexSpaceFrom(runes, len(runes)/2)
		if idx <= 0 {
			idx = lastSpaceBefore(runes, len(runes)/2)
		}
		if idx > 0 {
			parts[i] = string(runes[:idx]) + "," + string(runes[idx:])
		}
	}
	out := strings.ReplaceAll(strings.Join(parts, ". "), "..", ".")
	out = strings.TrimSpace(multiSpace.ReplaceAllString(out, " "))
	if out != "" && !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out
}

func indexSpaceFrom(runes []rune, from int) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

func lastSpaceBefore(runes []rune, before int) int {
	for i := min(before, len(runes)) - 1; i > 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
