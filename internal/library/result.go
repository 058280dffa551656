package library

import (
	"errors"

	"github.com/MrWong99/happysentences/pkg/types"
)

// Result is the user-facing outcome of a save, in the shape the client shows
// as a toast.
type Result struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Sentence *Sentence `json:"sentence,omitempty"`
}

type messages struct {
	saved, replaced, already, failed string
}

var localized = map[types.Language]messages{
	types.LangKorean: {
		saved:    "보관함에 저장했어요!",
		replaced: "보관함에 저장했어요! (교체됨)",
		already:  "오늘은 이미 저장했어요. 보관함에서 확인해 주세요.",
		failed:   "저장에 실패했어요. 다시 시도해주세요.",
	},
	types.LangEnglish: {
		saved:    "Saved to your library!",
		replaced: "Saved to your library! (replaced)",
		already:  "You already saved a sentence today. Check your library.",
		failed:   "Saving failed. Please try again.",
	},
}

// ResultOf turns the return values of Save or ReplaceToday into a localised
// [Result].
func ResultOf(st Sentence, replaced bool, err error, lang types.Language) Result {
	m, ok := localized[lang]
	if !ok {
		m = localized[types.LangKorean]
	}
	switch {
	case errors.Is(err, ErrAlreadySaved):
		return Result{Message: m.already}
	case err != nil:
		return Result{Message: m.failed}
	case replaced:
		return Result{Success: true, Message: m.replaced, Sentence: &st}
	default:
		return Result{Success: true, Message: m.saved, Sentence: &st}
	}
}
