package library

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/happysentences/internal/kv"
	resmock "github.com/MrWong99/happysentences/internal/resilience/mock"
	"github.com/MrWong99/happysentences/pkg/types"
)

var seoul = time.FixedZone("KST", 9*60*60)

func newStore(t *testing.T) (*Store, *resmock.Clock, *kv.Memory) {
	t.Helper()
	clk := resmock.NewClock(time.Date(2024, 1, 1, 8, 0, 0, 0, seoul))
	mem := kv.NewMemory()
	n := 0
	s := New(mem, WithClock(clk), WithLocation(seoul), WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	return s, clk, mem
}

func TestSave_OncePerDay(t *testing.T) {
	t.Parallel()
	s, _, _ := newStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, "오늘도 잘 버텼어요.", VariantGentle)
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if first.Date != "2024-01-01" || first.ID != "id-1" || first.Favorite {
		t.Fatalf("first = %+v", first)
	}

	_, err = s.Save(ctx, "another one", VariantBrave)
	if !errors.Is(err, ErrAlreadySaved) {
		t.Fatalf("second Save err = %v, want ErrAlreadySaved", err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].Text != "오늘도 잘 버텼어요." {
		t.Fatalf("All = %+v, want the first sentence only", all)
	}
}

func TestSave_NewestFirstAcrossDays(t *testing.T) {
	t.Parallel()
	s, clk, _ := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, fmt.Sprintf("day %d", i), VariantClear); err != nil {
			t.Fatalf("Save day %d: %v", i, err)
		}
		clk.Advance(24 * time.Hour)
	}
	all, _ := s.All(ctx)
	if len(all) != 3 || all[0].Date != "2024-01-03" || all[2].Date != "2024-01-01" {
		t.Fatalf("All = %+v", all)
	}

	recent, _ := s.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].Text != "day 2" {
		t.Fatalf("Recent(2) = %+v", recent)
	}
	def, _ := s.Recent(ctx, 0)
	if len(def) != 3 {
		t.Fatalf("Recent(0) = %d items, want 3", len(def))
	}

	got, err := s.ByDate(ctx, "2024-01-02")
	if err != nil || got == nil || got.Text != "day 1" {
		t.Fatalf("ByDate = %+v, %v", got, err)
	}
	missing, err := s.ByDate(ctx, "2023-12-31")
	if err != nil || missing != nil {
		t.Fatalf("ByDate(missing) = %+v, %v", missing, err)
	}
}

func TestSave_DayBoundaryUsesLocation(t *testing.T) {
	t.Parallel()
	s, clk, _ := newStore(t)
	ctx := context.Background()

	// 23:30 local on Jan 1, then 00:30 local on Jan 2.
	clk.Advance(15*time.Hour + 30*time.Minute)
	if _, err := s.Save(ctx, "late", VariantGentle); err != nil {
		t.Fatalf("Save: %v", err)
	}
	clk.Advance(time.Hour)
	if _, err := s.Save(ctx, "early", VariantGentle); err != nil {
		t.Fatalf("Save after midnight: %v", err)
	}
}

func TestReplaceToday(t *testing.T) {
	t.Parallel()
	s, clk, _ := newStore(t)
	ctx := context.Background()

	st, replaced, err := s.ReplaceToday(ctx, "first", VariantGentle)
	if err != nil || replaced {
		t.Fatalf("ReplaceToday on empty day = %+v, %v, %v; want a fresh save", st, replaced, err)
	}
	if _, err := s.ToggleFavorite(ctx, st.ID); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}

	clk.Advance(time.Hour)
	got, replaced, err := s.ReplaceToday(ctx, "second", VariantBrave)
	if err != nil || !replaced {
		t.Fatalf("ReplaceToday = %v, %v", replaced, err)
	}
	if got.ID != st.ID || got.Text != "second" || got.Variant != VariantBrave || !got.Favorite {
		t.Fatalf("replaced sentence = %+v", got)
	}
	if !got.CreatedAt.Equal(clk.Now()) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, clk.Now())
	}
	all, _ := s.All(ctx)
	if len(all) != 1 {
		t.Fatalf("len(All) = %d, want 1", len(all))
	}
}

func TestToggleFavoriteAndFavorites(t *testing.T) {
	t.Parallel()
	s, clk, _ := newStore(t)
	ctx := context.Background()

	a, _ := s.Save(ctx, "a", VariantGentle)
	clk.Advance(24 * time.Hour)
	_, _ = s.Save(ctx, "b", VariantGentle)

	got, err := s.ToggleFavorite(ctx, a.ID)
	if err != nil || !got.Favorite {
		t.Fatalf("ToggleFavorite = %+v, %v", got, err)
	}
	favs, _ := s.Favorites(ctx)
	if len(favs) != 1 || favs[0].ID != a.ID {
		t.Fatalf("Favorites = %+v", favs)
	}
	got, _ = s.ToggleFavorite(ctx, a.ID)
	if got.Favorite {
		t.Fatal("second toggle must clear the flag")
	}
	if _, err := s.ToggleFavorite(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s, _, _ := newStore(t)
	ctx := context.Background()

	st, _ := s.Save(ctx, "a", VariantGentle)
	if err := s.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, st.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err = %v, want ErrNotFound", err)
	}
	if today, _ := s.TodaySentence(ctx); today != nil {
		t.Fatalf("TodaySentence = %+v, want nil after delete", today)
	}
	// Deleting today's sentence frees the day.
	if _, err := s.Save(ctx, "again", VariantGentle); err != nil {
		t.Fatalf("Save after delete: %v", err)
	}
}

func TestSave_InvalidInput(t *testing.T) {
	t.Parallel()
	s, _, _ := newStore(t)
	ctx := context.Background()

	if _, err := s.Save(ctx, "  ", VariantGentle); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty text err = %v", err)
	}
	if _, err := s.Save(ctx, "text", Variant("loud")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad variant err = %v", err)
	}
}

func TestLoad_CorruptData(t *testing.T) {
	t.Parallel()
	s, _, mem := newStore(t)
	ctx := context.Background()
	if err := mem.Set(ctx, StorageKey, []byte("{broken")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.All(ctx); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := s.Save(ctx, "x", VariantGentle); err == nil {
		t.Fatal("Save must not overwrite undecodable data")
	}
}

func TestResultOf(t *testing.T) {
	t.Parallel()
	st := Sentence{ID: "x"}
	tests := []struct {
		name     string
		replaced bool
		err      error
		lang     types.Language
		success  bool
		msg      string
	}{
		{"saved kr", false, nil, types.LangKorean, true, "보관함에 저장했어요!"},
		{"replaced en", true, nil, types.LangEnglish, true, "Saved to your library! (replaced)"},
		{"already kr", false, ErrAlreadySaved, types.LangKorean, false, "오늘은 이미 저장했어요. 보관함에서 확인해 주세요."},
		{"failure en", false, errors.New("disk"), types.LangEnglish, false, "Saving failed. Please try again."},
		{"unknown lang", false, nil, "xx", true, "보관함에 저장했어요!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ResultOf(st, tt.replaced, tt.err, tt.lang)
			if r.Success != tt.success || r.Message != tt.msg {
				t.Fatalf("ResultOf = %+v", r)
			}
			if tt.success && (r.Sentence == nil || r.Sentence.ID != "x") {
				t.Fatalf("Sentence = %+v", r.Sentence)
			}
		})
	}
}
