// Package library keeps the user's saved daily sentences.
//
// Sentences live as one JSON array under [StorageKey] in a [kv.Store], newest
// first. At most one sentence is kept per calendar day: [Store.Save] refuses a
// second one and [Store.ReplaceToday] swaps today's text in place.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/happysentences/internal/kv"
	"github.com/MrWong99/happysentences/internal/resilience"
)

// StorageKey is the kv key holding the sentence array.
const StorageKey = "happy_sentences_saved"

// DefaultRecent is the number of sentences [Store.Recent] returns by default.
const DefaultRecent = 7

const dateLayout = "2006-01-02"

var (
	// ErrAlreadySaved is returned by Save when today already has a sentence.
	ErrAlreadySaved = errors.New("library: a sentence was already saved today")

	// ErrNotFound is returned when no sentence has the requested ID.
	ErrNotFound = errors.New("library: sentence not found")

	// ErrInvalidInput is returned for empty text or an unknown variant.
	ErrInvalidInput = errors.New("library: invalid input")
)

// Variant is the generated line a sentence was taken from.
type Variant string

const (
	VariantGentle Variant = "gentle"
	VariantClear  Variant = "clear"
	VariantBrave  Variant = "brave"
)

// ParseVariant validates s.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantGentle, VariantClear, VariantBrave:
		return v, nil
	}
	return "", fmt.Errorf("%w: variant %q; valid values: gentle, clear, brave", ErrInvalidInput, s)
}

// Sentence is one saved daily sentence.
type Sentence struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Text      string    `json:"text"`
	Variant   Variant   `json:"variant"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the sentence library. Mutations run read-modify-write under a
// mutex, so a single Store must be the only writer of its key.
type Store struct {
	kv    kv.Store
	clock resilience.Clock
	loc   *time.Location
	newID func() string

	mu sync.Mutex
}

// Option configures a [Store].
type Option func(*Store)

// WithClock sets the clock that decides "today".
func WithClock(c resilience.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLocation sets the time zone calendar days are computed in. Default:
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates a library over store.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:    store,
		clock: resilience.SystemClock{},
		loc:   time.Local,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns today's date in YYYY-MM-DD form.
func (s *Store) Today() string {
	return s.clock.Now().In(s.loc).Format(dateLayout)
}

// All returns every saved sentence, newest first.
func (s *Store) All(ctx context.Context) ([]Sentence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// TodaySentence returns today's sentence, or nil when none was saved.
func (s *Store) TodaySentence(ctx context.Context) (*Sentence, error) {
	return s.ByDate(ctx, s.Today())
}

// ByDate returns the sentence saved on date (YYYY-MM-DD), or nil.
func (s *Store) ByDate(ctx context.Context, date string) (*Sentence, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Date == date {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Favorites returns the favourite sentences, newest first.
func (s *Store) Favorites(ctx context.Context) ([]Sentence, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Sentence, 0, len(all))
	for _, st := range all {
		if st.Favorite {
			out = append(out, st)
		}
	}
	return out, nil
}

// Recent returns up to n of the newest sentences. n <= 0 means
// [DefaultRecent].
func (s *Store) Recent(ctx context.Context, n int) ([]Sentence, error) {
	if n <= 0 {
		n = DefaultRecent
	}
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Save stores text as today's sentence. It returns [ErrAlreadySaved] when
// today already has one.
func (s *Store) Save(ctx context.Context, text string, variant Variant) (Sentence, error) {
	text, err := validate(text, variant)
	if err != nil {
		return Sentence{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return Sentence{}, err
	}
	today := s.Today()
	for _, st := range all {
		if st.Date == today {
			return Sentence{}, ErrAlreadySaved
		}
	}
	return s.insertLocked(ctx, all, today, text, variant)
}

// ReplaceToday replaces the text and variant of today's sentence, keeping its
// ID and favourite flag. When today has no sentence yet it saves a new one;
// replaced reports which happened.
func (s *Store) ReplaceToday(ctx context.Context, text string, variant Variant) (st Sentence, replaced bool, err error) {
	text, err = validate(text, variant)
	if err != nil {
		return Sentence{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return Sentence{}, false, err
	}
	today := s.Today()
	for i := range all {
		if all[i].Date != today {
			continue
		}
		all[i].Text = text
		all[i].Variant = variant
		all[i].CreatedAt = s.clock.Now().UTC()
		if err := s.store(ctx, all); err != nil {
			return Sentence{}, false, err
		}
		slog.Info("library sentence replaced", "date", today, "id", all[i].ID)
		return all[i], true, nil
	}
	st, err = s.insertLocked(ctx, all, today, text, variant)
	return st, false, err
}

// ToggleFavorite flips the favourite flag of the sentence with id.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (Sentence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return Sentence{}, err
	}
	for i := range all {
		if all[i].ID == id {
			all[i].Favorite = !all[i].Favorite
			if err := s.store(ctx, all); err != nil {
				return Sentence{}, err
			}
			return all[i], nil
		}
	}
	return Sentence{}, ErrNotFound
}

// Delete removes the sentence with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, st := range all {
		if st.ID != id {
			kept = append(kept, st)
		}
	}
	if len(kept) == len(all) {
		return ErrNotFound
	}
	return s.store(ctx, kept)
}

func (s *Store) insertLocked(ctx context.Context, all []Sentence, today, text string, variant Variant) (Sentence, error) {
	st := Sentence{
		ID:        s.newID(),
		Date:      today,
		Text:      text,
		Variant:   variant,
		CreatedAt: s.clock.Now().UTC(),
	}
	all = append([]Sentence{st}, all...)
	if err := s.store(ctx, all); err != nil {
		return Sentence{}, err
	}
	slog.Info("library sentence saved", "date", today, "id", st.ID, "variant", variant)
	return st, nil
}

func (s *Store) load(ctx context.Context) ([]Sentence, error) {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("library: load: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []Sentence{}, nil
	}
	var all []Sentence
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("library: decode %s: %w", StorageKey, err)
	}
	if all == nil {
		all = []Sentence{}
	}
	return all, nil
}

func (s *Store) store(ctx context.Context, all []Sentence) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("library: encode: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("library: store: %w", err)
	}
	return nil
}

func validate(text string, variant Variant) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	if _, err := ParseVariant(string(variant)); err != nil {
		return "", err
	}
	return text, nil
}
