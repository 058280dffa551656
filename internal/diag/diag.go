// Package diag keeps the speech pipeline's diagnostic status record.
//
// A [Store] is an explicitly owned status record with a publish/subscribe
// interface. Every stage of the speech pipeline writes its transitions into the
// store; development tooling (the debug HTTP routes, the CLI self-test) reads
// snapshots or subscribes to changes. There is no package-level instance:
// each Speaker gets its own store, which keeps tests isolated.
package diag

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/happysentences/internal/resilience"
)

// Action is the last pipeline step recorded in the status.
type Action string

const (
	ActionIdle    Action = "idle"
	ActionPreload Action = "preload"
	ActionSpeak   Action = "speak"
	ActionStart   Action = "start"
	ActionCancel  Action = "cancel"
	ActionEnd     Action = "end"
	ActionError   Action = "error"
)

// ErrorInfo describes the last recorded failure.
type ErrorInfo struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Status is a snapshot of the pipeline state.
type Status struct {
	Supported         bool       `json:"supported"`
	VoicesLoaded      bool       `json:"voicesLoaded"`
	VoicesCount       int        `json:"voicesCount"`
	SelectedVoiceName string     `json:"selectedVoiceName,omitempty"`
	SelectedVoiceLang string     `json:"selectedVoiceLang,omitempty"`
	Speaking          bool       `json:"speaking"`
	Pending           bool       `json:"pending"`
	LastAction        Action     `json:"lastAction"`
	LastError         *ErrorInfo `json:"lastError,omitempty"`
	LastSpokenTextLen int        `json:"lastSpokenTextLen"`
	LastSpokenLang    string     `json:"lastSpokenLang,omitempty"`
	CurrentEmotion    string     `json:"currentEmotion,omitempty"`
	LastUpdated       time.Time  `json:"lastUpdated"`
}

func (s Status) clone() Status {
	if s.LastError != nil {
		e := *s.LastError
		s.LastError = &e
	}
	return s
}

// Listener receives a copy of the status after every change. Listeners run
// synchronously in subscription order and must not write to the store.
type Listener func(Status)

type subscription struct {
	id int
	fn Listener
}

// Store is the status record. The zero value is not usable; call [NewStore].
type Store struct {
	clock resilience.Clock

	mu        sync.Mutex
	status    Status
	listeners []subscription
	nextID    int

	// notifyMu keeps deliveries in update order.
	notifyMu sync.Mutex
}

// Option configures a [Store].
type Option func(*Store)

// WithClock sets the clock used for LastUpdated and error times.
func WithClock(c resilience.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// NewStore returns a store in the idle state.
func NewStore(opts ...Option) *Store {
	s := &Store{clock: resilience.SystemClock{}}
	for _, o := range opts {
		o(s)
	}
	s.status = Status{LastAction: ActionIdle, LastUpdated: s.clock.Now()}
	return s
}

// Status returns a snapshot of the current status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// Update applies mutate to the status, stamps LastUpdated and notifies
// listeners.
func (s *Store) Update(mutate func(*Status)) {
	s.mu.Lock()
	if mutate != nil {
		mutate(&s.status)
	}
	s.status.LastUpdated = s.clock.Now()
	s.publishLocked()
}

// RecordAction sets LastAction and applies the optional mutation in the same
// update.
func (s *Store) RecordAction(action Action, mutate func(*Status)) {
	slog.Debug("speech diagnostics action", "action", action)
	s.Update(func(st *Status) {
		st.LastAction = action
		if mutate != nil {
			mutate(st)
		}
	})
}

// RecordError records a failure and sets LastAction to error.
func (s *Store) RecordError(code, message string) {
	slog.Warn("speech diagnostics error", "code", code, "message", message)
	s.mu.Lock()
	s.status.LastAction = ActionError
	s.status.LastError = &ErrorInfo{Code: code, Message: message, Time: s.clock.Now()}
	s.status.Speaking = false
	s.status.Pending = false
	s.status.LastUpdated = s.clock.Now()
	s.publishLocked()
}

// Reset restores the initial idle status and notifies listeners. Subscriptions
// survive a reset.
func (s *Store) Reset() {
	s.mu.Lock()
	s.status = Status{LastAction: ActionIdle, LastUpdated: s.clock.Now()}
	s.publishLocked()
}

// Subscribe registers l and returns a function that removes it. Calling the
// returned function more than once is safe.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// publishLocked must be called with s.mu held; it releases s.mu.
func (s *Store) publishLocked() {
	snapshot := s.status.clone()
	subs := make([]subscription, len(s.listeners))
	copy(subs, s.listeners)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range subs {
		notify(sub.fn, snapshot.clone())
	}
}

func notify(l Listener, st Status) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("speech diagnostics listener panicked", "panic", r)
		}
	}()
	l(st)
}
