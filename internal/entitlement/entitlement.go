// Package entitlement stores the user's premium-voice permission state and
// answers whether premium playback is allowed.
//
// The state is a single JSON document under [StorageKey]. Purchases and ad
// views happen elsewhere; this package only records their effect (credits, an
// ad pass, a subscription) and checks it.
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/happysentences/internal/kv"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/pkg/types"
)

// StorageKey is the kv key holding the entitlement document.
const StorageKey = "user_entitlement"

// DefaultAdPass is how long an ad pass stays valid.
const DefaultAdPass = 30 * time.Minute

// ErrInvalidAmount is returned by AddCredits for non-positive amounts.
var ErrInvalidAmount = errors.New("entitlement: amount must be positive")

// Type is the kind of entitlement the user holds.
type Type string

const (
	TypeFree       Type = "FREE"
	TypeSubscribed Type = "SUBSCRIBED"
	TypeCredit     Type = "CREDIT"
	TypeAdPass     Type = "AD_PASS"
	TypeDevBypass  Type = "DEV_BYPASS"
)

// Entitlement is the stored permission state.
type Entitlement struct {
	Type               Type       `json:"type"`
	Credits            int        `json:"credits"`
	AdPassExpiry       *time.Time `json:"adPassExpiry,omitempty"`
	SubscriptionExpiry *time.Time `json:"subscriptionExpiry,omitempty"`
}

// Reason explains a permission decision.
type Reason string

const (
	ReasonNoPermission Reason = "no_permission"
	ReasonNoCredits    Reason = "no_credits"
	ReasonExpired      Reason = "expired"
	ReasonDevBypass    Reason = "dev_bypass"
)

// Permission is the answer of [Manager.CheckPremium].
type Permission struct {
	Allowed        bool         `json:"allowed"`
	Reason         Reason       `json:"reason,omitempty"`
	RequiresAction types.Action `json:"requiresAction,omitempty"`
}

// BypassPermission is the permission granted by the development bypass.
func BypassPermission() Permission {
	return Permission{Allowed: true, Reason: ReasonDevBypass}
}

// Manager reads and updates the entitlement document. Updates are serialised
// by a mutex; one Manager must be the only writer of its key.
type Manager struct {
	kv    kv.Store
	clock resilience.Clock

	mu sync.Mutex
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock sets the clock expiry checks use.
func WithClock(c resilience.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a manager over store.
func NewManager(store kv.Store, opts ...Option) *Manager {
	m := &Manager{kv: store, clock: resilience.SystemClock{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get returns the stored entitlement, or a FREE entitlement when none exists.
func (m *Manager) Get(ctx context.Context) (Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx)
}

// CheckPremium reports whether premium playback is allowed right now. The
// checks run in order: subscription, credits, ad pass. The development bypass
// is decided by the caller before asking; see [BypassPermission].
func (m *Manager) CheckPremium(ctx context.Context) (Permission, error) {
	e, err := m.Get(ctx)
	if err != nil {
		return Permission{}, err
	}
	now := m.clock.Now()

	if e.Type == TypeSubscribed {
		if e.SubscriptionExpiry != nil && e.SubscriptionExpiry.Before(now) {
			return Permission{Reason: ReasonExpired, RequiresAction: types.ActionSubscribe}, nil
		}
		return Permission{Allowed: true}, nil
	}
	if e.Credits > 0 {
		return Permission{Allowed: true}, nil
	}
	if e.AdPassExpiry != nil && e.AdPassExpiry.After(now) {
		return Permission{Allowed: true}, nil
	}
	return Permission{Reason: ReasonNoPermission, RequiresAction: types.ActionWatchAd}, nil
}

// ConsumeCredit spends one credit. It reports false when none was left.
func (m *Manager) ConsumeCredit(ctx context.Context) (bool, error) {
	ok := false
	_, err := m.update(ctx, func(e *Entitlement) {
		if e.Credits > 0 {
			e.Credits--
			ok = true
		}
	})
	return ok, err
}

// ConsumeAdPass spends the ad pass. It reports false when there was no valid
// pass.
func (m *Manager) ConsumeAdPass(ctx context.Context) (bool, error) {
	now := m.clock.Now()
	ok := false
	_, err := m.update(ctx, func(e *Entitlement) {
		if e.AdPassExpiry != nil && !e.AdPassExpiry.Before(now) {
			e.AdPassExpiry = nil
			ok = true
		}
	})
	return ok, err
}

// ConsumePremium charges one premium playback after it succeeded: subscribers
// pay nothing, otherwise a credit is spent, otherwise the ad pass. It returns
// what was charged ("subscription", "credit", "ad_pass" or "").
func (m *Manager) ConsumePremium(ctx context.Context) (string, error) {
	now := m.clock.Now()
	charged := ""
	_, err := m.update(ctx, func(e *Entitlement) {
		switch {
		case e.Type == TypeSubscribed && (e.SubscriptionExpiry == nil || !e.SubscriptionExpiry.Before(now)):
			charged = "subscription"
		case e.Credits > 0:
			e.Credits--
			charged = "credit"
		case e.AdPassExpiry != nil && !e.AdPassExpiry.Before(now):
			e.AdPassExpiry = nil
			charged = "ad_pass"
		}
	})
	return charged, err
}

// AddCredits adds amount credits.
func (m *Manager) AddCredits(ctx context.Context, amount int) (Entitlement, error) {
	if amount <= 0 {
		return Entitlement{}, ErrInvalidAmount
	}
	return m.update(ctx, func(e *Entitlement) { e.Credits += amount })
}

// GrantAdPass grants an ad pass valid for d (DefaultAdPass when d <= 0).
func (m *Manager) GrantAdPass(ctx context.Context, d time.Duration) (Entitlement, error) {
	if d <= 0 {
		d = DefaultAdPass
	}
	expiry := m.clock.Now().Add(d)
	return m.update(ctx, func(e *Entitlement) { e.AdPassExpiry = &expiry })
}

// Subscribe marks the user as subscribed until until. A zero until means no
// expiry.
func (m *Manager) Subscribe(ctx context.Context, until time.Time) (Entitlement, error) {
	return m.update(ctx, func(e *Entitlement) {
		e.Type = TypeSubscribed
		e.SubscriptionExpiry = nil
		if !until.IsZero() {
			u := until
			e.SubscriptionExpiry = &u
		}
	})
}

func (m *Manager) update(ctx context.Context, mutate func(*Entitlement)) (Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.load(ctx)
	if err != nil {
		return Entitlement{}, err
	}
	mutate(&e)
	raw, err := json.Marshal(e)
	if err != nil {
		return Entitlement{}, fmt.Errorf("entitlement: encode: %w", err)
	}
	if err := m.kv.Set(ctx, StorageKey, raw); err != nil {
		return Entitlement{}, fmt.Errorf("entitlement: store: %w", err)
	}
	slog.Debug("entitlement updated", "type", e.Type, "credits", e.Credits, "ad_pass", e.AdPassExpiry != nil)
	return e, nil
}

func (m *Manager) load(ctx context.Context) (Entitlement, error) {
	raw, ok, err := m.kv.Get(ctx, StorageKey)
	if err != nil {
		return Entitlement{}, fmt.Errorf("entitlement: load: %w", err)
	}
	if !ok || len(raw) == 0 {
		return Entitlement{Type: TypeFree}, nil
	}
	var e Entitlement
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Error("entitlement document unreadable, treating as free", "err", err)
		return Entitlement{Type: TypeFree}, nil
	}
	if e.Type == "" {
		e.Type = TypeFree
	}
	return e, nil
}
