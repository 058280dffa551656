// Package kvtest holds the behaviour every kv.Store backend must satisfy.
// Backend test files call [Run] with a constructor for a fresh store.
package kvtest

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/happysentences/internal/kv"
)

// Run exercises a fresh store returned by newStore. The store is closed by Run.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		v, ok, err := s.Get(ctx, "absent")
		if err != nil || ok || v != nil {
			t.Fatalf("Get(absent) = %q, %v, %v", v, ok, err)
		}
	})

	t.Run("set get overwrite", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		if err := s.Set(ctx, "k", []byte(`[1]`)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, "k", []byte(`[1,2]`)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, ok, err := s.Get(ctx, "k")
		if err != nil || !ok || string(v) != `[1,2]` {
			t.Fatalf("Get(k) = %q, %v, %v", v, ok, err)
		}
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		in := []byte("abc")
		if err := s.Set(ctx, "k", in); err != nil {
			t.Fatalf("Set: %v", err)
		}
		in[0] = 'x'
		v, _, _ := s.Get(ctx, "k")
		if string(v) != "abc" {
			t.Fatalf("stored value changed through caller slice: %q", v)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		if err := s.Set(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete(missing): %v", err)
		}
		if _, ok, _ := s.Get(ctx, "k"); ok {
			t.Fatal("key still present after Delete")
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := newStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := s.Set(ctx, "k", []byte("v")); err == nil {
			t.Fatal("Set after Close succeeded")
		} else if !errors.Is(err, kv.ErrClosed) {
			t.Logf("Set after Close: %v", err)
		}
	})
}
