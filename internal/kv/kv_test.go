package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/happysentences/internal/kv"
	"github.com/MrWong99/happysentences/internal/kv/kvtest"
)

func TestMemory(t *testing.T) {
	t.Parallel()
	kvtest.Run(t, func(*testing.T) kv.Store { return kv.NewMemory() })
}

func TestFile(t *testing.T) {
	t.Parallel()
	kvtest.Run(t, func(t *testing.T) kv.Store {
		f, err := kv.OpenFile(filepath.Join(t.TempDir(), "state", "storage.json"))
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		return f
	})
}

func TestFile_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	f, err := kv.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := f.Set(ctx, "happy_sentences_saved", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = f.Close()

	reopened, err := kv.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Get(ctx, "happy_sentences_saved")
	if err != nil || !ok || string(v) != `[{"id":"a"}]` {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the store file", len(entries))
	}
}

func TestOpenFile_Corrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := kv.OpenFile(path); err == nil {
		t.Fatal("expected decode error")
	}
}
