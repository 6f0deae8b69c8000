package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apcore/apcore/internal/testutil"
)

func writeCatalogue(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", time.Second, nil, func(string) error { return nil }); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := New("/tmp/x.yaml", time.Second, nil, nil); err == nil {
		t.Error("expected error for nil callback")
	}
}

func TestReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	writeCatalogue(t, path, "apps: {}\n")

	var reloads atomic.Int32
	w, err := New(path, 20*time.Millisecond, nil, func(string) error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeCatalogue(t, path, "apps: {a: {}}\n")
	testutil.Eventually(t, 2*time.Second, func() bool {
		return reloads.Load() >= 1
	}, "reload after write")
}

func TestReloadOnRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	writeCatalogue(t, path, "apps: {}\n")

	var reloads atomic.Int32
	w, err := New(path, 20*time.Millisecond, nil, func(string) error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	tmp := filepath.Join(dir, ".catalogue.yaml.tmp")
	writeCatalogue(t, tmp, "apps: {b: {}}\n")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		return reloads.Load() >= 1
	}, "reload after rename-replace")
}

func TestBurstOfWritesCoalesces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	writeCatalogue(t, path, "apps: {}\n")

	var reloads atomic.Int32
	w, err := New(path, 100*time.Millisecond, nil, func(string) error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for i := 0; i < 5; i++ {
		writeCatalogue(t, path, "apps: {}\n")
		time.Sleep(10 * time.Millisecond)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		return reloads.Load() >= 1
	}, "coalesced reload")
	// The settle window outlasted every write in the burst, so exactly
	// one reload fires.
	time.Sleep(200 * time.Millisecond)
	if n := reloads.Load(); n != 1 {
		t.Fatalf("reloads = %d, want 1", n)
	}
}

func TestOtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	writeCatalogue(t, path, "apps: {}\n")

	var reloads atomic.Int32
	w, err := New(path, 20*time.Millisecond, nil, func(string) error {
		reloads.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeCatalogue(t, filepath.Join(dir, "unrelated.yaml"), "x\n")
	testutil.Never(t, 150*time.Millisecond, func() bool {
		return reloads.Load() > 0
	}, "reload for an unrelated file")
}
