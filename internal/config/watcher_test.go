package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.toml")
	if err := os.WriteFile(path, []byte("value = 1\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w := NewWatcher(path, func(p string) (string, error) {
		data, _ := os.ReadFile(p)
		return strings.TrimSpace(string(data)), nil
	}, slog.Default())
	w.SetDebounce(50 * time.Millisecond)

	loaded := make(chan string, 4)
	w.OnReload(func(v string) { loaded <- v })

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	select {
	case v := <-loaded:
		if v != "value = 2" {
			t.Errorf("reloaded value = %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.toml")
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	w := NewWatcher(path, func(p string) (string, error) {
		data, _ := os.ReadFile(p)
		return string(data), nil
	}, slog.Default())
	w.SetDebounce(200 * time.Millisecond)

	loaded := make(chan string, 16)
	w.OnReload(func(v string) { loaded <- v })

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// A burst of writes inside the debounce window collapses into one reload
	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, []byte("final"), 0o644); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case v := <-loaded:
		if v != "final" {
			t.Errorf("reloaded value = %q", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}

	select {
	case v := <-loaded:
		t.Errorf("expected a single reload for the burst, got extra %q", v)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherIgnoresBadLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.toml")
	if err := os.WriteFile(path, []byte("ok"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	calls := make(chan struct{}, 4)
	w := NewWatcher(path, func(p string) (int, error) {
		return 0, os.ErrInvalid
	}, slog.Default())
	w.SetDebounce(50 * time.Millisecond)
	w.OnReload(func(int) { calls <- struct{}{} })

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("changed"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case <-calls:
		t.Error("handlers must not run when the loader fails")
	case <-time.After(500 * time.Millisecond):
	}
}
