// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDetectsChange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  name: \"first\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if got := w.Config().Agent.Name; got != "first" {
		t.Fatalf("expected initial name first, got %s", got)
	}

	changed := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Ensure the mtime moves forward even on coarse filesystems
	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("agent:\n  name: \"second\"\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	os.Chtimes(path, future, future)

	select {
	case cfg := <-changed:
		if cfg.Agent.Name != "second" {
			t.Errorf("expected reloaded name second, got %s", cfg.Agent.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherStopIsIdempotentWithContextCancel(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  name: \"a\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx := context.Background()
	w.Start(ctx)
	w.Stop()
	w.Stop()
}

func TestWatcherStopWithoutStart(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  name: \"a\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher([]string{path})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a watcher that was never started")
	}
}
