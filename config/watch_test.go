package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherStopsOnCancel(t *testing.T) {
	path := writeTempConfig(t, baseYAML)
	w := Watcher{Path: path, Cooldown: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Start(ctx, nil); err == nil {
		t.Fatalf("expected context cancellation")
	}
}

func TestWatcherMissingDir(t *testing.T) {
	w := Watcher{Path: filepath.Join(t.TempDir(), "nope", "cfg.yaml")}
	if err := w.Start(context.Background(), nil); err == nil {
		t.Fatalf("expected watch error")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeTempConfig(t, baseYAML)
	w := Watcher{Path: path, Cooldown: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan AppConfig, 4)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) { ch <- cfg })
	}()

	// 监听注册是异步的，反复写入直到收到回调
	deadline := time.After(3 * time.Second)
	for i := 1; ; i++ {
		body := fmt.Sprintf("%s  goal: %d\n", baseYAML, i)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		select {
		case cfg := <-ch:
			if cfg.Strategy.Goal <= 0 {
				t.Fatalf("expected reloaded goal, got %+v", cfg.Strategy)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatalf("expected update callback")
		}
	}
}

func TestWatcherRejectsInvalidReload(t *testing.T) {
	path := writeTempConfig(t, baseYAML)
	w := Watcher{Path: path, Cooldown: 10 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	called := make(chan struct{}, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("env: dev\nstrategy:\n  positionLimit: 0\n"), 0o644)
	}()
	_ = w.Start(ctx, func(AppConfig) { called <- struct{}{} })
	select {
	case <-called:
		t.Fatalf("invalid config must not be delivered")
	default:
	}
}
