package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化，冷却期内的多次写入合并为一次重载。
// 新配置校验失败时保留旧配置，只记录日志。
type Watcher struct {
	Path     string
	Cooldown time.Duration
	Logger   *zap.Logger
}

// Start 阻塞直到 ctx 取消；每次成功重载都会回调 onUpdate。
// 监听所在目录而不是文件本身，编辑器以改名方式保存时也能收到事件。
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 500 * time.Millisecond
	}
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.Cooldown)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		case <-timer.C:
			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				log.Warn("config reload rejected", zap.String("path", w.Path), zap.Error(err))
				continue
			}
			log.Info("config reloaded",
				zap.String("path", w.Path),
				zap.Int("position_limit", cfg.Strategy.PositionLimit),
				zap.Int("buffer", cfg.Strategy.Buffer),
				zap.Int("interval_ms", cfg.Strategy.IntervalMs))
			if onUpdate != nil {
				onUpdate(cfg)
			}
		}
	}
}
