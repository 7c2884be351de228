package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"stockfighter-mm/internal/container"
	"stockfighter-mm/internal/engine"
)

// sdNotifyStatus 是 sd_notify 协议的 STATUS 前缀（go-systemd 未导出该常量）
const sdNotifyStatus = "STATUS="

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 日志器建立之前只能用标准库输出
	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := run(c, *cfgPath); err != nil {
		if lg := c.Logger(); lg != nil {
			lg.Fatal("runner exited", zap.Error(err))
		}
		log.Fatalf("runner exited: %v", err)
	}
}

func run(c *container.Container, cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer c.Stop()

	if err := c.Build(ctx); err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}

	lg := c.Logger()
	eng := c.Engine()
	watchdog := watchdogInterval()
	var lastPing time.Time
	eng.OnCycle = func(w engine.World) {
		status := fmt.Sprintf("pos=%d bids=%d asks=%d bid=%d ask=%d",
			eng.Ledger().Position(), len(w.OpenBids), len(w.OpenAsks), w.Quote.Bid, w.Quote.Ask)
		if err := c.HealthCheck(); err != nil {
			// 后台组件异常时不喂狗，由 systemd 重启
			lg.Warn("health check failed", zap.Error(err))
			notify(lg.Logger, sdNotifyStatus+"unhealthy: "+err.Error())
			return
		}
		notify(lg.Logger, sdNotifyStatus+status)
		if watchdog > 0 && time.Since(lastPing) >= watchdog/2 {
			notify(lg.Logger, daemon.SdNotifyWatchdog)
			lastPing = time.Now()
		}
	}

	notify(lg.Logger, daemon.SdNotifyReady)
	lg.Info("runner started",
		zap.String("config", cfgPath),
		zap.Int("instance_id", c.Session().InstanceID),
		zap.Int("pid", os.Getpid()))

	err := c.Run(ctx)
	notify(lg.Logger, daemon.SdNotifyStopping)
	lg.Info("runner exit")
	return err
}

// watchdogInterval systemd 未启用看门狗时返回 0。
func watchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

// notify 不在 systemd 下运行时 SdNotify 返回 (false, nil)，静默忽略。
func notify(l *zap.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		l.Debug("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}
