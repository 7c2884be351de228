package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockfighter-mm/config"
	"stockfighter-mm/gateway"
	"stockfighter-mm/infrastructure/alert"
	"stockfighter-mm/infrastructure/logger"
	"stockfighter-mm/infrastructure/monitor"
	"stockfighter-mm/internal/engine"
	"stockfighter-mm/internal/journal"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	journal *journal.Journal

	// 交易所网关
	client *gateway.Client
	gm     *gateway.GMClient
	tape   *gateway.TickerTape

	session gateway.Session
	engine  *engine.Engine

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(configPath, cfg), nil
}

// NewWithConfig 使用已加载的配置；configPath 为空时不监听配置变化。
func NewWithConfig(configPath string, cfg config.AppConfig) *Container {
	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 构建所有组件。开局失败直接返回错误，不进入循环。
func (c *Container) Build(ctx context.Context) error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	c.buildGateway()

	if err := c.establishSession(ctx); err != nil {
		return fmt.Errorf("establish session failed: %w", err)
	}

	c.checkVenue(ctx)

	if err := c.buildEngine(); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.String("run_id", c.engine.RunID()),
		zap.String("account", c.client.Account),
		zap.String("venue", c.client.Venue),
		zap.String("stock", c.client.Stock))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewZapChannel(c.logger.Logger)}, time.Minute)

	if c.cfg.Journal.Path != "" {
		c.journal, err = journal.Open(c.cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal failed: %w", err)
		}
	}

	c.logger.Info("infrastructure built", zap.String("env", c.cfg.Env))
	return nil
}

func (c *Container) buildGateway() {
	gw := c.cfg.Gateway
	hc := gateway.NewDefaultHTTPClient(time.Duration(gw.TimeoutMs) * time.Millisecond)
	limiter := gateway.NewTokenBucketLimiter(gw.RateLimit, gw.Burst)

	c.gm = &gateway.GMClient{
		BaseURL:    gw.GMURL,
		APIKey:     gw.APIToken,
		InstanceID: c.cfg.Instance.InstanceID,
		HTTPClient: hc,
		Limiter:    limiter,
		Observer:   c.monitor,
	}
	c.client = &gateway.Client{
		BaseURL:    gw.BaseURL,
		APIKey:     gw.APIToken,
		HTTPClient: hc,
		Limiter:    limiter,
		Observer:   c.monitor,
	}
	c.logger.Info("gateway built",
		zap.String("base_url", gw.BaseURL),
		zap.String("gm_url", gw.GMURL),
		zap.String("quote_feed", gw.QuoteFeed))
}

// establishSession 开局（或重启/恢复）并确定账户、交易所与标的。
// 配置中非空的 account/venue/stock 优先于 GM 返回值。
func (c *Container) establishSession(ctx context.Context) error {
	inst := c.cfg.Instance
	var (
		s   gateway.Session
		err error
	)
	switch {
	case inst.InstanceID == 0:
		s, err = c.gm.StartLevel(ctx, inst.Level)
	case inst.StartMode == config.StartResume:
		s, err = c.gm.Resume(ctx, inst.InstanceID)
	default:
		s, err = c.gm.Restart(ctx, inst.InstanceID)
	}
	if err != nil {
		return err
	}
	c.session = s

	c.client.Account = firstNonEmpty(inst.Account, s.AccountID)
	c.client.Venue = firstNonEmpty(inst.Venue, first(s.Venues))
	c.client.Stock = firstNonEmpty(inst.Stock, first(s.Tickers))
	if c.client.Account == "" || c.client.Venue == "" || c.client.Stock == "" {
		return fmt.Errorf("incomplete session: account=%q venue=%q stock=%q",
			c.client.Account, c.client.Venue, c.client.Stock)
	}

	c.logger.Info("session established",
		zap.Int("instance_id", s.InstanceID),
		zap.String("mode", startMode(inst)),
		zap.String("account", c.client.Account),
		zap.String("venue", c.client.Venue),
		zap.String("stock", c.client.Stock))
	return nil
}

func startMode(inst config.InstanceConfig) string {
	if inst.InstanceID == 0 {
		return "level:" + inst.Level
	}
	return inst.StartMode
}

// checkVenue 启动时检查 API 与交易所心跳、标的是否挂牌以及订单簿，失败只记录。
func (c *Container) checkVenue(ctx context.Context) {
	if err := c.client.Heartbeat(ctx); err != nil {
		c.logger.Warn("api heartbeat failed", zap.Error(err))
	} else {
		c.logger.Info("api heartbeat ok")
	}
	if err := c.client.VenueHeartbeat(ctx); err != nil {
		c.logger.Warn("venue heartbeat failed", zap.String("venue", c.client.Venue), zap.Error(err))
	} else {
		c.logger.Info("venue heartbeat ok", zap.String("venue", c.client.Venue))
	}

	syms, err := c.client.Stocks(ctx)
	switch {
	case err != nil:
		c.logger.Warn("list stocks failed", zap.String("venue", c.client.Venue), zap.Error(err))
	case !listed(syms, c.client.Stock):
		c.logger.Warn("stock not listed on venue",
			zap.String("venue", c.client.Venue),
			zap.String("stock", c.client.Stock),
			zap.Int("listed", len(syms)))
	default:
		c.logger.Info("stock listed", zap.String("stock", c.client.Stock))
	}

	ob, err := c.client.Orderbook(ctx)
	if err != nil {
		c.logger.Warn("orderbook failed", zap.String("stock", c.client.Stock), zap.Error(err))
		return
	}
	c.logger.Info("orderbook",
		zap.String("stock", c.client.Stock),
		zap.Int("bid_levels", len(ob.Bids)),
		zap.Int("ask_levels", len(ob.Asks)))
}

func listed(syms []gateway.Symbol, stock string) bool {
	for _, s := range syms {
		if s.Symbol == stock {
			return true
		}
	}
	return false
}

func (c *Container) buildEngine() error {
	comps := engine.Components{
		Exchange: c.client,
		Account:  c.gm,
		Logger:   c.logger,
		Metrics:  c.monitor,
		Alerts:   c.alerts,
	}
	// 接口字段不能接收 nil 指针
	if c.journal != nil {
		comps.Journal = c.journal
	}
	if c.cfg.Gateway.QuoteFeed == config.QuoteFeedWS {
		c.tape = gateway.NewTickerTape(c.cfg.Gateway.WSURL, c.client.Account, c.client.Venue, c.client.Stock, c.logger.Logger)
		c.tape.Observer = c.monitor
		comps.Quotes = c.tape
	}

	var err error
	c.engine, err = engine.New(c.cfg.Strategy.Params(), comps)
	return err
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		})
	}
	if c.tape != nil {
		c.lifecycle.Register(newGoroutineComponent("tickertape", c.logger, c.tape.Run))
	}
	if c.configPath != "" {
		w := config.Watcher{Path: c.configPath, Logger: c.logger.Logger}
		c.lifecycle.Register(newGoroutineComponent("config_watcher", c.logger, func(ctx context.Context) error {
			return w.Start(ctx, c.applyConfig)
		}))
	}
}

// applyConfig 只有策略段支持热更新，其余变化需要重启进程。
func (c *Container) applyConfig(next config.AppConfig) {
	if err := c.engine.SetParams(next.Strategy.Params()); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "hot_reload"})
		return
	}
	c.cfg.Strategy = next.Strategy
}

// Start 启动后台组件（指标服务、行情推送、配置监听）。
func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Run 阻塞执行对账循环直到 ctx 取消。
func (c *Container) Run(ctx context.Context) error {
	err := c.engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop 停止后台组件并撤销本进程记录的挂单。只能在 Run 返回后调用。
func (c *Container) Stop() error {
	if c.logger == nil {
		return nil
	}
	c.logger.Info("stopping container...")

	var stopErr error
	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
		stopErr = err
	}

	if c.engine != nil {
		c.cancelOpenOrders()
		stats := c.engine.GetStatistics()
		c.logger.Info("final statistics",
			zap.Int64("cycles", stats.TotalCycles),
			zap.Int64("fills", stats.TotalFills),
			zap.Int64("orders", stats.TotalOrders),
			zap.Int64("cancels", stats.TotalCancels),
			zap.Int64("stage_failures", stats.StageFailures))
	}

	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "close_journal"})
		}
	}

	c.logger.Info("container stopped")
	c.logger.Close()
	return stopErr
}

// cancelOpenOrders 安全清场：撤销账户在该标的上的全部挂单，持仓保持不动。
// 查询订单列表失败时退回到最近一轮记录的挂单。
func (c *Container) cancelOpenOrders() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var ids []int64
	orders, err := c.client.AllOrders(ctx)
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "all_orders"})
		w := c.engine.World()
		for _, ref := range append(append(w.OpenBids[:0:0], w.OpenBids...), w.OpenAsks...) {
			ids = append(ids, ref.ID)
		}
	} else {
		for _, st := range orders {
			if st.Open {
				ids = append(ids, st.ID)
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	canceled := 0
	for _, id := range ids {
		if err := c.client.Cancel(ctx, id); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "cancel_on_stop", "order_id": id})
			continue
		}
		canceled++
	}
	c.logger.Info("open orders canceled on stop", zap.Int("canceled", canceled), zap.Int("total", len(ids)))
}

// HealthCheck 检查后台组件是否仍在运行。
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 返回对账引擎，Build 之后可用。
func (c *Container) Engine() *engine.Engine {
	return c.engine
}

// Session 返回开局得到的会话信息。
func (c *Container) Session() gateway.Session {
	return c.session
}

// Logger 返回日志器，Build 之后可用。
func (c *Container) Logger() *logger.Logger {
	return c.logger
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
