package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockfighter-mm/infrastructure/logger"
	"stockfighter-mm/internal/journal"
	"stockfighter-mm/inventory"
	"stockfighter-mm/order"
	"stockfighter-mm/strategy"
)

// Metrics 引擎上报的指标；infrastructure/monitor.Monitor 实现。
type Metrics interface {
	RecordOrderPlaced(side string)
	RecordOrderCanceled(side string)
	RecordOrderRejected(side string)
	UpdateOpenOrders(bids, asks int)
	RecordFill(side string, qty int)
	UpdateLedger(cash int64, position int, nav int64, lotQty int)
	UpdateBackOffice(cash int64, position int, nav int64)
	UpdateDivergence(cash int64, position int, nav int64)
	UpdateQuote(bid, ask, last int)
	RecordStageFailure(stage string)
	RecordCycle(seconds float64)
}

// Journal 成交与快照的审计落盘；internal/journal.Journal 实现。
type Journal interface {
	RecordFill(ctx context.Context, f journal.Fill) error
	RecordCycle(ctx context.Context, c journal.Cycle) error
}

// Alerter 告警出口；infrastructure/alert.Manager 实现。
type Alerter interface {
	SendInfo(message string, fields map[string]interface{}) error
	SendWarning(message string, fields map[string]interface{}) error
}

// Components 引擎依赖组件。Exchange、Account、Logger 必填，其余可选。
type Components struct {
	Exchange Exchange
	Quotes   QuoteSource // 为空时使用 Exchange.Quote
	Account  Account
	Logger   *logger.Logger
	Metrics  Metrics
	Journal  Journal
	Alerts   Alerter
	Status   StatusSink
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime     time.Time
	TotalCycles   int64
	TotalFills    int64
	TotalOrders   int64
	TotalCancels  int64
	StageFailures int64
	LastCycleTime time.Time
}

// Engine 对账循环：每轮依次执行固定阶段，阶段失败只跳过该阶段。
// World 与 Ledger 只由当前轮独占，不加锁。
type Engine struct {
	exch    Exchange
	quotes  QuoteSource
	acct    Account
	logger  *logger.Logger
	metrics Metrics
	journal Journal
	alerts  Alerter
	status  StatusSink

	reconciler *order.Reconciler
	stale      *order.StaleFilter
	orders     *order.Manager
	ledger     *inventory.Ledger
	askLots    map[int64]*askLot // 挂卖单 ID → 出堆的批次

	params atomic.Pointer[strategy.Params]
	stages []stage
	world  World
	runID  string

	// 当前轮
	cycleCtx    context.Context
	cycleID     string
	cycleParams strategy.Params
	failures    int

	goalReached bool

	// OnCycle 每轮结束后回调，测试与 systemd 看门狗使用。
	OnCycle func(w World)

	statsMu sync.RWMutex
	stats   Statistics
}

// New 创建引擎
func New(p strategy.Params, c Components) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := validateComponents(c); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if c.Quotes == nil {
		c.Quotes = c.Exchange
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	zl := c.Logger.Logger
	e := &Engine{
		exch:       c.Exchange,
		quotes:     c.Quotes,
		acct:       c.Account,
		logger:     c.Logger,
		metrics:    c.Metrics,
		journal:    c.Journal,
		alerts:     c.Alerts,
		status:     c.Status,
		reconciler: order.NewReconciler(c.Exchange, zl),
		stale:      order.NewStaleFilter(c.Exchange, zl),
		orders:     order.NewManager(c.Exchange),
		ledger:     inventory.NewLedger(),
		askLots:    make(map[int64]*askLot),
		runID:      uuid.NewString(),
	}
	if e.status == nil {
		e.status = LogStatusSink(c.Logger)
	}
	e.params.Store(&p)
	e.stages = []stage{
		{StageFetchAccountStatus, e.fetchAccountStatus},
		{StageFetchQuote, e.fetchQuote},
		{StageReconcile, e.reconcileOpenOrders},
		{StageFilterStale, e.filterStale},
		{StagePlanBid, e.planBid},
		{StagePlanAsk, e.planAsk},
		{StageReport, e.report},
	}
	return e, nil
}

func validateComponents(c Components) error {
	if c.Exchange == nil {
		return errors.New("exchange is required")
	}
	if c.Account == nil {
		return errors.New("account is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// SetParams 热更新策略参数，下一轮开始生效。
func (e *Engine) SetParams(p strategy.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params.Store(&p)
	e.logger.Info("strategy params updated",
		zap.Int("position_limit", p.PositionLimit),
		zap.Int("buffer", p.Buffer),
		zap.Int("stale_buffer", p.StaleBand()),
		zap.Duration("interval", p.Interval),
		zap.Int64("goal", p.Goal))
	return nil
}

// Params 返回当前生效的参数。
func (e *Engine) Params() strategy.Params {
	return *e.params.Load()
}

// RunID 本次进程运行的标识，写入日志与审计表。
func (e *Engine) RunID() string {
	return e.runID
}

// World 返回最近一轮结束时的状态，仅在循环之外调用。
func (e *Engine) World() World {
	return e.world
}

// Ledger 影子账本，仅在循环之外调用。
func (e *Engine) Ledger() *inventory.Ledger {
	return e.ledger
}

// Run 循环执行直到 ctx 取消；两轮之间固定等待 Interval。
func (e *Engine) Run(ctx context.Context) error {
	e.statsMu.Lock()
	e.stats.StartTime = time.Now()
	e.statsMu.Unlock()

	p := e.Params()
	e.logger.Info("reconciliation loop starting",
		zap.String("run_id", e.runID),
		zap.Int("position_limit", p.PositionLimit),
		zap.Int("buffer", p.Buffer),
		zap.Duration("interval", p.Interval))

	for {
		e.RunCycle(ctx)
		if ctx.Err() != nil {
			break
		}
		timer := time.NewTimer(e.cycleParams.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}
	e.logger.Info("reconciliation loop stopped", zap.String("run_id", e.runID))
	return ctx.Err()
}

// RunCycle 执行一轮完整的阶段序列（不含等待），返回本轮结束时的 World。
func (e *Engine) RunCycle(ctx context.Context) World {
	start := time.Now()
	e.cycleCtx = ctx
	e.cycleID = uuid.NewString()
	e.cycleParams = e.Params()
	e.failures = 0

	w := e.world
	for _, st := range e.stages {
		if ctx.Err() != nil {
			break
		}
		w = e.runStage(ctx, st, w)
	}
	e.world = w

	e.metrics.RecordCycle(time.Since(start).Seconds())
	e.statsMu.Lock()
	e.stats.TotalCycles++
	e.stats.StageFailures += int64(e.failures)
	e.stats.LastCycleTime = time.Now()
	e.statsMu.Unlock()

	if e.OnCycle != nil {
		e.OnCycle(w)
	}
	return w
}

// runStage 执行单个阶段；失败时记录并返回阶段前的 World。
func (e *Engine) runStage(ctx context.Context, st stage, w World) World {
	next, err := st.run(ctx, w)
	if err == nil {
		return next
	}
	serr := &StageError{Stage: st.name, Err: err}
	e.failures++
	e.metrics.RecordStageFailure(st.name)
	e.logger.Warn("stage failed",
		zap.String("stage", st.name),
		zap.String("cycle_id", e.cycleID),
		zap.Error(serr))
	return w
}

// GetStatistics 获取统计信息
func (e *Engine) GetStatistics() Statistics {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.stats
}

func (e *Engine) addStat(f func(s *Statistics)) {
	e.statsMu.Lock()
	f(&e.stats)
	e.statsMu.Unlock()
}

type nopMetrics struct{}

func (nopMetrics) RecordOrderPlaced(string)            {}
func (nopMetrics) RecordOrderCanceled(string)          {}
func (nopMetrics) RecordOrderRejected(string)          {}
func (nopMetrics) UpdateOpenOrders(int, int)           {}
func (nopMetrics) RecordFill(string, int)              {}
func (nopMetrics) UpdateLedger(int64, int, int64, int) {}
func (nopMetrics) UpdateBackOffice(int64, int, int64)  {}
func (nopMetrics) UpdateDivergence(int64, int, int64)  {}
func (nopMetrics) UpdateQuote(int, int, int)           {}
func (nopMetrics) RecordStageFailure(string)           {}
func (nopMetrics) RecordCycle(float64)                 {}
