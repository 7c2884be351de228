package engine

import (
	"context"
	"fmt"

	"stockfighter-mm/account"
	"stockfighter-mm/gateway"
	"stockfighter-mm/market"
	"stockfighter-mm/order"
)

// World 一轮对账中在各阶段之间传递的状态。
// 进程启动时为零值，只在内存中存在。
type World struct {
	Quote      market.Quote
	BackOffice account.BackOffice
	OpenBids   []order.Ref
	OpenAsks   []order.Ref
}

// Exchange 交易所行情与下单接口；gateway.Client 实现，行情也可由 TickerTape 提供。
type Exchange interface {
	Quote(ctx context.Context) (market.QuoteUpdate, error)
	Bid(ctx context.Context, price, qty int) (order.Status, error)
	Ask(ctx context.Context, price, qty int) (order.Status, error)
	OrderStatus(ctx context.Context, id int64) (order.Status, error)
	Cancel(ctx context.Context, id int64) error
}

// QuoteSource 单独的行情来源。
type QuoteSource interface {
	Quote(ctx context.Context) (market.QuoteUpdate, error)
}

// Account 后台账户状态；gateway.GMClient 实现。
type Account interface {
	InstanceStatus(ctx context.Context) (gateway.InstanceStatus, error)
}

// 阶段名称，用于日志与指标标签。
const (
	StageFetchAccountStatus = "fetch_account_status"
	StageFetchQuote         = "fetch_quote"
	StageReconcile          = "reconcile_open_orders"
	StageFilterStale        = "filter_stale"
	StagePlanBid            = "plan_bid"
	StagePlanAsk            = "plan_ask"
	StageReport             = "report"
)

// StageFunc 一个阶段：输入上一阶段的 World，返回下一阶段的 World。
type StageFunc func(ctx context.Context, w World) (World, error)

type stage struct {
	name string
	run  StageFunc
}

// StageError 阶段失败。只记录，不中断循环。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
