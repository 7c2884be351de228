package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"stockfighter-mm/account"
	"stockfighter-mm/internal/journal"
	"stockfighter-mm/inventory"
	"stockfighter-mm/market"
	"stockfighter-mm/order"
	"stockfighter-mm/strategy"
)

// fetchAccountStatus 读取后台账户摘要。flash 缺失或无法解析时为 Known=false 的零值。
func (e *Engine) fetchAccountStatus(ctx context.Context, w World) (World, error) {
	st, err := e.acct.InstanceStatus(ctx)
	if err != nil {
		return w, err
	}
	var days *account.Days
	if st.Details != nil {
		days = &account.Days{TradingDay: st.Details.TradingDay, EndOfTheWorldDay: st.Details.EndOfTheWorldDay}
	}
	w.BackOffice = account.FromStatus(st.FlashInfo(), days)
	if w.BackOffice.Known {
		e.metrics.UpdateBackOffice(w.BackOffice.Cash, w.BackOffice.Position, w.BackOffice.NAV)
	} else {
		e.logger.Debug("back office unknown", zap.String("cycle_id", e.cycleID))
	}
	if st.Done {
		e.logger.Info("instance reports done", zap.Int("instance_id", st.ID), zap.String("state", st.State))
	}
	return w, nil
}

// fetchQuote 合并最新行情，缺失字段保持上次的值。
func (e *Engine) fetchQuote(ctx context.Context, w World) (World, error) {
	upd, err := e.quotes.Quote(ctx)
	if err != nil {
		return w, err
	}
	w.Quote = market.Merge(w.Quote, upd)
	e.metrics.UpdateQuote(w.Quote.Bid, w.Quote.Ask, w.Quote.Last)
	return w, nil
}

// reconcileOpenOrders 刷新全部挂单，新成交是记账的唯一入口之一（另一处是下单响应）。
func (e *Engine) reconcileOpenOrders(ctx context.Context, w World) (World, error) {
	w.OpenBids = e.reconciler.Reconcile(ctx, w.OpenBids, e.recordFill)
	w.OpenAsks = e.reconciler.Reconcile(ctx, w.OpenAsks, e.recordFill)
	e.releaseClosedAsks(w.OpenAsks)
	return w, nil
}

// filterStale 撤销偏离行情的挂单，不等待撤单生效，World 原样返回。
// 行情缺任一侧时 order.Stale 不做判断。
func (e *Engine) filterStale(ctx context.Context, w World) (World, error) {
	canceled := e.stale.Cancel(ctx, w.OpenBids, w.OpenAsks, w.Quote, e.cycleParams.StaleBand())
	for _, ref := range canceled {
		e.metrics.RecordOrderCanceled(string(ref.Status.Direction))
	}
	if n := len(canceled); n > 0 {
		e.addStat(func(s *Statistics) { s.TotalCancels += int64(n) })
	}
	return w, nil
}

// planBid 在仓位额度内按市场卖一价买入。
func (e *Engine) planBid(ctx context.Context, w World) (World, error) {
	p := e.cycleParams
	plan, reason := strategy.PlanBid(w.Quote, e.ledger.Position(), w.OpenBids, w.OpenAsks, p.PositionLimit)
	if reason != strategy.Proceed {
		e.logger.Debug("bid skipped", zap.String("reason", string(reason)))
		return w, nil
	}
	st, err := e.orders.Submit(ctx, order.Buy, plan.Price, plan.Qty)
	if err != nil {
		e.metrics.RecordOrderRejected(string(order.Buy))
		return w, err
	}
	w.OpenBids = e.acceptSubmission(w.OpenBids, st)
	return w, nil
}

type askResult struct {
	plan strategy.AskPlan
	st   order.Status
	err  error
}

// planAsk 为可盈利卖出的批次并发挂卖单。
// 单笔失败只记录并把批次放回堆中；全部失败时阶段失败（此时 World 与账本均未变化）。
func (e *Engine) planAsk(ctx context.Context, w World) (World, error) {
	p := e.cycleParams
	plans, reason := strategy.PlanAsks(w.Quote, e.ledger, w.OpenAsks, p.PositionLimit, p.Buffer)
	if len(plans) == 0 {
		e.logger.Debug("ask skipped", zap.String("reason", string(reason)))
		return w, nil
	}

	results := make([]askResult, len(plans))
	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan strategy.AskPlan) {
			defer wg.Done()
			st, err := e.orders.Submit(ctx, order.Sell, plan.Price, plan.Qty)
			results[i] = askResult{plan: plan, st: st, err: err}
		}(i, plan)
	}
	wg.Wait()

	asks := w.OpenAsks
	var errs []error
	for _, r := range results {
		if r.err != nil {
			e.ledger.PushLot(r.plan.Lot)
			e.metrics.RecordOrderRejected(string(order.Sell))
			e.logger.Warn("ask submission failed, lot returned",
				zap.Int("price", r.plan.Price),
				zap.Int("qty", r.plan.Qty),
				zap.Int("lot_price", r.plan.Lot.Price),
				zap.Error(r.err))
			errs = append(errs, r.err)
			continue
		}
		e.askLots[r.st.ID] = &askLot{lot: r.plan.Lot}
		asks = e.acceptSubmission(asks, r.st)
		if r.st.Qty == 0 {
			e.settleAsk(r.st.ID)
		}
	}
	if len(errs) == len(results) {
		return w, fmt.Errorf("all %d ask submissions failed: %w", len(errs), errors.Join(errs...))
	}
	w.OpenAsks = asks
	return w, nil
}

// acceptSubmission 记入下单响应里已有的成交，未完结的订单加入挂单集合。
// 返回新切片，不修改传入的集合。
func (e *Engine) acceptSubmission(open []order.Ref, st order.Status) []order.Ref {
	for _, f := range st.Fills {
		e.recordFill(st.ID, st.Direction, f)
	}
	e.metrics.RecordOrderPlaced(string(st.Direction))
	e.addStat(func(s *Statistics) { s.TotalOrders++ })
	e.logger.LogOrder("placed", st.ID, map[string]interface{}{
		"direction": string(st.Direction),
		"price":     st.Price,
		"remaining": st.Qty,
		"fills":     len(st.Fills),
		"cycle_id":  e.cycleID,
	})
	next := make([]order.Ref, len(open), len(open)+1)
	copy(next, open)
	if st.Qty != 0 {
		next = append(next, order.NewRef(st))
	}
	return next
}

// recordFill 所有成交都经由这里进入账本。
func (e *Engine) recordFill(id int64, dir order.Direction, f order.Fill) {
	e.ledger.RecordFill(id, dir, f.Qty, f.Price)
	if a, ok := e.askLots[id]; ok && dir == order.Sell {
		a.filled += f.Qty
	}
	e.metrics.RecordFill(string(dir), f.Qty)
	e.addStat(func(s *Statistics) { s.TotalFills++ })
	e.logger.LogFill(id, string(dir), f.Qty, f.Price)
	if e.journal != nil {
		err := e.journal.RecordFill(e.cycleCtx, journal.Fill{
			RunID:     e.runID,
			CycleID:   e.cycleID,
			OrderID:   id,
			Direction: string(dir),
			Qty:       f.Qty,
			Price:     f.Price,
		})
		if err != nil {
			e.logger.Warn("journal fill failed", zap.Int64("order_id", id), zap.Error(err))
		}
	}
}

// askLot 挂卖单对应的批次及其已成交数量。
type askLot struct {
	lot    inventory.Lot
	filled int
}

// releaseClosedAsks 已不在挂单集合中的卖单视为结束，未卖出的部分放回批次堆。
func (e *Engine) releaseClosedAsks(open []order.Ref) {
	if len(e.askLots) == 0 {
		return
	}
	live := make(map[int64]struct{}, len(open))
	for _, ref := range open {
		live[ref.ID] = struct{}{}
	}
	for id := range e.askLots {
		if _, ok := live[id]; !ok {
			e.settleAsk(id)
		}
	}
}

// settleAsk 结清一张卖单：批次数量减去已成交数量，余量按原买入价重新入堆。
func (e *Engine) settleAsk(id int64) {
	a, ok := e.askLots[id]
	if !ok {
		return
	}
	delete(e.askLots, id)
	rest := a.lot.Qty - a.filled
	if rest <= 0 {
		return
	}
	e.ledger.PushLot(inventory.Lot{Price: a.lot.Price, Qty: rest, OrderID: a.lot.OrderID})
	e.logger.Info("unsold lot returned",
		zap.Int64("order_id", id),
		zap.Int("lot_price", a.lot.Price),
		zap.Int("qty", rest),
		zap.String("cycle_id", e.cycleID))
}
