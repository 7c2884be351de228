package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stockfighter-mm/account"
	"stockfighter-mm/infrastructure/logger"
	"stockfighter-mm/internal/journal"
	"stockfighter-mm/inventory"
	"stockfighter-mm/market"
)

// Report 一轮结束时的可读摘要。
type Report struct {
	RunID      string
	CycleID    string
	Quote      market.Quote
	Ledger     inventory.Snapshot
	BackOffice account.BackOffice
	Divergence account.Divergence
	Compared   bool // 后台已知时才有 Divergence
	OpenBids   int
	OpenAsks   int
	Failures   int
}

// Line 单行状态，例如：
// bid=50.00 ask=50.20 last=50.10 | ledger cash=-501.00 pos=10 nav=0.00 | bo cash=-501.00 pos=10 nav=0.00 days=380 | open bids=1 asks=0
func (r Report) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bid=%s ask=%s last=%s",
		account.Dollars(int64(r.Quote.Bid)), account.Dollars(int64(r.Quote.Ask)), account.Dollars(int64(r.Quote.Last)))
	fmt.Fprintf(&b, " | ledger cash=%s pos=%d nav=%s lots=%d",
		account.Dollars(r.Ledger.Cash), r.Ledger.Position, account.Dollars(r.Ledger.NAV), r.Ledger.LotQty)
	if r.BackOffice.Known {
		fmt.Fprintf(&b, " | bo cash=%s pos=%d nav=%s days=%d",
			account.Dollars(r.BackOffice.Cash), r.BackOffice.Position, account.Dollars(r.BackOffice.NAV), r.BackOffice.DaysRemaining)
	} else {
		b.WriteString(" | bo unknown")
	}
	fmt.Fprintf(&b, " | open bids=%d asks=%d", r.OpenBids, r.OpenAsks)
	if r.Compared && r.Divergence.Diverged() {
		fmt.Fprintf(&b, " | DIVERGED cash=%s pos=%d", account.Dollars(r.Divergence.Cash), r.Divergence.Position)
	}
	if r.Failures > 0 {
		fmt.Fprintf(&b, " | failures=%d", r.Failures)
	}
	return b.String()
}

// StatusSink 接收每轮摘要。
type StatusSink func(r Report)

// LogStatusSink 默认实现：写一条 info 日志。
func LogStatusSink(l *logger.Logger) StatusSink {
	return func(r Report) {
		l.Info(r.Line(),
			zap.String("run_id", r.RunID),
			zap.String("cycle_id", r.CycleID),
			zap.Int("position", r.Ledger.Position),
			zap.Int64("cash", r.Ledger.Cash),
			zap.Int64("nav", r.Ledger.NAV))
	}
}

// report 汇总本轮状态：更新指标、对照后台、检查目标、写审计。
func (e *Engine) report(ctx context.Context, w World) (World, error) {
	snap := e.ledger.Snapshot(w.Quote.Last)
	r := Report{
		RunID:      e.runID,
		CycleID:    e.cycleID,
		Quote:      w.Quote,
		Ledger:     snap,
		BackOffice: w.BackOffice,
		OpenBids:   len(w.OpenBids),
		OpenAsks:   len(w.OpenAsks),
		Failures:   e.failures,
	}
	r.Divergence, r.Compared = account.Compare(w.BackOffice, snap.Cash, snap.Position, snap.NAV)

	e.metrics.UpdateLedger(snap.Cash, snap.Position, snap.NAV, snap.LotQty)
	e.metrics.UpdateOpenOrders(r.OpenBids, r.OpenAsks)
	if r.Compared {
		e.metrics.UpdateDivergence(r.Divergence.Cash, r.Divergence.Position, r.Divergence.NAV)
		if r.Divergence.Diverged() {
			fields := map[string]interface{}{
				"cycle_id":        e.cycleID,
				"cash_diff":       r.Divergence.Cash,
				"position_diff":   r.Divergence.Position,
				"ledger_position": snap.Position,
				"bo_position":     w.BackOffice.Position,
			}
			e.logger.LogDivergence(fields)
			if e.alerts != nil {
				_ = e.alerts.SendWarning("shadow ledger diverged from back office", fields)
			}
		}
	}
	e.checkGoal(w.BackOffice)

	e.status(r)

	if e.journal != nil {
		err := e.journal.RecordCycle(ctx, journal.Cycle{
			RunID:      e.runID,
			CycleID:    e.cycleID,
			Bid:        w.Quote.Bid,
			Ask:        w.Quote.Ask,
			Last:       w.Quote.Last,
			Cash:       snap.Cash,
			Position:   snap.Position,
			NAV:        snap.NAV,
			BOKnown:    w.BackOffice.Known,
			BOCash:     w.BackOffice.Cash,
			BOPosition: w.BackOffice.Position,
			BONAV:      w.BackOffice.NAV,
			OpenBids:   r.OpenBids,
			OpenAsks:   r.OpenAsks,
			Failures:   e.failures,
		})
		if err != nil {
			e.logger.Warn("journal cycle failed", zap.String("cycle_id", e.cycleID), zap.Error(err))
		}
	}
	return w, nil
}

// checkGoal 后台净值首次达到目标时记录一次，之后继续交易。
func (e *Engine) checkGoal(bo account.BackOffice) {
	goal := e.cycleParams.Goal
	if goal <= 0 || e.goalReached || !bo.Known || bo.NAV < goal {
		return
	}
	e.goalReached = true
	e.logger.Info("goal_reached",
		zap.String("nav", account.Dollars(bo.NAV)),
		zap.String("goal", account.Dollars(goal)))
	if e.alerts != nil {
		_ = e.alerts.SendInfo("profit goal reached", map[string]interface{}{
			"nav":  account.Dollars(bo.NAV),
			"goal": account.Dollars(goal),
		})
	}
}

// GoalReached 后台净值是否已达到过目标。
func (e *Engine) GoalReached() bool {
	return e.goalReached
}
