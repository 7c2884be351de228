package strategy

import (
	"stockfighter-mm/inventory"
	"stockfighter-mm/market"
	"stockfighter-mm/order"
)

// AskPlan 由一个持仓批次生成的卖单。
type AskPlan struct {
	Price int
	Qty   int
	Lot   inventory.Lot
}

// PlanAsks 从账本中依次取出最便宜的批次生成卖单，遇到第一个不满足条件的批次即停止，
// 该批次留在堆中不出堆。
//
// 条件：
//   - position - 挂卖单量(含本轮已规划) - lot.Qty >= -limit；
//   - 市场无挂卖（askDepth == 0）时目标价为 max(lot+buffer, bid+buffer)，
//     否则要求 marketAsk >= lot+buffer，目标价为 marketAsk。
//
// 实际挂价比目标低一个 tick 以便尽快成交，但不低于 lot+buffer，也不高于目标价。
func PlanAsks(q market.Quote, l *inventory.Ledger, openAsks []order.Ref, limit, buffer int) ([]AskPlan, Reason) {
	committed := order.TotalQty(openAsks)
	var plans []AskPlan
	for {
		lot, ok := l.PeekLot()
		if !ok {
			return plans, NoLots
		}
		if l.Position()-committed-lot.Qty < -limit {
			return plans, ShortLimit
		}
		floor := lot.Price + buffer
		var target int
		if q.AskDepth == 0 {
			target = max(floor, q.Bid+buffer)
		} else {
			if q.Ask < floor {
				return plans, NoProfitableExit
			}
			target = q.Ask
		}
		l.PopLot()
		plans = append(plans, AskPlan{
			Price: max(target-1, floor),
			Qty:   lot.Qty,
			Lot:   lot,
		})
		committed += lot.Qty
	}
}
