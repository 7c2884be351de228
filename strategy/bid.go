package strategy

import (
	"stockfighter-mm/market"
	"stockfighter-mm/order"
)

// BidPlan 一笔待提交的买单。
type BidPlan struct {
	Price int
	Qty   int
}

// PlanBid 决定是否按市场卖一价买入。
//
// potential = position + 所有挂买单剩余量；达到 limit 不再买。
// 若自己有更便宜（不高于市场卖一）的挂卖单，则不买，避免吃到自己的单。
// 数量取 min(市场卖一量, limit-potential)，为 0 时跳过。
func PlanBid(q market.Quote, position int, openBids, openAsks []order.Ref, limit int) (BidPlan, Reason) {
	potential := position + order.TotalQty(openBids)
	if potential >= limit {
		return BidPlan{}, AtPositionLimit
	}
	if !q.HasAsk() {
		return BidPlan{}, NoMarketAsk
	}
	if cheapest, ok := order.MinPrice(openAsks); ok && cheapest <= q.Ask {
		return BidPlan{}, OwnAskNotAboveMarket
	}
	qty := min(q.AskSize, limit-potential)
	if qty <= 0 {
		return BidPlan{}, NoAskSize
	}
	return BidPlan{Price: q.Ask, Qty: qty}, Proceed
}
