package order

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"stockfighter-mm/market"
)

// Canceller 撤单接口。
type Canceller interface {
	Cancel(ctx context.Context, id int64) error
}

// IsStaleBid 买单价格低于 bid-buffer 或高于 ask 即过期。
func IsStaleBid(price int, q market.Quote, buffer int) bool {
	return price < q.Bid-buffer || price > q.Ask
}

// IsStaleAsk 卖单价格高于 ask+buffer 或低于 bid 即过期。
func IsStaleAsk(price int, q market.Quote, buffer int) bool {
	return price > q.Ask+buffer || price < q.Bid
}

// StaleFilter 撤销偏离当前行情的挂单。
type StaleFilter struct {
	canceller Canceller
	logger    *zap.Logger
}

func NewStaleFilter(c Canceller, logger *zap.Logger) *StaleFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaleFilter{canceller: c, logger: logger}
}

// Stale 挑出过期的订单。行情缺任一侧时不做判断。
func Stale(bids, asks []Ref, q market.Quote, buffer int) []Ref {
	if !q.HasBid() || !q.HasAsk() {
		return nil
	}
	var out []Ref
	for _, b := range bids {
		if IsStaleBid(b.Status.Price, q, buffer) {
			out = append(out, b)
		}
	}
	for _, a := range asks {
		if IsStaleAsk(a.Status.Price, q, buffer) {
			out = append(out, a)
		}
	}
	return out
}

// Cancel 并发撤销过期订单，等全部请求返回后给出已成功提交撤单的订单。
// 撤单结果不回写挂单集合：撤单可能与成交竞争，下一轮对账会看到真实状态。
func (f *StaleFilter) Cancel(ctx context.Context, bids, asks []Ref, q market.Quote, buffer int) []Ref {
	stale := Stale(bids, asks, q, buffer)
	if len(stale) == 0 {
		return nil
	}
	ok := make([]bool, len(stale))
	var wg sync.WaitGroup
	for i, ref := range stale {
		wg.Add(1)
		go func(i int, ref Ref) {
			defer wg.Done()
			if err := f.canceller.Cancel(ctx, ref.ID); err != nil {
				f.logger.Warn("cancel stale order failed",
					zap.Int64("order_id", ref.ID),
					zap.Error(err))
				return
			}
			ok[i] = true
		}(i, ref)
	}
	wg.Wait()

	canceled := make([]Ref, 0, len(stale))
	for i, ref := range stale {
		if ok[i] {
			f.logger.Info("stale order canceled",
				zap.Int64("order_id", ref.ID),
				zap.String("direction", string(ref.Status.Direction)),
				zap.Int("price", ref.Status.Price),
				zap.Int("bid", q.Bid),
				zap.Int("ask", q.Ask))
			canceled = append(canceled, ref)
		}
	}
	return canceled
}
