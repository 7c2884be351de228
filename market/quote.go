package market

// Quote 最近一次观察到的行情，价格单位为美分。
// 零值表示该字段从未出现过。
type Quote struct {
	Bid      int
	Ask      int
	Last     int
	AskSize  int
	BidDepth int
	AskDepth int
}

// QuoteUpdate 单次轮询得到的行情，薄市场下任意字段都可能缺失（nil）。
type QuoteUpdate struct {
	Bid      *int `json:"bid,omitempty"`
	Ask      *int `json:"ask,omitempty"`
	Last     *int `json:"last,omitempty"`
	AskSize  *int `json:"askSize,omitempty"`
	BidDepth *int `json:"bidDepth,omitempty"`
	AskDepth *int `json:"askDepth,omitempty"`
}

// Merge 把 upd 中出现的字段覆盖到 prev，缺失字段保持原值，绝不回退为缺失。
func Merge(prev Quote, upd QuoteUpdate) Quote {
	next := prev
	apply(&next.Bid, upd.Bid)
	apply(&next.Ask, upd.Ask)
	apply(&next.Last, upd.Last)
	apply(&next.AskSize, upd.AskSize)
	apply(&next.BidDepth, upd.BidDepth)
	apply(&next.AskDepth, upd.AskDepth)
	return next
}

// MergeUpdates 合并两次增量，later 优先。tickertape 缓存使用。
func MergeUpdates(earlier, later QuoteUpdate) QuoteUpdate {
	out := earlier
	if later.Bid != nil {
		out.Bid = later.Bid
	}
	if later.Ask != nil {
		out.Ask = later.Ask
	}
	if later.Last != nil {
		out.Last = later.Last
	}
	if later.AskSize != nil {
		out.AskSize = later.AskSize
	}
	if later.BidDepth != nil {
		out.BidDepth = later.BidDepth
	}
	if later.AskDepth != nil {
		out.AskDepth = later.AskDepth
	}
	return out
}

func apply(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func (q Quote) HasBid() bool { return q.Bid > 0 }

func (q Quote) HasAsk() bool { return q.Ask > 0 }

// Spread 买卖价差；任一侧缺失时返回 0。
func (q Quote) Spread() int {
	if !q.HasBid() || !q.HasAsk() {
		return 0
	}
	return q.Ask - q.Bid
}

// Int 构造可选字段，测试和适配器使用。
func Int(v int) *int {
	return &v
}
