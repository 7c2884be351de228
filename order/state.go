package order

import "fmt"

// Direction 订单方向，取值与交易所 JSON 一致。
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// Fill 单笔成交。交易所按时间顺序追加，只增不改。
type Fill struct {
	Qty   int `json:"qty"`
	Price int `json:"price"`
}

// Status 交易所返回的订单快照。
// Qty 为剩余未成交数量，为 0 时订单不再挂在簿上。
type Status struct {
	ID        int64     `json:"id"`
	Price     int       `json:"price"`
	Qty       int       `json:"qty"`
	Direction Direction `json:"direction"`
	Fills     []Fill    `json:"fills"`
	Open      bool      `json:"open"`
}

// Ref 本地持有的挂单引用，Status 为最近一次观察到的快照。
type Ref struct {
	ID     int64
	Status Status
}

// NewRef 从下单/查单响应构造引用。
func NewRef(st Status) Ref {
	return Ref{ID: st.ID, Status: st}
}

// Done 剩余数量为 0 即视为结束（成交完或已撤）。
func (r Ref) Done() bool {
	return r.Status.Qty == 0
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d %d@%d fills=%d", r.Status.Direction, r.ID, r.Status.Qty, r.Status.Price, len(r.Status.Fills))
}

// NewFills 返回 next 相对 prev 新增的成交。
// 成交序列只追加，因此按累计笔数去重；next 比 prev 短时视为无新增。
func NewFills(prev, next Status) []Fill {
	seen := len(prev.Fills)
	if len(next.Fills) <= seen {
		return nil
	}
	return next.Fills[seen:]
}

// TotalQty 汇总挂单剩余数量。
func TotalQty(refs []Ref) int {
	total := 0
	for _, r := range refs {
		total += r.Status.Qty
	}
	return total
}

// MinPrice 返回最低挂单价；无挂单时 ok 为 false。
func MinPrice(refs []Ref) (price int, ok bool) {
	for i, r := range refs {
		if i == 0 || r.Status.Price < price {
			price = r.Status.Price
		}
		ok = true
	}
	return price, ok
}
