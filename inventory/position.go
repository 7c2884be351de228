package inventory

import (
	"container/heap"

	"stockfighter-mm/order"
)

// Ledger 影子账本：根据观察到的成交独立计算现金、仓位和持仓批次，
// 与交易所后台（back-office）数据对照以发现偏差。
// 不做超卖校验，额度由策略层负责。非并发安全，由对账循环独占。
type Ledger struct {
	cash     int64 // 美分
	position int
	lots     lotHeap
	seq      uint64
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Purchase 按方向调整仓位与现金。
func (l *Ledger) Purchase(dir order.Direction, qty, price int) {
	notional := int64(price) * int64(qty)
	switch dir {
	case order.Buy:
		l.position += qty
		l.cash -= notional
	case order.Sell:
		l.position -= qty
		l.cash += notional
	}
}

// RecordFill 记账并在买入时登记一个新批次；卖出只在挂卖单时通过弹出批次体现。
func (l *Ledger) RecordFill(orderID int64, dir order.Direction, qty, price int) {
	l.Purchase(dir, qty, price)
	if dir == order.Buy && qty > 0 {
		l.PushLot(Lot{Price: price, Qty: qty, OrderID: orderID})
	}
}

func (l *Ledger) Position() int {
	return l.position
}

// Cash 单位为美分。
func (l *Ledger) Cash() int64 {
	return l.cash
}

// PushLot 放入批次。同价批次不合并，按放入先后出堆。
func (l *Ledger) PushLot(lot Lot) {
	l.seq++
	lot.seq = l.seq
	heap.Push(&l.lots, lot)
}

// PeekLot 查看最便宜的批次但不出堆。
func (l *Ledger) PeekLot() (Lot, bool) {
	if len(l.lots) == 0 {
		return Lot{}, false
	}
	return l.lots[0], true
}

// PopLot 取出最便宜的批次。
func (l *Ledger) PopLot() (Lot, bool) {
	if len(l.lots) == 0 {
		return Lot{}, false
	}
	return heap.Pop(&l.lots).(Lot), true
}
