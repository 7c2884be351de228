package inventory

import "sort"

// Lot 以同一价格买入的一批持仓。
type Lot struct {
	Price   int
	Qty     int
	OrderID int64

	seq uint64
}

// lotHeap 实现 heap.Interface，按价格升序，同价按入堆顺序。
type lotHeap []Lot

func (h lotHeap) Len() int { return len(h) }

func (h lotHeap) Less(i, j int) bool {
	if h[i].Price != h[j].Price {
		return h[i].Price < h[j].Price
	}
	return h[i].seq < h[j].seq
}

func (h lotHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *lotHeap) Push(x any) { *h = append(*h, x.(Lot)) }

func (h *lotHeap) Pop() any {
	old := *h
	n := len(old)
	lot := old[n-1]
	*h = old[:n-1]
	return lot
}

// LotCount 当前批次数量。
func (l *Ledger) LotCount() int {
	return len(l.lots)
}

// LotQty 所有批次的股数之和。
func (l *Ledger) LotQty() int {
	total := 0
	for _, lot := range l.lots {
		total += lot.Qty
	}
	return total
}

// Lots 返回按出堆顺序排好的拷贝，供报告使用。
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, len(l.lots))
	copy(out, l.lots)
	sort.Slice(out, func(i, j int) bool { return lotHeap(out).Less(i, j) })
	return out
}
