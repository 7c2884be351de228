package inventory

// NAV 按最新成交价估值：cash + position*last。
// 尚未有成交时 last 为 0，结果即为现金。
func (l *Ledger) NAV(last int) int64 {
	return l.cash + int64(l.position)*int64(last)
}

// Snapshot 账本在某一时刻的只读视图。
type Snapshot struct {
	Cash     int64
	Position int
	NAV      int64
	Lots     int
	LotQty   int
}

func (l *Ledger) Snapshot(last int) Snapshot {
	return Snapshot{
		Cash:     l.cash,
		Position: l.position,
		NAV:      l.NAV(last),
		Lots:     l.LotCount(),
		LotQty:   l.LotQty(),
	}
}
