package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"stockfighter-mm/inventory"
	"stockfighter-mm/market"
	"stockfighter-mm/order"
)

func ledgerWith(lots ...[2]int) *inventory.Ledger {
	l := inventory.NewLedger()
	for i, v := range lots {
		l.RecordFill(int64(i+1), order.Buy, v[1], v[0])
	}
	return l
}

func TestPlanAsksHaltsAtFirstUnprofitableLot(t *testing.T) {
	l := ledgerWith([2]int{100, 10}, [2]int{90, 5})
	q := market.Quote{Bid: 93, Ask: 95, AskDepth: 40}

	plans, reason := PlanAsks(q, l, nil, 1000, 2)

	require.Len(t, plans, 1)
	assert.Equal(t, 90, plans[0].Lot.Price)
	assert.Equal(t, 5, plans[0].Qty)
	assert.Equal(t, 94, plans[0].Price) // 95 下移一个 tick，仍 >= 92
	assert.Equal(t, NoProfitableExit, reason)

	// 100 的批次仍在堆中
	lot, ok := l.PeekLot()
	require.True(t, ok)
	assert.Equal(t, 100, lot.Price)
	assert.Equal(t, 1, l.LotCount())
}

func TestPlanAsksEmptyBookUsesBidPlusBuffer(t *testing.T) {
	l := ledgerWith([2]int{50, 3}, [2]int{60, 4})
	q := market.Quote{Bid: 58, Ask: 0, AskDepth: 0}

	plans, reason := PlanAsks(q, l, nil, 1000, 5)
	require.Len(t, plans, 2)
	assert.Equal(t, NoLots, reason)
	// lot 50: target=max(55, 63)=63 -> 62
	assert.Equal(t, 62, plans[0].Price)
	// lot 60: target=max(65, 63)=65 -> max(64, 65)=65
	assert.Equal(t, 65, plans[1].Price)
}

func TestPlanAsksNeverPostsBelowFloor(t *testing.T) {
	l := ledgerWith([2]int{90, 5})
	q := market.Quote{Ask: 92, AskDepth: 10}
	plans, _ := PlanAsks(q, l, nil, 1000, 2)
	require.Len(t, plans, 1)
	assert.Equal(t, 92, plans[0].Price)
}

func TestPlanAsksRespectsShortLimit(t *testing.T) {
	l := ledgerWith([2]int{10, 5}, [2]int{11, 5})
	// position 10，已挂卖 12：10-12-5 = -7 >= -10 可卖第一批；第二批 10-17-5 = -12 < -10
	asks := refs(order.Sell, [2]int{30, 12})
	q := market.Quote{Bid: 20, Ask: 25, AskDepth: 100}

	plans, reason := PlanAsks(q, l, asks, 10, 1)
	require.Len(t, plans, 1)
	assert.Equal(t, ShortLimit, reason)
	assert.Equal(t, 1, l.LotCount())
}

func TestPlanAsksNoLots(t *testing.T) {
	plans, reason := PlanAsks(market.Quote{Ask: 10, AskDepth: 1}, inventory.NewLedger(), nil, 10, 1)
	assert.Empty(t, plans)
	assert.Equal(t, NoLots, reason)
}

func TestPropertyAskPlansStayProfitableAndOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := inventory.NewLedger()
		n := rapid.IntRange(0, 20).Draw(t, "lots")
		for i := 0; i < n; i++ {
			l.RecordFill(int64(i), order.Buy, rapid.IntRange(1, 50).Draw(t, "qty"), rapid.IntRange(1, 1000).Draw(t, "price"))
		}
		q := market.Quote{
			Bid:      rapid.IntRange(0, 1200).Draw(t, "bid"),
			Ask:      rapid.IntRange(0, 1200).Draw(t, "ask"),
			AskDepth: rapid.IntRange(0, 3).Draw(t, "askDepth"),
		}
		buffer := rapid.IntRange(0, 20).Draw(t, "buffer")
		before := l.LotCount()

		plans, _ := PlanAsks(q, l, nil, 10000, buffer)

		prev := -1
		for _, p := range plans {
			if p.Price < p.Lot.Price+buffer {
				t.Fatalf("price %d below floor %d", p.Price, p.Lot.Price+buffer)
			}
			if p.Lot.Price < prev {
				t.Fatalf("lots out of order")
			}
			prev = p.Lot.Price
		}
		if l.LotCount() != before-len(plans) {
			t.Fatalf("popped %d lots for %d plans", before-l.LotCount(), len(plans))
		}
	})
}
