package inventory

import (
	"testing"

	"pgregory.net/rapid"

	"stockfighter-mm/order"
)

func TestNAVWithoutTradesIsCash(t *testing.T) {
	l := NewLedger()
	if l.NAV(0) != 0 {
		t.Fatalf("expected zero nav")
	}
	l.Purchase(order.Sell, 0, 100)
	if l.NAV(0) != l.Cash() {
		t.Fatalf("nav should equal cash when last is 0")
	}
}

func TestValuation(t *testing.T) {
	l := NewLedger()
	l.RecordFill(1, order.Buy, 10, 100)
	if got := l.NAV(110); got != 100 {
		t.Fatalf("expected nav 100, got %d", got)
	}
	s := l.Snapshot(110)
	if s.Position != 10 || s.Cash != -1000 || s.NAV != 100 || s.Lots != 1 || s.LotQty != 10 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}

func TestPropertyNAVIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := NewLedger()
		n := rapid.IntRange(0, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			dir := rapid.SampledFrom([]order.Direction{order.Buy, order.Sell}).Draw(t, "dir")
			l.Purchase(dir, rapid.IntRange(0, 500).Draw(t, "qty"), rapid.IntRange(0, 50000).Draw(t, "price"))
		}
		last := rapid.IntRange(0, 100000).Draw(t, "last")
		want := l.Cash() + int64(l.Position())*int64(last)
		if l.NAV(last) != want {
			t.Fatalf("nav %d, want %d", l.NAV(last), want)
		}
	})
}
