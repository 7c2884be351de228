package order

import (
	"context"
	"errors"
	"testing"
)

type mockGateway struct {
	next    Status
	err     error
	bids    int
	asks    int
	lastQty int
}

func (m *mockGateway) Bid(_ context.Context, price, qty int) (Status, error) {
	m.bids++
	m.lastQty = qty
	return m.next, m.err
}

func (m *mockGateway) Ask(_ context.Context, price, qty int) (Status, error) {
	m.asks++
	m.lastQty = qty
	return m.next, m.err
}

func TestManagerSubmit(t *testing.T) {
	gw := &mockGateway{next: Status{ID: 7, Price: 100, Qty: 5, Open: true}}
	m := NewManager(gw)
	st, err := m.Submit(context.Background(), Buy, 100, 5)
	if err != nil {
		t.Fatalf("submit err: %v", err)
	}
	if st.Direction != Buy {
		t.Fatalf("expected direction backfilled, got %q", st.Direction)
	}
	if gw.bids != 1 || m.Placed(Buy) != 1 {
		t.Fatalf("expected one bid placed")
	}
	if _, err := m.Submit(context.Background(), Sell, 101, 2); err != nil {
		t.Fatalf("ask err: %v", err)
	}
	if gw.asks != 1 || m.Placed(Sell) != 1 {
		t.Fatalf("expected one ask placed")
	}
}

func TestManagerRejectsInvalid(t *testing.T) {
	gw := &mockGateway{}
	m := NewManager(gw)
	for _, tc := range []struct {
		dir        Direction
		price, qty int
	}{
		{Buy, 0, 1},
		{Buy, 10, 0},
		{Direction("hold"), 10, 1},
	} {
		if _, err := m.Submit(context.Background(), tc.dir, tc.price, tc.qty); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("expected ErrInvalidOrder for %+v, got %v", tc, err)
		}
	}
	if gw.bids+gw.asks != 0 {
		t.Fatalf("gateway should not be called")
	}
}

func TestManagerGatewayError(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(&mockGateway{err: boom})
	if _, err := m.Submit(context.Background(), Sell, 10, 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped gateway error, got %v", err)
	}
	if m.Rejected() != 1 {
		t.Fatalf("expected rejected counter 1")
	}
}
