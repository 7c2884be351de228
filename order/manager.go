package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Gateway 提供下单抽象；由 gateway.Client 实现。
type Gateway interface {
	Bid(ctx context.Context, price, qty int) (Status, error)
	Ask(ctx context.Context, price, qty int) (Status, error)
}

var ErrInvalidOrder = errors.New("invalid order")

// Manager 校验并通过 Gateway 下发限价单，统计下单结果。
type Manager struct {
	gw Gateway

	mu       sync.Mutex
	placed   map[Direction]int64
	rejected int64
}

func NewManager(gw Gateway) *Manager {
	return &Manager{
		gw:     gw,
		placed: make(map[Direction]int64),
	}
}

// Submit 同步下单，返回交易所的即时响应（可能已含成交）。
func (m *Manager) Submit(ctx context.Context, dir Direction, price, qty int) (Status, error) {
	if err := validate(dir, price, qty); err != nil {
		return Status{}, err
	}
	var (
		st  Status
		err error
	)
	if dir == Buy {
		st, err = m.gw.Bid(ctx, price, qty)
	} else {
		st, err = m.gw.Ask(ctx, price, qty)
	}
	if err != nil {
		m.mu.Lock()
		m.rejected++
		m.mu.Unlock()
		return Status{}, fmt.Errorf("submit %s %d@%d: %w", dir, qty, price, err)
	}
	if !st.Direction.Valid() {
		st.Direction = dir
	}
	m.mu.Lock()
	m.placed[dir]++
	m.mu.Unlock()
	return st, nil
}

func validate(dir Direction, price, qty int) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidOrder, dir)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price %d", ErrInvalidOrder, price)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: qty %d", ErrInvalidOrder, qty)
	}
	return nil
}

// Placed 返回某方向成功下单次数。
func (m *Manager) Placed(dir Direction) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placed[dir]
}

func (m *Manager) Rejected() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected
}
