package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
)

// In-memory repositories. Get returns a copy so a rejected mutation can
// never leak partial state into the store, mirroring the sqlite behaviour.

type MemOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.TradingOrder
}

func NewMemOrderRepo() *MemOrderRepo {
	return &MemOrderRepo{orders: make(map[string]domain.TradingOrder)}
}

func (m *MemOrderRepo) SaveOrder(ctx context.Context, o *domain.TradingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.Number] = *o
	return nil
}

func (m *MemOrderRepo) GetOrder(ctx context.Context, number string) (*domain.TradingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, number)
	}
	return &o, nil
}

func (m *MemOrderRepo) ListOrders(ctx context.Context, limit int) ([]*domain.TradingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TradingOrder
	for _, o := range m.orders {
		cp := o
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type MemTransferRepo struct {
	mu        sync.Mutex
	transfers map[string]domain.EnergyTransfer
}

func NewMemTransferRepo() *MemTransferRepo {
	return &MemTransferRepo{transfers: make(map[string]domain.EnergyTransfer)}
}

func (m *MemTransferRepo) SaveTransfer(ctx context.Context, t *domain.EnergyTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.Number] = *t
	return nil
}

func (m *MemTransferRepo) GetTransfer(ctx context.Context, number string) (*domain.EnergyTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[number]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", domain.ErrNotFound, number)
	}
	return &t, nil
}

func (m *MemTransferRepo) ListTransfers(ctx context.Context, limit int) ([]*domain.EnergyTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EnergyTransfer
	for _, t := range m.transfers {
		cp := t
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FakeClock returns a fixed, manually advanced time.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
