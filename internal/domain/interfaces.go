package domain

import (
	"context"
	"time"
)

// OrderRepository defines storage operations for trading orders.
// Save is an upsert keyed by the order number.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *TradingOrder) error
	GetOrder(ctx context.Context, number string) (*TradingOrder, error)
	ListOrders(ctx context.Context, limit int) ([]*TradingOrder, error)
}

// TransferRepository defines storage operations for energy transfers.
type TransferRepository interface {
	SaveTransfer(ctx context.Context, transfer *EnergyTransfer) error
	GetTransfer(ctx context.Context, number string) (*EnergyTransfer, error)
	ListTransfers(ctx context.Context, limit int) ([]*EnergyTransfer, error)
}

// Clock abstracts wall-clock time so time-sensitive operations are
// deterministic under test.
type Clock interface {
	Now() time.Time
}
