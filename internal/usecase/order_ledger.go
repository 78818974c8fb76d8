package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
	"go.uber.org/zap"
)

// Options tune the concurrency and drift-tolerance behaviour shared by
// both ledgers.
type Options struct {
	LockWait          time.Duration
	LockRetries       int
	ScheduleTolerance time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockWait <= 0 {
		o.LockWait = 200 * time.Millisecond
	}
	if o.LockRetries <= 0 {
		o.LockRetries = 3
	}
	if o.ScheduleTolerance <= 0 {
		o.ScheduleTolerance = 15 * time.Minute
	}
	return o
}

// CreateOrderCommand carries the caller-supplied fields of a new order.
type CreateOrderCommand struct {
	Number       string
	Trader       string
	Pool         string
	Counterparty string

	Side domain.OrderSide
	Type domain.OrderType

	Quantity     float64
	PricePerUnit float64
	Currency     string

	ValidFrom  *time.Time
	ValidUntil *time.Time
	ExpiryTime *time.Time

	ApprovedBy string

	Tags       map[string]any
	Metadata   map[string]any
	Conditions map[string]any
}

// OrderLedger owns trading-order records: creation, incremental fills,
// cancellation and expiry, with the fill invariant enforced on every
// mutation and status transitions published to the event bus.
type OrderLedger struct {
	repo   domain.OrderRepository
	locks  *lockTable
	bus    *EventBus
	clock  domain.Clock
	logger *zap.Logger
	opts   Options
}

func NewOrderLedger(repo domain.OrderRepository, bus *EventBus, clock domain.Clock, logger *zap.Logger, opts Options) *OrderLedger {
	return &OrderLedger{
		repo:   repo,
		locks:  newLockTable(),
		bus:    bus,
		clock:  clock,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// CreateOrder validates the command, derives all value fields and persists
// the order with status pending (active when pre-approved).
func (l *OrderLedger) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.TradingOrder, error) {
	if cmd.Number == "" {
		return nil, fmt.Errorf("order number is required")
	}
	if cmd.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %.6f", domain.ErrInvalidQuantity, cmd.Quantity)
	}
	if cmd.PricePerUnit <= 0 {
		return nil, fmt.Errorf("%w: price %.6f", domain.ErrInvalidPrice, cmd.PricePerUnit)
	}
	if !domain.ValidOrderSide(cmd.Side) {
		return nil, fmt.Errorf("unknown order side %q", cmd.Side)
	}
	if !domain.ValidOrderType(cmd.Type) {
		return nil, fmt.Errorf("unknown order type %q", cmd.Type)
	}
	if cmd.ValidFrom != nil && cmd.ValidUntil != nil && cmd.ValidUntil.Before(*cmd.ValidFrom) {
		return nil, fmt.Errorf("%w: valid_until before valid_from", domain.ErrInvalidWindow)
	}
	if cmd.ExpiryTime != nil {
		if cmd.ValidFrom != nil && cmd.ExpiryTime.Before(*cmd.ValidFrom) {
			return nil, fmt.Errorf("%w: expiry_time before valid_from", domain.ErrInvalidWindow)
		}
		if cmd.ValidUntil != nil && cmd.ExpiryTime.After(*cmd.ValidUntil) {
			return nil, fmt.Errorf("%w: expiry_time after valid_until", domain.ErrInvalidWindow)
		}
	}

	currency := cmd.Currency
	if currency == "" {
		currency = "EUR"
	}

	now := l.clock.Now()
	order := &domain.TradingOrder{
		Number:       cmd.Number,
		Trader:       cmd.Trader,
		Pool:         cmd.Pool,
		Counterparty: cmd.Counterparty,
		Side:         cmd.Side,
		Type:         cmd.Type,
		Quantity:     cmd.Quantity,
		PricePerUnit: cmd.PricePerUnit,
		Currency:     currency,
		ValidFrom:    cmd.ValidFrom,
		ValidUntil:   cmd.ValidUntil,
		ExpiryTime:   cmd.ExpiryTime,
		Status:       domain.OrderStatusPending,
		ApprovedBy:   cmd.ApprovedBy,
		Tags:         cmd.Tags,
		Metadata:     cmd.Metadata,
		Conditions:   cmd.Conditions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Recalculate()
	order.Status = order.DeriveStatus()

	if err := domain.CheckOrderInvariants(order); err != nil {
		return nil, err
	}
	if _, err := l.repo.GetOrder(ctx, cmd.Number); err == nil {
		return nil, fmt.Errorf("%w: order %s already exists", domain.ErrConflict, cmd.Number)
	}
	if err := l.repo.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}
	l.logger.Info("order created",
		zap.String("order", order.Number),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("price", order.PricePerUnit))
	return order, nil
}

// ApplyFill increases filled_quantity by fillQuantity and rederives the
// splits and status. The whole mutation runs under the record lock; on
// any validation failure the stored record is untouched.
func (l *OrderLedger) ApplyFill(ctx context.Context, number string, fillQuantity float64) (*domain.TradingOrder, error) {
	if fillQuantity <= 0 {
		return nil, fmt.Errorf("%w: fill %.6f", domain.ErrInvalidQuantity, fillQuantity)
	}

	var updated *domain.TradingOrder
	err := l.locks.withRetry(number, l.opts.LockWait, l.opts.LockRetries, func() error {
		order, err := l.repo.GetOrder(ctx, number)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTerminalOrder, number, order.Status)
		}
		if order.FilledQuantity+fillQuantity > order.Quantity+domain.Epsilon {
			return fmt.Errorf("%w: %.6f + %.6f exceeds %.6f",
				domain.ErrOverFill, order.FilledQuantity, fillQuantity, order.Quantity)
		}

		prev := order.Status
		order.FilledQuantity += fillQuantity
		order.Recalculate()
		order.Status = order.DeriveStatus()
		order.UpdatedAt = l.clock.Now()
		if order.Status == domain.OrderStatusFilled && order.ExecutionTime == nil {
			ts := order.UpdatedAt
			order.ExecutionTime = &ts
		}

		if err := domain.CheckOrderInvariants(order); err != nil {
			return err
		}
		if err := l.repo.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		l.emit(order, prev, "")
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("fill applied",
		zap.String("order", number),
		zap.Float64("fill", fillQuantity),
		zap.Float64("filled_total", updated.FilledQuantity),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// CancelOrder marks a not-yet-complete order cancelled. Fully filled and
// already-terminal orders are rejected.
func (l *OrderLedger) CancelOrder(ctx context.Context, number string) (*domain.TradingOrder, error) {
	var updated *domain.TradingOrder
	err := l.locks.withRetry(number, l.opts.LockWait, l.opts.LockRetries, func() error {
		order, err := l.repo.GetOrder(ctx, number)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTerminalOrder, number, order.Status)
		}

		prev := order.Status
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = l.clock.Now()
		order.Recalculate()

		if err := domain.CheckOrderInvariants(order); err != nil {
			return err
		}
		if err := l.repo.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		l.emit(order, prev, "cancelled by caller")
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("order cancelled", zap.String("order", number))
	return updated, nil
}

// ExpireOrder marks an order expired once now has passed its expiry_time.
// Partial fills are retained as a permanent record, not rolled back.
func (l *OrderLedger) ExpireOrder(ctx context.Context, number string, now time.Time) (*domain.TradingOrder, error) {
	var updated *domain.TradingOrder
	err := l.locks.withRetry(number, l.opts.LockWait, l.opts.LockRetries, func() error {
		order, err := l.repo.GetOrder(ctx, number)
		if err != nil {
			return err
		}
		if order.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTerminalOrder, number, order.Status)
		}
		if order.ExpiryTime == nil {
			return fmt.Errorf("%w: order %s has no expiry_time", domain.ErrInvalidWindow, number)
		}
		if !now.After(*order.ExpiryTime) {
			return fmt.Errorf("%w: %s not yet past expiry", domain.ErrInvalidWindow, number)
		}

		prev := order.Status
		order.Status = domain.OrderStatusExpired
		order.UpdatedAt = now
		order.Recalculate()

		if err := domain.CheckOrderInvariants(order); err != nil {
			return err
		}
		if err := l.repo.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		l.emit(order, prev, "expired")
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("order expired",
		zap.String("order", number),
		zap.Float64("filled_at_expiry", updated.FilledQuantity))
	return updated, nil
}

func (l *OrderLedger) GetOrder(ctx context.Context, number string) (*domain.TradingOrder, error) {
	return l.repo.GetOrder(ctx, number)
}

func (l *OrderLedger) ListOrders(ctx context.Context, limit int) ([]*domain.TradingOrder, error) {
	return l.repo.ListOrders(ctx, limit)
}

func (l *OrderLedger) emit(o *domain.TradingOrder, from domain.OrderStatus, reason string) {
	if o.Status == from {
		return
	}
	l.bus.Publish(StatusEvent{
		Entity: "order",
		Number: o.Number,
		From:   string(from),
		To:     string(o.Status),
		Reason: reason,
		At:     o.UpdatedAt,
	})
}
