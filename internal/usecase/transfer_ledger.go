package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
	"go.uber.org/zap"
)

// ScheduleTransferCommand carries the caller-supplied fields of a new
// energy transfer.
type ScheduleTransferCommand struct {
	Number      string
	Source      domain.PartyRef
	Destination domain.PartyRef

	AmountKWh      float64
	TransferRateKW float64
	EfficiencyPct  float64
	CostPerUnit    float64
	Currency       string

	ScheduledStart time.Time
	ScheduledEnd   time.Time

	// Confirmed schedules start in status scheduled instead of pending.
	Confirmed bool

	Tags     map[string]any
	Metadata map[string]any
}

// TransferLedger owns energy-transfer records: scheduling, actual-timing
// capture, caller-attributed terminal transitions and idempotent
// recomputation of the loss/net/cost accounting.
type TransferLedger struct {
	repo   domain.TransferRepository
	locks  *lockTable
	bus    *EventBus
	clock  domain.Clock
	logger *zap.Logger
	opts   Options
}

func NewTransferLedger(repo domain.TransferRepository, bus *EventBus, clock domain.Clock, logger *zap.Logger, opts Options) *TransferLedger {
	return &TransferLedger{
		repo:   repo,
		locks:  newLockTable(),
		bus:    bus,
		clock:  clock,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// ScheduleTransfer validates the command and persists the transfer with
// its loss/net/cost fields derived from amount and efficiency.
func (l *TransferLedger) ScheduleTransfer(ctx context.Context, cmd ScheduleTransferCommand) (*domain.EnergyTransfer, error) {
	if cmd.Number == "" {
		return nil, fmt.Errorf("transfer number is required")
	}
	if cmd.AmountKWh <= 0 {
		return nil, fmt.Errorf("%w: amount %.6f kWh", domain.ErrInvalidQuantity, cmd.AmountKWh)
	}
	if cmd.EfficiencyPct <= 0 || cmd.EfficiencyPct > 100 {
		return nil, fmt.Errorf("%w: %.6f not in (0,100]", domain.ErrInvalidEfficiency, cmd.EfficiencyPct)
	}
	if cmd.CostPerUnit < 0 {
		return nil, fmt.Errorf("%w: cost_per_unit %.6f", domain.ErrInvalidPrice, cmd.CostPerUnit)
	}
	if !cmd.ScheduledEnd.After(cmd.ScheduledStart) {
		return nil, fmt.Errorf("%w: scheduled_end not after scheduled_start", domain.ErrInvalidWindow)
	}
	if !domain.ValidPartyKind(cmd.Source.Kind) || !domain.ValidPartyKind(cmd.Destination.Kind) {
		return nil, fmt.Errorf("unknown party kind %q/%q", cmd.Source.Kind, cmd.Destination.Kind)
	}

	currency := cmd.Currency
	if currency == "" {
		currency = "EUR"
	}
	status := domain.TransferStatusPending
	if cmd.Confirmed {
		status = domain.TransferStatusScheduled
	}

	now := l.clock.Now()
	transfer := &domain.EnergyTransfer{
		Number:         cmd.Number,
		Source:         cmd.Source,
		Destination:    cmd.Destination,
		AmountKWh:      cmd.AmountKWh,
		TransferRateKW: cmd.TransferRateKW,
		EfficiencyPct:  cmd.EfficiencyPct,
		ScheduledStart: cmd.ScheduledStart,
		ScheduledEnd:   cmd.ScheduledEnd,
		CostPerUnit:    cmd.CostPerUnit,
		Currency:       currency,
		Status:         status,
		Tags:           cmd.Tags,
		Metadata:       cmd.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	transfer.Recalculate()
	transfer.FixDuration()

	if err := domain.CheckTransferInvariants(transfer); err != nil {
		return nil, err
	}
	if _, err := l.repo.GetTransfer(ctx, cmd.Number); err == nil {
		return nil, fmt.Errorf("%w: transfer %s already exists", domain.ErrConflict, cmd.Number)
	}
	if err := l.repo.SaveTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("failed to save transfer: %w", err)
	}
	l.logger.Info("transfer scheduled",
		zap.String("transfer", transfer.Number),
		zap.Float64("amount_kwh", transfer.AmountKWh),
		zap.Float64("efficiency_pct", transfer.EfficiencyPct),
		zap.String("status", string(transfer.Status)))
	return transfer, nil
}

// RecordActualStart captures the real start time and moves the transfer to
// in_progress. A start earlier than the tolerance window before the
// schedule is annotated and logged, never rejected.
func (l *TransferLedger) RecordActualStart(ctx context.Context, number string, ts time.Time) (*domain.EnergyTransfer, error) {
	return l.mutate(ctx, number, func(t *domain.EnergyTransfer) error {
		if t.Status != domain.TransferStatusScheduled && t.Status != domain.TransferStatusInProgress {
			return fmt.Errorf("%w: cannot record start while %s", domain.ErrInvalidTransition, t.Status)
		}
		l.annotateDrift(t, "actual_start", ts)
		t.ActualStart = &ts
		t.Status = domain.TransferStatusInProgress
		return nil
	})
}

// RecordActualEnd captures the real end time, completes the transfer and
// fixes its duration.
func (l *TransferLedger) RecordActualEnd(ctx context.Context, number string, ts time.Time) (*domain.EnergyTransfer, error) {
	return l.mutate(ctx, number, func(t *domain.EnergyTransfer) error {
		if t.Status != domain.TransferStatusScheduled && t.Status != domain.TransferStatusInProgress {
			return fmt.Errorf("%w: cannot record end while %s", domain.ErrInvalidTransition, t.Status)
		}
		if t.ActualStart != nil && ts.Before(*t.ActualStart) {
			return fmt.Errorf("%w: actual_end before actual_start", domain.ErrInvalidWindow)
		}
		l.annotateDrift(t, "actual_end", ts)
		t.ActualEnd = &ts
		t.Status = domain.TransferStatusCompleted
		t.FixDuration()
		return nil
	})
}

// Fail marks the transfer failed with a caller-attributed reason.
func (l *TransferLedger) Fail(ctx context.Context, number, reason string) (*domain.EnergyTransfer, error) {
	return l.transition(ctx, number, domain.TransferStatusFailed, reason)
}

// Hold parks a non-terminal transfer; it stays resumable.
func (l *TransferLedger) Hold(ctx context.Context, number, reason string) (*domain.EnergyTransfer, error) {
	return l.transition(ctx, number, domain.TransferStatusOnHold, reason)
}

// Cancel marks the transfer cancelled with a caller-attributed reason.
func (l *TransferLedger) Cancel(ctx context.Context, number, reason string) (*domain.EnergyTransfer, error) {
	return l.transition(ctx, number, domain.TransferStatusCancelled, reason)
}

// Resume takes an on-hold transfer back to in_progress (when a start was
// recorded) or scheduled.
func (l *TransferLedger) Resume(ctx context.Context, number string) (*domain.EnergyTransfer, error) {
	return l.mutate(ctx, number, func(t *domain.EnergyTransfer) error {
		if t.Status != domain.TransferStatusOnHold {
			return fmt.Errorf("%w: cannot resume from %s", domain.ErrInvalidTransition, t.Status)
		}
		if t.ActualStart != nil {
			t.Status = domain.TransferStatusInProgress
		} else {
			t.Status = domain.TransferStatusScheduled
		}
		t.StatusReason = ""
		return nil
	})
}

// Recompute rederives all derived fields from the two source-of-truth
// fields. Idempotent: repeated calls cannot drift.
func (l *TransferLedger) Recompute(ctx context.Context, number string) (*domain.EnergyTransfer, error) {
	return l.mutate(ctx, number, func(t *domain.EnergyTransfer) error {
		t.Recalculate()
		t.FixDuration()
		return nil
	})
}

func (l *TransferLedger) GetTransfer(ctx context.Context, number string) (*domain.EnergyTransfer, error) {
	return l.repo.GetTransfer(ctx, number)
}

func (l *TransferLedger) ListTransfers(ctx context.Context, limit int) ([]*domain.EnergyTransfer, error) {
	return l.repo.ListTransfers(ctx, limit)
}

// transition applies a caller-driven status change through the legal
// transition table.
func (l *TransferLedger) transition(ctx context.Context, number string, to domain.TransferStatus, reason string) (*domain.EnergyTransfer, error) {
	return l.mutate(ctx, number, func(t *domain.EnergyTransfer) error {
		if !domain.CanTransition(t.Status, to) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, to)
		}
		t.Status = to
		t.StatusReason = reason
		return nil
	})
}

// mutate runs fn on the stored record under the per-record lock, checks
// invariants and persists. Any error leaves the stored record untouched.
func (l *TransferLedger) mutate(ctx context.Context, number string, fn func(*domain.EnergyTransfer) error) (*domain.EnergyTransfer, error) {
	var updated *domain.EnergyTransfer
	err := l.locks.withRetry(number, l.opts.LockWait, l.opts.LockRetries, func() error {
		transfer, err := l.repo.GetTransfer(ctx, number)
		if err != nil {
			return err
		}
		prev := transfer.Status
		if err := fn(transfer); err != nil {
			return err
		}
		transfer.UpdatedAt = l.clock.Now()

		if err := domain.CheckTransferInvariants(transfer); err != nil {
			return err
		}
		if err := l.repo.SaveTransfer(ctx, transfer); err != nil {
			return fmt.Errorf("failed to save transfer: %w", err)
		}
		if transfer.Status != prev {
			l.bus.Publish(StatusEvent{
				Entity: "transfer",
				Number: transfer.Number,
				From:   string(prev),
				To:     string(transfer.Status),
				Reason: transfer.StatusReason,
				At:     transfer.UpdatedAt,
			})
		}
		updated = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("transfer updated",
		zap.String("transfer", number),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// annotateDrift records an out-of-window warning when a timestamp lands
// outside the schedule plus the configured grace period. Drift is a fact
// of physical transfers; it is never a reason to reject the mutation.
func (l *TransferLedger) annotateDrift(t *domain.EnergyTransfer, field string, ts time.Time) {
	tol := l.opts.ScheduleTolerance
	if ts.Before(t.ScheduledStart.Add(-tol)) || ts.After(t.ScheduledEnd.Add(tol)) {
		note := fmt.Sprintf("out_of_window: %s %s outside %s..%s (tolerance %s)",
			field, ts.Format(time.RFC3339),
			t.ScheduledStart.Format(time.RFC3339), t.ScheduledEnd.Format(time.RFC3339), tol)
		t.Annotations = append(t.Annotations, note)
		l.logger.Warn("transfer timing outside schedule window",
			zap.String("transfer", t.Number),
			zap.String("field", field),
			zap.Time("timestamp", ts))
	}
}
