package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/coopgrid/energy-ledger/internal/domain"
	"github.com/coopgrid/energy-ledger/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTransferLedger(t *testing.T) (*usecase.TransferLedger, *FakeClock) {
	t.Helper()
	repo := NewMemTransferRepo()
	bus := usecase.NewEventBus()
	clock := NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	ledger := usecase.NewTransferLedger(repo, bus, clock, zap.NewNop(), usecase.Options{
		ScheduleTolerance: 15 * time.Minute,
	})
	return ledger, clock
}

func baseTransferCommand(clock *FakeClock) usecase.ScheduleTransferCommand {
	start := clock.Now().Add(2 * time.Hour)
	return usecase.ScheduleTransferCommand{
		Number:         "TRF-2026-0001",
		Source:         domain.PartyRef{Kind: domain.PartyInstallation, ID: "inst-7", Meter: "MTR-0042"},
		Destination:    domain.PartyRef{Kind: domain.PartyCooperative, ID: "coop-1"},
		AmountKWh:      1000,
		TransferRateKW: 250,
		EfficiencyPct:  95,
		CostPerUnit:    0.12,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(4 * time.Hour),
	}
}

func TestScheduleTransfer(t *testing.T) {
	ledger, clock := newTransferLedger(t)

	tr, err := ledger.ScheduleTransfer(context.Background(), baseTransferCommand(clock))
	require.NoError(t, err)

	assert.Equal(t, domain.TransferStatusPending, tr.Status)
	assert.InDelta(t, 5.0, tr.LossPct, domain.Epsilon)
	assert.InDelta(t, 50.0, tr.LossAmountKWh, domain.Epsilon)
	assert.InDelta(t, 950.0, tr.NetAmountKWh, domain.Epsilon)
	assert.InDelta(t, 1.0, tr.AmountMWh, domain.Epsilon)
	assert.InDelta(t, 120.0, tr.TotalCost, domain.Epsilon)
	assert.Equal(t, "EUR", tr.Currency)
	assert.InDelta(t, 4.0, tr.DurationHours, domain.Epsilon)
}

func TestScheduleTransfer_ConfirmedStartsScheduled(t *testing.T) {
	ledger, clock := newTransferLedger(t)

	cmd := baseTransferCommand(clock)
	cmd.Confirmed = true
	tr, err := ledger.ScheduleTransfer(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusScheduled, tr.Status)
}

func TestScheduleTransfer_Validation(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.AmountKWh = 0
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	cmd = baseTransferCommand(clock)
	cmd.EfficiencyPct = 0
	_, err = ledger.ScheduleTransfer(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrInvalidEfficiency)

	cmd = baseTransferCommand(clock)
	cmd.EfficiencyPct = 100.5
	_, err = ledger.ScheduleTransfer(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrInvalidEfficiency)

	cmd = baseTransferCommand(clock)
	cmd.ScheduledEnd = cmd.ScheduledStart
	_, err = ledger.ScheduleTransfer(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	cmd = baseTransferCommand(clock)
	cmd.CostPerUnit = -0.01
	_, err = ledger.ScheduleTransfer(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestTransferLifecycle_StartEnd(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.Confirmed = true
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)

	start := cmd.ScheduledStart.Add(5 * time.Minute)
	tr, err := ledger.RecordActualStart(ctx, "TRF-2026-0001", start)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusInProgress, tr.Status)
	assert.Empty(t, tr.Annotations)

	end := start.Add(3 * time.Hour)
	tr, err = ledger.RecordActualEnd(ctx, "TRF-2026-0001", end)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, tr.Status)
	assert.InDelta(t, 3.0, tr.DurationHours, domain.Epsilon)

	// Completed is terminal.
	_, err = ledger.RecordActualStart(ctx, "TRF-2026-0001", end)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransferLifecycle_PendingCannotStart(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	_, err := ledger.ScheduleTransfer(ctx, baseTransferCommand(clock))
	require.NoError(t, err)

	_, err = ledger.RecordActualStart(ctx, "TRF-2026-0001", clock.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransfer_EndBeforeStartRejected(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.Confirmed = true
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)

	start := cmd.ScheduledStart
	_, err = ledger.RecordActualStart(ctx, "TRF-2026-0001", start)
	require.NoError(t, err)

	_, err = ledger.RecordActualEnd(ctx, "TRF-2026-0001", start.Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestTransfer_DriftAnnotatedNotRejected(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.Confirmed = true
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)

	// An hour before the scheduled window, well past the 15m tolerance.
	early := cmd.ScheduledStart.Add(-time.Hour)
	tr, err := ledger.RecordActualStart(ctx, "TRF-2026-0001", early)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusInProgress, tr.Status)
	require.Len(t, tr.Annotations, 1)
	assert.Contains(t, tr.Annotations[0], "out_of_window")
}

func TestTransfer_HoldAndResume(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.Confirmed = true
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)

	// Hold before start resumes to scheduled.
	tr, err := ledger.Hold(ctx, "TRF-2026-0001", "grid congestion")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusOnHold, tr.Status)
	assert.Equal(t, "grid congestion", tr.StatusReason)

	tr, err = ledger.Resume(ctx, "TRF-2026-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusScheduled, tr.Status)
	assert.Empty(t, tr.StatusReason)

	// Hold mid-flight resumes to in_progress.
	_, err = ledger.RecordActualStart(ctx, "TRF-2026-0001", cmd.ScheduledStart)
	require.NoError(t, err)
	_, err = ledger.Hold(ctx, "TRF-2026-0001", "meter check")
	require.NoError(t, err)
	tr, err = ledger.Resume(ctx, "TRF-2026-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusInProgress, tr.Status)
}

func TestTransfer_FailAndCancelAreCallerAttributed(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.Confirmed = true
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)

	tr, err := ledger.Fail(ctx, "TRF-2026-0001", "inverter fault")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusFailed, tr.Status)
	assert.Equal(t, "inverter fault", tr.StatusReason)

	// Terminal: no cancel after fail.
	_, err = ledger.Cancel(ctx, "TRF-2026-0001", "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	cmd.Number = "TRF-2026-0002"
	_, err = ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)
	tr, err = ledger.Cancel(ctx, "TRF-2026-0002", "member withdrew")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, tr.Status)
}

func TestRecompute_Idempotent(t *testing.T) {
	ledger, clock := newTransferLedger(t)
	ctx := context.Background()

	cmd := baseTransferCommand(clock)
	cmd.AmountKWh = 777.77
	cmd.EfficiencyPct = 93.4
	_, err := ledger.ScheduleTransfer(ctx, cmd)
	require.NoError(t, err)

	first, err := ledger.Recompute(ctx, "TRF-2026-0001")
	require.NoError(t, err)

	var last *domain.EnergyTransfer
	for i := 0; i < 10; i++ {
		last, err = ledger.Recompute(ctx, "TRF-2026-0001")
		require.NoError(t, err)
	}

	assert.Equal(t, first.LossPct, last.LossPct)
	assert.Equal(t, first.LossAmountKWh, last.LossAmountKWh)
	assert.Equal(t, first.NetAmountKWh, last.NetAmountKWh)
	assert.Equal(t, first.TotalCost, last.TotalCost)
	assert.Equal(t, first.AmountMWh, last.AmountMWh)
	require.NoError(t, domain.CheckTransferInvariants(last))
}

func TestTransfer_NotFound(t *testing.T) {
	ledger, _ := newTransferLedger(t)
	_, err := ledger.Recompute(context.Background(), "TRF-MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
