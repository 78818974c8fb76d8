package domain

import "time"

type PartyKind string

const (
	PartyInstallation PartyKind = "installation"
	PartyCooperative  PartyKind = "cooperative"
	PartyStorage      PartyKind = "storage"
)

// PartyRef identifies one end of an energy transfer.
type PartyRef struct {
	Kind  PartyKind `json:"kind"`
	ID    string    `json:"id"`
	Meter string    `json:"meter,omitempty"`
}

func ValidPartyKind(k PartyKind) bool {
	switch k {
	case PartyInstallation, PartyCooperative, PartyStorage:
		return true
	}
	return false
}

type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusScheduled  TransferStatus = "scheduled"
	TransferStatusInProgress TransferStatus = "in_progress"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusCancelled  TransferStatus = "cancelled"
	TransferStatusFailed     TransferStatus = "failed"
	TransferStatusOnHold     TransferStatus = "on_hold"
)

// transferTransitions lists the legal next statuses for each status.
// Terminal statuses have no successors. failed vs cancelled is always
// caller-attributed, never derived here.
var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferStatusPending:    {TransferStatusScheduled, TransferStatusInProgress, TransferStatusCancelled, TransferStatusFailed, TransferStatusOnHold},
	TransferStatusScheduled:  {TransferStatusInProgress, TransferStatusCompleted, TransferStatusCancelled, TransferStatusFailed, TransferStatusOnHold},
	TransferStatusInProgress: {TransferStatusCompleted, TransferStatusCancelled, TransferStatusFailed, TransferStatusOnHold},
	TransferStatusOnHold:     {TransferStatusScheduled, TransferStatusInProgress, TransferStatusCancelled, TransferStatusFailed},
}

// CanTransition reports whether from -> to is a legal transfer transition.
func CanTransition(from, to TransferStatus) bool {
	for _, next := range transferTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusCancelled, TransferStatusFailed:
		return true
	}
	return false
}

// EnergyTransfer is a scheduled movement of energy between two parties.
// loss_percentage, loss_amount, net_amount and total_cost are derived from
// amount_kwh and efficiency_pct and are never set independently.
type EnergyTransfer struct {
	Number      string   `json:"transfer_number"`
	Source      PartyRef `json:"source"`
	Destination PartyRef `json:"destination"`

	AmountKWh      float64 `json:"transfer_amount_kwh"`
	AmountMWh      float64 `json:"transfer_amount_mwh"`
	TransferRateKW float64 `json:"transfer_rate_kw,omitempty"`

	EfficiencyPct float64 `json:"efficiency_percentage"`
	LossPct       float64 `json:"loss_percentage"`
	LossAmountKWh float64 `json:"loss_amount_kwh"`
	NetAmountKWh  float64 `json:"net_transfer_amount_kwh"`

	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	DurationHours  float64    `json:"duration_hours"`

	CostPerUnit float64 `json:"cost_per_unit"`
	TotalCost   float64 `json:"total_cost"`
	Currency    string  `json:"currency"`

	Status       TransferStatus `json:"status"`
	StatusReason string         `json:"status_reason,omitempty"`

	// Warning-level observations (schedule drift etc). Never blocking.
	Annotations []string `json:"annotations,omitempty"`

	Tags     map[string]any `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recalculate rederives every derived field from amount_kwh and
// efficiency_pct. It is deliberately non-incremental so repeated calls
// cannot accumulate rounding drift.
func (t *EnergyTransfer) Recalculate() {
	t.AmountMWh = t.AmountKWh / 1000
	t.LossPct = 100 - t.EfficiencyPct
	t.LossAmountKWh = t.AmountKWh * t.LossPct / 100
	t.NetAmountKWh = t.AmountKWh - t.LossAmountKWh
	t.TotalCost = t.AmountKWh * t.CostPerUnit
}

// FixDuration recomputes duration_hours once an end timestamp is known.
// Falls back to the scheduled start when no actual start was recorded.
func (t *EnergyTransfer) FixDuration() {
	if t.ActualEnd == nil {
		t.DurationHours = t.ScheduledEnd.Sub(t.ScheduledStart).Hours()
		return
	}
	start := t.ScheduledStart
	if t.ActualStart != nil {
		start = *t.ActualStart
	}
	t.DurationHours = t.ActualEnd.Sub(start).Hours()
}
