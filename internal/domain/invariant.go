package domain

import (
	"fmt"
	"math"
)

// Epsilon bounds the float drift tolerated by the conservation checks.
const Epsilon = 1e-6

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// CheckOrderInvariants verifies the conservation laws every persisted
// order must satisfy. A violation rejects the mutation wholesale.
func CheckOrderInvariants(o *TradingOrder) error {
	if !almostEqual(o.FilledQuantity+o.RemainingQuantity, o.Quantity) {
		return fmt.Errorf("%w: filled %.9f + remaining %.9f != quantity %.9f",
			ErrInvariantViolation, o.FilledQuantity, o.RemainingQuantity, o.Quantity)
	}
	if !almostEqual(o.TotalValue, o.Quantity*o.PricePerUnit) {
		return fmt.Errorf("%w: total_value %.9f != quantity*price %.9f",
			ErrInvariantViolation, o.TotalValue, o.Quantity*o.PricePerUnit)
	}
	if !almostEqual(o.FilledValue+o.RemainingValue, o.TotalValue) {
		return fmt.Errorf("%w: filled_value %.9f + remaining_value %.9f != total_value %.9f",
			ErrInvariantViolation, o.FilledValue, o.RemainingValue, o.TotalValue)
	}
	if o.FilledQuantity < -Epsilon || o.FilledQuantity > o.Quantity+Epsilon {
		return fmt.Errorf("%w: filled_quantity %.9f outside [0, %.9f]",
			ErrInvariantViolation, o.FilledQuantity, o.Quantity)
	}
	return nil
}

// CheckTransferInvariants verifies energy conservation and the kWh/MWh
// mirror for a transfer record.
func CheckTransferInvariants(t *EnergyTransfer) error {
	if !almostEqual(t.LossAmountKWh+t.NetAmountKWh, t.AmountKWh) {
		return fmt.Errorf("%w: loss %.9f + net %.9f != amount %.9f",
			ErrInvariantViolation, t.LossAmountKWh, t.NetAmountKWh, t.AmountKWh)
	}
	if !almostEqual(t.LossPct, 100-t.EfficiencyPct) {
		return fmt.Errorf("%w: loss_pct %.9f != 100 - efficiency_pct %.9f",
			ErrInvariantViolation, t.LossPct, t.EfficiencyPct)
	}
	if !almostEqual(t.AmountMWh, t.AmountKWh/1000) {
		return fmt.Errorf("%w: amount_mwh %.9f disagrees with amount_kwh %.9f",
			ErrInvariantViolation, t.AmountMWh, t.AmountKWh)
	}
	if !almostEqual(t.TotalCost, t.AmountKWh*t.CostPerUnit) {
		return fmt.Errorf("%w: total_cost %.9f != amount*cost_per_unit %.9f",
			ErrInvariantViolation, t.TotalCost, t.AmountKWh*t.CostPerUnit)
	}
	return nil
}
