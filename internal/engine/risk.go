package engine

import (
	"errors"
	"fmt"
	"math"
)

// Limits are the exit thresholds of a simulated trade, in percent.
type Limits struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// ErrInvalidLimits is returned for non-positive or non-finite thresholds.
var ErrInvalidLimits = errors.New("invalid trade limits")

// Validate checks that both thresholds are finite and positive.
func (l Limits) Validate() error {
	if !positive(l.StopLossPct) {
		return fmt.Errorf("%w: stop loss %v%% must be positive", ErrInvalidLimits, l.StopLossPct)
	}
	if !positive(l.TakeProfitPct) {
		return fmt.Errorf("%w: take profit %v%% must be positive", ErrInvalidLimits, l.TakeProfitPct)
	}
	return nil
}

// ValidatePrice checks that a buy price is finite and positive.
func ValidatePrice(buyPrice float64) error {
	if !positive(buyPrice) {
		return fmt.Errorf("buy price %v must be positive", buyPrice)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
