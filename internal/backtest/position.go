// Package backtest owns the simulated account/position lifecycle and the
// single-threaded per-candle driver loop, grounded on the original source's
// Animus engine: trade_objects.py's Account/Position classes and animus.py's
// run_backtest loop.
package backtest

import (
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a simulated long or short trade, grounded on trade_objects.py's
// Position/LongPosition/ShortPosition hierarchy. Go has no class hierarchy
// to mirror, so the type/direction split is a switch on Type instead of a
// subclass.
type Position struct {
	ID         string
	AccountID  string
	Type       types.PositionType
	Instrument string
	Contract   decimal.Decimal
	Volume     decimal.Decimal
	Price      decimal.Decimal
	SL         *decimal.Decimal
	TP         *decimal.Decimal
	InitialSL  *decimal.Decimal
	State      types.PositionState
	Profit     decimal.Decimal

	// RewardUnits is the R-multiple realized at close: profit measured in
	// multiples of the initial SL distance. Nil until closed, and stays nil
	// if the position was opened without an SL.
	RewardUnits *decimal.Decimal

	EntryTime  time.Time
	ExitTime   *time.Time
	ClosePrice *decimal.Decimal
}

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// NewLongPosition validates and constructs an open BUY position: an SL at or
// above entry, or a TP at or below entry, is rejected.
func NewLongPosition(accountID, instrument string, entryTime time.Time, contract, volume, price decimal.Decimal, sl, tp *decimal.Decimal) (*Position, error) {
	if sl != nil && sl.GreaterThanOrEqual(price) {
		return nil, &InvalidPositionParametersError{Reason: "stop loss on a long position must be below entry price"}
	}
	if tp != nil && tp.LessThanOrEqual(price) {
		return nil, &InvalidPositionParametersError{Reason: "take profit on a long position must be above entry price"}
	}
	return newPosition(accountID, types.PositionLong, instrument, entryTime, contract, volume, price, sl, tp), nil
}

// NewShortPosition validates and constructs an open SELL position: an SL at
// or below entry, or a TP at or above entry, is rejected.
func NewShortPosition(accountID, instrument string, entryTime time.Time, contract, volume, price decimal.Decimal, sl, tp *decimal.Decimal) (*Position, error) {
	if sl != nil && sl.LessThanOrEqual(price) {
		return nil, &InvalidPositionParametersError{Reason: "stop loss on a short position must be above entry price"}
	}
	if tp != nil && tp.GreaterThanOrEqual(price) {
		return nil, &InvalidPositionParametersError{Reason: "take profit on a short position must be below entry price"}
	}
	return newPosition(accountID, types.PositionShort, instrument, entryTime, contract, volume, price, sl, tp), nil
}

func newPosition(accountID string, t types.PositionType, instrument string, entryTime time.Time, contract, volume, price decimal.Decimal, sl, tp *decimal.Decimal) *Position {
	return &Position{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Type:       t,
		Instrument: instrument,
		Contract:   contract,
		Volume:     volume,
		Price:      price,
		SL:         sl,
		TP:         tp,
		InitialSL:  sl,
		State:      types.PositionOpen,
		EntryTime:  entryTime,
	}
}

// MoveSL relocates the position's working stop loss. Per trade_objects.py's
// move_sl overrides: a long's new SL must sit below the current close, a
// short's above it, and the value itself must be positive.
func (p *Position) MoveSL(value, closePrice decimal.Decimal) error {
	if !value.IsPositive() {
		return &InvalidPositionParametersError{Reason: "stop loss must be a positive value"}
	}
	switch p.Type {
	case types.PositionLong:
		if closePrice.LessThanOrEqual(value) {
			return &InvalidPositionParametersError{Reason: "long stop loss must stay below the current close"}
		}
	case types.PositionShort:
		if closePrice.GreaterThanOrEqual(value) {
			return &InvalidPositionParametersError{Reason: "short stop loss must stay above the current close"}
		}
	}
	p.SL = decPtr(value)
	return nil
}

// Close settles the position at price and records its pip profit and
// R-multiple. Returns false without effect if the position is already
// closed, matching trade_objects.py's warn-and-no-op behavior.
func (p *Position) Close(t time.Time, price decimal.Decimal) bool {
	if p.State != types.PositionOpen {
		return false
	}

	if p.Type == types.PositionShort {
		p.Profit = p.Price.Sub(price)
	} else {
		p.Profit = price.Sub(p.Price)
	}
	p.ClosePrice = decPtr(price)
	p.State = types.PositionClosed

	if p.InitialSL != nil {
		denom := p.Price.Sub(*p.InitialSL).Abs()
		if !denom.IsZero() {
			p.RewardUnits = decPtr(p.Profit.Div(denom))
		}
	}

	exitTime := t
	p.ExitTime = &exitTime
	return true
}

// RealizedPL converts the closed position's pip profit into account
// currency: profit * volume * contract size.
func (p *Position) RealizedPL() decimal.Decimal {
	return p.Profit.Mul(p.Volume).Mul(p.Contract)
}

// CheckAndUpdate tests whether the candle's range breaches the position's
// SL or TP and closes it if so. SL is always checked before TP -- on a
// candle wide enough to touch both levels, the position realizes its loss,
// not its gain (spec's SL-precedence tie-break).
func (p *Position) CheckAndUpdate(t time.Time, low, high decimal.Decimal) bool {
	if p.State == types.PositionClosed {
		return false
	}

	switch p.Type {
	case types.PositionLong:
		if p.SL != nil && low.LessThanOrEqual(*p.SL) {
			return p.Close(t, *p.SL)
		}
		if p.TP != nil && high.GreaterThanOrEqual(*p.TP) {
			return p.Close(t, *p.TP)
		}
	case types.PositionShort:
		if p.SL != nil && high.GreaterThanOrEqual(*p.SL) {
			return p.Close(t, *p.SL)
		}
		if p.TP != nil && low.LessThanOrEqual(*p.TP) {
			return p.Close(t, *p.TP)
		}
	}
	return false
}

// UnrealizedProfit estimates the floating P&L for an open position over the
// candle's range: a long uses high minus entry when the whole candle stayed
// above entry (low > entry), and low minus entry otherwise; a short mirrors
// it. Closed positions contribute zero.
func (p *Position) UnrealizedProfit(low, high decimal.Decimal) decimal.Decimal {
	if p.State == types.PositionClosed {
		return decimal.Zero
	}

	var pip decimal.Decimal
	switch p.Type {
	case types.PositionLong:
		if low.GreaterThan(p.Price) {
			pip = high.Sub(p.Price)
		} else {
			pip = low.Sub(p.Price)
		}
	case types.PositionShort:
		if high.LessThan(p.Price) {
			pip = p.Price.Sub(low)
		} else {
			pip = p.Price.Sub(high)
		}
	}
	return pip.Mul(p.Contract).Mul(p.Volume)
}
