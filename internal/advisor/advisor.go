// Package advisor turns detector signals into order candidates and position
// modifications, grounded on the original source's strategy advisor: a pure
// function of (signals, close, balance, options) with no candle-stream state
// of its own beyond three edge-triggered latches.
package advisor

import (
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Advisor evaluates the configured strategy against the latest signals. It
// is not safe for concurrent use: the three latches below make it
// stateful across candles, same as the original.
type Advisor struct {
	logger  *zap.Logger
	options types.Options

	chocExpired    bool
	bosExpired     bool
	modsBosExpired bool
}

// New constructs an Advisor for the given options.
func New(logger *zap.Logger, options types.Options) *Advisor {
	return &Advisor{logger: logger, options: options}
}

// GeneratePositions evaluates the configured strategy and returns at most
// one order candidate for this candle, or nil.
func (a *Advisor) GeneratePositions(closingPrice, balance decimal.Decimal, sig types.Signals) *types.OrderCandidate {
	if !sig.PSTLow.Choc {
		a.chocExpired = false
	}

	switch a.options.Strategy {
	case "SIMPLE_TREND":
		return a.simpleTrend(closingPrice, balance, sig)
	case "PRICE_ACTION":
		return a.priceAction(closingPrice, balance, sig)
	default:
		a.logger.Warn("unknown strategy, no positions generated", zap.String("strategy", a.options.Strategy))
		return nil
	}
}

func (a *Advisor) simpleTrend(close, balance decimal.Decimal, sig types.Signals) *types.OrderCandidate {
	low, mid, high := sig.PSTLow, sig.PSTMid, sig.PSTHigh

	longTrendOK := (mid.SegDir == types.DirectionUp || (mid.SegDir == types.DirectionDown && mid.Choc)) &&
		((high.SegDir == types.DirectionUp || (high.SegDir == types.DirectionDown && high.Choc)) || a.options.ExcludeHighTrend)
	shortTrendOK := (mid.SegDir == types.DirectionDown || (mid.SegDir == types.DirectionUp && mid.Choc)) &&
		((high.SegDir == types.DirectionDown || (high.SegDir == types.DirectionUp && high.Choc)) || a.options.ExcludeHighTrend)

	if longTrendOK && low.SegDir == types.DirectionDown {
		switch a.options.Entry {
		case "CHOC_CONFIRMED":
			if low.ChocConfirmed {
				sl := a.slSource(low, false)
				sl = applyLongSLMargin(sl, close, a.options.SLLevelMargin)
				return a.buildPosition(types.PositionLong, close, sl, balance)
			}
		case "CHOC":
			if low.Choc && !a.chocExpired {
				sl := a.slSource(low, false)
				sl = applyLongSLMargin(sl, close, a.options.SLLevelMargin)
				a.chocExpired = true
				return a.buildPosition(types.PositionLong, close, sl, balance)
			}
		}
	}

	if shortTrendOK && low.SegDir == types.DirectionUp {
		switch a.options.Entry {
		case "CHOC_CONFIRMED":
			if low.ChocConfirmed {
				sl := a.slSource(low, true)
				sl = applyShortSLMargin(sl, close, a.options.SLLevelMargin)
				return a.buildPosition(types.PositionShort, close, sl, balance)
			}
		case "CHOC":
			if low.Choc && !a.chocExpired {
				sl := a.slSource(low, true)
				sl = applyShortSLMargin(sl, close, a.options.SLLevelMargin)
				a.chocExpired = true
				return a.buildPosition(types.PositionShort, close, sl, balance)
			}
		}
	}

	return nil
}

func (a *Advisor) priceAction(close, balance decimal.Decimal, sig types.Signals) *types.OrderCandidate {
	low, mid, high := sig.PSTLow, sig.PSTMid, sig.PSTHigh

	chocCond := low.Choc && (a.options.Entry == "CHOC" || a.options.Entry == "CHOC+BOS") && !a.chocExpired
	chocConfirmedCond := low.ChocConfirmed && (a.options.Entry == "CHOC_CONFIRMED" || a.options.Entry == "CHOC_CONFIRMED+BOS")

	if chocCond || chocConfirmedCond {
		// Preserved from the original: the latch is burned before the SR
		// interaction test runs, so a failed zone test still consumes it.
		if chocCond {
			a.chocExpired = true
		}

		zone, ok := testChocZoneInteraction(sig.SRZones, low.SegDir, low.SegmentRange, close, a.options)
		if ok {
			if low.SegDir == types.DirectionUp {
				sl := a.slSource(low, true)
				if sl.LessThan(zone.Interval.High) {
					sl = zone.Interval.High
				}
				sl = applyShortSLMargin(sl, close, a.options.SLLevelMargin)
				if order := a.buildPosition(types.PositionShort, close, sl, balance); order != nil {
					return order
				}
			} else {
				sl := a.slSource(low, false)
				if sl.GreaterThan(zone.Interval.Low) {
					sl = zone.Interval.Low
				}
				sl = applyLongSLMargin(sl, close, a.options.SLLevelMargin)
				if order := a.buildPosition(types.PositionLong, close, sl, balance); order != nil {
					return order
				}
			}
		}
	}

	bosCond := low.InBos && (a.options.Entry == "CHOC+BOS" || a.options.Entry == "CHOC_CONFIRMED+BOS") && !a.bosExpired
	if bosCond {
		a.bosExpired = true

		zone, ok := testBOSZoneInteraction(sig.SRZones, low.SegDir, low.KeyLevels.Low, low.KeyLevels.High, close, a.options)
		if !ok {
			return nil
		}

		allDown := low.SegDir == types.DirectionDown && mid.SegDir == types.DirectionDown && high.SegDir == types.DirectionDown
		allUp := low.SegDir == types.DirectionUp && mid.SegDir == types.DirectionUp && high.SegDir == types.DirectionUp

		if allDown {
			sl := low.KeyLevels.High
			if sl.LessThan(zone.Interval.High) {
				sl = zone.Interval.High
			}
			sl = applyShortSLMargin(sl, close, a.options.SLLevelMargin)
			return a.buildPosition(types.PositionShort, close, sl, balance)
		}
		if allUp {
			sl := low.KeyLevels.Low
			if sl.GreaterThan(zone.Interval.Low) {
				sl = zone.Interval.Low
			}
			sl = applyLongSLMargin(sl, close, a.options.SLLevelMargin)
			return a.buildPosition(types.PositionLong, close, sl, balance)
		}
	}

	return nil
}

// slSource resolves the stop-loss anchor per options.SLLevel: either the
// signal's key level or its segment_range extreme. useHigh selects the
// upper-side source (for short entries); otherwise the lower-side source.
func (a *Advisor) slSource(low types.PSTSignal, useHigh bool) decimal.Decimal {
	if a.options.SLLevel == "SEGMENT_RANGE" {
		if useHigh {
			return low.SegmentRange.Highest
		}
		return low.SegmentRange.Lowest
	}
	if useHigh {
		return low.KeyLevels.High
	}
	return low.KeyLevels.Low
}

func applyLongSLMargin(sl, close, margin decimal.Decimal) decimal.Decimal {
	return sl.Sub(close.Sub(sl).Mul(margin))
}

func applyShortSLMargin(sl, close, margin decimal.Decimal) decimal.Decimal {
	return sl.Add(sl.Sub(close).Mul(margin))
}

// buildPosition sizes a candidate order from the configured risk-per-trade,
// rejecting it if the resulting volume falls below the symbol's minimum and
// clamping it to the symbol's maximum otherwise. Take-profit is computed
// from the reward ratio when one is configured, and left nil otherwise --
// a position opened with no reward ratio has no take-profit at all, not
// one sitting at entry price.
func (a *Advisor) buildPosition(t types.PositionType, close, sl, balance decimal.Decimal) *types.OrderCandidate {
	risk := close.Sub(sl).Abs()
	if risk.IsZero() {
		a.logger.Warn("NO TRADE: zero-distance stop loss", zap.String("type", t.String()))
		return nil
	}

	volume := balance.Mul(a.options.RiskPerTrade).Div(risk.Mul(a.options.Symbol.TradeContractSize))
	if volume.LessThan(a.options.Symbol.VolumeMin) {
		a.logger.Warn("NO TRADE: position requires too high volume", zap.String("type", t.String()), zap.String("volume", volume.String()))
		return nil
	}
	if volume.GreaterThan(a.options.Symbol.VolumeMax) {
		volume = a.options.Symbol.VolumeMax
	} else {
		volume = roundDownToStep(volume, a.options.Symbol.VolumeMin)
	}

	var tp *decimal.Decimal
	if a.options.RewardRatio != nil {
		reward := risk.Mul(*a.options.RewardRatio)
		var target decimal.Decimal
		if t == types.PositionShort {
			target = close.Sub(reward)
		} else {
			target = close.Add(reward)
		}
		tp = &target
	}

	return &types.OrderCandidate{
		Type:       t,
		Instrument: a.options.Instrument,
		Volume:     volume,
		Price:      close,
		SL:         sl,
		TP:         tp,
	}
}

func roundDownToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// ModifyPositions returns the close/move-SL actions the current signals
// imply for any open position on this instrument.
func (a *Advisor) ModifyPositions(sig types.Signals) types.ModifyResult {
	low := sig.PSTLow
	if !low.InBos {
		a.modsBosExpired = false
		a.bosExpired = false
	}

	var result types.ModifyResult

	switch a.options.Exit {
	case "CHOC_CONFIRMED":
		if low.ChocConfirmed {
			result.Actions = append(result.Actions, closeAction(closePositionType(low.SegDir), a.options.Instrument))
		}
	case "CHOC":
		if low.Choc {
			result.Actions = append(result.Actions, closeAction(closePositionType(low.SegDir), a.options.Instrument))
		}
	}

	if low.InBos && !a.modsBosExpired && a.options.MoveSL.Allow {
		posType := types.PositionShort
		target := low.KeyLevels.High
		if low.SegDir != types.DirectionDown {
			posType = types.PositionLong
			target = low.KeyLevels.Low
		}
		result.Actions = append(result.Actions, types.PositionAction{
			Action:       types.ActionMoveSL,
			PositionType: posType,
			Instrument:   a.options.Instrument,
			NewSLTarget:  target,
		})
		a.modsBosExpired = true
	}

	return result
}

// closePositionType maps a segment direction back to the position type that
// direction implies should be closed: a DOWN segment confirming ChOC/Choc
// means a short leg has reversed against it, and vice-versa.
func closePositionType(segDir types.Direction) types.PositionType {
	if segDir == types.DirectionDown {
		return types.PositionShort
	}
	return types.PositionLong
}

func closeAction(t types.PositionType, instrument string) types.PositionAction {
	return types.PositionAction{Action: types.ActionClose, PositionType: t, Instrument: instrument}
}
