package backtest

import "fmt"

// InputError reports a malformed or missing backtest input (candle series,
// date range, options).
type InputError struct {
	Field string
	Msg   string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Msg)
}

// OutOfOrderCandleError reports a candle whose timestamp does not strictly
// follow the previous one fed to the same series.
type OutOfOrderCandleError struct {
	Series   string
	Previous string
	Got      string
}

func (e *OutOfOrderCandleError) Error() string {
	return fmt.Sprintf("out-of-order candle on %s series: previous=%s got=%s", e.Series, e.Previous, e.Got)
}

// InvalidPositionParametersError reports a rejected SL/TP/move-SL value,
// mirroring trade_objects.py's ValueError raises.
type InvalidPositionParametersError struct {
	Reason string
}

func (e *InvalidPositionParametersError) Error() string {
	return "invalid position parameters: " + e.Reason
}

// VolumeOutOfRangeError reports a sized position falling outside the
// symbol's volume bounds after clamping was attempted.
type VolumeOutOfRangeError struct {
	Volume string
	Min    string
	Max    string
}

func (e *VolumeOutOfRangeError) Error() string {
	return fmt.Sprintf("volume %s out of range [%s, %s]", e.Volume, e.Min, e.Max)
}

// CapacityExceededError reports an order candidate dropped because the
// account already holds max_concurrent_trades open positions.
type CapacityExceededError struct {
	Open int
	Max  int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded: %d open positions at max %d", e.Open, e.Max)
}

// DetectorInvariantViolationError reports a segment chain invariant broken
// by the caller, e.g. feeding a candle to an already ChOC-confirmed segment
// without first advancing to a successor.
type DetectorInvariantViolationError struct {
	Detail string
}

func (e *DetectorInvariantViolationError) Error() string {
	return "detector invariant violated: " + e.Detail
}
