// Package structure implements the primary-structure state machine (PST):
// it segments a candle stream into directional trend segments delimited by
// BOS/ChOC events, tracking the key levels a strategy advisor reads.
package structure

import (
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
)

// PrimarySegment is one maximal directional run of candles, bounded by a
// ChOC confirmation on either side. It is mutated in place by AddCandle and
// becomes immutable once ChocConfirmed is true.
type PrimarySegment struct {
	ID string

	Dir types.Direction

	KeyHigh, KeyLow             *decimal.Decimal
	KeyHighCandle, KeyLowCandle *types.Candle

	LastHigh, LastLow             *decimal.Decimal
	LastHighCandle, LastLowCandle *types.Candle

	SegmentHigh, SegmentLow       *decimal.Decimal
	HighestCandle, LowestCandle   *types.Candle

	BosCount int

	InBos          bool
	InPullBack     bool
	Choc           bool
	ChocConfirmed  bool
	InChocPullBack bool

	Candles        []time.Time
	BosCandles     []time.Time
	ChocCandles    []time.Time
	KeyHighCandles []time.Time
	KeyLowCandles  []time.Time

	ChocConfirmCandle *time.Time

	// LastCandle is the most recently processed candle, kept so the
	// coordinator can project its direction/timestamp into a signal record
	// without re-reading the source series.
	LastCandle *types.Candle
}

// NewFirstSegment creates the very first segment of a PST chain, with
// Dir == DirectionUndetermined until its first candle is processed.
func NewFirstSegment(id string) *PrimarySegment {
	return &PrimarySegment{ID: id, Dir: types.DirectionUndetermined}
}

// NewSuccessorSegment creates the segment that begins once `ended` confirms
// a ChOC. On new-segment seeding, direction is reversed, and
// the prior key_high/low and last_high/low (with their candle refs) carry
// forward; everything else resets to defaults.
func NewSuccessorSegment(id string, ended *PrimarySegment) *PrimarySegment {
	return &PrimarySegment{
		ID:             id,
		Dir:            ended.Dir.Opposite(),
		KeyHigh:        ended.KeyHigh,
		KeyLow:         ended.KeyLow,
		KeyHighCandle:  ended.KeyHighCandle,
		KeyLowCandle:   ended.KeyLowCandle,
		LastHigh:       ended.LastHigh,
		LastLow:        ended.LastLow,
		LastHighCandle: ended.LastHighCandle,
		LastLowCandle:  ended.LastLowCandle,
		InBos:          true,
	}
}

// SegmentRange returns (segment_high - segment_low), or the zero value with
// ok=false if either extreme is not yet set.
func (s *PrimarySegment) SegmentRange() (decimal.Decimal, bool) {
	if s.SegmentHigh == nil || s.SegmentLow == nil {
		return decimal.Zero, false
	}
	return s.SegmentHigh.Sub(*s.SegmentLow), true
}

func dec(d decimal.Decimal) *decimal.Decimal { return &d }

func (s *PrimarySegment) updateSegmentHighLow(c types.Candle) {
	if s.SegmentHigh == nil || c.High.GreaterThan(*s.SegmentHigh) {
		s.SegmentHigh = dec(c.High)
		cc := c
		s.HighestCandle = &cc
	}
	if s.SegmentLow == nil || c.Low.LessThan(*s.SegmentLow) {
		s.SegmentLow = dec(c.Low)
		cc := c
		s.LowestCandle = &cc
	}
}

// setLastHighLow runs the trailing high/low tracker update: last_high
// is refreshed with candle.High unless direction==DOWN && in_bos; last_low
// is refreshed with candle.Low unless direction==UP && in_bos. A tracker is
// only overwritten when unset or the new value is stricter.
func (s *PrimarySegment) setLastHighLow(c types.Candle) {
	if !(s.Dir == types.DirectionDown && s.InBos) {
		if s.LastHigh == nil || c.High.GreaterThan(*s.LastHigh) {
			s.LastHigh = dec(c.High)
			cc := c
			s.LastHighCandle = &cc
		}
	}
	if !(s.Dir == types.DirectionUp && s.InBos) {
		if s.LastLow == nil || c.Low.LessThan(*s.LastLow) {
			s.LastLow = dec(c.Low)
			cc := c
			s.LastLowCandle = &cc
		}
	}
}

// AddCandle appends candle to the segment and mutates its state following
// an exact per-candle update order. It is deterministic and
// side-effect-free outside the segment itself. Calling AddCandle on a
// segment with ChocConfirmed == true is a programmer error (see
// internal/backtest.DetectorInvariantViolationError) and is not guarded
// here; the coordinator is responsible for starting a new segment first.
func (s *PrimarySegment) AddCandle(c types.Candle) {
	s.Candles = append(s.Candles, c.Timestamp)
	cc := c
	s.LastCandle = &cc
	s.updateSegmentHighLow(c)

	if s.Dir == types.DirectionUndetermined {
		s.Dir = c.Direction()
		s.KeyHigh = dec(c.High)
		cc := c
		s.KeyHighCandle = &cc
		s.KeyLow = dec(c.Low)
		cc2 := c
		s.KeyLowCandle = &cc2
		s.InBos = true
		s.setLastHighLow(c)
		return
	}

	if s.Dir == types.DirectionUp {
		s.addCandleUp(c)
	} else {
		s.addCandleDown(c)
	}

	s.setLastHighLow(c)
}

func (s *PrimarySegment) addCandleUp(c types.Candle) {
	cDir := c.Direction()

	// Pullback after BOS.
	if !s.InPullBack && s.InBos && cDir == types.DirectionDown {
		s.InPullBack = true
		s.InBos = false
		s.KeyHigh = s.LastHigh
		s.KeyHighCandle = s.LastHighCandle
		s.KeyHighCandles = append(s.KeyHighCandles, timeOf(s.KeyHighCandle))
	}

	// ChOC pullback.
	if s.Choc && !s.InChocPullBack && cDir == types.DirectionUp {
		s.InChocPullBack = true
		s.KeyLow = s.LastLow
		s.KeyLowCandle = s.LastLowCandle
		s.KeyLowCandles = append(s.KeyLowCandles, timeOf(s.KeyLowCandle))
		s.LastHigh = dec(c.High)
		cc := c
		s.LastHighCandle = &cc
	}

	switch {
	case s.KeyHigh != nil && c.Close.GreaterThan(*s.KeyHigh) && s.InPullBack && cDir == types.DirectionUp:
		// BOS.
		s.BosCount++
		s.InPullBack = false
		s.InChocPullBack = false
		s.Choc = false
		s.InBos = true
		s.BosCandles = append(s.BosCandles, c.Timestamp)

		if s.LastLow == nil || c.Low.LessThan(*s.LastLow) {
			s.KeyLow = dec(c.Low)
			cc := c
			s.KeyLowCandle = &cc
			s.KeyLowCandles = append(s.KeyLowCandles, c.Timestamp)
		} else {
			s.KeyLow = s.LastLow
			s.KeyLowCandle = s.LastLowCandle
			s.KeyLowCandles = append(s.KeyLowCandles, timeOf(s.LastLowCandle))
		}
		s.LastLow = nil
		s.LastLowCandle = nil

	case s.KeyLow != nil && c.Close.LessThan(*s.KeyLow):
		// ChOC / ChOC confirm.
		if !s.Choc {
			s.Choc = true
			s.LastLow = dec(c.Low)
			cc := c
			s.LastLowCandle = &cc
			s.ChocCandles = append(s.ChocCandles, c.Timestamp)
		} else if s.Choc && s.InChocPullBack {
			s.ChocConfirmed = true
			s.KeyHigh = s.LastHigh
			s.KeyHighCandle = s.LastHighCandle
			s.KeyHighCandles = append(s.KeyHighCandles, timeOf(s.KeyHighCandle))
			s.LastLow = dec(c.Low)
			cc := c
			s.LastLowCandle = &cc
			t := c.Timestamp
			s.ChocConfirmCandle = &t
		}
	}
}

func (s *PrimarySegment) addCandleDown(c types.Candle) {
	cDir := c.Direction()

	// Pullback after BOS (mirrored: DOWN segment, incoming UP candle).
	if !s.InPullBack && s.InBos && cDir == types.DirectionUp {
		s.InPullBack = true
		s.InBos = false
		s.KeyLow = s.LastLow
		s.KeyLowCandle = s.LastLowCandle
		s.KeyLowCandles = append(s.KeyLowCandles, timeOf(s.KeyLowCandle))
	}

	// ChOC pullback (mirrored).
	if s.Choc && !s.InChocPullBack && cDir == types.DirectionDown {
		s.InChocPullBack = true
		s.KeyHigh = s.LastHigh
		s.KeyHighCandle = s.LastHighCandle
		s.KeyHighCandles = append(s.KeyHighCandles, timeOf(s.KeyHighCandle))
		s.LastLow = dec(c.Low)
		cc := c
		s.LastLowCandle = &cc
	}

	switch {
	case s.KeyLow != nil && c.Close.LessThan(*s.KeyLow) && s.InPullBack && cDir == types.DirectionDown:
		// BOS (mirrored).
		s.BosCount++
		s.InPullBack = false
		s.InChocPullBack = false
		s.Choc = false
		s.InBos = true
		s.BosCandles = append(s.BosCandles, c.Timestamp)

		if s.LastHigh == nil || c.High.GreaterThan(*s.LastHigh) {
			s.KeyHigh = dec(c.High)
			cc := c
			s.KeyHighCandle = &cc
			s.KeyHighCandles = append(s.KeyHighCandles, c.Timestamp)
		} else {
			s.KeyHigh = s.LastHigh
			s.KeyHighCandle = s.LastHighCandle
			s.KeyHighCandles = append(s.KeyHighCandles, timeOf(s.LastHighCandle))
		}
		s.LastHigh = nil
		s.LastHighCandle = nil

	case s.KeyHigh != nil && c.Close.GreaterThan(*s.KeyHigh):
		// ChOC / ChOC confirm (mirrored).
		if !s.Choc {
			s.Choc = true
			s.LastHigh = dec(c.High)
			cc := c
			s.LastHighCandle = &cc
			s.ChocCandles = append(s.ChocCandles, c.Timestamp)
		} else if s.Choc && s.InChocPullBack {
			s.ChocConfirmed = true
			s.KeyLow = s.LastLow
			s.KeyLowCandle = s.LastLowCandle
			s.KeyLowCandles = append(s.KeyLowCandles, timeOf(s.KeyLowCandle))
			s.LastHigh = dec(c.High)
			cc := c
			s.LastHighCandle = &cc
			t := c.Timestamp
			s.ChocConfirmCandle = &t
		}
	}
}

func timeOf(c *types.Candle) time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.Timestamp
}
