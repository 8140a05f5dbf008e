package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the trend direction of a segment or a single candle.
type Direction int

const (
	DirectionUndetermined Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	default:
		return "?"
	}
}

// Opposite returns the mirrored direction; UNDETERMINED mirrors to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionUndetermined
	}
}

// ZoneType classifies a support/resistance zone.
type ZoneType int

const (
	ZoneSupport ZoneType = iota
	ZoneResistance
)

func (z ZoneType) String() string {
	if z == ZoneResistance {
		return "RESISTANCE"
	}
	return "SUPPORT"
}

// ZoningMode selects which candle sub-interval feeds the SR aggregator.
type ZoningMode int

const (
	ZoningCandle ZoningMode = iota
	ZoningBody
	ZoningWick
)

// PSTLevel names one of the three primary-structure timeframes.
type PSTLevel int

const (
	PSTLow PSTLevel = iota
	PSTMid
	PSTHigh
)

func (l PSTLevel) String() string {
	switch l {
	case PSTLow:
		return "low"
	case PSTMid:
		return "mid"
	case PSTHigh:
		return "high"
	default:
		return "?"
	}
}

// SRLevel names one of the two SR timeframes.
type SRLevel int

const (
	SRLow SRLevel = iota
	SRHigh
)

func (l SRLevel) String() string {
	if l == SRHigh {
		return "high"
	}
	return "low"
}

// Candle is an immutable OHLC price bar.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
}

// Direction returns UP when the close is strictly above the open, else DOWN.
func (c Candle) Direction() Direction {
	if c.Close.GreaterThan(c.Open) {
		return DirectionUp
	}
	return DirectionDown
}

// Interval is an inclusive [Low, High] price band, used for SR zones.
type Interval struct {
	Low, High decimal.Decimal
}

func (iv Interval) Width() decimal.Decimal {
	return iv.High.Sub(iv.Low)
}

// PositionType distinguishes a Long from a Short position.
type PositionType int

const (
	PositionLong PositionType = iota
	PositionShort
)

func (t PositionType) String() string {
	if t == PositionShort {
		return "SELL"
	}
	return "BUY"
}

// PositionState tracks a position's lifecycle.
type PositionState int

const (
	PositionOpen PositionState = iota
	PositionClosed
)

// KeyLevels mirrors the source's "key_levels": {high, low} signal field.
type KeyLevels struct {
	High decimal.Decimal
	Low  decimal.Decimal
}

// SegmentRange mirrors the source's "segment_range": {highest, lowest}.
type SegmentRange struct {
	Highest decimal.Decimal
	Lowest  decimal.Decimal
}

// PrevSegmentSummary is the compact "prev_segment" projection from the
// get_signal_data().
type PrevSegmentSummary struct {
	SegID        string
	SegDir       Direction
	SegmentRange SegmentRange
}

// PSTSignal is the per-level projection consumed by the strategy advisor,
// named after get_signal_data() dict keys.
type PSTSignal struct {
	SegID         string
	SegDir        Direction
	CandleTime    time.Time
	CandleDir     Direction
	BosNum        int
	InBos         bool
	InPullBack    bool
	Choc          bool
	ChocConfirmed bool
	KeyLevels     KeyLevels
	SegmentRange  SegmentRange
	PrevSegment   PrevSegmentSummary
}

// SRZoneView is the read-only projection of one aggregated SR zone.
type SRZoneView struct {
	ID       string
	Type     ZoneType
	Anchor   time.Time
	Interval Interval
	Retests  int
}

// Signals is the full structural projection handed to the advisor each
// candle: one PSTSignal per PST level, plus the current SR zone list.
type Signals struct {
	PSTLow  PSTSignal
	PSTMid  PSTSignal
	PSTHigh PSTSignal
	SRZones []SRZoneView
}

// AccountSnapshot is the small account block embedded in an annotation.
type AccountSnapshot struct {
	InitialBalance decimal.Decimal
	Balance        decimal.Decimal
	Equity         decimal.Decimal
}

// LevelAnnotation is the per-PST-level slice of the annotation payload.
type LevelAnnotation struct {
	Timeframe     PSTLevel
	Direction     Direction
	InChoc        bool
	KeyHigh       decimal.Decimal
	KeyLow        decimal.Decimal
	Bos           []time.Time
	Choc          []time.Time
	ChocConfirm   []time.Time
	SegmentHigh   decimal.Decimal
	SegmentLow    decimal.Decimal
}

// Annotation is the UI-facing projection of detector state, grounded on the
// get_annotation().
type Annotation struct {
	Levels  map[PSTLevel]LevelAnnotation
	SRZones []SRZoneView
	Account AccountSnapshot
}

// PositionAction is one entry of modify_positions' actions list.
type PositionActionKind string

const (
	ActionClose  PositionActionKind = "CLOSE"
	ActionMoveSL PositionActionKind = "MOVE_SL"
)

type PositionAction struct {
	Action        PositionActionKind
	PositionType  PositionType
	Instrument    string
	NewSLTarget   decimal.Decimal
}

// ModifyResult is the return value of Advisor.ModifyPositions.
type ModifyResult struct {
	Actions []PositionAction
}

// OrderCandidate is the optional order Advisor.GeneratePositions emits.
// TP is nil when no reward ratio is configured -- the position opens with
// no take-profit at all, rather than one sitting at the entry price.
type OrderCandidate struct {
	Type       PositionType
	Instrument string
	Volume     decimal.Decimal
	Price      decimal.Decimal
	SL         decimal.Decimal
	TP         *decimal.Decimal
}

// SymbolSpec describes the traded instrument's contract terms.
type SymbolSpec struct {
	Name              string
	TradeContractSize decimal.Decimal
	VolumeMin         decimal.Decimal
	VolumeMax         decimal.Decimal
}

// MoveSLOptions governs break-even/trailing stop movement.
type MoveSLOptions struct {
	Allow          bool
	ToBreakEvenAtR decimal.Decimal
	TrailingAtR    decimal.Decimal
	SLLevelMargin  decimal.Decimal
}

// Options is the full backtest configuration surface.
type Options struct {
	Strategy              string
	StartDate             time.Time
	EndDate               time.Time
	Instrument            string
	Symbol                SymbolSpec
	InitAccountBalance    decimal.Decimal
	PSTLookbackWindow     int
	SRLookbackWindow      int
	SRRefreshWindow       int
	ZoningMode            ZoningMode
	CompoundRisk          bool
	MaxConcurrentTrades   int
	Entry                 string
	Exit                  string
	SLLevel               string
	SLLevelMargin         decimal.Decimal
	RewardRatio           *decimal.Decimal
	RiskPerTrade          decimal.Decimal
	ExcludeHighTrend      bool
	SRZoneInteraction     string
	SRZoneEntryMargin     decimal.Decimal
	SRZoneProximityMargin decimal.Decimal
	SRZoneClearenceFactor decimal.Decimal
	MoveSL                MoveSLOptions
	PublishLiveData       bool
	PublishCycle          int
	SimSpeed              time.Duration
}
