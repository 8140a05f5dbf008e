// Package srzone derives raw support/resistance zones from segment
// extremes and merges them into aggregated, retest-counted zones.
package srzone

import (
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/structure"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawZone is the per-segment candidate zone derived from a completed segment.
type RawZone struct {
	Type       types.ZoneType
	Anchor     time.Time
	FullCandle types.Interval
	Body       types.Interval
	Wick       types.Interval
}

// DeriveRawZone derives a candidate zone from one non-first completed segment.
// It returns ok=false when the segment's extremes are not yet known (should
// not happen for a completed segment, but guards against misuse).
func DeriveRawZone(seg *structure.PrimarySegment) (RawZone, bool) {
	var anchor *types.Candle
	var zoneType types.ZoneType

	switch seg.Dir {
	case types.DirectionUp:
		anchor = seg.HighestCandle
		zoneType = types.ZoneResistance
	case types.DirectionDown:
		anchor = seg.LowestCandle
		zoneType = types.ZoneSupport
	default:
		return RawZone{}, false
	}
	if anchor == nil {
		return RawZone{}, false
	}

	body := types.Interval{Low: decimal.Min(anchor.Open, anchor.Close), High: decimal.Max(anchor.Open, anchor.Close)}
	bullish := anchor.Direction() == types.DirectionUp

	var wick types.Interval
	switch {
	case zoneType == types.ZoneResistance && !bullish: // bearish
		wick = types.Interval{Low: anchor.Open, High: anchor.High}
	case zoneType == types.ZoneResistance && bullish:
		wick = types.Interval{Low: anchor.Close, High: anchor.High}
	case zoneType == types.ZoneSupport && !bullish:
		wick = types.Interval{Low: anchor.Low, High: anchor.Close}
	default: // SUPPORT && bullish
		wick = types.Interval{Low: anchor.Low, High: anchor.Open}
	}

	return RawZone{
		Type:       zoneType,
		Anchor:     anchor.Timestamp,
		FullCandle: types.Interval{Low: anchor.Low, High: anchor.High},
		Body:       body,
		Wick:       wick,
	}, true
}

// AggregatedZone is a merged, retest-counted SR zone.
type AggregatedZone struct {
	ID       string
	Type     types.ZoneType
	Anchor   time.Time
	Interval types.Interval
	Retests  int
}

// Aggregator merges raw zones discovered in segment-completion order into
// disjoint aggregated zones.
type Aggregator struct {
	Mode  types.ZoningMode
	Zones []*AggregatedZone
}

// NewAggregator constructs an aggregator for the given zoning mode.
func NewAggregator(mode types.ZoningMode) *Aggregator {
	return &Aggregator{Mode: mode}
}

// Reset discards all aggregated zones. ProcessZones performs the same
// discard itself at the start of every SR refresh, since aggregated zone
// identity is not preserved across refreshes.
func (a *Aggregator) Reset() {
	a.Zones = nil
}

func (a *Aggregator) selectInterval(r RawZone) types.Interval {
	switch a.Mode {
	case types.ZoningBody:
		return r.Body
	case types.ZoningWick:
		return r.Wick
	default:
		return r.FullCandle
	}
}

// ProcessZones rebuilds the aggregated set wholesale from raws, which MUST
// be supplied in ascending segment-completion order: merge accounting
// (retests, anchor precedence) is not commutative.
func (a *Aggregator) ProcessZones(raws []RawZone) {
	a.Zones = nil
	for _, r := range raws {
		if !a.tryMerge(r) {
			a.Zones = append(a.Zones, a.newZone(r))
		}
	}
}

func (a *Aggregator) newZone(r RawZone) *AggregatedZone {
	iv := a.selectInterval(r)
	return &AggregatedZone{
		ID:       uuid.New().String(),
		Type:     r.Type,
		Anchor:   r.Anchor,
		Interval: iv,
		Retests:  0,
	}
}

func (a *Aggregator) tryMerge(r RawZone) bool {
	iv := a.selectInterval(r)
	for _, z := range a.Zones {
		if mergeInto(z, r, iv) {
			return true
		}
	}
	return false
}

// mergeInto applies the two overlap branches and the
// zero-width-touch boundary law (both comparisons are strict).
func mergeInto(z *AggregatedZone, r RawZone, rInterval types.Interval) bool {
	alo, ahi := z.Interval.Low, z.Interval.High
	rlo, rhi := rInterval.Low, rInterval.High

	var newLo, newHi decimal.Decimal
	switch {
	case rhi.LessThan(ahi) && rhi.GreaterThan(alo):
		newHi = ahi
		newLo = decimal.Min(rlo, alo)
	case rhi.GreaterThan(ahi) && rlo.LessThan(ahi):
		newLo = decimal.Min(rlo, alo)
		newHi = rhi
	default:
		return false
	}

	if r.Anchor.Before(z.Anchor) {
		z.Anchor = r.Anchor
		z.Type = r.Type
	}
	z.Interval = types.Interval{Low: newLo, High: newHi}
	z.Retests++
	return true
}

// View projects the aggregated zones into the read-only shape the advisor
// and the annotation payload consume.
func (a *Aggregator) View() []types.SRZoneView {
	out := make([]types.SRZoneView, 0, len(a.Zones))
	for _, z := range a.Zones {
		out = append(out, types.SRZoneView{
			ID:       z.ID,
			Type:     z.Type,
			Anchor:   z.Anchor,
			Interval: z.Interval,
			Retests:  z.Retests,
		})
	}
	return out
}
