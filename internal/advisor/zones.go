package advisor

import (
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
)

// inZone returns the first zone whose interval contains keyLevel, per the
// TOUCH SR-zone-interaction test.
func inZone(zones []types.SRZoneView, keyLevel decimal.Decimal) (types.SRZoneView, bool) {
	for _, z := range zones {
		if keyLevel.GreaterThanOrEqual(z.Interval.Low) && keyLevel.LessThanOrEqual(z.Interval.High) {
			return z, true
		}
	}
	return types.SRZoneView{}, false
}

// aroundZone is the PROXIMITY test: keyLevel must sit inside the zone or
// overshoot its far edge (High when approachDir is Up, Low when Down) by no
// more than proximityMargin * zone width.
func aroundZone(zones []types.SRZoneView, approachDir types.Direction, keyLevel, proximityMargin decimal.Decimal) (types.SRZoneView, bool) {
	for _, z := range zones {
		allowed := z.Interval.Width().Mul(proximityMargin)
		switch approachDir {
		case types.DirectionUp:
			if keyLevel.GreaterThanOrEqual(z.Interval.Low) && keyLevel.LessThanOrEqual(z.Interval.High.Add(allowed)) {
				return z, true
			}
		case types.DirectionDown:
			if keyLevel.LessThanOrEqual(z.Interval.High) && keyLevel.GreaterThanOrEqual(z.Interval.Low.Sub(allowed)) {
				return z, true
			}
		}
	}
	return types.SRZoneView{}, false
}

// testZoneExit reports whether closePrice has broken out of zone on the
// approachDir side by no more than entryMargin * zone width -- the window in
// which an entry is still considered a valid zone-exit retest.
func testZoneExit(zone types.SRZoneView, approachDir types.Direction, closePrice, entryMargin decimal.Decimal) bool {
	allowed := zone.Interval.Width().Mul(entryMargin)
	if approachDir == types.DirectionUp {
		distance := zone.Interval.Low.Sub(closePrice)
		return distance.GreaterThan(decimal.Zero) && distance.LessThanOrEqual(allowed)
	}
	distance := closePrice.Sub(zone.Interval.High)
	return distance.GreaterThan(decimal.Zero) && distance.LessThanOrEqual(allowed)
}

// zoneClearance reports whether the band immediately beyond zone, on the
// approachDir side, is free of any other aggregated zone within
// clearenceFactor * zone width.
func zoneClearance(zones []types.SRZoneView, approachDir types.Direction, zone types.SRZoneView, clearenceFactor decimal.Decimal) bool {
	clearanceSize := zone.Interval.Width().Mul(clearenceFactor)
	var band types.Interval
	if approachDir == types.DirectionDown {
		band = types.Interval{Low: zone.Interval.High, High: zone.Interval.High.Add(clearanceSize)}
	} else {
		band = types.Interval{Low: zone.Interval.Low.Sub(clearanceSize), High: zone.Interval.Low}
	}
	for _, z := range zones {
		if z.ID == zone.ID {
			continue
		}
		overlaps := z.Interval.Low.LessThan(band.High) && z.Interval.High.GreaterThan(band.Low)
		if overlaps {
			return false
		}
	}
	return true
}

// testBOSZoneInteraction is the BOS-entry SR gate: the BOS key
// level must sit in (or approach) a zone on the side the reversal would come
// from, with a clean exit and clear runway beyond it.
func testBOSZoneInteraction(zones []types.SRZoneView, segDir types.Direction, keyLow, keyHigh decimal.Decimal, closePrice decimal.Decimal, opts types.Options) (types.SRZoneView, bool) {
	bosApproachDir := segDir.Opposite()

	var keyLevel decimal.Decimal
	if segDir == types.DirectionUp {
		keyLevel = keyLow
	} else {
		keyLevel = keyHigh
	}

	var zone types.SRZoneView
	var found bool
	if opts.SRZoneInteraction == "PROXIMITY" {
		zone, found = aroundZone(zones, bosApproachDir, keyLevel, opts.SRZoneProximityMargin)
	} else {
		zone, found = inZone(zones, keyLevel)
	}
	if !found {
		return types.SRZoneView{}, false
	}
	if !testZoneExit(zone, bosApproachDir, closePrice, opts.SRZoneEntryMargin) {
		return types.SRZoneView{}, false
	}
	if !zoneClearance(zones, bosApproachDir, zone, opts.SRZoneClearenceFactor) {
		return types.SRZoneView{}, false
	}
	return zone, true
}

// testChocZoneInteraction is the ChOC-entry SR gate: the segment's own
// extreme (segment_range highest/lowest) must sit in/approach a zone on the
// segment's own direction side.
func testChocZoneInteraction(zones []types.SRZoneView, segDir types.Direction, segRange types.SegmentRange, closePrice decimal.Decimal, opts types.Options) (types.SRZoneView, bool) {
	var keyLevel decimal.Decimal
	if segDir == types.DirectionUp {
		keyLevel = segRange.Highest
	} else {
		keyLevel = segRange.Lowest
	}

	var zone types.SRZoneView
	var found bool
	if opts.SRZoneInteraction == "PROXIMITY" {
		zone, found = aroundZone(zones, segDir, keyLevel, opts.SRZoneProximityMargin)
	} else {
		zone, found = inZone(zones, keyLevel)
	}
	if !found {
		return types.SRZoneView{}, false
	}
	if !testZoneExit(zone, segDir, closePrice, opts.SRZoneEntryMargin) {
		return types.SRZoneView{}, false
	}
	if !zoneClearance(zones, segDir, zone, opts.SRZoneClearenceFactor) {
		return types.SRZoneView{}, false
	}
	return zone, true
}
