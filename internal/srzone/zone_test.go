package srzone

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/structure"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func rawAt(lo, hi string, anchor int64, zt types.ZoneType) RawZone {
	l := decimal.RequireFromString(lo)
	h := decimal.RequireFromString(hi)
	iv := types.Interval{Low: l, High: h}
	return RawZone{Type: zt, Anchor: time.Unix(anchor, 0), FullCandle: iv, Body: iv, Wick: iv}
}

// SR merge scenario: two overlapping raw zones fold into one.
func TestProcessZones_MergeScenario(t *testing.T) {
	a := NewAggregator(types.ZoningCandle)
	raws := []RawZone{
		rawAt("100", "102", 1, types.ZoneResistance),
		rawAt("101", "103", 2, types.ZoneResistance),
		rawAt("104", "105", 3, types.ZoneResistance),
	}
	a.ProcessZones(raws)

	assert.Len(t, a.Zones, 2)
	assert.True(t, a.Zones[0].Interval.Low.Equal(decimal.RequireFromString("100")))
	assert.True(t, a.Zones[0].Interval.High.Equal(decimal.RequireFromString("103")))
	assert.Equal(t, 1, a.Zones[0].Retests)
	assert.True(t, a.Zones[1].Interval.Low.Equal(decimal.RequireFromString("104")))
	assert.True(t, a.Zones[1].Interval.High.Equal(decimal.RequireFromString("105")))
	assert.Equal(t, 0, a.Zones[1].Retests)
}

func TestProcessZones_ZeroWidthTouchDoesNotMerge(t *testing.T) {
	a := NewAggregator(types.ZoningCandle)
	raws := []RawZone{
		rawAt("100", "102", 1, types.ZoneResistance),
		rawAt("102", "104", 2, types.ZoneResistance), // touches exactly at 102
	}
	a.ProcessZones(raws)
	assert.Len(t, a.Zones, 2)
}

func TestDeriveRawZone_WickRules(t *testing.T) {
	seg := structure.NewFirstSegment("s1")
	up := types.Candle{Timestamp: time.Unix(1, 0), Open: decimal.RequireFromString("100"), High: decimal.RequireFromString("103"), Low: decimal.RequireFromString("99"), Close: decimal.RequireFromString("101")}
	seg.AddCandle(up) // dir becomes UP, segment_high/highest_candle = this candle
	bearish := types.Candle{Timestamp: time.Unix(2, 0), Open: decimal.RequireFromString("110"), High: decimal.RequireFromString("112"), Low: decimal.RequireFromString("105"), Close: decimal.RequireFromString("106")}
	seg.AddCandle(bearish) // new segment high, bearish candle becomes highest_candle

	rz, ok := DeriveRawZone(seg)
	assert.True(t, ok)
	assert.Equal(t, types.ZoneResistance, rz.Type)
	assert.True(t, rz.Wick.Low.Equal(bearish.Open))
	assert.True(t, rz.Wick.High.Equal(bearish.High))
}
