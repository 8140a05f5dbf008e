package detector

import (
	"sort"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
)

// MedianInterCandleDelta returns the median gap between consecutive
// timestamps in series. Per SPEC_FULL.md §4.4, this (not the original
// source's first-two-rows shortcut) is how PST/SR level ratios are derived.
func MedianInterCandleDelta(series []types.Candle) time.Duration {
	if len(series) < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		deltas = append(deltas, series[i].Timestamp.Sub(series[i-1].Timestamp))
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	mid := len(deltas) / 2
	if len(deltas)%2 == 1 {
		return deltas[mid]
	}
	return (deltas[mid-1] + deltas[mid]) / 2
}

// DeriveRatio returns round(otherDelta / lowDelta), at least 1.
func DeriveRatio(lowDelta, otherDelta time.Duration) int {
	if lowDelta <= 0 || otherDelta <= 0 {
		return 1
	}
	r := int((otherDelta + lowDelta/2) / lowDelta)
	if r < 1 {
		r = 1
	}
	return r
}

// PSTLevelRatios computes {low:1, mid, high} ratios from the median
// inter-candle delta of each warm-up series.
func PSTLevelRatios(series map[types.PSTLevel][]types.Candle) map[types.PSTLevel]int {
	lowDelta := MedianInterCandleDelta(series[types.PSTLow])
	return map[types.PSTLevel]int{
		types.PSTLow:  1,
		types.PSTMid:  DeriveRatio(lowDelta, MedianInterCandleDelta(series[types.PSTMid])),
		types.PSTHigh: DeriveRatio(lowDelta, MedianInterCandleDelta(series[types.PSTHigh])),
	}
}

// SRLevelRatios computes {low:1, high} ratios between the two SR series.
func SRLevelRatios(series map[types.SRLevel][]types.Candle) map[types.SRLevel]int {
	lowDelta := MedianInterCandleDelta(series[types.SRLow])
	return map[types.SRLevel]int{
		types.SRLow:  1,
		types.SRHigh: DeriveRatio(lowDelta, MedianInterCandleDelta(series[types.SRHigh])),
	}
}

// PSTSRIlocRatio computes how many low-TF PST candles correspond to one
// low-TF SR candle.
func PSTSRIlocRatio(pstLow, srLow []types.Candle) int {
	return DeriveRatio(MedianInterCandleDelta(pstLow), MedianInterCandleDelta(srLow))
}
