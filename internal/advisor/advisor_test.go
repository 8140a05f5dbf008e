package advisor

import (
	"testing"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseOptions() types.Options {
	rr := dec("2")
	return types.Options{
		Strategy:     "SIMPLE_TREND",
		Instrument:   "EURUSD",
		Entry:        "CHOC",
		Exit:         "CHOC_CONFIRMED",
		SLLevel:       "KEY_LEVEL",
		SLLevelMargin: dec("0.1"),
		RewardRatio:   &rr,
		RiskPerTrade:  dec("0.01"),
		Symbol: types.SymbolSpec{
			Name:              "EURUSD",
			TradeContractSize: dec("100000"),
			VolumeMin:         dec("0.01"),
			VolumeMax:         dec("10"),
		},
	}
}

func TestSimpleTrend_LongChocEntry(t *testing.T) {
	opts := baseOptions()
	a := New(zap.NewNop(), opts)

	sig := types.Signals{
		PSTLow: types.PSTSignal{
			SegDir: types.DirectionDown,
			Choc:   true,
			KeyLevels: types.KeyLevels{
				Low:  dec("1.0950"),
				High: dec("1.1050"),
			},
		},
		PSTMid:  types.PSTSignal{SegDir: types.DirectionUp},
		PSTHigh: types.PSTSignal{SegDir: types.DirectionUp},
	}

	order := a.GeneratePositions(dec("1.1000"), dec("10000"), sig)
	require.NotNil(t, order)
	assert.Equal(t, types.PositionLong, order.Type)
	assert.True(t, order.SL.LessThan(dec("1.0950")))
	assert.True(t, order.Volume.GreaterThan(decimal.Zero))

	// The CHOC latch should now be burned: a second call with the same
	// (still-chocking) signal must not re-enter.
	order2 := a.GeneratePositions(dec("1.1000"), dec("10000"), sig)
	assert.Nil(t, order2)
}

func TestSimpleTrend_NoEntryWhenMidTrendDisagrees(t *testing.T) {
	opts := baseOptions()
	a := New(zap.NewNop(), opts)

	sig := types.Signals{
		PSTLow: types.PSTSignal{
			SegDir: types.DirectionDown,
			Choc:   true,
			KeyLevels: types.KeyLevels{
				Low:  dec("1.0950"),
				High: dec("1.1050"),
			},
		},
		PSTMid:  types.PSTSignal{SegDir: types.DirectionDown},
		PSTHigh: types.PSTSignal{SegDir: types.DirectionUp},
	}

	order := a.GeneratePositions(dec("1.1000"), dec("10000"), sig)
	assert.Nil(t, order)
}

func TestBuildPosition_RejectsBelowVolumeMin(t *testing.T) {
	opts := baseOptions()
	opts.RiskPerTrade = dec("0.00001")
	a := New(zap.NewNop(), opts)

	order := a.buildPosition(types.PositionLong, dec("1.1000"), dec("1.0000"), dec("100"))
	assert.Nil(t, order)
}

func TestBuildPosition_ClampsToVolumeMax(t *testing.T) {
	opts := baseOptions()
	opts.RiskPerTrade = dec("1")
	a := New(zap.NewNop(), opts)

	order := a.buildPosition(types.PositionLong, dec("1.1000"), dec("1.0999"), dec("1000000"))
	require.NotNil(t, order)
	assert.True(t, order.Volume.Equal(opts.Symbol.VolumeMax))
}

func TestBuildPosition_NilRewardRatioLeavesTPUnset(t *testing.T) {
	opts := baseOptions()
	opts.RewardRatio = nil
	a := New(zap.NewNop(), opts)

	order := a.buildPosition(types.PositionLong, dec("1.1000"), dec("1.0900"), dec("10000"))
	require.NotNil(t, order)
	assert.Nil(t, order.TP)
}

func TestModifyPositions_ChocConfirmedClosesShort(t *testing.T) {
	opts := baseOptions()
	a := New(zap.NewNop(), opts)

	sig := types.Signals{
		PSTLow: types.PSTSignal{
			SegDir:        types.DirectionDown,
			ChocConfirmed: true,
		},
	}
	result := a.ModifyPositions(sig)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, types.ActionClose, result.Actions[0].Action)
	assert.Equal(t, types.PositionShort, result.Actions[0].PositionType)
}

func TestModifyPositions_MoveSLFiresOncePerBos(t *testing.T) {
	opts := baseOptions()
	opts.Exit = "NONE"
	opts.MoveSL.Allow = true
	a := New(zap.NewNop(), opts)

	sig := types.Signals{
		PSTLow: types.PSTSignal{
			SegDir: types.DirectionUp,
			InBos:  true,
			KeyLevels: types.KeyLevels{
				Low:  dec("1.0900"),
				High: dec("1.1100"),
			},
		},
	}

	r1 := a.ModifyPositions(sig)
	require.Len(t, r1.Actions, 1)
	assert.Equal(t, types.ActionMoveSL, r1.Actions[0].Action)

	r2 := a.ModifyPositions(sig)
	assert.Len(t, r2.Actions, 0)
}

func TestZoneClearance_RejectsWhenAnotherZoneIsTooClose(t *testing.T) {
	// approachDir Up puts the clearance band just below zone[0]'s low edge;
	// zone[1] sits inside that band and should block clearance.
	zones := []types.SRZoneView{
		{ID: "a", Interval: types.Interval{Low: dec("100"), High: dec("102")}},
		{ID: "b", Interval: types.Interval{Low: dec("99"), High: dec("99.5")}},
	}
	ok := zoneClearance(zones, types.DirectionUp, zones[0], dec("1"))
	assert.False(t, ok)
}

func TestZoneClearance_AllowsWhenRunwayIsClear(t *testing.T) {
	zones := []types.SRZoneView{
		{ID: "a", Interval: types.Interval{Low: dec("100"), High: dec("102")}},
		{ID: "b", Interval: types.Interval{Low: dec("110"), High: dec("111")}},
	}
	ok := zoneClearance(zones, types.DirectionUp, zones[0], dec("1"))
	assert.True(t, ok)
}
