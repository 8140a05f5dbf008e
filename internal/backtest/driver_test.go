package backtest

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ascendingSeries(n int, startSec, stepSec int64, startPrice string) []types.Candle {
	candles := make([]types.Candle, n)
	price := decimal.RequireFromString(startPrice)
	for i := 0; i < n; i++ {
		open := price
		close := price.Add(dec("1"))
		high := close.Add(dec("0.5"))
		low := open.Sub(dec("0.2"))
		candles[i] = types.Candle{
			Timestamp: time.Unix(startSec+int64(i)*stepSec, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
		}
		price = close
	}
	return candles
}

func testOptions(low []types.Candle) types.Options {
	return types.Options{
		Strategy:            "SIMPLE_TREND",
		Entry:                "CHOC",
		Exit:                 "CHOC_CONFIRMED",
		SLLevel:              "KEY_LEVEL",
		Instrument:           "EURUSD",
		StartDate:            low[5].Timestamp,
		EndDate:              low[49].Timestamp,
		InitAccountBalance:   dec("10000"),
		RiskPerTrade:         dec("0.01"),
		MaxConcurrentTrades:  5,
		PSTLookbackWindow:    5,
		Symbol: types.SymbolSpec{
			Name:              "EURUSD",
			TradeContractSize: dec("100000"),
			VolumeMin:         dec("0.01"),
			VolumeMax:         dec("10"),
		},
	}
}

func buildSeries() map[types.PSTLevel][]types.Candle {
	return map[types.PSTLevel][]types.Candle{
		types.PSTLow:  ascendingSeries(50, 0, 60, "100"),
		types.PSTMid:  ascendingSeries(10, 0, 300, "100"),
		types.PSTHigh: ascendingSeries(3, 0, 1200, "100"),
	}
}

func TestDriver_RunProducesFullEquityCurve(t *testing.T) {
	pstSeries := buildSeries()
	opts := testOptions(pstSeries[types.PSTLow])

	driver, err := NewDriver(zap.NewNop(), opts, pstSeries, nil)
	require.NoError(t, err)

	result, err := driver.Run()
	require.NoError(t, err)
	assert.Len(t, result.EquityCurve, 45) // indices 5..49 inclusive
	assert.True(t, result.Account.Equity.IsPositive())
}

func TestDriver_RunIsDeterministic(t *testing.T) {
	pstSeries := buildSeries()
	opts := testOptions(pstSeries[types.PSTLow])

	d1, err := NewDriver(zap.NewNop(), opts, pstSeries, nil)
	require.NoError(t, err)
	r1, err := d1.Run()
	require.NoError(t, err)

	d2, err := NewDriver(zap.NewNop(), opts, buildSeries(), nil)
	require.NoError(t, err)
	r2, err := d2.Run()
	require.NoError(t, err)

	assert.True(t, r1.Account.Balance.Equal(r2.Account.Balance))
	require.Len(t, r2.EquityCurve, len(r1.EquityCurve))
	for i := range r1.EquityCurve {
		assert.True(t, r1.EquityCurve[i].Equity.Equal(r2.EquityCurve[i].Equity))
	}
}

func TestDriver_EndDateFallsBackToLastIndexWhenNotFound(t *testing.T) {
	pstSeries := buildSeries()
	opts := testOptions(pstSeries[types.PSTLow])
	opts.EndDate = time.Unix(999999, 0) // not present in the series

	driver, err := NewDriver(zap.NewNop(), opts, pstSeries, nil)
	require.NoError(t, err)

	result, err := driver.Run()
	require.NoError(t, err)
	assert.Len(t, result.EquityCurve, 45) // same as EndDate == low[49].Timestamp
}

func TestDriver_CapacityCapBlocksNewOrders(t *testing.T) {
	pstSeries := buildSeries()
	opts := testOptions(pstSeries[types.PSTLow])
	opts.MaxConcurrentTrades = 1

	driver, err := NewDriver(zap.NewNop(), opts, pstSeries, nil)
	require.NoError(t, err)

	result, err := driver.Run()
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Account.CountOpenPositions(), opts.MaxConcurrentTrades)
}
