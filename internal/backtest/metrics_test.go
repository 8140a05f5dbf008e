package backtest

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCalculator_WinRateAndProfitFactor(t *testing.T) {
	mc := NewMetricsCalculator()

	trades := []types.Trade{
		{PnL: dec("100")},
		{PnL: dec("50")},
		{PnL: dec("-30")},
	}
	equity := []types.EquityCurvePoint{
		{Timestamp: time.Unix(0, 0), Equity: dec("1000")},
		{Timestamp: time.Unix(60, 0), Equity: dec("1050")},
		{Timestamp: time.Unix(120, 0), Equity: dec("1100")},
		{Timestamp: time.Unix(180, 0), Equity: dec("1120")},
	}

	m := mc.Calculate(trades, equity, dec("1000"))
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.True(t, m.WinRate.Equal(dec("2").Div(dec("3"))))
	assert.True(t, m.TotalReturn.Equal(dec("0.12")))
}

func TestMetricsCalculator_EmptyTradesReturnsZeroValue(t *testing.T) {
	mc := NewMetricsCalculator()
	m := mc.Calculate(nil, nil, dec("1000"))
	assert.Equal(t, 0, m.TotalTrades)
}

func TestMetricsCalculator_MaxDrawdown(t *testing.T) {
	mc := NewMetricsCalculator()
	equity := []types.EquityCurvePoint{
		{Timestamp: time.Unix(0, 0), Equity: dec("1000")},
		{Timestamp: time.Unix(60, 0), Equity: dec("1200")},
		{Timestamp: time.Unix(120, 0), Equity: dec("900")},
		{Timestamp: time.Unix(180, 0), Equity: dec("1100")},
	}
	dd, _ := mc.calculateMaxDrawdown(equity)
	assert.True(t, dd.Equal(dec("0.25"))) // (1200-900)/1200
}
