package validation

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/backtest"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWalkForwardAnalyzer_DisabledReturnsNil(t *testing.T) {
	wf := NewWalkForwardAnalyzer(zap.NewNop(), backtest.NewMetricsCalculator())
	result, err := wf.Run(types.WalkForwardConfig{Enabled: false}, nil, nil, dec("1000"))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestWalkForwardAnalyzer_EmptyEquityCurveErrors(t *testing.T) {
	wf := NewWalkForwardAnalyzer(zap.NewNop(), backtest.NewMetricsCalculator())
	_, err := wf.Run(types.WalkForwardConfig{Enabled: true}, nil, nil, dec("1000"))
	require.Error(t, err)
}

func TestWalkForwardAnalyzer_SplitsWindowsAndComputesRobustness(t *testing.T) {
	wf := NewWalkForwardAnalyzer(zap.NewNop(), backtest.NewMetricsCalculator())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var equity []types.EquityCurvePoint
	var trades []types.Trade
	balance := dec("1000")
	for day := 0; day < 60; day++ {
		ts := start.Add(time.Duration(day) * 24 * time.Hour)
		balance = balance.Add(dec("1"))
		equity = append(equity, types.EquityCurvePoint{Timestamp: ts, Equity: balance})
		trades = append(trades, types.Trade{ExecutedAt: ts, PnL: dec("1")})
	}

	cfg := types.WalkForwardConfig{Enabled: true, WindowSize: 20, StepSize: 10}
	result, err := wf.Run(cfg, trades, equity, dec("1000"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Windows)
	assert.NotNil(t, result.OverallMetrics)
	assert.True(t, result.Robustness.GreaterThanOrEqual(decimal.Zero))
}
