package validation

import (
	"testing"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMonteCarloSimulator_EmptyTradesReturnsZeroIterations(t *testing.T) {
	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{Iterations: 100})
	result := mc.Run(nil)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Iterations)
}

func TestMonteCarloSimulator_RunProducesOrderedPercentiles(t *testing.T) {
	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{Iterations: 200})
	trades := []types.Trade{
		{PnL: dec("10")},
		{PnL: dec("-5")},
		{PnL: dec("8")},
		{PnL: dec("-3")},
		{PnL: dec("12")},
	}

	result := mc.Run(trades)

	require.Equal(t, 200, result.Iterations)
	assert.True(t, result.P5Return.LessThanOrEqual(result.MedianReturn))
	assert.True(t, result.MedianReturn.LessThanOrEqual(result.P95Return))
	assert.Len(t, result.Distribution, 200)
	assert.True(t, result.ProbabilityRuin.GreaterThanOrEqual(decimal.Zero))
}

func TestMonteCarloSimulator_AllLosingTradesDrivesRuin(t *testing.T) {
	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{Iterations: 50})
	trades := make([]types.Trade, 0, 40)
	for i := 0; i < 40; i++ {
		trades = append(trades, types.Trade{PnL: dec("-3")})
	}

	result := mc.Run(trades)
	assert.True(t, result.ProbabilityRuin.GreaterThan(dec("0.9")))
}

func TestMonteCarloSimulator_BootstrapConfidenceIntervalOrdering(t *testing.T) {
	mc := NewMonteCarloSimulator(zap.NewNop(), types.MonteCarloConfig{Iterations: 100})
	trades := []types.Trade{
		{PnL: dec("10")},
		{PnL: dec("-5")},
		{PnL: dec("8")},
		{PnL: dec("-3")},
	}

	meanMetric := func(sample []types.Trade) float64 {
		var sum float64
		for _, tr := range sample {
			v, _ := tr.PnL.Float64()
			sum += v
		}
		return sum / float64(len(sample))
	}

	lower, upper := mc.BootstrapConfidenceInterval(meanMetric, trades, 0.9)
	assert.LessOrEqual(t, lower, upper)
}
