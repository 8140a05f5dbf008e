package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
)

// MetricsCalculator derives summary performance/risk metrics (win rate,
// Sharpe/Sortino, max drawdown, VaR/CVaR) from a completed Driver.Run's
// trade log and equity curve.
type MetricsCalculator struct{}

// NewMetricsCalculator constructs a MetricsCalculator.
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Calculate computes the full PerformanceMetrics record.
func (mc *MetricsCalculator) Calculate(trades []types.Trade, equityCurve []types.EquityCurvePoint, initialCapital decimal.Decimal) *types.PerformanceMetrics {
	if len(trades) == 0 || len(equityCurve) == 0 {
		return &types.PerformanceMetrics{}
	}

	metrics := &types.PerformanceMetrics{}

	var winningTrades, losingTrades int
	var totalWins, totalLosses decimal.Decimal
	var largestWin, largestLoss decimal.Decimal

	for _, trade := range trades {
		if trade.PnL.GreaterThan(decimal.Zero) {
			winningTrades++
			totalWins = totalWins.Add(trade.PnL)
			if trade.PnL.GreaterThan(largestWin) {
				largestWin = trade.PnL
			}
		} else if trade.PnL.LessThan(decimal.Zero) {
			losingTrades++
			totalLosses = totalLosses.Add(trade.PnL.Abs())
			if trade.PnL.Abs().GreaterThan(largestLoss) {
				largestLoss = trade.PnL.Abs()
			}
		}
	}

	metrics.TotalTrades = len(trades)
	metrics.WinningTrades = winningTrades
	metrics.LosingTrades = losingTrades
	metrics.LargestWin = largestWin
	metrics.LargestLoss = largestLoss

	if metrics.TotalTrades > 0 {
		metrics.WinRate = decimal.NewFromInt(int64(winningTrades)).Div(decimal.NewFromInt(int64(metrics.TotalTrades)))
	}

	if winningTrades > 0 {
		metrics.AvgWin = totalWins.Div(decimal.NewFromInt(int64(winningTrades)))
	}
	if losingTrades > 0 {
		metrics.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(losingTrades)))
	}

	if !totalLosses.IsZero() {
		metrics.ProfitFactor = totalWins.Div(totalLosses)
	}

	if metrics.TotalTrades > 0 {
		winPct := metrics.WinRate
		lossPct := decimal.NewFromFloat(1).Sub(winPct)
		metrics.Expectancy = winPct.Mul(metrics.AvgWin).Sub(lossPct.Mul(metrics.AvgLoss))
	}

	if !initialCapital.IsZero() {
		finalEquity := equityCurve[len(equityCurve)-1].Equity
		metrics.TotalReturn = finalEquity.Sub(initialCapital).Div(initialCapital)
	}

	returns := mc.calculateReturns(equityCurve)
	stats := summarizeReturns(returns)

	if len(equityCurve) > 1 && len(returns) > 0 {
		metrics.AnnualizedReturn = decimal.NewFromFloat(stats.mean * 252)
	}
	if stats.n > 1 && stats.stdDev > 0 {
		metrics.SharpeRatio = decimal.NewFromFloat(stats.annualizedRatio(stats.stdDev))
	}
	if stats.n > 1 && stats.downsideDev > 0 {
		metrics.SortinoRatio = decimal.NewFromFloat(stats.annualizedRatio(stats.downsideDev))
	}

	maxDD, maxDDDate := mc.calculateMaxDrawdown(equityCurve)
	metrics.MaxDrawdown = maxDD
	metrics.MaxDrawdownDate = maxDDDate

	if !metrics.MaxDrawdown.IsZero() {
		metrics.CalmarRatio = metrics.AnnualizedReturn.Div(metrics.MaxDrawdown)
	}

	return metrics
}

// CalculateRiskMetrics computes VaR/CVaR/volatility over the equity curve.
func (mc *MetricsCalculator) CalculateRiskMetrics(equityCurve []types.EquityCurvePoint) *types.RiskMetrics {
	if len(equityCurve) < 2 {
		return &types.RiskMetrics{}
	}

	returns := mc.calculateReturns(equityCurve)
	if len(returns) == 0 {
		return &types.RiskMetrics{}
	}

	metrics := &types.RiskMetrics{}

	stats := summarizeReturns(returns)
	metrics.DailyVolatility = decimal.NewFromFloat(stats.stdDev)
	metrics.AnnualVolatility = decimal.NewFromFloat(stats.stdDev * math.Sqrt(252))

	sorted := sortedCopy(returns)
	var95, cvar95 := tailLoss(sorted, 0.05)
	var99, _ := tailLoss(sorted, 0.01)
	metrics.VaR95 = var95
	metrics.VaR99 = var99
	metrics.CVaR95 = cvar95

	return metrics
}

// tailLoss reports the loss at the given lower-tail fraction of the sorted
// return distribution (VaR) and the mean loss beyond it (CVaR), both as
// positive decimals. sorted must already be ascending.
func tailLoss(sorted []float64, fraction float64) (varAt, cvarAt decimal.Decimal) {
	cut := int(float64(len(sorted)) * fraction)
	if cut < 0 || cut >= len(sorted) {
		return decimal.Zero, decimal.Zero
	}
	varAt = decimal.NewFromFloat(-sorted[cut])

	if cut > 0 {
		var sum float64
		for _, r := range sorted[:cut] {
			sum += r
		}
		cvarAt = decimal.NewFromFloat(-sum / float64(cut))
	}
	return varAt, cvarAt
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// returnStats bundles the moments calculateReturns' series is reduced to so
// Calculate and CalculateRiskMetrics don't each recompute mean/stdDev.
type returnStats struct {
	n           int
	mean        float64
	stdDev      float64
	downsideDev float64
}

func summarizeReturns(returns []float64) returnStats {
	var s returnStats
	s.n = len(returns)
	if s.n == 0 {
		return s
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	s.mean = sum / float64(s.n)

	if s.n > 1 {
		var sumSquares float64
		var negative []float64
		for _, r := range returns {
			diff := r - s.mean
			sumSquares += diff * diff
			if r < 0 {
				negative = append(negative, r)
			}
		}
		s.stdDev = math.Sqrt(sumSquares / float64(s.n-1))
		s.downsideDev = stdDevOf(negative)
	}

	return s
}

func stdDevOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

// annualizedRatio scales a mean return by a volatility measure and the
// sqrt-of-252 annualization factor shared by Sharpe and Sortino.
func (s returnStats) annualizedRatio(vol float64) float64 {
	return (s.mean / vol) * math.Sqrt(252)
}

// calculateReturns returns the per-candle fractional equity change series,
// named generically (not "daily") since the driver's equity curve is
// sampled once per low-timeframe candle, whatever that timeframe is.
func (mc *MetricsCalculator) calculateReturns(equityCurve []types.EquityCurvePoint) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1].Equity
		curr := equityCurve[i].Equity
		if prev.IsZero() {
			continue
		}
		ret, _ := curr.Sub(prev).Div(prev).Float64()
		returns = append(returns, ret)
	}
	return returns
}

func (mc *MetricsCalculator) calculateMaxDrawdown(equityCurve []types.EquityCurvePoint) (decimal.Decimal, time.Time) {
	if len(equityCurve) == 0 {
		return decimal.Zero, time.Time{}
	}

	var maxDD decimal.Decimal
	var maxDDDate time.Time
	peak := equityCurve[0].Equity

	for _, point := range equityCurve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}
		if !peak.IsZero() {
			dd := peak.Sub(point.Equity).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
				maxDDDate = point.Timestamp
			}
		}
	}

	return maxDD, maxDDDate
}

