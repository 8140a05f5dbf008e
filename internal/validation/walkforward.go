package validation

import (
	"fmt"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalkForwardAnalyzer slices a single completed backtest run into rolling
// in-sample/out-of-sample windows and reports how out-of-sample performance
// compares to in-sample performance within each window.
//
// This is a descriptive split, not an optimizer: the deterministic core has
// no tunable parameters to re-fit per window, so there is nothing to re-run.
// Each window's metrics come from slicing the trade log and equity curve the
// driver already produced for the full range.
type WalkForwardAnalyzer struct {
	logger *zap.Logger
	calc   MetricsSource
}

// MetricsSource computes PerformanceMetrics over an arbitrary trade/equity
// slice. internal/backtest.MetricsCalculator satisfies this.
type MetricsSource interface {
	Calculate(trades []types.Trade, equityCurve []types.EquityCurvePoint, initialCapital decimal.Decimal) *types.PerformanceMetrics
}

// NewWalkForwardAnalyzer constructs a WalkForwardAnalyzer.
func NewWalkForwardAnalyzer(logger *zap.Logger, calc MetricsSource) *WalkForwardAnalyzer {
	return &WalkForwardAnalyzer{logger: logger, calc: calc}
}

type windowBounds struct {
	InSampleStart  time.Time
	InSampleEnd    time.Time
	OutSampleStart time.Time
	OutSampleEnd   time.Time
}

// Run splits trades/equityCurve (already produced by a single full-range
// Driver.Run) into rolling windows per cfg, computing in-sample and
// out-of-sample PerformanceMetrics for each from the realized data.
func (wf *WalkForwardAnalyzer) Run(cfg types.WalkForwardConfig, trades []types.Trade, equityCurve []types.EquityCurvePoint, initialCapital decimal.Decimal) (*types.WalkForwardResult, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(equityCurve) == 0 {
		return nil, fmt.Errorf("validation: walk-forward requires a non-empty equity curve")
	}

	windowSize := cfg.WindowSize
	stepSize := cfg.StepSize
	if windowSize <= 0 {
		windowSize = 30
	}
	if stepSize <= 0 {
		stepSize = 7
	}

	start := equityCurve[0].Timestamp
	end := equityCurve[len(equityCurve)-1].Timestamp

	windows := wf.generateWindows(start, end, windowSize, stepSize)
	if len(windows) == 0 {
		return nil, fmt.Errorf("validation: no walk-forward windows fit in range %s..%s", start, end)
	}

	wf.logger.Info("starting walk-forward split",
		zap.Int("windowCount", len(windows)),
		zap.Int("windowSize", windowSize),
		zap.Int("stepSize", stepSize),
	)

	results := make([]types.WalkForwardWindow, 0, len(windows))
	var outSampleTrades []types.Trade
	var outSampleEquity []types.EquityCurvePoint

	for i, w := range windows {
		inTrades := sliceTradesByTime(trades, w.InSampleStart, w.InSampleEnd)
		inEquity := sliceEquityByTime(equityCurve, w.InSampleStart, w.InSampleEnd)
		outTrades := sliceTradesByTime(trades, w.OutSampleStart, w.OutSampleEnd)
		outEquity := sliceEquityByTime(equityCurve, w.OutSampleStart, w.OutSampleEnd)

		if len(inEquity) == 0 || len(outEquity) == 0 {
			wf.logger.Warn("walk-forward window has no equity samples, skipping", zap.Int("window", i))
			continue
		}

		inMetrics := wf.calc.Calculate(inTrades, inEquity, inEquity[0].Equity)
		outMetrics := wf.calc.Calculate(outTrades, outEquity, outEquity[0].Equity)

		results = append(results, types.WalkForwardWindow{
			InSampleStart:    w.InSampleStart,
			InSampleEnd:      w.InSampleEnd,
			OutSampleStart:   w.OutSampleStart,
			OutSampleEnd:     w.OutSampleEnd,
			InSampleMetrics:  inMetrics,
			OutSampleMetrics: outMetrics,
		})

		outSampleTrades = append(outSampleTrades, outTrades...)
		outSampleEquity = append(outSampleEquity, outEquity...)

		wf.logger.Debug("walk-forward window computed",
			zap.Int("window", i),
			zap.String("inSampleReturn", inMetrics.TotalReturn.String()),
			zap.String("outSampleReturn", outMetrics.TotalReturn.String()),
		)
	}

	overall := wf.calc.Calculate(outSampleTrades, outSampleEquity, initialCapital)
	robustness := wf.calculateRobustness(results)

	result := &types.WalkForwardResult{
		Windows:        results,
		OverallMetrics: overall,
		Robustness:     robustness,
	}

	wf.logger.Info("walk-forward split complete",
		zap.String("overallReturn", overall.TotalReturn.String()),
		zap.String("robustness", robustness.String()),
		zap.Int("outOfSampleTrades", len(outSampleTrades)),
	)

	return result, nil
}

func sliceTradesByTime(trades []types.Trade, start, end time.Time) []types.Trade {
	var out []types.Trade
	for _, t := range trades {
		if !t.ExecutedAt.Before(start) && t.ExecutedAt.Before(end) {
			out = append(out, t)
		}
	}
	return out
}

func sliceEquityByTime(points []types.EquityCurvePoint, start, end time.Time) []types.EquityCurvePoint {
	var out []types.EquityCurvePoint
	for _, p := range points {
		if !p.Timestamp.Before(start) && p.Timestamp.Before(end) {
			out = append(out, p)
		}
	}
	return out
}

// generateWindows lays windows across [start, end] using an 80/20
// in-sample/out-of-sample split, matching common walk-forward practice.
func (wf *WalkForwardAnalyzer) generateWindows(start, end time.Time, windowDays, stepDays int) []windowBounds {
	var windows []windowBounds

	windowDuration := time.Duration(windowDays) * 24 * time.Hour
	stepDuration := time.Duration(stepDays) * 24 * time.Hour

	inSampleRatio := 0.8
	inSampleDuration := time.Duration(float64(windowDuration) * inSampleRatio)

	current := start

	for !current.Add(windowDuration).After(end) {
		windows = append(windows, windowBounds{
			InSampleStart:  current,
			InSampleEnd:    current.Add(inSampleDuration),
			OutSampleStart: current.Add(inSampleDuration),
			OutSampleEnd:   current.Add(windowDuration),
		})
		current = current.Add(stepDuration)
	}

	return windows
}

// calculateRobustness reports the walk-forward efficiency ratio:
// out-of-sample return divided by in-sample return, summed across windows
// and clamped to [0, 2].
func (wf *WalkForwardAnalyzer) calculateRobustness(windows []types.WalkForwardWindow) decimal.Decimal {
	if len(windows) == 0 {
		return decimal.Zero
	}

	var inSampleReturns, outSampleReturns decimal.Decimal
	validWindows := 0

	for _, w := range windows {
		if w.InSampleMetrics != nil && w.OutSampleMetrics != nil {
			inSampleReturns = inSampleReturns.Add(w.InSampleMetrics.TotalReturn)
			outSampleReturns = outSampleReturns.Add(w.OutSampleMetrics.TotalReturn)
			validWindows++
		}
	}

	if validWindows == 0 || inSampleReturns.IsZero() {
		return decimal.Zero
	}

	robustness := outSampleReturns.Div(inSampleReturns)

	if robustness.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if robustness.GreaterThan(decimal.NewFromFloat(2)) {
		return decimal.NewFromFloat(2)
	}

	return robustness
}
