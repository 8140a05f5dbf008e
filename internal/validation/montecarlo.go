// Package validation provides post-hoc robustness checks over a completed
// backtest run: Monte Carlo resampling of the realized trade sequence and
// a descriptive in-sample/out-of-sample split. Neither check feeds back
// into the deterministic core in internal/backtest — both only consume
// its output.
package validation

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/workers"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MonteCarloSimulator resamples a trade P&L sequence to estimate the
// distribution of outcomes the sequence's ordering could have produced.
type MonteCarloSimulator struct {
	logger *zap.Logger
	config types.MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator constructs a MonteCarloSimulator.
func NewMonteCarloSimulator(logger *zap.Logger, config types.MonteCarloConfig) *MonteCarloSimulator {
	return &MonteCarloSimulator{
		logger: logger,
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run performs Monte Carlo simulation on a realized trade log.
func (mc *MonteCarloSimulator) Run(trades []types.Trade) *types.MonteCarloResult {
	if len(trades) == 0 {
		return &types.MonteCarloResult{Iterations: 0}
	}

	returns := make([]float64, len(trades))
	for i, trade := range trades {
		ret, _ := trade.PnL.Float64()
		returns[i] = ret
	}

	iterations := mc.config.Iterations
	if iterations <= 0 {
		iterations = 1000
	}

	simulatedReturns := make([]float64, iterations)
	maxDrawdowns := make([]float64, iterations)
	ruinFlags := make([]bool, iterations)

	// Each iteration only touches its own slice index, so iterations run
	// concurrently across a worker pool; mc.rng draws every task's seed
	// up front since *rand.Rand itself isn't safe for concurrent use.
	seeds := make([]int64, iterations)
	for i := range seeds {
		seeds[i] = mc.rng.Int63()
	}

	pool := workers.NewPool(mc.logger, workers.HighThroughputPoolConfig("monte-carlo"))
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(iterations)
	for i := 0; i < iterations; i++ {
		i := i
		if err := pool.SubmitFunc(func() error {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seeds[i]))
			shuffled := shuffleReturns(rng, returns)
			totalReturn, maxDD, isRuin := simulatePath(shuffled)
			simulatedReturns[i] = totalReturn
			maxDrawdowns[i] = maxDD
			ruinFlags[i] = isRuin
			return nil
		}); err != nil {
			wg.Done()
		}
	}
	wg.Wait()
	stats := pool.Stats()
	pool.Stop()

	ruinCount := 0
	for _, r := range ruinFlags {
		if r {
			ruinCount++
		}
	}

	sort.Float64s(simulatedReturns)
	sort.Float64s(maxDrawdowns)

	result := &types.MonteCarloResult{
		Iterations:      iterations,
		MedianReturn:    decimal.NewFromFloat(mc.percentile(simulatedReturns, 50)),
		P5Return:        decimal.NewFromFloat(mc.percentile(simulatedReturns, 5)),
		P95Return:       decimal.NewFromFloat(mc.percentile(simulatedReturns, 95)),
		ProbabilityRuin: decimal.NewFromFloat(float64(ruinCount) / float64(iterations)),
		MaxDrawdownP95:  decimal.NewFromFloat(mc.percentile(maxDrawdowns, 95)),
	}

	result.Distribution = make([]decimal.Decimal, len(simulatedReturns))
	for i, r := range simulatedReturns {
		result.Distribution[i] = decimal.NewFromFloat(r)
	}

	mc.logger.Info("monte carlo resample complete",
		zap.Int("iterations", iterations),
		zap.String("medianReturn", result.MedianReturn.String()),
		zap.String("p5Return", result.P5Return.String()),
		zap.String("p95Return", result.P95Return.String()),
		zap.String("probabilityRuin", result.ProbabilityRuin.String()),
	)
	mc.logger.Debug("monte carlo worker pool stats",
		zap.Int64("tasksCompleted", stats.TasksCompleted),
		zap.Int64("tasksFailed", stats.TasksFailed),
		zap.Duration("p99Latency", stats.P99Latency),
	)

	return result
}

func shuffleReturns(rng *rand.Rand, returns []float64) []float64 {
	shuffled := make([]float64, len(returns))
	copy(shuffled, returns)

	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled
}

// simulatePath walks one shuffled ordering of trade returns and reports the
// cumulative return, max drawdown, and whether equity ever touched the ruin
// threshold (50% drawdown from the 1.0 starting unit).
func simulatePath(returns []float64) (totalReturn float64, maxDrawdown float64, isRuin bool) {
	equity := 1.0
	peak := equity
	maxDD := 0.0
	ruinThreshold := 0.5

	for _, ret := range returns {
		equity += ret / 100

		if equity > peak {
			peak = equity
		}

		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}

		if equity <= ruinThreshold {
			return equity - 1.0, maxDD, true
		}
	}

	return equity - 1.0, maxDD, false
}

func (mc *MonteCarloSimulator) percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// BootstrapConfidenceInterval computes a bootstrap confidence interval for
// an arbitrary metric function over the trade log.
func (mc *MonteCarloSimulator) BootstrapConfidenceInterval(
	metric func([]types.Trade) float64,
	trades []types.Trade,
	confidence float64,
) (lower, upper float64) {
	iterations := mc.config.Iterations
	if iterations <= 0 {
		iterations = 1000
	}

	bootstrapValues := make([]float64, iterations)
	n := len(trades)

	for i := 0; i < iterations; i++ {
		sample := make([]types.Trade, n)
		for j := 0; j < n; j++ {
			sample[j] = trades[mc.rng.Intn(n)]
		}

		bootstrapValues[i] = metric(sample)
	}

	sort.Float64s(bootstrapValues)

	alpha := 1 - confidence
	lowerIdx := int(alpha / 2 * float64(iterations))
	upperIdx := int((1 - alpha/2) * float64(iterations))
	if upperIdx >= iterations {
		upperIdx = iterations - 1
	}

	return bootstrapValues[lowerIdx], bootstrapValues[upperIdx]
}
