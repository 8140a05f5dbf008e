// Package main is the entry point for the ICT market-structure backtester.
// It loads a run configuration, feeds candle series through the
// deterministic driver, and prints a summary of the realized performance.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/backtest"
	"github.com/atlas-desktop/ict-backtester/internal/liveserver"
	"github.com/atlas-desktop/ict-backtester/internal/observability"
	"github.com/atlas-desktop/ict-backtester/internal/validation"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON run config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	liveAddr := flag.String("live-addr", "", "Address to serve live snapshot/websocket/metrics on, e.g. :8090 (disabled if empty)")
	tradeSinkPath := flag.String("trade-sink", "", "Path to a JSON file to persist the run's positions to (disabled if empty)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load run config", zap.Error(err))
	}

	pstSeries, srSeries, err := loadCandleSeries(cfg)
	if err != nil {
		logger.Fatal("failed to load candle series", zap.Error(err))
	}

	var collector *observability.Collector
	var live *liveserver.Server
	if *liveAddr != "" {
		collector = observability.NewCollector()
		live = liveserver.NewServer(logger, *liveAddr, collector.Handler())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			if err := live.Start(); err != nil {
				logger.Error("live server error", zap.Error(err))
			}
		}()
		go func() {
			<-sigChan
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := live.Stop(shutdownCtx); err != nil {
				logger.Error("error shutting down live server", zap.Error(err))
			}
		}()
	}

	driver, err := backtest.NewDriver(logger, cfg.Options, pstSeries, srSeries)
	if err != nil {
		logger.Fatal("failed to construct driver", zap.Error(err))
	}
	if *tradeSinkPath != "" {
		driver.SetSink(backtest.NewJSONFileSink(*tradeSinkPath))
	}
	if collector != nil {
		driver.SetCollector(collector)
	}

	started := time.Now()
	result, err := driver.Run()
	exitCode := mapRunError(err)
	if err != nil {
		logger.Error("backtest run failed", zap.Error(err))
		os.Exit(exitCode)
	}
	if collector != nil {
		collector.RunDuration.Observe(time.Since(started).Seconds())
		collector.AccountEquity.Set(mustFloat(result.Account.Equity))
		collector.OpenPositions.Set(float64(result.Account.CountOpenPositions()))
	}

	metricsCalc := backtest.NewMetricsCalculator()
	perf := metricsCalc.Calculate(result.Trades, result.EquityCurve, cfg.Options.InitAccountBalance)
	risk := metricsCalc.CalculateRiskMetrics(result.EquityCurve)

	printSummary(logger, perf, risk, result)

	if cfg.MonteCarlo.Enabled {
		mc := validation.NewMonteCarloSimulator(logger, cfg.MonteCarlo)
		mcResult := mc.Run(result.Trades)
		logger.Info("monte carlo summary",
			zap.Int("iterations", mcResult.Iterations),
			zap.String("medianReturn", mcResult.MedianReturn.String()),
			zap.String("p5Return", mcResult.P5Return.String()),
			zap.String("p95Return", mcResult.P95Return.String()),
			zap.String("probabilityRuin", mcResult.ProbabilityRuin.String()),
		)
	}

	if cfg.WalkForward.Enabled {
		wf := validation.NewWalkForwardAnalyzer(logger, metricsCalc)
		wfResult, err := wf.Run(cfg.WalkForward, result.Trades, result.EquityCurve, cfg.Options.InitAccountBalance)
		if err != nil {
			logger.Warn("walk-forward split failed", zap.Error(err))
		} else {
			logger.Info("walk-forward summary",
				zap.Int("windows", len(wfResult.Windows)),
				zap.String("robustness", wfResult.Robustness.String()),
			)
		}
	}

	if live != nil {
		live.Publish(liveserver.Payload{
			Bars:        pstSeries[types.PSTLow],
			Trades:      result.Trades,
			Options:     cfg.Options,
			PublishedAt: time.Now(),
		})
	}

	logger.Info("backtest complete",
		zap.Int("trades", len(result.Trades)),
		zap.String("finalEquity", result.Account.Equity.String()),
	)
}

// mapRunError maps a Driver.Run error to a process exit code. Run only
// ever fails with an InputError (start date not found in the low-timeframe
// series); any error maps to exit 1.
func mapRunError(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

func mustFloat(d interface{ Float64() (float64, bool) }) float64 {
	v, _ := d.Float64()
	return v
}

func printSummary(logger *zap.Logger, perf *types.PerformanceMetrics, risk *types.RiskMetrics, result *backtest.Result) {
	fmt.Println("=== Backtest summary ===")
	fmt.Printf("Total trades:     %d\n", perf.TotalTrades)
	fmt.Printf("Win rate:         %s\n", perf.WinRate.StringFixed(4))
	fmt.Printf("Profit factor:    %s\n", perf.ProfitFactor.StringFixed(4))
	fmt.Printf("Total return:     %s\n", perf.TotalReturn.StringFixed(4))
	fmt.Printf("Sharpe ratio:     %s\n", perf.SharpeRatio.StringFixed(4))
	fmt.Printf("Max drawdown:     %s\n", perf.MaxDrawdown.StringFixed(4))
	fmt.Printf("Final equity:     %s\n", result.Account.Equity.StringFixed(2))
	fmt.Printf("VaR95 / VaR99:    %s / %s\n", risk.VaR95.StringFixed(4), risk.VaR99.StringFixed(4))

	logger.Info("summary computed",
		zap.Int("totalTrades", perf.TotalTrades),
		zap.String("totalReturn", perf.TotalReturn.String()),
	)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
