package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/advisor"
	"github.com/atlas-desktop/ict-backtester/internal/detector"
	"github.com/atlas-desktop/ict-backtester/internal/observability"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result is the output of one completed Driver.Run: the final account
// state, the full position history projected into Trade records, and the
// per-candle equity curve.
type Result struct {
	Account     *Account
	Trades      []types.Trade
	EquityCurve []types.EquityCurvePoint
}

// Driver runs the single-threaded per-candle simulation loop, grounded on
// animus.py's Animus.run_backtest. Unlike an async EventQueue
// engine, this loop is plain and synchronous: determinism requires that
// candle i+1 never starts processing before candle i's state settles.
type Driver struct {
	logger *zap.Logger
	opts   types.Options

	pstSeries map[types.PSTLevel][]types.Candle
	srSeries  map[types.SRLevel][]types.Candle

	det       *detector.Detector
	adv       *advisor.Advisor
	acc       *Account
	sink      TradeSink
	collector *observability.Collector

	pstRatios map[types.PSTLevel]int

	equityCurve []types.EquityCurvePoint
}

// SetSink overrides the default NoopSink, e.g. to persist positions to a
// JSONFileSink once Run completes.
func (d *Driver) SetSink(sink TradeSink) {
	d.sink = sink
}

// SetCollector attaches Prometheus instrumentation to the run. Left nil,
// Run skips every metrics call -- a collector is opt-in, not required.
func (d *Driver) SetCollector(collector *observability.Collector) {
	d.collector = collector
}

// NewDriver wires a detector and advisor from options and the full
// already-loaded candle series for each PST/SR level.
func NewDriver(logger *zap.Logger, opts types.Options, pstSeries map[types.PSTLevel][]types.Candle, srSeries map[types.SRLevel][]types.Candle) (*Driver, error) {
	if len(pstSeries[types.PSTLow]) == 0 {
		return nil, &InputError{Field: "pst_low", Msg: "low-timeframe PST series is empty"}
	}

	return &Driver{
		logger:    logger,
		opts:      opts,
		pstSeries: pstSeries,
		srSeries:  srSeries,
		det:       detector.New(logger, opts.ZoningMode),
		adv:       advisor.New(logger, opts),
		acc:       NewAccount(fmt.Sprintf("%s backtest on %s", opts.Strategy, opts.Instrument), opts.InitAccountBalance),
		sink:      NoopSink{},
		pstRatios: detector.PSTLevelRatios(pstSeries),
	}, nil
}

func indexOf(series []types.Candle, t time.Time) (int, bool) {
	for i, c := range series {
		if c.Timestamp.Equal(t) {
			return i, true
		}
	}
	return 0, false
}

// Run walks the low-timeframe series from StartDate to EndDate inclusive.
// If EndDate isn't found in the series, the simulation runs to the actual
// last index of the low-timeframe series (not a dict-length
// fallback, which measured the wrong collection).
func (d *Driver) Run() (*Result, error) {
	low := d.pstSeries[types.PSTLow]

	startIdx, ok := indexOf(low, d.opts.StartDate)
	if !ok {
		return nil, &InputError{Field: "start_date", Msg: "start date not found in low-timeframe series"}
	}
	endIdx, ok := indexOf(low, d.opts.EndDate)
	if !ok {
		endIdx = len(low) - 1
	}

	var srWarmup map[types.SRLevel][]types.Candle
	if d.srSeries != nil {
		srWarmup = d.warmupSR(startIdx)
	}
	d.det.Initialize(d.warmupPST(startIdx), srWarmup)

	for i := startIdx; i <= endIdx; i++ {
		candle := low[i]

		if d.srSeries != nil && d.opts.SRRefreshWindow > 0 && i%d.opts.SRRefreshWindow == 0 {
			d.det.RefreshSR(d.warmupSR(i))
		}

		if d.collector != nil {
			d.collector.CandlesProcessed.Inc()
		}

		d.det.FeedPST(types.PSTLow, candle)
		for _, level := range []types.PSTLevel{types.PSTMid, types.PSTHigh} {
			ratio := d.pstRatios[level]
			if ratio <= 0 {
				ratio = 1
			}
			if i%ratio != 0 {
				continue
			}
			series := d.pstSeries[level]
			higherIdx := i / ratio
			if higherIdx < len(series) {
				d.det.FeedPST(level, series[higherIdx])
			}
		}

		sig := d.det.Signals()
		if d.collector != nil {
			d.emitSignalMetrics(sig)
		}

		balance := d.acc.InitialBalance
		if d.opts.CompoundRisk {
			balance = d.acc.Balance
		}

		order := d.adv.GeneratePositions(candle.Close, balance, sig)
		mods := d.adv.ModifyPositions(sig)

		for _, p := range d.acc.Positions {
			p.CheckAndUpdate(candle.Timestamp, candle.Low, candle.High)
		}
		d.acc.UpdateEquity(candle.Low, candle.High)

		openPositions := d.acc.CountOpenPositions()
		if order != nil {
			if openPositions < d.opts.MaxConcurrentTrades {
				if err := d.openOrder(candle.Timestamp, order); err != nil {
					d.logger.Warn("order rejected", zap.Error(err))
				}
			} else {
				d.logger.Warn("max concurrent trades reached",
					zap.Int("open", openPositions), zap.Int("max", d.opts.MaxConcurrentTrades))
			}
		}

		for _, action := range mods.Actions {
			d.applyAction(candle, action)
		}

		d.equityCurve = append(d.equityCurve, types.EquityCurvePoint{
			Timestamp: candle.Timestamp,
			Equity:    d.acc.Equity,
			Cash:      d.acc.Balance,
		})
	}

	positions := make([]Position, len(d.acc.Positions))
	for i, p := range d.acc.Positions {
		positions[i] = *p
	}
	if err := d.sink.PersistPositions(context.Background(), d.acc.ID, positions); err != nil {
		d.logger.Warn("failed to persist positions", zap.Error(err))
	}

	return &Result{Account: d.acc, Trades: d.collectTrades(), EquityCurve: d.equityCurve}, nil
}

func (d *Driver) openOrder(entryTime time.Time, o *types.OrderCandidate) error {
	sl, tp := decPtr(o.SL), o.TP

	var pos *Position
	var err error
	if o.Type == types.PositionShort {
		pos, err = NewShortPosition(d.acc.ID, o.Instrument, entryTime, d.opts.Symbol.TradeContractSize, o.Volume, o.Price, sl, tp)
	} else {
		pos, err = NewLongPosition(d.acc.ID, o.Instrument, entryTime, d.opts.Symbol.TradeContractSize, o.Volume, o.Price, sl, tp)
	}
	if err != nil {
		return err
	}
	d.acc.Open(pos)

	if d.collector != nil {
		d.collector.OrderOpened(d.opts.Strategy, o.Type.String())
	}
	return nil
}

// emitSignalMetrics increments the per-level signal counter for every
// structural flag set on this candle -- CHOC, its confirmation, and in-BOS --
// so backtest_signals_emitted_total tracks detector activity the way
// backtest_orders_opened_total tracks the advisor's. A flag that stays set
// across several candles is counted once per candle.
func (d *Driver) emitSignalMetrics(sig types.Signals) {
	levels := map[string]types.PSTSignal{
		"low":  sig.PSTLow,
		"mid":  sig.PSTMid,
		"high": sig.PSTHigh,
	}
	for level, s := range levels {
		if s.Choc {
			d.collector.SignalEmitted(level, "choc")
		}
		if s.ChocConfirmed {
			d.collector.SignalEmitted(level, "choc_confirmed")
		}
		if s.InBos {
			d.collector.SignalEmitted(level, "bos")
		}
	}
}

// applyAction implements the CLOSE/MOVE_SL action handlers from
// run_backtest's match block, including the break-even/trailing-R logic:
// a position at or above ToBreakEvenAtR but within TrailingAtR gets its SL
// moved to entry; past TrailingAtR it trails toward the BOS key level, with
// a margin applied against the initial SL distance. Applies to every open
// position matching the action's type+instrument, not just the first --
// MaxConcurrentTrades can leave several same-direction positions open at
// once, and animus.py's `for p in account.positions` loop has no early
// return.
func (d *Driver) applyAction(candle types.Candle, action types.PositionAction) {
	for _, pos := range d.acc.FindAllOpen(action.PositionType, action.Instrument) {
		d.applyActionToPosition(candle, action, pos)
	}
}

func (d *Driver) applyActionToPosition(candle types.Candle, action types.PositionAction, pos *Position) {
	switch action.Action {
	case types.ActionClose:
		d.acc.ClosePosition(pos, candle.Timestamp, candle.Close)
		if d.collector != nil {
			d.collector.OrderClosed(action.PositionType.String())
		}

	case types.ActionMoveSL:
		if !d.opts.MoveSL.Allow || pos.InitialSL == nil {
			return
		}
		denom := pos.InitialSL.Sub(pos.Price)
		if denom.IsZero() {
			return
		}
		r := pos.Price.Sub(candle.Close).Div(denom)

		switch {
		case r.GreaterThanOrEqual(d.opts.MoveSL.ToBreakEvenAtR) && r.LessThanOrEqual(d.opts.MoveSL.TrailingAtR):
			_ = pos.MoveSL(pos.Price, candle.Close)

		case r.GreaterThan(d.opts.MoveSL.TrailingAtR):
			switch {
			case action.NewSLTarget.GreaterThan(pos.Price) && pos.Type == types.PositionLong:
				sl := action.NewSLTarget.Sub(pos.Price.Sub(*pos.InitialSL).Mul(d.opts.SLLevelMargin))
				_ = pos.MoveSL(sl, candle.Close)
			case action.NewSLTarget.LessThan(pos.Price) && pos.Type == types.PositionShort:
				sl := action.NewSLTarget.Add(pos.InitialSL.Sub(pos.Price).Mul(d.opts.SLLevelMargin))
				_ = pos.MoveSL(sl, candle.Close)
			default:
				_ = pos.MoveSL(pos.Price, candle.Close)
			}
		}
	}
}

// warmupPST slices each PST level's full series down to the lookback
// window ending at pstIloc, adjusting each level's slice bounds by its
// ratio to the low timeframe, grounded on
// Animus.load_warm_up_data's PST_DATA branch.
func (d *Driver) warmupPST(pstIloc int) map[types.PSTLevel][]types.Candle {
	out := make(map[types.PSTLevel][]types.Candle, 3)
	window := d.opts.PSTLookbackWindow

	startIloc := 0
	if window <= pstIloc {
		startIloc = pstIloc - window
	}

	for _, level := range []types.PSTLevel{types.PSTLow, types.PSTMid, types.PSTHigh} {
		ratio := d.pstRatios[level]
		if ratio <= 0 {
			ratio = 1
		}
		series := d.pstSeries[level]
		lo, hi := startIloc/ratio, pstIloc/ratio
		if hi > len(series) {
			hi = len(series)
		}
		if lo > hi {
			lo = hi
		}
		out[level] = series[lo:hi]
	}
	return out
}

// warmupSR mirrors warmupPST for the two SR levels, grounded on
// Animus.load_warm_up_data's SR_DATA branch.
func (d *Driver) warmupSR(pstIloc int) map[types.SRLevel][]types.Candle {
	out := make(map[types.SRLevel][]types.Candle, 2)
	if d.srSeries == nil {
		return out
	}

	window := d.opts.SRLookbackWindow
	srRatios := detector.SRLevelRatios(d.srSeries)
	pstSRRatio := detector.PSTSRIlocRatio(d.pstSeries[types.PSTLow], d.srSeries[types.SRLow])
	if pstSRRatio <= 0 {
		pstSRRatio = 1
	}

	srIloc := pstIloc / pstSRRatio
	startIloc := 0
	if window <= srIloc {
		startIloc = srIloc - window
	}

	for _, level := range []types.SRLevel{types.SRLow, types.SRHigh} {
		ratio := srRatios[level]
		if ratio <= 0 {
			ratio = 1
		}
		series := d.srSeries[level]
		lo, hi := startIloc/ratio, srIloc/ratio
		if lo < 0 {
			lo = 0
		}
		if hi > len(series) {
			hi = len(series)
		}
		if lo > hi {
			lo = hi
		}
		out[level] = series[lo:hi]
	}
	return out
}

func (d *Driver) collectTrades() []types.Trade {
	trades := make([]types.Trade, 0, len(d.acc.Positions))
	for _, p := range d.acc.Positions {
		side := types.OrderSideBuy
		if p.Type == types.PositionShort {
			side = types.OrderSideSell
		}

		pnl := decimal.Zero
		executedAt := p.EntryTime
		if p.ExitTime != nil {
			executedAt = *p.ExitTime
			pnl = p.RealizedPL()
		}

		trades = append(trades, types.Trade{
			ID:         p.ID,
			Symbol:     p.Instrument,
			Side:       side,
			Quantity:   p.Volume,
			Price:      p.Price,
			PnL:        pnl,
			ExecutedAt: executedAt,
		})
	}
	return trades
}
