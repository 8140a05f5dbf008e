// Package detector owns the multi-timeframe coordinator: three PST state
// machines (low/mid/high) plus the SR zone engine, gating when
// higher-timeframe candles advance and projecting detector state into the
// signal/annotation records the advisor and any live-publish consumer read.
package detector

import (
	"sort"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/srzone"
	"github.com/atlas-desktop/ict-backtester/internal/structure"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Detector holds three PST segment chains and the SR aggregator.
type Detector struct {
	logger *zap.Logger
	mode   types.ZoningMode

	pstChains map[types.PSTLevel][]*structure.PrimarySegment
	srChains  map[types.SRLevel][]*structure.PrimarySegment
	srAgg     *srzone.Aggregator

	segCounter int
}

// New constructs an empty Detector. Call Initialize before feeding candles.
func New(logger *zap.Logger, mode types.ZoningMode) *Detector {
	return &Detector{
		logger:    logger,
		mode:      mode,
		pstChains: make(map[types.PSTLevel][]*structure.PrimarySegment),
		srChains:  make(map[types.SRLevel][]*structure.PrimarySegment),
		srAgg:     srzone.NewAggregator(mode),
	}
}

func (d *Detector) nextID() string {
	d.segCounter++
	return idPrefix(d.segCounter)
}

func idPrefix(n int) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%36]}, buf...)
		n /= 36
	}
	return "seg-" + string(buf)
}

// Initialize seeds the three PST chains and the two SR chains from warm-up
// candle windows, then compiles the initial SR zone set.
func (d *Detector) Initialize(pstWarmup map[types.PSTLevel][]types.Candle, srWarmup map[types.SRLevel][]types.Candle) {
	for _, level := range []types.PSTLevel{types.PSTLow, types.PSTMid, types.PSTHigh} {
		d.pstChains[level] = []*structure.PrimarySegment{structure.NewFirstSegment(d.nextID())}
		for _, c := range pstWarmup[level] {
			d.feedChain(d.pstChains, level, c)
		}
	}
	if srWarmup != nil {
		d.rebuildSRChains(srWarmup)
	}
}

// FeedPST feeds one candle to the named PST level, starting a new segment
// first if the current one already confirmed a ChOC (the
// coordinator must begin a new segment before the next candle is added").
func (d *Detector) FeedPST(level types.PSTLevel, c types.Candle) {
	d.feedChain(d.pstChains, level, c)
}

func (d *Detector) feedChain(chains map[types.PSTLevel][]*structure.PrimarySegment, level types.PSTLevel, c types.Candle) {
	chain := chains[level]
	cur := chain[len(chain)-1]
	if cur.ChocConfirmed {
		succ := structure.NewSuccessorSegment(d.nextID(), cur)
		chain = append(chain, succ)
		cur = succ
	}
	cur.AddCandle(c)
	chains[level] = chain
}

// RefreshSR reinitializes the SR engine from a fresh lookback window every
// N low-timeframe candles. Prior aggregated zone identities are discarded
// rather than reconciled against the new window.
func (d *Detector) RefreshSR(srWarmup map[types.SRLevel][]types.Candle) {
	d.rebuildSRChains(srWarmup)
}

func (d *Detector) rebuildSRChains(srWarmup map[types.SRLevel][]types.Candle) {
	d.srChains = make(map[types.SRLevel][]*structure.PrimarySegment)
	for _, level := range []types.SRLevel{types.SRLow, types.SRHigh} {
		d.srChains[level] = []*structure.PrimarySegment{structure.NewFirstSegment(d.nextID())}
		for _, c := range srWarmup[level] {
			chain := d.srChains[level]
			cur := chain[len(chain)-1]
			if cur.ChocConfirmed {
				succ := structure.NewSuccessorSegment(d.nextID(), cur)
				chain = append(chain, succ)
				cur = succ
			}
			cur.AddCandle(c)
			d.srChains[level] = chain
		}
	}
	d.compileAndAggregate()
}

// compileAndAggregate derives raw zones from every non-first completed
// segment across both SR levels and merges them; the still-growing
// segment (not yet ChocConfirmed) is skipped.
// Raws are appended low level first, then high level, each level in
// ascending segment-completion order, matching srzone.py's
// `for level in [LOW, HIGH]` iteration order.
func (d *Detector) compileAndAggregate() {
	var raws []srzone.RawZone
	for _, level := range []types.SRLevel{types.SRLow, types.SRHigh} {
		chain := d.srChains[level]
		if len(chain) <= 1 {
			continue
		}
		for _, seg := range chain[1:] {
			if !seg.ChocConfirmed {
				continue
			}
			if rz, ok := srzone.DeriveRawZone(seg); ok {
				raws = append(raws, rz)
			}
		}
	}
	d.srAgg.ProcessZones(raws)
}

// Signals projects the current detector state into the record the strategy
// advisor consumes, named after get_signal_data().
func (d *Detector) Signals() types.Signals {
	return types.Signals{
		PSTLow:  d.pstSignal(types.PSTLow),
		PSTMid:  d.pstSignal(types.PSTMid),
		PSTHigh: d.pstSignal(types.PSTHigh),
		SRZones: d.srAgg.View(),
	}
}

func valueOr(d *decimal.Decimal, fallback decimal.Decimal) decimal.Decimal {
	if d == nil {
		return fallback
	}
	return *d
}

func (d *Detector) pstSignal(level types.PSTLevel) types.PSTSignal {
	chain := d.pstChains[level]
	cur := chain[len(chain)-1]
	prev := cur
	if len(chain) >= 2 {
		prev = chain[len(chain)-2]
	}

	segRangeHigh := valueOr(cur.SegmentHigh, decimal.Zero)
	segRangeLow := valueOr(cur.SegmentLow, decimal.Zero)
	prevRangeHigh := valueOr(prev.SegmentHigh, decimal.Zero)
	prevRangeLow := valueOr(prev.SegmentLow, decimal.Zero)

	var candleTime time.Time
	var candleDir types.Direction
	if cur.LastCandle != nil {
		candleTime = cur.LastCandle.Timestamp
		candleDir = cur.LastCandle.Direction()
	}

	return types.PSTSignal{
		SegID:         cur.ID,
		SegDir:        cur.Dir,
		CandleTime:    candleTime,
		CandleDir:     candleDir,
		BosNum:        cur.BosCount,
		InBos:         cur.InBos,
		InPullBack:    cur.InPullBack,
		Choc:          cur.Choc,
		ChocConfirmed: cur.ChocConfirmed,
		KeyLevels: types.KeyLevels{
			High: valueOr(cur.KeyHigh, decimal.Zero),
			Low:  valueOr(cur.KeyLow, decimal.Zero),
		},
		SegmentRange: types.SegmentRange{Highest: segRangeHigh, Lowest: segRangeLow},
		PrevSegment: types.PrevSegmentSummary{
			SegID:        prev.ID,
			SegDir:       prev.Dir,
			SegmentRange: types.SegmentRange{Highest: prevRangeHigh, Lowest: prevRangeLow},
		},
	}
}

// Annotation projects detector state for a UI/live-publish consumer,
// grounded on get_annotation(): per-level BOS/ChOC/confirm
// candle-time lists, current key levels and direction, plus the SR zone
// list. The BOS/ChOC/confirm time lists collect every segment in each
// level's chain; direction, key levels and segment range come from the
// current segment only.
func (d *Detector) Annotation(account types.AccountSnapshot) types.Annotation {
	levels := make(map[types.PSTLevel]types.LevelAnnotation, 3)
	for _, level := range []types.PSTLevel{types.PSTLow, types.PSTMid, types.PSTHigh} {
		chain := d.pstChains[level]
		cur := chain[len(chain)-1]

		var bos, choc, chocConfirm []time.Time
		for _, seg := range chain {
			bos = append(bos, seg.BosCandles...)
			choc = append(choc, seg.ChocCandles...)
			if seg.ChocConfirmCandle != nil {
				chocConfirm = append(chocConfirm, *seg.ChocConfirmCandle)
			}
		}
		sort.Slice(bos, func(i, j int) bool { return bos[i].Before(bos[j]) })
		sort.Slice(choc, func(i, j int) bool { return choc[i].Before(choc[j]) })

		levels[level] = types.LevelAnnotation{
			Timeframe:   level,
			Direction:   cur.Dir,
			InChoc:      cur.Choc,
			KeyHigh:     valueOr(cur.KeyHigh, decimal.Zero),
			KeyLow:      valueOr(cur.KeyLow, decimal.Zero),
			Bos:         bos,
			Choc:        choc,
			ChocConfirm: chocConfirm,
			SegmentHigh: valueOr(cur.SegmentHigh, decimal.Zero),
			SegmentLow:  valueOr(cur.SegmentLow, decimal.Zero),
		}
	}

	return types.Annotation{
		Levels:  levels,
		SRZones: d.srAgg.View(),
		Account: account,
	}
}
