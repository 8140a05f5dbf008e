package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/atlas-desktop/ict-backtester/internal/candlesource"
	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// candlePaths names the five CSV files the run reads candles from, one per
// PST level plus the two SR-only levels.
type candlePaths struct {
	PSTLow  string `mapstructure:"pst_low"`
	PSTMid  string `mapstructure:"pst_mid"`
	PSTHigh string `mapstructure:"pst_high"`
	SRLow   string `mapstructure:"sr_low"`
	SRHigh  string `mapstructure:"sr_high"`
}

// rawSymbol mirrors SymbolSpec with string-typed decimal fields, since
// viper/mapstructure has no decimal.Decimal decode hook in the
// dependency set.
type rawSymbol struct {
	Name              string `mapstructure:"name"`
	TradeContractSize string `mapstructure:"trade_contract_size"`
	VolumeMin         string `mapstructure:"volume_min"`
	VolumeMax         string `mapstructure:"volume_max"`
}

type rawMoveSL struct {
	Allow          bool   `mapstructure:"allow"`
	ToBreakEvenAtR string `mapstructure:"to_break_even_at_r"`
	TrailingAtR    string `mapstructure:"trailing_at_r"`
	SLLevelMargin  string `mapstructure:"sl_level_margin"`
}

// rawOptions mirrors pkg/types.Options with string-typed decimal/time/
// duration fields for the same reason as rawSymbol.
type rawOptions struct {
	Strategy              string    `mapstructure:"strategy"`
	StartDate             string    `mapstructure:"start_date"`
	EndDate               string    `mapstructure:"end_date"`
	Instrument            string    `mapstructure:"instrument"`
	Symbol                rawSymbol `mapstructure:"symbol"`
	InitAccountBalance    string    `mapstructure:"init_account_balance"`
	PSTLookbackWindow     int       `mapstructure:"pst_lookback_window"`
	SRLookbackWindow      int       `mapstructure:"sr_lookback_window"`
	SRRefreshWindow       int       `mapstructure:"sr_refresh_window"`
	ZoningMode            string    `mapstructure:"zoning_mode"`
	CompoundRisk          bool      `mapstructure:"compound_risk"`
	MaxConcurrentTrades   int       `mapstructure:"max_concurrent_trades"`
	Entry                 string    `mapstructure:"entry"`
	Exit                  string    `mapstructure:"exit"`
	SLLevel               string    `mapstructure:"sl_level"`
	SLLevelMargin         string    `mapstructure:"sl_level_margin"`
	RewardRatio           string    `mapstructure:"reward_ratio"`
	RiskPerTrade          string    `mapstructure:"risk_per_trade"`
	ExcludeHighTrend      bool      `mapstructure:"exclude_high_trend"`
	SRZoneInteraction     string    `mapstructure:"sr_zone_interaction"`
	SRZoneEntryMargin     string    `mapstructure:"sr_zone_entry_margin"`
	SRZoneProximityMargin string    `mapstructure:"sr_zone_proximity_margin"`
	SRZoneClearenceFactor string    `mapstructure:"sr_zone_clearence_factor"`
	MoveSL                rawMoveSL `mapstructure:"move_sl"`
	PublishLiveData       bool      `mapstructure:"publish_live_data"`
	PublishCycle          int       `mapstructure:"publish_cycle"`
	SimSpeed              string    `mapstructure:"sim_speed"`
}

type rawMonteCarlo struct {
	Enabled         bool   `mapstructure:"enabled"`
	Iterations      int    `mapstructure:"iterations"`
	ConfidenceLevel string `mapstructure:"confidence_level"`
	ShuffleReturns  bool   `mapstructure:"shuffle_returns"`
}

type rawFile struct {
	Options     rawOptions                `mapstructure:"options"`
	Candles     candlePaths               `mapstructure:"candles"`
	MonteCarlo  rawMonteCarlo             `mapstructure:"monte_carlo"`
	WalkForward types.WalkForwardConfig   `mapstructure:"walk_forward"`
}

// RunConfig is the fully decoded, typed configuration a single run needs.
type RunConfig struct {
	Options     types.Options
	Candles     candlePaths
	MonteCarlo  types.MonteCarloConfig
	WalkForward types.WalkForwardConfig
}

// loadRunConfig reads a YAML or JSON config file via viper (with
// ICT_BACKTESTER_*-prefixed environment overrides, matching the usual
// convention of typed config structs populated through viper in main), then
// converts it into a typed RunConfig.
func loadRunConfig(path string) (*RunConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("config: -config flag is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ICT_BACKTESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw rawFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}

	opts, err := raw.Options.toOptions()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	mc, err := raw.MonteCarlo.toConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &RunConfig{
		Options:     opts,
		Candles:     raw.Candles,
		MonteCarlo:  mc,
		WalkForward: raw.WalkForward,
	}, nil
}

func (r rawMonteCarlo) toConfig() (types.MonteCarloConfig, error) {
	conf := decimal.Zero
	if r.ConfidenceLevel != "" {
		var err error
		conf, err = decimal.NewFromString(r.ConfidenceLevel)
		if err != nil {
			return types.MonteCarloConfig{}, fmt.Errorf("monte_carlo.confidence_level: %w", err)
		}
	}
	return types.MonteCarloConfig{
		Enabled:         r.Enabled,
		Iterations:      r.Iterations,
		ConfidenceLevel: conf,
		ShuffleReturns:  r.ShuffleReturns,
	}, nil
}

func (r rawOptions) toOptions() (types.Options, error) {
	var opts types.Options
	var err error

	opts.Strategy = r.Strategy
	opts.Instrument = r.Instrument
	opts.PSTLookbackWindow = r.PSTLookbackWindow
	opts.SRLookbackWindow = r.SRLookbackWindow
	opts.SRRefreshWindow = r.SRRefreshWindow
	opts.CompoundRisk = r.CompoundRisk
	opts.MaxConcurrentTrades = r.MaxConcurrentTrades
	opts.Entry = r.Entry
	opts.Exit = r.Exit
	opts.SLLevel = r.SLLevel
	opts.ExcludeHighTrend = r.ExcludeHighTrend
	opts.SRZoneInteraction = r.SRZoneInteraction
	opts.PublishLiveData = r.PublishLiveData
	opts.PublishCycle = r.PublishCycle

	if opts.StartDate, err = parseDate(r.StartDate); err != nil {
		return opts, fmt.Errorf("start_date: %w", err)
	}
	if opts.EndDate, err = parseDate(r.EndDate); err != nil {
		return opts, fmt.Errorf("end_date: %w", err)
	}

	opts.ZoningMode = parseZoningMode(r.ZoningMode)

	if opts.Symbol.TradeContractSize, err = decimalOrZero(r.Symbol.TradeContractSize); err != nil {
		return opts, fmt.Errorf("symbol.trade_contract_size: %w", err)
	}
	if opts.Symbol.VolumeMin, err = decimalOrZero(r.Symbol.VolumeMin); err != nil {
		return opts, fmt.Errorf("symbol.volume_min: %w", err)
	}
	if opts.Symbol.VolumeMax, err = decimalOrZero(r.Symbol.VolumeMax); err != nil {
		return opts, fmt.Errorf("symbol.volume_max: %w", err)
	}
	opts.Symbol.Name = r.Symbol.Name

	if opts.InitAccountBalance, err = decimalOrZero(r.InitAccountBalance); err != nil {
		return opts, fmt.Errorf("init_account_balance: %w", err)
	}
	if opts.SLLevelMargin, err = decimalOrZero(r.SLLevelMargin); err != nil {
		return opts, fmt.Errorf("sl_level_margin: %w", err)
	}
	if opts.RiskPerTrade, err = decimalOrZero(r.RiskPerTrade); err != nil {
		return opts, fmt.Errorf("risk_per_trade: %w", err)
	}
	if opts.SRZoneEntryMargin, err = decimalOrZero(r.SRZoneEntryMargin); err != nil {
		return opts, fmt.Errorf("sr_zone_entry_margin: %w", err)
	}
	if opts.SRZoneProximityMargin, err = decimalOrZero(r.SRZoneProximityMargin); err != nil {
		return opts, fmt.Errorf("sr_zone_proximity_margin: %w", err)
	}
	if opts.SRZoneClearenceFactor, err = decimalOrZero(r.SRZoneClearenceFactor); err != nil {
		return opts, fmt.Errorf("sr_zone_clearence_factor: %w", err)
	}

	if r.RewardRatio != "" {
		rr, err := decimal.NewFromString(r.RewardRatio)
		if err != nil {
			return opts, fmt.Errorf("reward_ratio: %w", err)
		}
		opts.RewardRatio = &rr
	}

	opts.MoveSL.Allow = r.MoveSL.Allow
	if opts.MoveSL.ToBreakEvenAtR, err = decimalOrZero(r.MoveSL.ToBreakEvenAtR); err != nil {
		return opts, fmt.Errorf("move_sl.to_break_even_at_r: %w", err)
	}
	if opts.MoveSL.TrailingAtR, err = decimalOrZero(r.MoveSL.TrailingAtR); err != nil {
		return opts, fmt.Errorf("move_sl.trailing_at_r: %w", err)
	}
	if opts.MoveSL.SLLevelMargin, err = decimalOrZero(r.MoveSL.SLLevelMargin); err != nil {
		return opts, fmt.Errorf("move_sl.sl_level_margin: %w", err)
	}

	if r.SimSpeed != "" {
		if opts.SimSpeed, err = time.ParseDuration(r.SimSpeed); err != nil {
			return opts, fmt.Errorf("sim_speed: %w", err)
		}
	}

	return opts, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func parseZoningMode(s string) types.ZoningMode {
	switch strings.ToUpper(s) {
	case "BODY":
		return types.ZoningBody
	case "WICK":
		return types.ZoningWick
	default:
		return types.ZoningCandle
	}
}

// loadCandleSeries loads the five CSV candle files a RunConfig names into
// the PST/SR series maps backtest.NewDriver expects.
func loadCandleSeries(cfg *RunConfig) (map[types.PSTLevel][]types.Candle, map[types.SRLevel][]types.Candle, error) {
	pst := map[types.PSTLevel][]types.Candle{}
	sr := map[types.SRLevel][]types.Candle{}

	loadInto := func(path string) ([]types.Candle, error) {
		if path == "" {
			return nil, nil
		}
		return candlesource.LoadCSV(path)
	}

	var err error
	if pst[types.PSTLow], err = loadInto(cfg.Candles.PSTLow); err != nil {
		return nil, nil, fmt.Errorf("candles.pst_low: %w", err)
	}
	if pst[types.PSTMid], err = loadInto(cfg.Candles.PSTMid); err != nil {
		return nil, nil, fmt.Errorf("candles.pst_mid: %w", err)
	}
	if pst[types.PSTHigh], err = loadInto(cfg.Candles.PSTHigh); err != nil {
		return nil, nil, fmt.Errorf("candles.pst_high: %w", err)
	}
	if sr[types.SRLow], err = loadInto(cfg.Candles.SRLow); err != nil {
		return nil, nil, fmt.Errorf("candles.sr_low: %w", err)
	}
	if sr[types.SRHigh], err = loadInto(cfg.Candles.SRHigh); err != nil {
		return nil, nil, fmt.Errorf("candles.sr_high: %w", err)
	}

	return pst, sr, nil
}
