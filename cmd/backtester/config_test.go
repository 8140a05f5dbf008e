package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const sampleConfig = `
options:
  strategy: SIMPLE_TREND
  start_date: "2024-01-01"
  end_date: "2024-02-01"
  instrument: EURUSD
  symbol:
    name: EURUSD
    trade_contract_size: "100000"
    volume_min: "0.01"
    volume_max: "10"
  init_account_balance: "10000"
  pst_lookback_window: 50
  sr_lookback_window: 50
  sr_refresh_window: 20
  zoning_mode: WICK
  compound_risk: true
  max_concurrent_trades: 3
  entry: CHOC
  exit: CHOC_CONFIRMED
  sl_level: KEY_LEVEL
  sl_level_margin: "0.1"
  reward_ratio: "2"
  risk_per_trade: "0.01"
  sr_zone_interaction: TOUCH
  sr_zone_entry_margin: "0.05"
  sr_zone_proximity_margin: "0.1"
  sr_zone_clearence_factor: "1"
  move_sl:
    allow: true
    to_break_even_at_r: "1"
    trailing_at_r: "2"
    sl_level_margin: "0.05"
  publish_live_data: false
  publish_cycle: 10
candles:
  pst_low: low.csv
  pst_mid: mid.csv
  pst_high: high.csv
  sr_low: srlow.csv
  sr_high: srhigh.csv
monte_carlo:
  enabled: true
  iterations: 500
  confidence_level: "0.95"
walk_forward:
  enabled: true
  windowSize: 30
  stepSize: 7
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRunConfig_DecodesTypedOptions(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	cfg, err := loadRunConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "SIMPLE_TREND", cfg.Options.Strategy)
	assert.Equal(t, "EURUSD", cfg.Options.Instrument)
	assert.True(t, cfg.Options.InitAccountBalance.Equal(dec("10000")))
	assert.Equal(t, types.ZoningWick, cfg.Options.ZoningMode)
	assert.True(t, cfg.Options.CompoundRisk)
	require.NotNil(t, cfg.Options.RewardRatio)
	assert.True(t, cfg.Options.RewardRatio.Equal(dec("2")))
	assert.True(t, cfg.Options.MoveSL.Allow)
	assert.True(t, cfg.MonteCarlo.Enabled)
	assert.Equal(t, 500, cfg.MonteCarlo.Iterations)
	assert.True(t, cfg.WalkForward.Enabled)
	assert.Equal(t, "low.csv", cfg.Candles.PSTLow)
}

func TestLoadRunConfig_MissingPathErrors(t *testing.T) {
	_, err := loadRunConfig("")
	require.Error(t, err)
}

func TestLoadRunConfig_InvalidDecimalErrors(t *testing.T) {
	corrupted := strings.Replace(sampleConfig, `risk_per_trade: "0.01"`, `risk_per_trade: "not-a-number"`, 1)
	path := writeTempConfig(t, corrupted)

	_, err := loadRunConfig(path)
	require.Error(t, err)
}
