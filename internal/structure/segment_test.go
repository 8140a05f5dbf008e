package structure

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(t int64, o, h, l, c string) types.Candle {
	return types.Candle{
		Timestamp: time.Unix(t, 0),
		Open:      decimal.RequireFromString(o),
		High:      decimal.RequireFromString(h),
		Low:       decimal.RequireFromString(l),
		Close:     decimal.RequireFromString(c),
	}
}

// Scenario 1: first-segment bootstrap.
func TestAddCandle_FirstSegmentBootstrap(t *testing.T) {
	seg := NewFirstSegment("s1")
	seg.AddCandle(candle(1, "100", "101", "99", "100.5"))

	assert.Equal(t, types.DirectionUp, seg.Dir)
	require.NotNil(t, seg.KeyHigh)
	require.NotNil(t, seg.KeyLow)
	assert.True(t, seg.KeyHigh.Equal(decimal.RequireFromString("101")))
	assert.True(t, seg.KeyLow.Equal(decimal.RequireFromString("99")))
	assert.True(t, seg.InBos)
	assert.True(t, seg.SegmentHigh.Equal(decimal.RequireFromString("101")))
	assert.True(t, seg.SegmentLow.Equal(decimal.RequireFromString("99")))
}

// Scenario 2: minimal BOS.
func TestAddCandle_MinimalBOS(t *testing.T) {
	seg := NewFirstSegment("s1")
	seg.AddCandle(candle(1, "100", "101", "100", "101")) // UP 100->101
	seg.AddCandle(candle(2, "101", "101", "100.5", "100.5")) // DOWN 101->100.5
	seg.AddCandle(candle(3, "100.5", "102", "100.5", "102")) // UP 100.5->102

	assert.Equal(t, 1, seg.BosCount)
	assert.True(t, seg.InBos)
	assert.False(t, seg.InPullBack)
	require.NotNil(t, seg.KeyLow)
}

// Scenario 3: minimal ChOC + confirm.
func TestAddCandle_ChocAndConfirm(t *testing.T) {
	seg := NewFirstSegment("s1")
	seg.AddCandle(candle(1, "100", "101", "100", "101"))
	seg.AddCandle(candle(2, "101", "101", "100.5", "100.5"))
	seg.AddCandle(candle(3, "100.5", "102", "100.5", "102"))
	seg.AddCandle(candle(4, "102", "102", "98", "98")) // DOWN 102->98 triggers choc (close<key_low)
	assert.True(t, seg.Choc)

	seg.AddCandle(candle(5, "98", "99", "98", "99")) // UP 98->99: choc pullback
	assert.True(t, seg.InChocPullBack)

	seg.AddCandle(candle(6, "99", "99", "97", "97")) // DOWN 99->97: confirms choc
	assert.True(t, seg.ChocConfirmed)
}

func TestAddCandle_BOSIsStrictInequality(t *testing.T) {
	seg := NewFirstSegment("s1")
	seg.AddCandle(candle(1, "100", "101", "100", "101"))
	seg.AddCandle(candle(2, "101", "101", "100.5", "100.5")) // pullback
	// close == key_high exactly must NOT trigger BOS.
	seg.AddCandle(candle(3, "100.5", "101", "100.5", "101"))
	assert.Equal(t, 0, seg.BosCount)
}

func TestNewSuccessorSegment_CarriesCandleRefs(t *testing.T) {
	seg := NewFirstSegment("s1")
	seg.AddCandle(candle(1, "100", "101", "100", "101"))
	seg.ChocConfirmed = true

	succ := NewSuccessorSegment("s2", seg)
	assert.Equal(t, types.DirectionDown, succ.Dir)
	assert.Equal(t, seg.KeyHigh, succ.KeyHigh)
	assert.Equal(t, seg.KeyHighCandle, succ.KeyHighCandle)
	assert.True(t, succ.InBos)
	assert.False(t, succ.Choc)
}
