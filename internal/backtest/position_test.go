package backtest

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewLongPosition_RejectsSLAboveEntry(t *testing.T) {
	sl := dec("101")
	_, err := NewLongPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), &sl, nil)
	require.Error(t, err)
}

func TestNewShortPosition_RejectsTPAboveEntry(t *testing.T) {
	tp := dec("101")
	_, err := NewShortPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), nil, &tp)
	require.Error(t, err)
}

func TestCheckAndUpdate_SLTakesPrecedenceOverTP(t *testing.T) {
	sl := dec("95")
	tp := dec("110")
	pos, err := NewLongPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), &sl, &tp)
	require.NoError(t, err)

	// A candle wide enough to touch both SL and TP within the same bar.
	closed := pos.CheckAndUpdate(time.Now(), dec("90"), dec("115"))
	require.True(t, closed)
	assert.Equal(t, types.PositionClosed, pos.State)
	assert.True(t, pos.ClosePrice.Equal(sl))
}

func TestCheckAndUpdate_ShortSLTakesPrecedence(t *testing.T) {
	sl := dec("105")
	tp := dec("90")
	pos, err := NewShortPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), &sl, &tp)
	require.NoError(t, err)

	closed := pos.CheckAndUpdate(time.Now(), dec("85"), dec("110"))
	require.True(t, closed)
	assert.True(t, pos.ClosePrice.Equal(sl))
}

func TestClose_ComputesRewardUnits(t *testing.T) {
	sl := dec("95")
	pos, err := NewLongPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), &sl, nil)
	require.NoError(t, err)

	ok := pos.Close(time.Now(), dec("110"))
	require.True(t, ok)
	require.NotNil(t, pos.RewardUnits)
	assert.True(t, pos.RewardUnits.Equal(dec("2")))
}

func TestClose_IsANoOpOnAlreadyClosedPosition(t *testing.T) {
	pos, err := NewLongPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), nil, nil)
	require.NoError(t, err)

	require.True(t, pos.Close(time.Now(), dec("105")))
	assert.False(t, pos.Close(time.Now(), dec("120")))
	assert.True(t, pos.Profit.Equal(dec("5")))
}

func TestUnrealizedProfit_ZeroOnClosedPosition(t *testing.T) {
	pos, err := NewLongPosition("acc", "EURUSD", time.Now(), dec("100000"), dec("1"), dec("100"), nil, nil)
	require.NoError(t, err)
	pos.Close(time.Now(), dec("110"))

	assert.True(t, pos.UnrealizedProfit(dec("50"), dec("200")).IsZero())
}
