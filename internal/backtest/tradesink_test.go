package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileSink_PersistPositionsWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	sink := NewJSONFileSink(path)

	pos, err := NewLongPosition("acc-1", "EURUSD", time.Now(), dec("100000"), dec("0.01"), dec("1.1000"), nil, nil)
	require.NoError(t, err)

	require.NoError(t, sink.PersistPositions(context.Background(), "acc-1", []Position{*pos}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "EURUSD")
}

func TestJSONFileSink_PersistPositionsIsLastWriteWinsPerAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	sink := NewJSONFileSink(path)

	posA, err := NewLongPosition("acc-a", "EURUSD", time.Now(), dec("100000"), dec("0.01"), dec("1.1000"), nil, nil)
	require.NoError(t, err)
	posB, err := NewLongPosition("acc-b", "GBPUSD", time.Now(), dec("100000"), dec("0.01"), dec("1.2500"), nil, nil)
	require.NoError(t, err)

	require.NoError(t, sink.PersistPositions(context.Background(), "acc-a", []Position{*posA}))
	require.NoError(t, sink.PersistPositions(context.Background(), "acc-b", []Position{*posB}))

	store, err := sink.load()
	require.NoError(t, err)
	assert.Len(t, store, 2)
	assert.Equal(t, "EURUSD", store["acc-a"][0].Instrument)
	assert.Equal(t, "GBPUSD", store["acc-b"][0].Instrument)
}

func TestNoopSink_PersistPositionsIsANoOp(t *testing.T) {
	var sink NoopSink
	require.NoError(t, sink.PersistPositions(context.Background(), "acc-1", nil))
}
