package candlesource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCSV_ParsesRFC3339AndUnixTimestamps(t *testing.T) {
	path := writeTempCSV(t, "time,open,high,low,close\n"+
		"2024-01-01T00:00:00Z,100,101,99,100.5\n"+
		"1704067260,100.5,102,100,101\n")

	candles, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.True(t, candles[1].Close.Equal(decimal.RequireFromString("101")))
}

func TestLoadCSV_SkipsMalformedRows(t *testing.T) {
	path := writeTempCSV(t, "time,open,high,low,close\n"+
		"2024-01-01T00:00:00Z,100,101,99,100.5\n"+
		",100,101,99,100.5\n"+ // missing timestamp
		"2024-01-01T00:01:00Z,notanumber,101,99,100.5\n") // bad open

	candles, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestLoadCSV_SortsAscendingByTimestamp(t *testing.T) {
	path := writeTempCSV(t, "time,open,high,low,close\n"+
		"2024-01-01T00:02:00Z,102,103,101,102.5\n"+
		"2024-01-01T00:00:00Z,100,101,99,100.5\n"+
		"2024-01-01T00:01:00Z,100.5,102,100,101\n")

	candles, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i-1].Timestamp.Before(candles[i].Timestamp))
	}
}
