package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_HandlerServesExpositionFormat(t *testing.T) {
	c := NewCollector()
	c.CandlesProcessed.Add(3)
	c.SignalEmitted("PST_LOW", "BOS")
	c.OrderOpened("SIMPLE_TREND", "LONG")
	c.OrderClosed("CHOC_CONFIRMED")
	c.OpenPositions.Set(2)
	c.AccountEquity.Set(1050.5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "backtest_candles_processed_total 3")
	assert.Contains(t, body, "backtest_signals_emitted_total")
	assert.Contains(t, body, "backtest_open_positions 2")
}

func TestNewCollector_IndependentRegistriesDoNotCollide(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.CandlesProcessed.Add(1)
	b.CandlesProcessed.Add(5)

	reqA := httptest.NewRequest("GET", "/metrics", nil)
	recA := httptest.NewRecorder()
	a.Handler().ServeHTTP(recA, reqA)
	assert.Contains(t, recA.Body.String(), "backtest_candles_processed_total 1")

	reqB := httptest.NewRequest("GET", "/metrics", nil)
	recB := httptest.NewRecorder()
	b.Handler().ServeHTTP(recB, reqB)
	assert.Contains(t, recB.Body.String(), "backtest_candles_processed_total 5")
}
