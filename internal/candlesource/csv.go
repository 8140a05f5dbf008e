// Package candlesource loads candle series for backtest input, grounded on
// a generic, case-insensitive-header CSV
// reader that accepts "YYYY-MM-DD HH:MM:SS", RFC3339 or Unix-seconds
// timestamps.
package candlesource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/shopspring/decimal"
)

// LoadCSV reads a candle CSV with headers time|timestamp, open, high, low,
// close (volume is accepted but not part of the Candle domain type).
// Rows missing a timestamp, open, or close are skipped. The result is
// sorted ascending by timestamp.
func LoadCSV(path string) ([]types.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("candlesource: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []types.Candle
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("candlesource: read %s: %w", path, err)
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}

		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}

		ts := first(row, "time", "timestamp")
		op := first(row, "open")
		hp := first(row, "high")
		lp := first(row, "low")
		cp := first(row, "close")
		if ts == "" || op == "" || cp == "" {
			rowIdx++
			continue
		}

		tt, err := parseTimeFlexible(ts)
		if err != nil {
			rowIdx++
			continue
		}

		o, errO := decimal.NewFromString(op)
		h, errH := decimal.NewFromString(hp)
		l, errL := decimal.NewFromString(lp)
		c, errC := decimal.NewFromString(cp)
		if errO != nil || errH != nil || errL != nil || errC != nil {
			rowIdx++
			continue
		}

		out = append(out, types.Candle{Timestamp: tt, Open: o, High: h, Low: l, Close: c})
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func first(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// parseTimeFlexible accepts the canonical "YYYY-MM-DD HH:MM:SS" layout
// first, then falls back to RFC3339 and Unix-seconds for other pack inputs.
func parseTimeFlexible(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("candlesource: unrecognized timestamp %q", s)
}
