package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// TradeSink persists a backtest's final position set. Last-write-wins per
// position ID: callers that need an append-only trade log should read the
// prior payload first and merge.
type TradeSink interface {
	PersistPositions(ctx context.Context, accountID string, positions []Position) error
}

// NoopSink discards positions. The default when no sink is configured.
type NoopSink struct{}

// PersistPositions does nothing.
func (NoopSink) PersistPositions(ctx context.Context, accountID string, positions []Position) error {
	return nil
}

// JSONFileSink writes one JSON array of positions to disk per account,
// grounded on the reference data store's Save/loadMetadata read-whole,
// write-whole convention.
type JSONFileSink struct {
	mu   sync.Mutex
	path string
}

// NewJSONFileSink targets a single file path. The file is overwritten on
// every PersistPositions call, keyed by accountID to last-write-wins.
func NewJSONFileSink(path string) *JSONFileSink {
	return &JSONFileSink{path: path}
}

// PersistPositions replaces this account's entry in the sink's on-disk map
// and rewrites the whole file.
func (s *JSONFileSink) PersistPositions(ctx context.Context, accountID string, positions []Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.load()
	if err != nil {
		return err
	}
	store[accountID] = positions

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("tradesink: marshal positions: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("tradesink: write %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONFileSink) load() (map[string][]Position, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]Position{}, nil
		}
		return nil, fmt.Errorf("tradesink: read %s: %w", s.path, err)
	}
	var store map[string][]Position
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("tradesink: parse %s: %w", s.path, err)
	}
	return store, nil
}
