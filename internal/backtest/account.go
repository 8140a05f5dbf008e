package backtest

import (
	"time"

	"github.com/atlas-desktop/ict-backtester/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the simulated trading account, grounded on trade_objects.py's
// Account class (minus its SQLAlchemy persistence -- the driver is the only
// thing that needs to query it, so positions live in an in-memory slice).
type Account struct {
	ID             string
	Description    string
	InitialBalance decimal.Decimal
	Balance        decimal.Decimal
	Equity         decimal.Decimal
	MaxEquity      decimal.Decimal
	MinEquity      decimal.Decimal
	Positions      []*Position
}

// NewAccount opens a fresh account at the given starting balance.
func NewAccount(description string, balance decimal.Decimal) *Account {
	return &Account{
		ID:             uuid.New().String(),
		Description:    description,
		InitialBalance: balance,
		Balance:        balance,
		Equity:         balance,
		MaxEquity:      balance,
		MinEquity:      balance,
	}
}

// UpdateEquity recomputes equity from realized balance plus every open
// position's unrealized P&L over the candle's range, tracking the running
// min/max equity watermarks.
func (a *Account) UpdateEquity(low, high decimal.Decimal) decimal.Decimal {
	unrealized := decimal.Zero
	for _, p := range a.Positions {
		unrealized = unrealized.Add(p.UnrealizedProfit(low, high))
	}
	a.Equity = a.Balance.Add(unrealized)
	if a.Equity.GreaterThan(a.MaxEquity) {
		a.MaxEquity = a.Equity
	}
	if a.Equity.LessThan(a.MinEquity) {
		a.MinEquity = a.Equity
	}
	return unrealized
}

// CountOpenPositions reports how many positions are still open.
func (a *Account) CountOpenPositions() int {
	n := 0
	for _, p := range a.Positions {
		if p.State == types.PositionOpen {
			n++
		}
	}
	return n
}

// Open appends a newly built position to the account.
func (a *Account) Open(p *Position) {
	a.Positions = append(a.Positions, p)
}

// ClosePosition settles p at price and applies its realized P&L to balance.
// A no-op if p was already closed.
func (a *Account) ClosePosition(p *Position, t time.Time, price decimal.Decimal) {
	if p.Close(t, price) {
		a.Balance = a.Balance.Add(p.RealizedPL())
	}
}

// FindAllOpen returns every open position matching type+instrument, the
// source's `for p in account.positions` scan in the MOVE_SL/CLOSE action
// handlers -- CLOSE and MOVE_SL apply to every match, not just the first.
func (a *Account) FindAllOpen(t types.PositionType, instrument string) []*Position {
	var matches []*Position
	for _, p := range a.Positions {
		if p.Type == t && p.Instrument == instrument && p.State == types.PositionOpen {
			matches = append(matches, p)
		}
	}
	return matches
}

// Snapshot projects the account into the small record embedded in an
// annotation payload.
func (a *Account) Snapshot() types.AccountSnapshot {
	return types.AccountSnapshot{
		InitialBalance: a.InitialBalance,
		Balance:        a.Balance,
		Equity:         a.Equity,
	}
}
