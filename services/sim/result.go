package sim

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmptyDatasetError reports a simulation or signal request over a
// zero-length dataset.
type EmptyDatasetError struct{}

func (e *EmptyDatasetError) Error() string { return "sim: dataset is empty" }

// ExitReason says why a trade closed.
type ExitReason string

// Exit reasons.
const (
	// ExitSignal: the rule flipped false while long.
	ExitSignal ExitReason = "signal"
	// ExitEndOfData: the series ended with the position still open, so it
	// was closed at the final close.
	ExitEndOfData ExitReason = "end_of_data"
)

// Position is the open-position state while a simulation is long.
type Position struct {
	EntryIndex int
	EntryTime  time.Time
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
	Notional   decimal.Decimal
	EntryFee   decimal.Decimal
}

// Trade is one completed round trip.
type Trade struct {
	EntryIndex int
	EntryTime  time.Time
	EntryPrice decimal.Decimal
	ExitIndex  int
	ExitTime   time.Time
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Notional   decimal.Decimal
	Fees       decimal.Decimal
	PnL        decimal.Decimal
	Return     decimal.Decimal
	ExitReason ExitReason
}

// EquityPoint is one mark-to-market account valuation.
type EquityPoint struct {
	Time  time.Time
	Value decimal.Decimal
}

// Result is the full output of one simulation: the trade ledger and the
// per-bar equity curve. Two runs over the same frame and spec produce
// identical Results.
type Result struct {
	StrategyID    uuid.UUID
	StrategyName  string
	InitialEquity decimal.Decimal
	FinalEquity   decimal.Decimal
	Trades        []Trade
	Equity        []EquityPoint
	Start         time.Time
	End           time.Time
}
