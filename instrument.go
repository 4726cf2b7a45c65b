package backtest

import "fmt"

// Kind discriminates the instrument variants the ledger accounts for.
type Kind int

const (
	// Equity is an ordinary instrument whose position carries balance-sheet value.
	Equity Kind = iota
	// Future is a leverage-bearing instrument: it has no balance-sheet value,
	// its price changes settle as mark-to-market cash flow scaled by the
	// contract multiplier.
	Future
)

func (k Kind) String() string {
	switch k {
	case Equity:
		return "equity"
	case Future:
		return "future"
	default:
		return "unknown"
	}
}

// ParseKind parses a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "equity", "":
		return Equity, nil
	case "future":
		return Future, nil
	default:
		return 0, fmt.Errorf("unknown instrument kind: %q", s)
	}
}

// Instrument identifies a tradable instrument. The Multiplier is meaningful
// only on the Future variant.
type Instrument struct {
	Symbol     string
	Kind       Kind
	Multiplier float64
}

// NewEquity returns an ordinary instrument.
func NewEquity(symbol string) Instrument {
	return Instrument{Symbol: symbol, Kind: Equity}
}

// NewFuture returns a leverage-bearing instrument with the given contract multiplier.
func NewFuture(symbol string, multiplier float64) Instrument {
	return Instrument{Symbol: symbol, Kind: Future, Multiplier: multiplier}
}

// Leveraged reports whether price changes on this instrument settle as
// mark-to-market payouts instead of position value.
func (i Instrument) Leveraged() bool { return i.Kind == Future }

// multiplier returns the contract multiplier as a Quantity, 1 for ordinary instruments.
func (i Instrument) multiplier() Quantity {
	if i.Kind == Future {
		return Q(i.Multiplier)
	}
	return Q(1)
}

func (i Instrument) String() string { return i.Symbol }

// InstrumentDirectory resolves instrument metadata for external collaborators,
// e.g. the dividend schedule source.
type InstrumentDirectory interface {
	Lookup(symbol string) (Instrument, bool)
}
