package backtest

import "time"

// PriceSource provides market prices to the ledger. An ok result of false
// means the price is undefined at that instant (e.g. a non-trading minute);
// callers fall back or skip as specified per operation.
type PriceSource interface {
	// SpotPrice returns the price of the instrument at the given instant.
	SpotPrice(inst Instrument, at time.Time) (price Money, ok bool)
	// AdjustedPrice returns the price of the instrument at the given instant,
	// adjusted for corporate actions over the (start, end] window.
	AdjustedPrice(inst Instrument, start, end, at time.Time) (price Money, ok bool)
}

// DividendSource provides the dividend schedule. Both queries return only
// dividends whose ex-date equals the given session, restricted to the held
// instruments.
type DividendSource interface {
	DividendsWithExDate(held []Instrument, session Date, dir InstrumentDirectory) []Dividend
	StockDividendsWithExDate(held []Instrument, session Date, dir InstrumentDirectory) []StockDividend
}
