package backtest

import (
	"math"
	"time"
)

// USD is a helper for tests to create US dollar money from a const.
func USD(v float64) Money { return M(v, "USD") }

var (
	aapl = NewEquity("AAPL")
	goog = NewEquity("GOOG")
	msft = NewEquity("MSFT")
	esf  = NewFuture("ESF", 5)
)

// noon returns an instant within the given session, for transaction timestamps.
func noon(session Date) time.Time {
	return session.Time().Add(12 * time.Hour)
}

func fill(inst Instrument, amount, price float64, dt time.Time) Transaction {
	return Transaction{Instrument: inst, Amount: Q(amount), Price: USD(price), Dt: dt}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// stubPriceSource serves fixed prices by symbol. A missing symbol is an
// undefined price.
type stubPriceSource struct {
	spot     map[string]Money
	adjusted map[string]Money
}

func (s stubPriceSource) SpotPrice(inst Instrument, at time.Time) (Money, bool) {
	p, ok := s.spot[inst.Symbol]
	return p, ok
}

func (s stubPriceSource) AdjustedPrice(inst Instrument, start, end, at time.Time) (Money, bool) {
	p, ok := s.adjusted[inst.Symbol]
	return p, ok
}

// spotPrices is a shorthand for a stubPriceSource with only spot prices.
func spotPrices(prices map[string]Money) stubPriceSource {
	return stubPriceSource{spot: prices}
}

// stubDividendSource serves a fixed schedule, filtered by ex-date and the
// held set like a real schedule source.
type stubDividendSource struct {
	cash  []Dividend
	stock []StockDividend
}

func holds(held []Instrument, inst Instrument) bool {
	for _, h := range held {
		if h.Symbol == inst.Symbol {
			return true
		}
	}
	return false
}

func (s stubDividendSource) DividendsWithExDate(held []Instrument, session Date, dir InstrumentDirectory) []Dividend {
	var out []Dividend
	for _, d := range s.cash {
		if d.ExDate == session && holds(held, d.Instrument) {
			out = append(out, d)
		}
	}
	return out
}

func (s stubDividendSource) StockDividendsWithExDate(held []Instrument, session Date, dir InstrumentDirectory) []StockDividend {
	var out []StockDividend
	for _, d := range s.stock {
		if d.ExDate == session && holds(held, d.Instrument) {
			out = append(out, d)
		}
	}
	return out
}

// stubDirectory resolves instruments from a fixed set.
type stubDirectory map[string]Instrument

func (d stubDirectory) Lookup(symbol string) (Instrument, bool) {
	i, ok := d[symbol]
	return i, ok
}
