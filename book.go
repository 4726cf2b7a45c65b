package backtest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// ErrPositionNotFound reports a dividend earned against an instrument that is
// not currently held. Dividends are only ever submitted for held instruments,
// so this is a precondition violation, not a recoverable state.
var ErrPositionNotFound = errors.New("position not found")

// PositionStats is the aggregate exposure of a PositionBook, recomputed in a
// single pass when the book has changed since the last read.
//
// Value and exposure diverge for leverage-bearing instruments: they carry no
// balance-sheet value, and their exposure is scaled by the contract
// multiplier.
type PositionStats struct {
	NetValue      Money
	GrossValue    Money
	LongValue     Money
	ShortValue    Money
	NetExposure   Money
	GrossExposure Money
	LongExposure  Money
	ShortExposure Money
	LongsCount    int
	ShortsCount   int
}

// PositionUpdate is the set of Position fields to overwrite in an
// UpdatePosition call; nil fields are left untouched.
type PositionUpdate struct {
	Amount        *Quantity
	LastSalePrice *Money
	LastSaleDate  *time.Time
	CostBasis     *Money
}

// PositionBook owns the collection of Positions and applies transactions,
// commissions, splits and dividends to them.
//
// The book counts mutations in a generation counter; the Stats cache
// remembers the generation it was computed at and recomputes only when the
// generations diverge.
type PositionBook struct {
	positions            map[string]*Position
	unpaidDividends      map[Date][]DividendOwed
	unpaidStockDividends map[Date][]StockDividendOwed

	currency string

	gen      uint64
	statsGen uint64
	stats    PositionStats
}

// NewPositionBook creates an empty book reporting in the given currency.
func NewPositionBook(currency string) *PositionBook {
	return &PositionBook{
		positions:            make(map[string]*Position),
		unpaidDividends:      make(map[Date][]DividendOwed),
		unpaidStockDividends: make(map[Date][]StockDividendOwed),
		currency:             currency,
		gen:                  1,
	}
}

// touch marks the book mutated since the last Stats computation.
func (b *PositionBook) touch() { b.gen++ }

// position returns the Position for the instrument, creating it if absent.
func (b *PositionBook) position(inst Instrument) *Position {
	pos, ok := b.positions[inst.Symbol]
	if !ok {
		pos = newPosition(inst, b.currency)
		b.positions[inst.Symbol] = pos
	}
	return pos
}

// Position returns a copy of the held position for the symbol.
func (b *PositionBook) Position(symbol string) (Position, bool) {
	pos, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all held positions, sorted by symbol.
func (b *PositionBook) Positions() []Position {
	symbols := slices.Sorted(maps.Keys(b.positions))
	out := make([]Position, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, *b.positions[s])
	}
	return out
}

// Held returns the held instruments, sorted by symbol.
func (b *PositionBook) Held() []Instrument {
	symbols := slices.Sorted(maps.Keys(b.positions))
	out := make([]Instrument, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, b.positions[s].Instrument)
	}
	return out
}

// UpdatePosition creates the position if absent and overwrites only the
// fields supplied in the update.
func (b *PositionBook) UpdatePosition(inst Instrument, u PositionUpdate) {
	b.touch()

	pos := b.position(inst)
	if u.Amount != nil {
		pos.Amount = *u.Amount
	}
	if u.LastSalePrice != nil {
		pos.LastSalePrice = *u.LastSalePrice
	}
	if u.LastSaleDate != nil {
		pos.LastSaleDate = *u.LastSaleDate
	}
	if u.CostBasis != nil {
		pos.CostBasis = *u.CostBasis
	}
}

// ExecuteTransaction applies a transaction to its instrument's position,
// creating the position if absent and removing it if the resulting amount is
// zero.
func (b *PositionBook) ExecuteTransaction(txn Transaction) {
	b.touch()

	pos := b.position(txn.Instrument)
	pos.update(txn)

	if pos.Amount.IsZero() {
		delete(b.positions, txn.Instrument.Symbol)
	}
}

// HandleCommission adjusts the cost basis of the instrument's position, if held.
func (b *PositionBook) HandleCommission(inst Instrument, cost Money) {
	if pos, ok := b.positions[inst.Symbol]; ok {
		b.touch()
		pos.adjustCommissionCostBasis(cost)
	}
}

// HandleSplits applies each split whose instrument is held and returns the
// total cash left over from fractional shares.
func (b *PositionBook) HandleSplits(splits []Split) Money {
	total := M(0, b.currency)

	for _, split := range splits {
		if pos, ok := b.positions[split.Instrument.Symbol]; ok {
			b.touch()
			total = total.Add(pos.handleSplit(split.Ratio))
		}
	}
	return total
}

// EarnDividends records the cash and share obligations created by dividends
// whose ex-date is the next session, keyed by pay-date so they can be
// released by PayDividends. Earning does not affect cash or positions.
func (b *PositionBook) EarnDividends(cashDividends []Dividend, stockDividends []StockDividend) error {
	for _, d := range cashDividends {
		pos, ok := b.positions[d.Instrument.Symbol]
		if !ok {
			return fmt.Errorf("earn dividend for %s: %w", d.Instrument.Symbol, ErrPositionNotFound)
		}
		owed := pos.earnDividend(d)
		b.unpaidDividends[d.PayDate] = append(b.unpaidDividends[d.PayDate], owed)
	}

	for _, d := range stockDividends {
		pos, ok := b.positions[d.Instrument.Symbol]
		if !ok {
			return fmt.Errorf("earn stock dividend for %s: %w", d.Instrument.Symbol, ErrPositionNotFound)
		}
		owed := pos.earnStockDividend(d)
		b.unpaidStockDividends[d.PayDate] = append(b.unpaidStockDividends[d.PayDate], owed)
	}
	return nil
}

// PayDividends removes and returns the total cash owed for the session's
// pay-date, and delivers owed shares by creating or incrementing the payment
// instrument's position. Obligations are consumed exactly once: calling again
// for the same date yields zero.
func (b *PositionBook) PayDividends(session Date) Money {
	netCashPayment := M(0, b.currency)

	payments := b.unpaidDividends[session]
	delete(b.unpaidDividends, session)
	for _, payment := range payments {
		// Amounts may be negative for short positions: the borrower
		// reimburses the owner for dividends paid while borrowing.
		netCashPayment = netCashPayment.Add(payment.Amount)
	}

	stockPayments := b.unpaidStockDividends[session]
	delete(b.unpaidStockDividends, session)
	for _, payment := range stockPayments {
		b.touch()
		pos := b.position(payment.Payment)
		pos.Amount = pos.Amount.Add(payment.ShareCount)
	}

	return netCashPayment
}

// MaybeCreateClosePositionTransaction builds a synthetic transaction that
// would close out the instrument's position at the current spot price,
// falling back to the last sale price when the spot price is undefined. It
// returns nil if the instrument is not held, and never mutates the book: the
// caller submits the transaction.
func (b *PositionBook) MaybeCreateClosePositionTransaction(inst Instrument, at time.Time, prices PriceSource) *Transaction {
	pos, ok := b.positions[inst.Symbol]
	if !ok {
		return nil
	}

	price, ok := prices.SpotPrice(inst, at)
	if !ok {
		price = pos.LastSalePrice
	}

	return &Transaction{
		Instrument: inst,
		Amount:     pos.Amount.Neg(),
		Price:      price,
		Dt:         at,
	}
}

// SyncLastSalePrices refreshes the last sale price of every held position
// from the price source, silently skipping instruments with no defined price
// at that instant. With allowNonTradingMinutes the adjusted price over the
// preceding minute is used instead of the spot price.
func (b *PositionBook) SyncLastSalePrices(at time.Time, prices PriceSource, allowNonTradingMinutes bool) {
	b.touch()

	if !allowNonTradingMinutes {
		for _, pos := range b.positions {
			if price, ok := prices.SpotPrice(pos.Instrument, at); ok {
				pos.LastSalePrice = price
			}
		}
		return
	}

	start := at.Add(-time.Minute)
	for _, pos := range b.positions {
		if price, ok := prices.AdjustedPrice(pos.Instrument, start, at, at); ok {
			pos.LastSalePrice = price
		}
	}
}

// Stats returns the aggregate exposure statistics, recomputing them in one
// pass over the held positions only when the book changed since the last
// computation.
func (b *PositionBook) Stats() PositionStats {
	if b.statsGen == b.gen {
		return b.stats
	}

	zero := M(0, b.currency)
	stats := PositionStats{
		NetValue:      zero,
		LongValue:     zero,
		ShortValue:    zero,
		LongExposure:  zero,
		ShortExposure: zero,
	}

	for _, pos := range b.positions {
		exposure := pos.LastSalePrice.Mul(pos.Amount)

		var value Money
		if pos.Instrument.Leveraged() {
			// Leveraged instruments have no inherent position value.
			value = zero
			exposure = exposure.Mul(pos.Instrument.multiplier())
		} else {
			value = exposure
		}

		switch {
		case exposure.IsPositive():
			stats.LongsCount++
			stats.LongValue = stats.LongValue.Add(value)
			stats.LongExposure = stats.LongExposure.Add(exposure)
		case exposure.IsNegative():
			stats.ShortsCount++
			stats.ShortValue = stats.ShortValue.Add(value)
			stats.ShortExposure = stats.ShortExposure.Add(exposure)
		}

		stats.NetValue = stats.NetValue.Add(value)
	}

	stats.GrossValue = stats.LongValue.Sub(stats.ShortValue)
	stats.GrossExposure = stats.LongExposure.Sub(stats.ShortExposure)
	stats.NetExposure = stats.LongExposure.Add(stats.ShortExposure)

	b.stats = stats
	b.statsGen = b.gen
	return stats
}
