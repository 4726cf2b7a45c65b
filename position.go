package backtest

import "time"

// Position is the mutable holding record for one instrument.
//
// CostBasis is the volume-weighted average entry price, adjusted by
// commissions and splits; pure mark-to-market price updates leave it
// untouched. A Position whose Amount reaches zero is removed from the book by
// the operation that zeroed it.
type Position struct {
	Instrument    Instrument
	Amount        Quantity
	CostBasis     Money
	LastSalePrice Money
	LastSaleDate  time.Time
}

func newPosition(inst Instrument, currency string) *Position {
	return &Position{
		Instrument:    inst,
		CostBasis:     M(0, currency),
		LastSalePrice: M(0, currency),
	}
}

// update applies a transaction to the position.
//
// Cost basis is the quantity-weighted average of the prior basis and the fill
// price when the fill extends the position in its current direction. A fill
// that reduces the position leaves the basis unchanged; a fill that flips the
// position through zero resets the basis to the fill price.
func (p *Position) update(txn Transaction) {
	total := p.Amount.Add(txn.Amount)
	if total.IsZero() {
		p.CostBasis = M(0, p.CostBasis.Currency())
	} else {
		if p.Amount.Sign() != txn.Amount.Sign() {
			// Covering a short or closing out a long.
			if txn.Amount.Abs().GreaterThan(p.Amount.Abs()) {
				// The position flipped through zero; the basis restarts at
				// the fill price.
				p.CostBasis = txn.Price
			}
		} else {
			prevCost := p.CostBasis.Mul(p.Amount)
			txnCost := txn.Price.Mul(txn.Amount)
			p.CostBasis = prevCost.Add(txnCost).Div(total)
		}
	}

	// The fill price is the best market data we have if it is newer than the
	// last observed sale.
	if p.LastSaleDate.IsZero() || txn.Dt.After(p.LastSaleDate) {
		p.LastSalePrice = txn.Price
		p.LastSaleDate = txn.Dt
	}

	p.Amount = total
}

// adjustCommissionCostBasis spreads a commission cost over the held amount,
// raising the cost basis without changing the amount. Futures commissions are
// divided by the contract multiplier, since their basis is a per-point price.
func (p *Position) adjustCommissionCostBasis(cost Money) {
	if cost.IsZero() || p.Amount.IsZero() {
		return
	}
	use := cost
	if p.Instrument.Leveraged() {
		use = cost.Div(p.Instrument.multiplier())
	}
	prevCost := p.CostBasis.Mul(p.Amount)
	p.CostBasis = prevCost.Add(use).Div(p.Amount)
}

// handleSplit rescales the position by the split's price ratio (0.5 for a
// 2-for-1 split) and returns the cash value of the fractional-share
// remainder. The cost basis is rounded to the currency's fraction digits.
func (p *Position) handleSplit(ratio Quantity) Money {
	raw := p.Amount.Div(ratio)
	full := raw.Floor()
	fractional := raw.Sub(full)

	leftover := p.LastSalePrice.Mul(fractional.Mul(ratio))

	p.CostBasis = p.CostBasis.Mul(ratio).Round()
	p.Amount = full
	return leftover
}

// earnDividend records the cash obligation created by holding through the
// ex-date. It does not mutate the position.
func (p *Position) earnDividend(d Dividend) DividendOwed {
	return DividendOwed{
		Instrument: p.Instrument,
		Amount:     d.Amount.Mul(p.Amount),
		PayDate:    d.PayDate,
	}
}

// earnStockDividend records the share obligation created by holding through
// the ex-date. It does not mutate the position.
func (p *Position) earnStockDividend(d StockDividend) StockDividendOwed {
	return StockDividendOwed{
		Payment:    d.Payment,
		ShareCount: p.Amount.Mul(d.Ratio).Floor(),
		PayDate:    d.PayDate,
	}
}
