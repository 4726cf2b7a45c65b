package backtest

// Portfolio is the derived read model of the ledger's value: cash, position
// value, pnl and compounded returns. It is owned by the Ledger and rebuilt in
// place; all fields are written by one recomputation pass before the snapshot
// is published.
type Portfolio struct {
	StartingCash      Money
	CashFlow          Money
	Cash              Money
	PositionsValue    Money
	PositionsExposure Money
	PortfolioValue    Money
	PnL               Money
	Returns           float64
}

func newPortfolio(capitalBase Money) Portfolio {
	zero := M(0, capitalBase.Currency())
	return Portfolio{
		StartingCash:      capitalBase,
		CashFlow:          zero,
		Cash:              capitalBase,
		PositionsValue:    zero,
		PositionsExposure: zero,
		PortfolioValue:    capitalBase,
		PnL:               zero,
	}
}

// Portfolio returns the current portfolio snapshot.
//
// The snapshot is cached: repeated reads do not recompute it until the ledger
// has changed.
func (l *Ledger) Portfolio() Portfolio {
	if l.portfolioGen == l.gen {
		// No changes since the last read.
		return l.portfolio
	}

	p := &l.portfolio
	stats := l.book.Stats()

	p.PositionsValue = stats.NetValue
	p.PositionsExposure = stats.NetExposure

	p.Cash = p.StartingCash.Add(p.CashFlow).Add(l.payoutTotal())

	startValue := p.PortfolioValue
	p.PortfolioValue = p.Cash.Add(p.PositionsValue)

	pnl := p.PortfolioValue.Sub(startValue)
	var returns float64
	if !startValue.IsZero() {
		returns = pnl.DivPrice(startValue).AsFloat()
	}

	p.PnL = p.PnL.Add(pnl)
	p.Returns = (1+p.Returns)*(1+returns) - 1

	// The portfolio is now fully synced.
	l.portfolioGen = l.gen
	return l.portfolio
}
