package backtest

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"time"
)

// ErrNotFound reports a journal query for a timestamp bucket that holds no
// transactions or orders.
var ErrNotFound = errors.New("not found")

// payoutRef is the reference price against which the next mark-to-market
// payout of a leveraged instrument settles: the execution price of the most
// recent transaction, or of the first one when the position was opened.
type payoutRef struct {
	inst  Instrument
	price Money
}

// Ledger tracks all orders and transactions as well as the current state of
// the portfolio and positions.
//
// The ledger is driven by a sequential simulation loop: one batch of events
// per simulated time-step, then snapshot reads before the clock advances.
// Nothing is concurrent; consistency of the lazy Portfolio and Account
// snapshots rests on generation counters, not locks. Every mutating entry
// point bumps the ledger generation; a snapshot read recomputes only when its
// recorded generation lags, so a read reflects exactly the mutations applied
// before it.
type Ledger struct {
	book *PositionBook

	sessions             []Date
	dailyReturns         *History[float64]
	previousTotalReturns float64

	portfolio Portfolio
	account   Account
	overrides AccountOverrides

	// gen counts portfolio-affecting mutations. portfolioGen and accountGen
	// are the generations the cached snapshots were synced at; the account
	// additionally tracks the override set's generation. The account lags
	// whenever the portfolio does, so marking the portfolio stale implicitly
	// marks the account stale; syncing the portfolio does not sync the
	// account.
	gen                uint64
	portfolioGen       uint64
	overrideGen        uint64
	accountGen         uint64
	accountOverrideGen uint64

	// Keyed by symbol: the reference price for mark-to-market payouts of
	// leveraged instruments.
	payoutLastSalePrices map[string]payoutRef

	// Session-scoped journals, cleared by EndOfSession.
	processedTransactions map[int64][]Record
	transactionKeys       []int64 // bucket keys in first-appearance order
	ordersByModified      map[int64]*orderJournal
	ordersByID            *orderJournal
}

// New creates a ledger over the given trading sessions with the given
// starting capital.
func New(sessions []Date, capitalBase Money) *Ledger {
	l := &Ledger{
		book:         NewPositionBook(capitalBase.Currency()),
		sessions:     sessions,
		dailyReturns: &History[float64]{},

		portfolio: newPortfolio(capitalBase),

		gen:          1,
		portfolioGen: 1, // the initial snapshot is consistent
		accountGen:   0, // the first Account read computes the defaults

		payoutLastSalePrices:  make(map[string]payoutRef),
		processedTransactions: make(map[int64][]Record),
		ordersByModified:      make(map[int64]*orderJournal),
		ordersByID:            newOrderJournal(),
	}
	// Sessions not yet closed by EndOfSession hold NaN.
	for _, s := range sessions {
		l.dailyReturns.Append(s, math.NaN())
	}
	return l
}

// Book returns the ledger's position book.
func (l *Ledger) Book() *PositionBook { return l.book }

// Sessions returns the simulated sessions the ledger was created over.
func (l *Ledger) Sessions() []Date { return l.sessions }

// markPortfolioStale records a mutation, forcing the next Portfolio (and
// therefore Account) read to recompute.
func (l *Ledger) markPortfolioStale() { l.gen++ }

// journalKey normalizes a timestamp into a journal bucket key.
func journalKey(dt time.Time) int64 { return dt.UnixNano() }

// executionCashFlow is the immediate cash effect of a fill: -price*amount for
// ordinary instruments, zero for leveraged instruments whose cash effect is
// realized through mark-to-market payouts instead.
func executionCashFlow(txn Transaction) Money {
	if txn.Instrument.Leveraged() {
		return M(0, txn.Price.Currency())
	}
	return txn.Price.Mul(txn.Amount).Neg()
}

// calculatePayout settles the price move of a leveraged position since the
// last reference price.
func calculatePayout(multiplier, amount Quantity, oldPrice, price Money) Money {
	return price.Sub(oldPrice).Mul(amount).Mul(multiplier)
}

// ProcessTransaction adds a transaction to the ledger, updating the current
// state as needed.
//
// For a leveraged instrument, the first transaction records its execution
// price as the payout reference with no cash effect; each subsequent
// transaction first settles (price - reference) * multiplier * held amount
// into cash flow, using the amount held before this transaction's own delta,
// then moves the reference to the new execution price. The reference is
// dropped when the position closes to zero.
func (l *Ledger) ProcessTransaction(txn Transaction) {
	inst := txn.Instrument
	if inst.Leveraged() {
		if ref, ok := l.payoutLastSalePrices[inst.Symbol]; !ok {
			l.payoutLastSalePrices[inst.Symbol] = payoutRef{inst: inst, price: txn.Price}
		} else {
			pos, _ := l.book.Position(inst.Symbol)
			payout := calculatePayout(inst.multiplier(), pos.Amount, ref.price, txn.Price)
			l.portfolio.CashFlow = l.portfolio.CashFlow.Add(payout)

			if pos.Amount.Add(txn.Amount).IsZero() {
				delete(l.payoutLastSalePrices, inst.Symbol)
			} else {
				l.payoutLastSalePrices[inst.Symbol] = payoutRef{inst: inst, price: txn.Price}
			}
		}
	}

	l.book.ExecuteTransaction(txn)

	l.markPortfolioStale()
	l.portfolio.CashFlow = l.portfolio.CashFlow.Add(executionCashFlow(txn))

	// Only the flattened form is journaled.
	key := journalKey(txn.Dt)
	if _, ok := l.processedTransactions[key]; !ok {
		l.transactionKeys = append(l.transactionKeys, key)
	}
	l.processedTransactions[key] = append(l.processedTransactions[key], txn.Flatten())
}

// ProcessSplits applies the splits to any held positions. Leftover cash from
// fractional shares is added to cash flow; a zero leftover leaves the ledger
// untouched.
func (l *Ledger) ProcessSplits(splits []Split) {
	leftoverCash := l.book.HandleSplits(splits)
	if leftoverCash.IsPositive() {
		l.markPortfolioStale()
		l.portfolio.CashFlow = l.portfolio.CashFlow.Add(leftoverCash)
	}
}

// ProcessOrder records an order modification. Both journals preserve
// last-modification order: re-recording an existing order id moves its entry
// to the end.
func (l *Ledger) ProcessOrder(order Order) {
	rec := order.Flatten()

	key := journalKey(order.Dt)
	dtOrders, ok := l.ordersByModified[key]
	if !ok {
		dtOrders = newOrderJournal()
		l.ordersByModified[key] = dtOrders
	}
	dtOrders.Put(order.ID, rec)
	l.ordersByID.Put(order.ID, rec)
}

// ProcessCommission charges a commission: the held position's cost basis is
// adjusted and the cost is taken out of cash flow.
func (l *Ledger) ProcessCommission(c Commission) {
	l.book.HandleCommission(c.Instrument, c.Cost)
	l.markPortfolioStale()
	l.portfolio.CashFlow = l.portfolio.CashFlow.Sub(c.Cost)
}

// ClosePosition closes out the instrument's position, if held, with a
// synthetic transaction at the current spot price (or last sale price when
// the spot price is undefined).
func (l *Ledger) ClosePosition(inst Instrument, at time.Time, prices PriceSource) {
	txn := l.book.MaybeCreateClosePositionTransaction(inst, at, prices)
	if txn != nil {
		l.ProcessTransaction(*txn)
	}
}

// ProcessDividends earns any dividends whose ex-date is the next session and
// pays out any dividends whose pay-date is the next session. The pay phase
// runs even when nothing is currently held: it may release dividends earned
// on a previous call.
func (l *Ledger) ProcessDividends(nextSession Date, dir InstrumentDirectory, schedule DividendSource) error {
	held := l.book.Held()
	if len(held) > 0 {
		cashDividends := schedule.DividendsWithExDate(held, nextSession, dir)
		stockDividends := schedule.StockDividendsWithExDate(held, nextSession, dir)

		// Earning only marks the obligation for the pay-date; cash is not
		// affected yet.
		if err := l.book.EarnDividends(cashDividends, stockDividends); err != nil {
			return err
		}
	}

	l.markPortfolioStale()
	l.portfolio.CashFlow = l.portfolio.CashFlow.Add(l.book.PayDividends(nextSession))
	return nil
}

// CapitalChange applies an exogenous capital injection or withdrawal: cash
// and portfolio value move together, pnl and returns are untouched, and the
// cached snapshots stay valid.
func (l *Ledger) CapitalChange(amount Money) {
	l.portfolio.PortfolioValue = l.portfolio.PortfolioValue.Add(amount)
	l.portfolio.Cash = l.portfolio.Cash.Add(amount)
}

// SyncLastSalePrices refreshes the last sale prices of all held positions
// from the price source.
func (l *Ledger) SyncLastSalePrices(at time.Time, prices PriceSource, allowNonTradingMinutes bool) {
	l.book.SyncLastSalePrices(at, prices, allowNonTradingMinutes)
	l.markPortfolioStale()
}

// EndOfSession computes the completed session's return from today's and
// yesterday's cumulative returns, records it in the daily returns series, and
// resets the session-scoped journals.
func (l *Ledger) EndOfSession(session Date) {
	currentTotalReturns := l.Portfolio().Returns
	l.dailyReturns.Append(session,
		(1+currentTotalReturns)/(1+l.previousTotalReturns)-1)
	l.previousTotalReturns = currentTotalReturns

	l.processedTransactions = make(map[int64][]Record)
	l.transactionKeys = nil
	l.ordersByModified = make(map[int64]*orderJournal)
	l.ordersByID = newOrderJournal()
}

// DailyReturns returns an iterator over the per-session returns, in session
// order. Sessions not yet closed by EndOfSession hold NaN.
func (l *Ledger) DailyReturns() iter.Seq2[Date, float64] {
	return l.dailyReturns.Values()
}

// DailyReturn returns the recorded return for one session. Open sessions
// hold NaN.
func (l *Ledger) DailyReturn(session Date) (float64, bool) {
	return l.dailyReturns.Get(session)
}

// Transactions returns the flattened form of all transactions processed since
// the last session end, across all timestamps.
func (l *Ledger) Transactions() []Record {
	var out []Record
	for _, key := range l.transactionKeys {
		out = append(out, l.processedTransactions[key]...)
	}
	return out
}

// TransactionsAt returns the flattened transactions processed at exactly the
// given timestamp, or ErrNotFound if that bucket is empty.
func (l *Ledger) TransactionsAt(dt time.Time) ([]Record, error) {
	recs, ok := l.processedTransactions[journalKey(dt)]
	if !ok {
		return nil, fmt.Errorf("no transactions at %s: %w", dt, ErrNotFound)
	}
	return recs, nil
}

// Orders returns the latest flattened form of every order recorded since the
// last session end, in last-modification order.
func (l *Ledger) Orders() []Record {
	return l.ordersByID.Records()
}

// OrdersAt returns the orders modified at exactly the given timestamp, in
// per-timestamp modification order, or ErrNotFound if that bucket is empty.
func (l *Ledger) OrdersAt(dt time.Time) ([]Record, error) {
	j, ok := l.ordersByModified[journalKey(dt)]
	if !ok {
		return nil, fmt.Errorf("no orders at %s: %w", dt, ErrNotFound)
	}
	return j.Records(), nil
}

// payoutTotal is the mark-to-market payout outstanding across all leveraged
// positions: the move from each reference price to the current last sale
// price, scaled by multiplier and held amount.
func (l *Ledger) payoutTotal() Money {
	total := M(0, l.book.currency)
	for symbol, ref := range l.payoutLastSalePrices {
		pos, ok := l.book.Position(symbol)
		if !ok {
			continue
		}
		total = total.Add(calculatePayout(
			ref.inst.multiplier(),
			pos.Amount,
			ref.price,
			pos.LastSalePrice,
		))
	}
	return total
}
