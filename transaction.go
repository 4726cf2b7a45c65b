package backtest

import "time"

// Record is the flattened field-to-value form of an event, the shape kept in
// the ledger journals and returned by the query API.
type Record map[string]any

// Transaction is a fill: a signed quantity executed at a price at a given instant.
// Transactions arrive already validated; the ledger performs no revalidation.
type Transaction struct {
	Instrument Instrument
	Amount     Quantity
	Price      Money
	Dt         time.Time
	OrderID    string
}

// Flatten returns the journaled form of the transaction.
func (t Transaction) Flatten() Record {
	return Record{
		"symbol":   t.Instrument.Symbol,
		"amount":   t.Amount,
		"price":    t.Price,
		"dt":       t.Dt,
		"order_id": t.OrderID,
	}
}

// Order is the journaled state of an order at one modification instant.
type Order struct {
	ID         string
	Dt         time.Time
	Instrument Instrument
	Amount     Quantity
	Filled     Quantity
	Commission Money
	Status     string
}

// Flatten returns the journaled form of the order.
func (o Order) Flatten() Record {
	return Record{
		"id":         o.ID,
		"dt":         o.Dt,
		"symbol":     o.Instrument.Symbol,
		"amount":     o.Amount,
		"filled":     o.Filled,
		"commission": o.Commission,
		"status":     o.Status,
	}
}

// Commission is a charge against an order's instrument.
type Commission struct {
	Instrument Instrument
	Cost       Money
	OrderID    string
}

// Split rescales a position. Ratio is the price ratio: 0.5 for a 2-for-1 split.
type Split struct {
	Instrument Instrument
	Ratio      Quantity
}

// Dividend is a scheduled cash dividend: Amount is paid per share held on the
// ex-date, delivered on the pay-date.
type Dividend struct {
	Instrument Instrument
	Amount     Money // per share
	ExDate     Date
	PayDate    Date
}

// StockDividend is a scheduled dividend paid in shares of Payment: Ratio
// shares per share held on the ex-date, delivered on the pay-date.
type StockDividend struct {
	Instrument Instrument
	Payment    Instrument
	Ratio      Quantity
	ExDate     Date
	PayDate    Date
}

// DividendOwed is the obligation recorded when a cash dividend is earned.
type DividendOwed struct {
	Instrument Instrument
	Amount     Money
	PayDate    Date
}

// StockDividendOwed is the obligation recorded when a stock dividend is earned.
type StockDividendOwed struct {
	Payment    Instrument
	ShareCount Quantity
	PayDate    Date
}
