package backtest

import (
	"errors"
	"testing"
	"time"
)

func TestPositionBook_ExecuteTransaction_RemovesAtZero(t *testing.T) {
	testCases := []struct {
		name     string
		amounts  []float64
		wantHeld bool
	}{
		{"open long", []float64{10}, true},
		{"closed exactly", []float64{10, -10}, false},
		{"partial close", []float64{10, -4}, true},
		{"flip", []float64{10, -25}, true},
		{"round trip in pieces", []float64{10, -4, -6}, false},
		{"short closed", []float64{-5, 5}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			book := NewPositionBook("USD")
			for i, amount := range tc.amounts {
				book.ExecuteTransaction(fill(aapl, amount, 100, sessionT0.Add(time.Duration(i)*time.Minute)))
			}
			_, held := book.Position("AAPL")
			if held != tc.wantHeld {
				t.Errorf("held = %v, want %v", held, tc.wantHeld)
			}
		})
	}
}

func TestPositionBook_UpdatePosition_PartialUpdate(t *testing.T) {
	book := NewPositionBook("USD")

	amount := Q(10)
	price := USD(42)
	book.UpdatePosition(aapl, PositionUpdate{Amount: &amount, LastSalePrice: &price})

	pos, ok := book.Position("AAPL")
	if !ok {
		t.Fatal("position not created")
	}
	if !pos.Amount.Equal(Q(10)) || !pos.LastSalePrice.Equal(USD(42)) {
		t.Fatalf("got amount %v price %v", pos.Amount, pos.LastSalePrice)
	}

	// Only the supplied field moves.
	newPrice := USD(50)
	book.UpdatePosition(aapl, PositionUpdate{LastSalePrice: &newPrice})
	pos, _ = book.Position("AAPL")
	if !pos.Amount.Equal(Q(10)) {
		t.Errorf("Amount = %v, want 10", pos.Amount)
	}
	if !pos.LastSalePrice.Equal(USD(50)) {
		t.Errorf("LastSalePrice = %v, want 50", pos.LastSalePrice)
	}
}

func TestPositionBook_HandleCommission_NotHeld(t *testing.T) {
	book := NewPositionBook("USD")
	book.ExecuteTransaction(fill(aapl, 10, 100, sessionT0))

	// Commission on an unheld instrument is a no-op.
	book.HandleCommission(goog, USD(10))
	if _, ok := book.Position("GOOG"); ok {
		t.Error("commission must not create a position")
	}

	book.HandleCommission(aapl, USD(10))
	pos, _ := book.Position("AAPL")
	if !pos.CostBasis.Equal(USD(101)) {
		t.Errorf("CostBasis = %v, want 101", pos.CostBasis)
	}
}

func TestPositionBook_HandleSplits(t *testing.T) {
	book := NewPositionBook("USD")
	book.ExecuteTransaction(fill(aapl, 7, 10, sessionT0))
	book.ExecuteTransaction(fill(goog, 3, 12, sessionT0))

	total := book.HandleSplits([]Split{
		{Instrument: aapl, Ratio: Q(0.5)},       // divides evenly, no leftover
		{Instrument: goog, Ratio: Q(2.0 / 3.0)}, // 3 -> 4.5 shares, 0.5 share leftover
		{Instrument: msft, Ratio: Q(0.5)},       // not held, skipped
	})

	pos, _ := book.Position("AAPL")
	if !pos.Amount.Equal(Q(14)) || !pos.CostBasis.Equal(USD(5)) {
		t.Errorf("AAPL after split: amount %v basis %v, want 14 and 5", pos.Amount, pos.CostBasis)
	}

	// GOOG leftover is 0.5 * (2/3) * 12 = 4.
	if !almostEqual(total.AsFloat(), 4) {
		t.Errorf("total leftover = %v, want 4", total)
	}
}

func TestPositionBook_Dividends(t *testing.T) {
	payDate := MustParse("2025-03-20")

	book := NewPositionBook("USD")
	book.ExecuteTransaction(fill(aapl, 40, 100, sessionT0))

	err := book.EarnDividends(
		[]Dividend{{Instrument: aapl, Amount: USD(0.25), PayDate: payDate}},
		[]StockDividend{{Instrument: aapl, Payment: goog, Ratio: Q(0.1), PayDate: payDate}},
	)
	if err != nil {
		t.Fatalf("EarnDividends: %v", err)
	}

	// Nothing is due before the pay date.
	if got := book.PayDividends(payDate.Add(-1)); !got.IsZero() {
		t.Errorf("early PayDividends = %v, want 0", got)
	}

	if got := book.PayDividends(payDate); !got.Equal(USD(10)) {
		t.Errorf("PayDividends = %v, want 10", got)
	}
	// Stock dividend delivered 4 GOOG shares.
	pos, ok := book.Position("GOOG")
	if !ok || !pos.Amount.Equal(Q(4)) {
		t.Errorf("GOOG amount = %v, want 4", pos.Amount)
	}

	// Obligations are consumed exactly once.
	if got := book.PayDividends(payDate); !got.IsZero() {
		t.Errorf("second PayDividends = %v, want 0", got)
	}
}

func TestPositionBook_EarnDividends_NotHeld(t *testing.T) {
	book := NewPositionBook("USD")

	err := book.EarnDividends([]Dividend{{Instrument: aapl, Amount: USD(1), PayDate: MustParse("2025-03-20")}}, nil)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("err = %v, want ErrPositionNotFound", err)
	}

	book.ExecuteTransaction(fill(aapl, 1, 10, sessionT0))
	err = book.EarnDividends(nil, []StockDividend{{Instrument: goog, Payment: aapl, Ratio: Q(1), PayDate: MustParse("2025-03-20")}})
	if !errors.Is(err, ErrPositionNotFound) {
		t.Fatalf("err = %v, want ErrPositionNotFound", err)
	}
}

func TestPositionBook_MaybeCreateClosePositionTransaction(t *testing.T) {
	book := NewPositionBook("USD")

	if txn := book.MaybeCreateClosePositionTransaction(aapl, sessionT0, spotPrices(nil)); txn != nil {
		t.Fatalf("not held: txn = %v, want nil", txn)
	}

	book.ExecuteTransaction(fill(aapl, 10, 100, sessionT0))

	t.Run("spot price", func(t *testing.T) {
		txn := book.MaybeCreateClosePositionTransaction(aapl, sessionT0, spotPrices(map[string]Money{"AAPL": USD(105)}))
		if txn == nil {
			t.Fatal("txn = nil, want a closing transaction")
		}
		if !txn.Amount.Equal(Q(-10)) || !txn.Price.Equal(USD(105)) {
			t.Errorf("txn = %+v, want amount -10 at 105", txn)
		}
	})

	t.Run("falls back to last sale price", func(t *testing.T) {
		txn := book.MaybeCreateClosePositionTransaction(aapl, sessionT0, spotPrices(nil))
		if txn == nil {
			t.Fatal("txn = nil, want a closing transaction")
		}
		if !txn.Price.Equal(USD(100)) {
			t.Errorf("price = %v, want last sale 100", txn.Price)
		}
	})

	// Building the transaction must not mutate the book.
	pos, _ := book.Position("AAPL")
	if !pos.Amount.Equal(Q(10)) {
		t.Errorf("Amount = %v, want 10", pos.Amount)
	}
}

func TestPositionBook_SyncLastSalePrices(t *testing.T) {
	book := NewPositionBook("USD")
	book.ExecuteTransaction(fill(aapl, 10, 100, sessionT0))
	book.ExecuteTransaction(fill(goog, 5, 200, sessionT0))

	// GOOG has no defined price at this instant and keeps its last sale.
	book.SyncLastSalePrices(sessionT0.Add(time.Minute), spotPrices(map[string]Money{"AAPL": USD(110)}), false)

	pos, _ := book.Position("AAPL")
	if !pos.LastSalePrice.Equal(USD(110)) {
		t.Errorf("AAPL = %v, want 110", pos.LastSalePrice)
	}
	pos, _ = book.Position("GOOG")
	if !pos.LastSalePrice.Equal(USD(200)) {
		t.Errorf("GOOG = %v, want 200", pos.LastSalePrice)
	}

	// Non-trading minutes use the adjusted price.
	book.SyncLastSalePrices(sessionT0.Add(2*time.Minute), stubPriceSource{adjusted: map[string]Money{"AAPL": USD(111)}}, true)
	pos, _ = book.Position("AAPL")
	if !pos.LastSalePrice.Equal(USD(111)) {
		t.Errorf("AAPL adjusted = %v, want 111", pos.LastSalePrice)
	}
}

func TestPositionBook_Stats(t *testing.T) {
	book := NewPositionBook("USD")
	book.ExecuteTransaction(fill(aapl, 10, 10, sessionT0))  // long, exposure 100
	book.ExecuteTransaction(fill(goog, 20, 10, sessionT0))  // long, exposure 200
	book.ExecuteTransaction(fill(msft, -5, 10, sessionT0))  // short, exposure -50
	book.ExecuteTransaction(fill(esf, 2, 50, sessionT0))    // future, exposure 2*50*5=500, value 0

	stats := book.Stats()

	// Long exposure sums over every long position, futures included.
	if !stats.LongExposure.Equal(USD(800)) {
		t.Errorf("LongExposure = %v, want 800", stats.LongExposure)
	}
	if !stats.ShortExposure.Equal(USD(-50)) {
		t.Errorf("ShortExposure = %v, want -50", stats.ShortExposure)
	}
	// Futures carry no balance-sheet value.
	if !stats.LongValue.Equal(USD(300)) {
		t.Errorf("LongValue = %v, want 300", stats.LongValue)
	}
	if !stats.NetValue.Equal(USD(250)) {
		t.Errorf("NetValue = %v, want 250", stats.NetValue)
	}
	if !stats.NetExposure.Equal(USD(750)) {
		t.Errorf("NetExposure = %v, want 750", stats.NetExposure)
	}
	if !stats.GrossExposure.Equal(USD(850)) {
		t.Errorf("GrossExposure = %v, want 850", stats.GrossExposure)
	}
	if !stats.GrossValue.Equal(USD(350)) {
		t.Errorf("GrossValue = %v, want 350", stats.GrossValue)
	}
	if stats.LongsCount != 3 || stats.ShortsCount != 1 {
		t.Errorf("counts = %d/%d, want 3/1", stats.LongsCount, stats.ShortsCount)
	}
}

func TestPositionBook_Stats_Cached(t *testing.T) {
	book := NewPositionBook("USD")
	book.ExecuteTransaction(fill(aapl, 10, 10, sessionT0))

	before := book.Stats()
	if got := book.Stats(); got != before {
		t.Errorf("unchanged book recomputed stats: %+v != %+v", got, before)
	}

	book.ExecuteTransaction(fill(aapl, 10, 20, sessionT0.Add(time.Minute)))
	after := book.Stats()
	if !after.NetValue.Equal(USD(400)) {
		t.Errorf("NetValue = %v, want 400 after mutation", after.NetValue)
	}
}
