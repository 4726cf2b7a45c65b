package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/etnz/backtest"
	"gopkg.in/yaml.v3"
)

// scenario is the YAML description of a replay: a session calendar, an
// instrument universe, a close price table, and the dated market events to
// feed through the ledger.
type scenario struct {
	Currency    string               `yaml:"currency"`
	CapitalBase float64              `yaml:"capital_base"`
	Sessions    []backtest.Date      `yaml:"sessions"`
	Instruments []scenarioInstrument `yaml:"instruments"`

	// Prices maps symbol -> session date -> closing price.
	Prices map[string]map[string]float64 `yaml:"prices"`

	Fills       []scenarioFill     `yaml:"fills"`
	Dividends   []scenarioDividend `yaml:"dividends"`
	Splits      []scenarioSplit    `yaml:"splits"`
	Withdrawals []scenarioCapital  `yaml:"capital_changes"`
}

type scenarioInstrument struct {
	Symbol     string  `yaml:"symbol"`
	Kind       string  `yaml:"kind"`
	Multiplier float64 `yaml:"multiplier"`
}

type scenarioFill struct {
	Session    backtest.Date `yaml:"session"`
	Symbol     string        `yaml:"symbol"`
	Amount     float64       `yaml:"amount"`
	Price      float64       `yaml:"price"`
	Commission float64       `yaml:"commission"`
}

type scenarioDividend struct {
	Symbol  string        `yaml:"symbol"`
	Amount  float64       `yaml:"amount"`
	Payment string        `yaml:"payment"` // set for stock dividends: the delivered symbol
	Ratio   float64       `yaml:"ratio"`
	ExDate  backtest.Date `yaml:"ex_date"`
	PayDate backtest.Date `yaml:"pay_date"`
}

type scenarioSplit struct {
	Session backtest.Date `yaml:"session"`
	Symbol  string        `yaml:"symbol"`
	Ratio   float64       `yaml:"ratio"`
}

type scenarioCapital struct {
	Session backtest.Date `yaml:"session"`
	Amount  float64       `yaml:"amount"`
}

func loadScenario(path string) (*scenario, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s scenario
	if err := yaml.Unmarshal(buf, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %q: %w", path, err)
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if len(s.Sessions) == 0 {
		return nil, fmt.Errorf("scenario %q declares no sessions", path)
	}
	return &s, nil
}

// directory builds the instrument universe declared by the scenario.
func (s *scenario) directory() (directory, error) {
	dir := directory{}
	for _, si := range s.Instruments {
		kind, err := backtest.ParseKind(si.Kind)
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", si.Symbol, err)
		}
		switch kind {
		case backtest.Future:
			mult := si.Multiplier
			if mult == 0 {
				mult = 1
			}
			dir[si.Symbol] = backtest.NewFuture(si.Symbol, mult)
		default:
			dir[si.Symbol] = backtest.NewEquity(si.Symbol)
		}
	}
	return dir, nil
}

func (s *scenario) sessions() []backtest.Date {
	days := append([]backtest.Date(nil), s.Sessions...)
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// directory resolves symbols declared in the scenario.
type directory map[string]backtest.Instrument

func (d directory) Lookup(symbol string) (backtest.Instrument, bool) {
	inst, ok := d[symbol]
	return inst, ok
}

// closeTable serves the scenario's per-session closing prices. Spot and
// adjusted queries both resolve to the close of the query's calendar day;
// symbols or days missing from the table are undefined.
type closeTable struct {
	currency string
	prices   map[string]map[string]float64
}

func (t *closeTable) lookup(inst backtest.Instrument, at time.Time) (backtest.Money, bool) {
	days, ok := t.prices[inst.Symbol]
	if !ok {
		return backtest.Money{}, false
	}
	key := at.UTC().Format("2006-01-02")
	v, ok := days[key]
	if !ok {
		return backtest.Money{}, false
	}
	return backtest.M(v, t.currency), true
}

func (t *closeTable) SpotPrice(inst backtest.Instrument, at time.Time) (backtest.Money, bool) {
	return t.lookup(inst, at)
}

func (t *closeTable) AdjustedPrice(inst backtest.Instrument, start, end, at time.Time) (backtest.Money, bool) {
	return t.lookup(inst, at)
}

// dividendTable serves the scenario's declared dividends, filtered the way
// the ledger asks for them: by ex-date, restricted to held instruments.
type dividendTable struct {
	cash  []backtest.Dividend
	stock []backtest.StockDividend
}

func (s *scenario) dividendTable(dir directory) (*dividendTable, error) {
	t := &dividendTable{}
	for _, d := range s.Dividends {
		inst, ok := dir.Lookup(d.Symbol)
		if !ok {
			return nil, fmt.Errorf("dividend on undeclared instrument %q", d.Symbol)
		}
		if d.Payment != "" {
			payment, ok := dir.Lookup(d.Payment)
			if !ok {
				return nil, fmt.Errorf("stock dividend pays undeclared instrument %q", d.Payment)
			}
			t.stock = append(t.stock, backtest.StockDividend{
				Instrument: inst,
				Payment:    payment,
				Ratio:      backtest.Q(d.Ratio),
				ExDate:     d.ExDate,
				PayDate:    d.PayDate,
			})
		} else {
			t.cash = append(t.cash, backtest.Dividend{
				Instrument: inst,
				Amount:     backtest.M(d.Amount, s.Currency),
				ExDate:     d.ExDate,
				PayDate:    d.PayDate,
			})
		}
	}
	return t, nil
}

func holds(held []backtest.Instrument, symbol string) bool {
	for _, h := range held {
		if h.Symbol == symbol {
			return true
		}
	}
	return false
}

func (t *dividendTable) DividendsWithExDate(held []backtest.Instrument, session backtest.Date, dir backtest.InstrumentDirectory) []backtest.Dividend {
	var out []backtest.Dividend
	for _, d := range t.cash {
		if d.ExDate == session && holds(held, d.Instrument.Symbol) {
			out = append(out, d)
		}
	}
	return out
}

func (t *dividendTable) StockDividendsWithExDate(held []backtest.Instrument, session backtest.Date, dir backtest.InstrumentDirectory) []backtest.StockDividend {
	var out []backtest.StockDividend
	for _, d := range t.stock {
		if d.ExDate == session && holds(held, d.Instrument.Symbol) {
			out = append(out, d)
		}
	}
	return out
}
