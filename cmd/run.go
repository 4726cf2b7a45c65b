package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/etnz/backtest"
	"github.com/etnz/backtest/renderer"
	"github.com/google/subcommands"
	"github.com/google/uuid"
)

// runCmd holds the flags for the 'run' subcommand.
type runCmd struct {
	scenarioFile string
	eachSession  bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "replay a scenario file through the ledger" }
func (*runCmd) Usage() string {
	return `bts run -f <scenario.yaml> [-each]

  Replays the fills, dividends, splits and capital changes described in the
  scenario file, session by session, and prints the resulting portfolio,
  account and daily return reports.

Usage Examples:
# Replay a scenario and print the final report.
$ bts run -f scenario.yaml

# Also print a portfolio report after every session.
$ bts run -f scenario.yaml -each
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.scenarioFile, "f", "scenario.yaml", "Path to the scenario file")
	f.BoolVar(&c.eachSession, "each", false, "Print a portfolio report after every session")
}

func (c *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *runCmd) run() error {
	s, err := loadScenario(c.scenarioFile)
	if err != nil {
		return err
	}
	dir, err := s.directory()
	if err != nil {
		return err
	}
	sessions := s.sessions()
	warnOrphanEvents(s, sessions)
	dividends, err := s.dividendTable(dir)
	if err != nil {
		return err
	}
	prices := &closeTable{currency: s.Currency, prices: s.Prices}

	ledger := backtest.New(sessions, backtest.M(s.CapitalBase, s.Currency))

	for _, session := range sessions {
		if err := ledger.ProcessDividends(session, dir, dividends); err != nil {
			return fmt.Errorf("session %s: %w", session, err)
		}
		if err := c.applySplits(ledger, s, dir, session); err != nil {
			return err
		}
		c.applyCapitalChanges(ledger, s, session)
		if err := c.applyFills(ledger, s, dir, session); err != nil {
			return err
		}
		ledger.SyncLastSalePrices(sessionClose(session), prices, false)
		ledger.EndOfSession(session)

		if c.eachSession {
			printMarkdown(renderer.PortfolioMarkdown(session, ledger.Portfolio()))
		}
	}

	last := sessions[len(sessions)-1]
	var report strings.Builder
	report.WriteString(renderer.PortfolioMarkdown(last, ledger.Portfolio()))
	report.WriteString("\n")
	report.WriteString(renderer.PositionsMarkdown(ledger.Book().Positions()))
	report.WriteString("\n")
	report.WriteString(renderer.AccountMarkdown(ledger.Account()))
	report.WriteString("\n")
	report.WriteString(renderer.DailyReturnsMarkdown(ledger.DailyReturns()))
	printMarkdown(report.String())
	return nil
}

func (c *runCmd) applySplits(ledger *backtest.Ledger, s *scenario, dir directory, session backtest.Date) error {
	var splits []backtest.Split
	for _, sp := range s.Splits {
		if sp.Session != session {
			continue
		}
		inst, ok := dir.Lookup(sp.Symbol)
		if !ok {
			return fmt.Errorf("split on undeclared instrument %q", sp.Symbol)
		}
		splits = append(splits, backtest.Split{Instrument: inst, Ratio: backtest.Q(sp.Ratio)})
	}
	if len(splits) > 0 {
		ledger.ProcessSplits(splits)
	}
	return nil
}

func (c *runCmd) applyCapitalChanges(ledger *backtest.Ledger, s *scenario, session backtest.Date) {
	for _, cc := range s.Withdrawals {
		if cc.Session != session {
			continue
		}
		// Force a fresh snapshot so the patch lands on current numbers.
		ledger.Portfolio()
		ledger.CapitalChange(backtest.M(cc.Amount, s.Currency))
	}
}

func (c *runCmd) applyFills(ledger *backtest.Ledger, s *scenario, dir directory, session backtest.Date) error {
	// Fills execute in file order, spread over distinct minutes of the session.
	minute := 0
	for _, fl := range s.Fills {
		if fl.Session != session {
			continue
		}
		inst, ok := dir.Lookup(fl.Symbol)
		if !ok {
			return fmt.Errorf("fill on undeclared instrument %q", fl.Symbol)
		}

		dt := sessionOpen(session).Add(time.Duration(minute) * time.Minute)
		minute++

		order := backtest.Order{
			ID:         uuid.NewString(),
			Dt:         dt,
			Instrument: inst,
			Amount:     backtest.Q(fl.Amount),
			Status:     "open",
		}
		ledger.ProcessOrder(order)

		ledger.ProcessTransaction(backtest.Transaction{
			Instrument: inst,
			Amount:     backtest.Q(fl.Amount),
			Price:      backtest.M(fl.Price, s.Currency),
			Dt:         dt,
			OrderID:    order.ID,
		})

		order.Filled = order.Amount
		order.Status = "filled"
		if fl.Commission != 0 {
			order.Commission = backtest.M(fl.Commission, s.Currency)
			ledger.ProcessCommission(backtest.Commission{
				Instrument: inst,
				Cost:       order.Commission,
				OrderID:    order.ID,
			})
		}
		ledger.ProcessOrder(order)
	}
	return nil
}

// warnOrphanEvents reports scenario events dated outside the session
// calendar: they will never be replayed.
func warnOrphanEvents(s *scenario, sessions []backtest.Date) {
	inCalendar := make(map[backtest.Date]bool, len(sessions))
	for _, day := range sessions {
		inCalendar[day] = true
	}
	for _, fl := range s.Fills {
		if !inCalendar[fl.Session] {
			log.Printf("warning: fill on %s dated %s is outside the session calendar and will be skipped", fl.Symbol, fl.Session)
		}
	}
	for _, sp := range s.Splits {
		if !inCalendar[sp.Session] {
			log.Printf("warning: split on %s dated %s is outside the session calendar and will be skipped", sp.Symbol, sp.Session)
		}
	}
	for _, cc := range s.Withdrawals {
		if !inCalendar[cc.Session] {
			log.Printf("warning: capital change dated %s is outside the session calendar and will be skipped", cc.Session)
		}
	}
}

// Replays use a fixed intraday clock: fills start at 14:30 UTC and the close
// sync happens at 21:00 UTC.
func sessionOpen(session backtest.Date) time.Time {
	return session.Time().Add(14*time.Hour + 30*time.Minute)
}

func sessionClose(session backtest.Date) time.Time {
	return session.Time().Add(21 * time.Hour)
}
