// Package renderer formats ledger state as markdown reports.
package renderer

import (
	"bytes"
	"fmt"
	"iter"
	"math"

	"github.com/etnz/backtest"
	md "github.com/nao1215/markdown"
)

// PortfolioMarkdown renders the portfolio snapshot for a session.
func PortfolioMarkdown(session backtest.Date, p backtest.Portfolio) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1(fmt.Sprintf("Portfolio on %s", session))

	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{"Field", "Value"},
		Rows: [][]string{
			{"Starting Cash", p.StartingCash.String()},
			{"Cash Flow", p.CashFlow.String()},
			{"Cash", p.Cash.String()},
			{"Positions Value", p.PositionsValue.String()},
			{"Positions Exposure", p.PositionsExposure.String()},
			{"Portfolio Value", p.PortfolioValue.String()},
			{"PnL", p.PnL.String()},
			{"Returns", formatReturn(p.Returns)},
		},
	})

	return doc.String()
}

// AccountMarkdown renders the broker account view.
func AccountMarkdown(a backtest.Account) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Account")

	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{"Field", "Value"},
		Rows: [][]string{
			{"Settled Cash", a.SettledCash.String()},
			{"Accrued Interest", a.AccruedInterest.String()},
			{"Buying Power", formatScalar(a.BuyingPower)},
			{"Equity With Loan", a.EquityWithLoan.String()},
			{"Total Positions Value", a.TotalPositionsValue.String()},
			{"Total Positions Exposure", a.TotalPositionsExposure.String()},
			{"RegT Equity", a.RegTEquity.String()},
			{"RegT Margin", formatScalar(a.RegTMargin)},
			{"Initial Margin Req.", formatScalar(a.InitialMarginRequirement)},
			{"Maintenance Margin Req.", formatScalar(a.MaintenanceMarginRequirement)},
			{"Available Funds", a.AvailableFunds.String()},
			{"Excess Liquidity", a.ExcessLiquidity.String()},
			{"Cushion", formatScalar(a.Cushion)},
			{"Day Trades Remaining", formatScalar(a.DayTradesRemaining)},
			{"Net Liquidation", a.NetLiquidation.String()},
			{"Gross Leverage", formatScalar(a.GrossLeverage)},
			{"Net Leverage", formatScalar(a.NetLeverage)},
		},
	})

	return doc.String()
}

// PositionsMarkdown renders the open positions table. An empty book renders a
// short note instead of an empty table.
func PositionsMarkdown(positions []backtest.Position) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H2("Positions")
	if len(positions) == 0 {
		doc.PlainText("No open positions.")
		return doc.String()
	}

	rows := make([][]string, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, []string{
			p.Instrument.String(),
			p.Amount.String(),
			p.CostBasis.String(),
			p.LastSalePrice.String(),
		})
	}
	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight},
		Header:    []string{"Instrument", "Amount", "Cost Basis", "Last Sale"},
		Rows:      rows,
	})

	return doc.String()
}

// DailyReturnsMarkdown renders the daily returns series. Sessions that have
// not been closed yet carry a NaN and render as a dash.
func DailyReturnsMarkdown(returns iter.Seq2[backtest.Date, float64]) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H2("Daily Returns")

	var rows [][]string
	for day, r := range returns {
		rows = append(rows, []string{day.String(), formatReturn(r)})
	}
	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight},
		Header:    []string{"Session", "Return"},
		Rows:      rows,
	})

	return doc.String()
}

func formatReturn(r float64) string {
	if math.IsNaN(r) {
		return "-"
	}
	return fmt.Sprintf("%+.4f%%", r*100)
}

func formatScalar(v float64) string {
	if math.IsInf(v, 1) {
		return "unlimited"
	}
	if math.IsInf(v, -1) {
		return "-unlimited"
	}
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
