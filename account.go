package backtest

import "math"

// Account is the derived margin/leverage read model. Each field is computed
// from the Portfolio snapshot by a fixed default formula unless an active
// override replaces it.
type Account struct {
	SettledCash                  Money
	AccruedInterest              Money
	BuyingPower                  float64
	EquityWithLoan               Money
	TotalPositionsValue          Money
	TotalPositionsExposure       Money
	RegTEquity                   Money
	RegTMargin                   float64
	InitialMarginRequirement     float64
	MaintenanceMarginRequirement float64
	AvailableFunds               Money
	ExcessLiquidity              Money
	Cushion                      float64
	DayTradesRemaining           float64
	NetLiquidation               Money
	GrossLeverage                float64
	NetLeverage                  float64
}

// AccountOverrides holds the account fields a broker layer wants to pin.
// Only non-nil fields replace their computed defaults; the set persists
// across recomputation until replaced by another OverrideAccountFields call.
type AccountOverrides struct {
	SettledCash                  *Money
	AccruedInterest              *Money
	BuyingPower                  *float64
	EquityWithLoan               *Money
	TotalPositionsValue          *Money
	TotalPositionsExposure       *Money
	RegTEquity                   *Money
	RegTMargin                   *float64
	InitialMarginRequirement     *float64
	MaintenanceMarginRequirement *float64
	AvailableFunds               *Money
	ExcessLiquidity              *Money
	Cushion                      *float64
	DayTradesRemaining           *float64
	NetLiquidation               *Money
	GrossLeverage                *float64
	NetLeverage                  *float64
}

// apply merges the overrides over the computed defaults.
func (o AccountOverrides) apply(a *Account) {
	if o.SettledCash != nil {
		a.SettledCash = *o.SettledCash
	}
	if o.AccruedInterest != nil {
		a.AccruedInterest = *o.AccruedInterest
	}
	if o.BuyingPower != nil {
		a.BuyingPower = *o.BuyingPower
	}
	if o.EquityWithLoan != nil {
		a.EquityWithLoan = *o.EquityWithLoan
	}
	if o.TotalPositionsValue != nil {
		a.TotalPositionsValue = *o.TotalPositionsValue
	}
	if o.TotalPositionsExposure != nil {
		a.TotalPositionsExposure = *o.TotalPositionsExposure
	}
	if o.RegTEquity != nil {
		a.RegTEquity = *o.RegTEquity
	}
	if o.RegTMargin != nil {
		a.RegTMargin = *o.RegTMargin
	}
	if o.InitialMarginRequirement != nil {
		a.InitialMarginRequirement = *o.InitialMarginRequirement
	}
	if o.MaintenanceMarginRequirement != nil {
		a.MaintenanceMarginRequirement = *o.MaintenanceMarginRequirement
	}
	if o.AvailableFunds != nil {
		a.AvailableFunds = *o.AvailableFunds
	}
	if o.ExcessLiquidity != nil {
		a.ExcessLiquidity = *o.ExcessLiquidity
	}
	if o.Cushion != nil {
		a.Cushion = *o.Cushion
	}
	if o.DayTradesRemaining != nil {
		a.DayTradesRemaining = *o.DayTradesRemaining
	}
	if o.NetLiquidation != nil {
		a.NetLiquidation = *o.NetLiquidation
	}
	if o.GrossLeverage != nil {
		a.GrossLeverage = *o.GrossLeverage
	}
	if o.NetLeverage != nil {
		a.NetLeverage = *o.NetLeverage
	}
}

// PeriodStats is the leverage triple derived from cash and exposure.
type PeriodStats struct {
	NetLiquidation Money
	GrossLeverage  float64
	NetLeverage    float64
}

// leverage is exposure over net liquidation. A net liquidation of zero is
// defined to yield infinite leverage, not an error.
func leverage(exposure, netLiquidation Money) float64 {
	if netLiquidation.IsZero() {
		return math.Inf(1)
	}
	return exposure.DivPrice(netLiquidation).AsFloat()
}

// CalculatePeriodStats computes net liquidation (cash + long value + short
// value) and the gross/net leverage ratios from the current position stats.
func (l *Ledger) CalculatePeriodStats() PeriodStats {
	stats := l.book.Stats()
	netLiquidation := l.portfolio.Cash.Add(stats.LongValue).Add(stats.ShortValue)

	return PeriodStats{
		NetLiquidation: netLiquidation,
		GrossLeverage:  leverage(stats.GrossExposure, netLiquidation),
		NetLeverage:    leverage(stats.NetExposure, netLiquidation),
	}
}

// OverrideAccountFields replaces the active override set. Each supplied field
// replaces its computed default on every subsequent Account read, until a
// later call replaces the set (an empty set clears all overrides).
func (l *Ledger) OverrideAccountFields(overrides AccountOverrides) {
	l.overrides = overrides
	l.overrideGen++
}

// cushion is cash over portfolio value, following the infinite-leverage
// policy when the portfolio value is zero.
func cushion(cash, portfolioValue Money) float64 {
	if portfolioValue.IsZero() {
		if cash.IsNegative() {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	return cash.DivPrice(portfolioValue).AsFloat()
}

// Account returns the current account snapshot.
//
// The snapshot is cached: it is recomputed only when the portfolio has
// changed since the last read or the override set was replaced. A broker
// layer may pin fields through OverrideAccountFields; pinned fields are never
// overwritten by the computed defaults.
func (l *Ledger) Account() Account {
	if l.accountGen == l.gen && l.accountOverrideGen == l.overrideGen {
		return l.account
	}

	portfolio := l.Portfolio()
	a := &l.account

	a.SettledCash = portfolio.Cash
	a.AccruedInterest = M(0, portfolio.Cash.Currency())
	a.BuyingPower = math.Inf(1)
	a.EquityWithLoan = portfolio.PortfolioValue
	a.TotalPositionsValue = portfolio.PortfolioValue.Sub(portfolio.Cash)
	a.TotalPositionsExposure = portfolio.PositionsExposure
	a.RegTEquity = portfolio.Cash
	a.RegTMargin = math.Inf(1)
	a.InitialMarginRequirement = 0
	a.MaintenanceMarginRequirement = 0
	a.AvailableFunds = portfolio.Cash
	a.ExcessLiquidity = portfolio.Cash
	a.Cushion = cushion(portfolio.Cash, portfolio.PortfolioValue)
	a.DayTradesRemaining = math.Inf(1)

	stats := l.CalculatePeriodStats()
	a.NetLiquidation = stats.NetLiquidation
	a.GrossLeverage = stats.GrossLeverage
	a.NetLeverage = stats.NetLeverage

	l.overrides.apply(a)

	// The account is now fully synced.
	l.accountGen = l.gen
	l.accountOverrideGen = l.overrideGen
	return l.account
}
