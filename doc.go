// Package backtest implements the accounting core of an event-driven
// trading-strategy simulator. It tracks per-instrument holdings and converts
// a stream of fills, corporate actions and commissions into a consistent
// portfolio valuation, deriving account and margin statistics on demand.
//
// The core functionalities include:
//   - Position Book: per-instrument holding records with weighted-average
//     cost basis, split and commission adjustments, and cached aggregate
//     exposure statistics.
//   - Ledger: journaling of transactions and orders, the dividend
//     earn/pay lifecycle, mark-to-market settlement of leveraged
//     instruments, and daily returns accounting at session boundaries.
//   - Lazy Snapshots: Portfolio and Account read models recomputed at most
//     once per mutation batch, guarded by generation counters.
//
// The ledger is an in-memory state machine driven by a sequential simulation
// loop; order matching, commission pricing, market data access and the
// simulation clock are external collaborators reached only through the small
// interfaces in this package. This package serves as the foundational logic
// for the `bts` scenario-replay command-line tool.
package backtest
