package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/backtest"
)

const sampleScenario = `
currency: USD
capital_base: 100000
sessions: ["2025-03-11", "2025-03-10"]
instruments:
  - symbol: AAPL
  - symbol: ESF
    kind: future
    multiplier: 5
prices:
  AAPL:
    "2025-03-10": 12
    "2025-03-11": 13
fills:
  - {session: "2025-03-10", symbol: AAPL, amount: 10, price: 10, commission: 1}
dividends:
  - {symbol: AAPL, amount: 0.25, ex_date: "2025-03-10", pay_date: "2025-03-11"}
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := loadScenario(writeScenario(t, sampleScenario))
	if err != nil {
		t.Fatal(err)
	}

	sessions := s.sessions()
	// Sessions come back sorted regardless of file order.
	if sessions[0] != backtest.NewDate(2025, 3, 10) || sessions[1] != backtest.NewDate(2025, 3, 11) {
		t.Errorf("sessions = %v", sessions)
	}

	dir, err := s.directory()
	if err != nil {
		t.Fatal(err)
	}
	esf, ok := dir.Lookup("ESF")
	if !ok || !esf.Leveraged() || esf.Multiplier != 5 {
		t.Errorf("ESF = %+v, %v", esf, ok)
	}
	if _, ok := dir.Lookup("MSFT"); ok {
		t.Error("undeclared symbol resolved")
	}
}

func TestLoadScenario_Errors(t *testing.T) {
	if _, err := loadScenario(writeScenario(t, "sessions: []")); err == nil {
		t.Error("empty session calendar accepted")
	}
	if _, err := loadScenario(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	s, err := loadScenario(writeScenario(t, `
sessions: ["2025-03-10"]
instruments:
  - {symbol: AAPL, kind: warrant}
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.directory(); err == nil {
		t.Error("unknown instrument kind accepted")
	}
}

func TestRunCmd_Replay(t *testing.T) {
	c := &runCmd{scenarioFile: writeScenario(t, sampleScenario)}
	if err := c.run(); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestDividendTable_FiltersByExDateAndHolding(t *testing.T) {
	s, err := loadScenario(writeScenario(t, sampleScenario))
	if err != nil {
		t.Fatal(err)
	}
	dir, err := s.directory()
	if err != nil {
		t.Fatal(err)
	}
	table, err := s.dividendTable(dir)
	if err != nil {
		t.Fatal(err)
	}

	aapl, _ := dir.Lookup("AAPL")
	exDate := backtest.NewDate(2025, 3, 10)

	got := table.DividendsWithExDate([]backtest.Instrument{aapl}, exDate, dir)
	if len(got) != 1 || !got[0].Amount.Equal(backtest.M(0.25, "USD")) {
		t.Errorf("DividendsWithExDate = %v", got)
	}
	if got := table.DividendsWithExDate(nil, exDate, dir); len(got) != 0 {
		t.Errorf("unheld instrument still earned: %v", got)
	}
	if got := table.DividendsWithExDate([]backtest.Instrument{aapl}, exDate.Add(1), dir); len(got) != 0 {
		t.Errorf("wrong ex-date still earned: %v", got)
	}
}
