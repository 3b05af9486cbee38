// Package engine turns funding-source ledgers into month-by-account matrices.
//
// Each source goes through the same pipeline: overhead rows are split across
// quarters, income is released against quarterly expenses with the surplus
// carried as deferred revenue, and every row is then spread over calendar months
// by day-weighted overlap.
package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"budgetflow/internal/core"
	"budgetflow/internal/period"
)

// Columns names the ledger headers the engine reads.
type Columns struct {
	Account string `yaml:"account"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Amount  string `yaml:"amount"`
}

// All returns the column names in read order.
func (c Columns) All() []string {
	return []string{c.Account, c.Start, c.End, c.Amount}
}

// Settings is the immutable engine configuration.
type Settings struct {
	Columns          Columns          `yaml:"columns"`
	ExcludedAccounts []core.AccountID `yaml:"excluded_accounts"`
	RevenueAccounts  []core.AccountID `yaml:"revenue_accounts"`
	OverheadAccount  core.AccountID   `yaml:"overhead_account"`
	DeferredAccount  core.AccountID   `yaml:"deferred_account"`
	MonthLayout      string           `yaml:"month_layout"`
	Workers          int              `yaml:"workers"`
}

// DefaultExcludedAccounts are the balance-sheet accounts that never appear in a report.
var DefaultExcludedAccounts = []core.AccountID{
	"Accounts Payable (800)",
	"Accounts Receivable (610)",
	"ANZ Term Deposit (605)",
	"Computer Equipment (720)",
	"GST (820)",
	"Historical Adjustment (840)",
	"Income Tax (830)",
	"Inventory (630)",
	"Less Accumulated Depreciation on Computer Equipment (721)",
	"Less Accumulated Depreciation on Office Equipment (711)",
	"less Provision for Doubtful Debts (611)",
	"Loan (900)",
	"Office Equipment (710)",
	"Owner A Drawings (980)",
	"Owner A Funds Introduced (970)",
	"PAYE Payable (825)",
	"Payroll Accrual (834)",
	"Prepayments (620)",
	"Retained Earnings (960)",
	"Suspense (850)",
	"Tracking Transfers (877)",
	"Unpaid Expense Claims (801)",
	"Visa Prezzy Card (622)",
	"Wages Deductions Payable (816)",
	"Wages Payable - Payroll (814)",
	"WILDLIFE.AI TRUST (600)",
	"Withholding tax paid (625)",
}

// DefaultSettings returns the settings used when no settings file is given.
func DefaultSettings() Settings {
	excluded := make([]core.AccountID, len(DefaultExcludedAccounts))
	copy(excluded, DefaultExcludedAccounts)
	return Settings{
		Columns: Columns{
			Account: string(core.AccountHeader),
			Start:   "Start",
			End:     "End",
			Amount:  "Amount",
		},
		ExcludedAccounts: excluded,
		RevenueAccounts:  []core.AccountID{"Grants (102)", "Project Contract Income (181)"},
		OverheadAccount:  "Overhead Allocation (500)",
		DeferredAccount:  "Unused Donations and Grants with Conditions (835)",
		MonthLayout:      period.DefaultMonthLayout,
		Workers:          4,
	}
}

// LoadSettings overlays a YAML file on the defaults. Keys absent from the file keep their default.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	var problems []string
	for _, c := range []struct{ name, value string }{
		{"columns.account", s.Columns.Account},
		{"columns.start", s.Columns.Start},
		{"columns.end", s.Columns.End},
		{"columns.amount", s.Columns.Amount},
		{"overhead_account", string(s.OverheadAccount)},
		{"deferred_account", string(s.DeferredAccount)},
		{"month_layout", s.MonthLayout},
	} {
		if strings.TrimSpace(c.value) == "" {
			problems = append(problems, c.name+" is required")
		}
	}
	if len(s.RevenueAccounts) == 0 {
		problems = append(problems, "at least one revenue account is required")
	}
	if s.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if len(problems) > 0 {
		return errors.New("invalid engine settings: " + strings.Join(problems, "; "))
	}
	return nil
}

// IsRevenue reports whether a is an income account fed into the waterfall.
func (s Settings) IsRevenue(a core.AccountID) bool {
	for _, r := range s.RevenueAccounts {
		if r == a {
			return true
		}
	}
	return false
}

// IsExpense reports whether rows in a count towards quarterly expenses.
func (s Settings) IsExpense(a core.AccountID) bool {
	return !s.IsRevenue(a) && a != s.DeferredAccount
}
