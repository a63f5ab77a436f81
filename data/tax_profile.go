package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// defaultTaxProfile mirrors original_source/src/core/taxes.py::_default_inputs
// for the fields this engine actually uses, so a year with no profile row
// yet still produces a usable (if conservative) dashboard.
func defaultTaxProfile(year int) TaxProfile {
	return TaxProfile{
		Year:                 year,
		FilingStatus:         "SINGLE",
		SafeHarborMultiplier: decimal.NewFromFloat(1.1),
		QualifiedDividendPct: 0.9,
		NIITRate:             0.038,
	}
}

// TaxProfileForYear reads the stored profile, falling back to the
// conservative defaults when nothing has been configured yet — build_tax_dashboard
// never fails for a missing profile (spec §4.4.4 failure semantics).
func (c *Conn) TaxProfileForYear(ctx context.Context, year int) (TaxProfile, error) {
	var p TaxProfile
	var trustStart *time.Time
	err := c.DB.QueryRow(ctx,
		`SELECT year, filing_status, state, deductions, household_size, trust_income_taxable_to_user,
		        trust_start_date, last_year_total_tax, safe_harbor_multiplier, qualified_dividend_pct,
		        niit_enabled, niit_rate, state_rate, business_net_profit, business_expense_ratio
		 FROM tax_profiles WHERE year = $1`, year).
		Scan(&p.Year, &p.FilingStatus, &p.State, &p.Deductions, &p.HouseholdSize, &p.TrustIncomeTaxableToUser,
			&trustStart, &p.LastYearTotalTax, &p.SafeHarborMultiplier, &p.QualifiedDividendPct,
			&p.NIITEnabled, &p.NIITRate, &p.StateRate, &p.BusinessNetProfit, &p.BusinessExpenseRatio)
	if err == pgx.ErrNoRows {
		return defaultTaxProfile(year), nil
	}
	if err != nil {
		return TaxProfile{}, fmt.Errorf("querying tax profile for %d: %w", year, err)
	}
	p.TrustStartDate = trustStart
	return p, nil
}

// ManualOverridesForYear returns every tax_manual_overrides row for the
// year, keyed by category (§4.4.1 rule 1).
func (c *Conn) ManualOverridesForYear(ctx context.Context, year int) (map[string][12]decimal.Decimal, error) {
	return monthlySeriesByCategory(ctx, c, "tax_manual_overrides", year)
}

// InvestorIncomeInputsForYear returns investor-supplied monthly series that
// have no ledger transaction to derive from (e.g. W-2 wages, which never
// appear as a brokerage transaction), keyed by category. This is the
// "investor" rung of §4.4.1's precedence for those categories, the
// equivalent of original_source's TaxInput.daughter_w2_wages_monthly.
func (c *Conn) InvestorIncomeInputsForYear(ctx context.Context, year int) (map[string][12]decimal.Decimal, error) {
	return monthlySeriesByCategory(ctx, c, "investor_income_inputs", year)
}

func monthlySeriesByCategory(ctx context.Context, c *Conn, table string, year int) (map[string][12]decimal.Decimal, error) {
	rows, err := c.DB.Query(ctx,
		fmt.Sprintf(`SELECT category, monthly_values FROM %s WHERE year = $1`, table), year)
	if err != nil {
		return nil, fmt.Errorf("querying %s for %d: %w", table, year, err)
	}
	defer rows.Close()
	out := map[string][12]decimal.Decimal{}
	for rows.Next() {
		var category string
		var raw []byte
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		var floats []float64
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &floats)
		}
		var months [12]decimal.Decimal
		for i := 0; i < 12 && i < len(floats); i++ {
			months[i] = decimal.NewFromFloat(floats[i])
		}
		out[category] = months
	}
	return out, rows.Err()
}
