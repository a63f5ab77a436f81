package lots

import (
	"context"
	"fmt"
	"time"

	"backend/data"
)

// storeSecurityResolver adapts data.Conn to the SecurityResolver interface,
// caching lookups for the lifetime of one rebuild.
type storeSecurityResolver struct {
	conn  *data.Conn
	cache map[string]*data.Security
}

func newStoreSecurityResolver(conn *data.Conn) *storeSecurityResolver {
	return &storeSecurityResolver{conn: conn, cache: map[string]*data.Security{}}
}

func (s *storeSecurityResolver) Resolve(ctx context.Context, ticker string) (*data.Security, error) {
	if sec, ok := s.cache[ticker]; ok {
		return sec, nil
	}
	sec, err := s.conn.SecurityByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	s.cache[ticker] = sec
	return sec, nil
}

// RebuildTaxLots is the §6 inbound entrypoint: rebuild_tax_lots(taxpayer_id,
// actor) -> RebuildResult. Replay runs entirely in memory against data
// already read from the Store, then data.ReplaceReconstructedLots commits
// the result as one atomic delete-and-replace transaction (§4.3.3).
func RebuildTaxLots(ctx context.Context, conn *data.Conn, taxpayerID int, actor string, asOf time.Time) (data.RebuildResult, error) {
	txns, err := conn.TaxableTransactionsForTaxpayer(ctx, taxpayerID)
	if err != nil {
		return data.RebuildResult{}, fmt.Errorf("loading taxable transactions: %w", err)
	}
	corpActions, err := conn.CorporateActionsForTaxpayer(ctx, taxpayerID)
	if err != nil {
		return data.RebuildResult{}, fmt.Errorf("loading corporate actions: %w", err)
	}

	resolver := newStoreSecurityResolver(conn)
	result, err := Replay(ctx, taxpayerID, txns, corpActions, resolver, asOf)
	if err != nil {
		return data.RebuildResult{}, fmt.Errorf("replaying taxpayer %d (actor=%s): %w", taxpayerID, actor, err)
	}

	if err := conn.ReplaceReconstructedLots(ctx, taxpayerID, result.Lots, result.Disposals, result.WashAdjustments); err != nil {
		return data.RebuildResult{}, fmt.Errorf("committing rebuild: %w", err)
	}

	return data.RebuildResult{
		LotsCreated:            len(result.Lots),
		DisposalsCreated:       len(result.Disposals),
		WashAdjustmentsCreated: len(result.WashAdjustments),
		Warnings:               result.Warnings,
	}, nil
}

// WashRisk mirrors the (risk, matches) return of
// original_source/src/core/wash_sale.py::wash_risk_for_loss_sale.
type WashRisk string

const (
	RiskNone     WashRisk = "NONE"
	RiskPossible WashRisk = "POSSIBLE"
	RiskDefinite WashRisk = "DEFINITE"
)

type WashMatch struct {
	Kind      string // EXECUTED_BUY or PROPOSED_BUY
	Date      time.Time
	Ticker    string
	AccountID *int
}

type ProposedBuy struct {
	Ticker    string
	Date      *time.Time
	AccountID *int
}

// WashRiskForLossSale is the §6 inbound entrypoint:
// wash_risk_for_loss_sale(taxpayer_id, sale_ticker, sale_date,
// proposed_buys[], window_days=30) -> (risk, matches). It treats an
// unresolvable security as POSSIBLE rather than silently excluding it
// (§8 boundary behavior).
func WashRiskForLossSale(ctx context.Context, conn *data.Conn, taxpayerID int, saleTicker string, saleDate time.Time, proposedBuys []ProposedBuy, windowDays int) (WashRisk, []WashMatch, error) {
	if windowDays <= 0 {
		windowDays = washWindowDays
	}
	start := saleDate.AddDate(0, 0, -windowDays)
	end := saleDate.AddDate(0, 0, windowDays)

	resolver := newStoreSecurityResolver(conn)
	saleSec, err := resolver.Resolve(ctx, saleTicker)
	if err != nil {
		return "", nil, fmt.Errorf("resolving sale ticker %s: %w", saleTicker, err)
	}
	possibleDueToUnknown := saleSec == nil

	accounts, err := conn.AccountsForTaxpayer(ctx, taxpayerID)
	if err != nil {
		return "", nil, fmt.Errorf("loading accounts: %w", err)
	}
	var taxableIDs []int
	for _, a := range accounts {
		if a.AccountType == data.AccountTaxable {
			taxableIDs = append(taxableIDs, a.ID)
		}
	}

	executedBuys, err := conn.BuysInWindow(ctx, taxableIDs, start, end)
	if err != nil {
		return "", nil, fmt.Errorf("loading buys in window: %w", err)
	}

	var matches []WashMatch
	identical := func(ticker string) (bool, bool) { // (identical, unknownSecurity)
		if ticker == saleTicker {
			return true, false
		}
		if saleSec == nil {
			return false, true
		}
		sec, err := resolver.Resolve(ctx, ticker)
		if err != nil || sec == nil {
			return false, true
		}
		if saleSec.SubstituteGroupID != nil && sec.SubstituteGroupID != nil && *saleSec.SubstituteGroupID == *sec.SubstituteGroupID {
			return true, false
		}
		return false, false
	}

	for _, tx := range executedBuys {
		if tx.Ticker == nil {
			possibleDueToUnknown = true
			continue
		}
		ident, unknown := identical(*tx.Ticker)
		if unknown {
			possibleDueToUnknown = true
		}
		if ident {
			acctID := tx.AccountID
			matches = append(matches, WashMatch{Kind: "EXECUTED_BUY", Date: tx.Date, Ticker: *tx.Ticker, AccountID: &acctID})
		}
	}

	for _, pb := range proposedBuys {
		if pb.Ticker == "" {
			possibleDueToUnknown = true
			continue
		}
		ident, unknown := identical(pb.Ticker)
		if unknown {
			possibleDueToUnknown = true
		}
		if ident {
			date := saleDate
			if pb.Date != nil {
				date = *pb.Date
			}
			matches = append(matches, WashMatch{Kind: "PROPOSED_BUY", Date: date, Ticker: pb.Ticker, AccountID: pb.AccountID})
		}
	}

	if len(matches) > 0 {
		return RiskDefinite, matches, nil
	}
	if possibleDueToUnknown {
		return RiskPossible, matches, nil
	}
	return RiskNone, matches, nil
}
