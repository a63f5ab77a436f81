// Package holdings implements the §6 build_holdings_view read: aggregate
// positions, cash, and YTD cashflows for display, honoring C3's
// connection-preference resolver so a duplicated broker connection never
// counts a position twice. Grounded on data.ExternalHoldingSnapshot as the
// positions source of truth and on connprefs for the same dedupe rule
// build_tax_dashboard and the ledger rely on.
package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backend/connprefs"
	"backend/data"

	"github.com/shopspring/decimal"
)

// Pricer is the minimal live-price surface holdings needs; pricing.Store
// satisfies it through a thin adapter at the wiring site, the same
// interface-at-consumer shape lots.SecurityResolver and
// taxdash.DocFactSource use.
type Pricer interface {
	LatestPrice(ctx context.Context, ticker string, asOf time.Time, baseCCY string) (decimal.Decimal, error)
}

// Position is one ticker's aggregated holding in one account.
type Position struct {
	Ticker      string
	Quantity    decimal.Decimal
	MarketValue decimal.Decimal
	PriceSource string // "live", "offline", "snapshot_fallback"
}

// AccountView is one account's positions, cash, and market value.
type AccountView struct {
	AccountID     int
	Name          string
	Broker        string
	Cash          decimal.Decimal
	Positions     []Position
	MarketValue   decimal.Decimal
	YTDCashflow   decimal.Decimal
}

// View is the full §6 build_holdings_view result.
type View struct {
	Scope            string
	AsOf             time.Time
	Accounts         []AccountView
	TotalMarketValue decimal.Decimal
	Warnings         []string
}

// Build aggregates positions+cash+YTD cashflows across every account in
// scope (or a single account_id when accountID is non-nil). prices_dir, if
// non-empty, is tried before the live Pricer for each ticker (§5
// suspension point (c): local filesystem offline payloads).
func Build(ctx context.Context, conn *data.Conn, pricer Pricer, scope string, accountID *int, today time.Time, pricesDir string) (View, error) {
	view := View{Scope: scope, AsOf: today}

	taxpayers, err := conn.TaxpayersByScope(ctx, scope)
	if err != nil {
		return View{}, fmt.Errorf("loading taxpayers for scope %s: %w", scope, err)
	}
	var taxpayerIDs []int
	for _, tp := range taxpayers {
		taxpayerIDs = append(taxpayerIDs, tp.ID)
	}

	preferred, err := connprefs.PreferredConnectionIDs(ctx, conn, taxpayerIDs)
	if err != nil {
		return View{}, fmt.Errorf("resolving preferred connections: %w", err)
	}

	var accounts []data.Account
	for _, tp := range taxpayers {
		accts, err := conn.AccountsForTaxpayer(ctx, tp.ID)
		if err != nil {
			return View{}, fmt.Errorf("loading accounts for taxpayer %d: %w", tp.ID, err)
		}
		accounts = append(accounts, accts...)
	}
	if accountID != nil {
		accounts = filterAccount(accounts, *accountID)
	}

	conns, err := conn.ActiveConnectionsForTaxpayers(ctx, taxpayerIDs)
	if err != nil {
		return View{}, fmt.Errorf("loading active connections: %w", err)
	}

	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())

	for _, acct := range accounts {
		av := AccountView{AccountID: acct.ID, Name: acct.Name, Broker: acct.Broker}

		cash, ok, err := conn.CashBalanceAsOf(ctx, acct.ID, today)
		if err != nil {
			return View{}, fmt.Errorf("loading cash balance for account %d: %w", acct.ID, err)
		}
		if ok {
			av.Cash = cash
		}

		for _, c := range conns {
			if !preferred[c.ID] {
				continue
			}
			snap, err := conn.LatestHoldingSnapshot(ctx, c.ID, today)
			if err != nil {
				return View{}, fmt.Errorf("loading holding snapshot for connection %d: %w", c.ID, err)
			}
			if snap == nil {
				continue
			}
			positions, warnings := positionsForAccount(ctx, conn, pricer, acct.ID, c.ID, *snap, today, pricesDir)
			av.Positions = append(av.Positions, positions...)
			view.Warnings = append(view.Warnings, warnings...)
		}

		flows, err := conn.TransactionsByTypeInWindow(ctx, []int{acct.ID}, []data.TxnType{data.TxnTransfer}, yearStart, today)
		if err != nil {
			return View{}, fmt.Errorf("loading cashflows for account %d: %w", acct.ID, err)
		}
		for _, tx := range flows {
			av.YTDCashflow = av.YTDCashflow.Add(tx.Amount)
		}

		av.MarketValue = av.Cash
		for _, p := range av.Positions {
			av.MarketValue = av.MarketValue.Add(p.MarketValue)
		}
		view.TotalMarketValue = view.TotalMarketValue.Add(av.MarketValue)
		view.Accounts = append(view.Accounts, av)
	}

	return view, nil
}

func filterAccount(accounts []data.Account, id int) []data.Account {
	for _, a := range accounts {
		if a.ID == id {
			return []data.Account{a}
		}
	}
	return nil
}

// positionsForAccount maps one connection's latest snapshot rows belonging
// to acct into Position values, pricing each ticker live and falling back
// to the broker-reported snapshot market value when no price can be
// resolved (§6 PriceStore contract: "Missing prices cause MV fallback to
// snapshot MV/qty").
func positionsForAccount(ctx context.Context, conn *data.Conn, pricer Pricer, accountID, connectionID int, snap data.ExternalHoldingSnapshot, today time.Time, pricesDir string) ([]Position, []string) {
	var positions []Position
	var warnings []string

	for _, item := range snap.Payload {
		if item.IsTotal || item.Qty == nil {
			continue
		}
		resolvedAccountID, err := conn.AccountForProvider(ctx, connectionID, item.ProviderAccountID)
		if err != nil || resolvedAccountID != accountID {
			continue
		}

		mv, source, err := priceQuantity(ctx, pricer, item.Symbol, *item.Qty, today, pricesDir)
		if err != nil {
			if item.MarketValue != nil {
				mv = *item.MarketValue
				source = "snapshot_fallback"
			} else {
				mv = decimal.Zero
				source = "snapshot_fallback"
				warnings = append(warnings, fmt.Sprintf("no price or snapshot market value for %s in account %d", item.Symbol, accountID))
			}
		}

		positions = append(positions, Position{
			Ticker:      item.Symbol,
			Quantity:    *item.Qty,
			MarketValue: mv,
			PriceSource: source,
		})
	}
	return positions, warnings
}

func priceQuantity(ctx context.Context, pricer Pricer, ticker string, qty decimal.Decimal, today time.Time, pricesDir string) (decimal.Decimal, string, error) {
	if pricesDir != "" {
		if price, ok := readOfflinePrice(pricesDir, ticker); ok {
			return qty.Mul(price), "offline", nil
		}
	}
	if pricer == nil {
		return decimal.Zero, "", fmt.Errorf("no pricer configured")
	}
	price, err := pricer.LatestPrice(ctx, ticker, today, "USD")
	if err != nil {
		return decimal.Zero, "", err
	}
	return qty.Mul(price), "live", nil
}

type offlinePricePayload struct {
	Price string `json:"price"`
}

// readOfflinePrice reads <prices_dir>/<ticker>.json, the local-filesystem
// offline payload path §5 calls out alongside the Store and connector
// adapters as the engine's only I/O surfaces.
func readOfflinePrice(dir, ticker string) (decimal.Decimal, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, ticker+".json"))
	if err != nil {
		return decimal.Decimal{}, false
	}
	var payload offlinePricePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(payload.Price)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return price, true
}
