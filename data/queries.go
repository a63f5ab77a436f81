package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

func scanTxnLinks(raw []byte) TxnLinks {
	var links TxnLinks
	if len(raw) == 0 {
		return links
	}
	_ = json.Unmarshal(raw, &links)
	return links
}

// TaxpayersByScope resolves household|trust|personal into TaxpayerEntity
// rows, mirroring original_source/src/core/wash_sale.py::taxpayer_entities_by_scope.
func (c *Conn) TaxpayersByScope(ctx context.Context, scope string) ([]TaxpayerEntity, error) {
	query := "SELECT id, name, type FROM taxpayer_entities"
	var args []any
	switch scope {
	case "trust":
		query += " WHERE type = $1"
		args = append(args, string(TaxpayerTrust))
	case "personal":
		query += " WHERE type = $1"
		args = append(args, string(TaxpayerPersonal))
	case "household", "":
		// no filter
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
	query += " ORDER BY id"
	rows, err := c.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying taxpayers: %w", err)
	}
	defer rows.Close()
	var out []TaxpayerEntity
	for rows.Next() {
		var tp TaxpayerEntity
		if err := rows.Scan(&tp.ID, &tp.Name, &tp.Type); err != nil {
			return nil, fmt.Errorf("scanning taxpayer: %w", err)
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

func (c *Conn) ActiveConnectionsForTaxpayers(ctx context.Context, taxpayerIDs []int) ([]ExternalConnection, error) {
	if len(taxpayerIDs) == 0 {
		return nil, nil
	}
	rows, err := c.DB.Query(ctx,
		`SELECT id, name, provider, broker, connector, taxpayer_id, status, metadata
		 FROM external_connections
		 WHERE taxpayer_id = ANY($1) AND status = $2`,
		taxpayerIDs, string(ConnActive))
	if err != nil {
		return nil, fmt.Errorf("querying active connections: %w", err)
	}
	defer rows.Close()
	var out []ExternalConnection
	for rows.Next() {
		var ec ExternalConnection
		var meta []byte
		if err := rows.Scan(&ec.ID, &ec.Name, &ec.Provider, &ec.Broker, &ec.Connector, &ec.TaxpayerID, &ec.Status, &meta); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &ec.Metadata)
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}

// ConnectionByID loads a single external connection regardless of status,
// used by the sync(connection_id, ...) inbound entrypoint (§6).
func (c *Conn) ConnectionByID(ctx context.Context, id int) (ExternalConnection, error) {
	var ec ExternalConnection
	var meta []byte
	err := c.DB.QueryRow(ctx,
		`SELECT id, name, provider, broker, connector, taxpayer_id, status, metadata
		 FROM external_connections WHERE id = $1`, id).
		Scan(&ec.ID, &ec.Name, &ec.Provider, &ec.Broker, &ec.Connector, &ec.TaxpayerID, &ec.Status, &meta)
	if err != nil {
		return ExternalConnection{}, fmt.Errorf("loading connection %d: %w", id, err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &ec.Metadata)
	}
	return ec, nil
}

func (c *Conn) AccountsForTaxpayer(ctx context.Context, taxpayerID int) ([]Account, error) {
	rows, err := c.DB.Query(ctx,
		`SELECT id, name, broker, account_type, taxpayer_id FROM accounts WHERE taxpayer_id = $1`, taxpayerID)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Broker, &a.AccountType, &a.TaxpayerID); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *Conn) SecurityByTicker(ctx context.Context, ticker string) (*Security, error) {
	var s Security
	var meta []byte
	err := c.DB.QueryRow(ctx,
		`SELECT id, ticker, asset_class, expense_ratio, substitute_group_id, metadata
		 FROM securities WHERE ticker = $1`, ticker).
		Scan(&s.ID, &s.Ticker, &s.AssetClass, &s.ExpenseRatio, &s.SubstituteGroupID, &meta)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying security %s: %w", ticker, err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &s.Metadata)
	}
	return &s, nil
}

// TaxableTransactionsForTaxpayer returns every transaction of that
// taxpayer's TAXABLE accounts with a known ticker, ordered (date asc, id
// asc) — the exact replay-input ordering spec §4.3.1 requires.
func (c *Conn) TaxableTransactionsForTaxpayer(ctx context.Context, taxpayerID int) ([]Transaction, error) {
	rows, err := c.DB.Query(ctx,
		`SELECT t.id, t.account_id, t.date, t.type, t.ticker, t.qty, t.amount, t.links
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE a.taxpayer_id = $1 AND a.account_type = $2 AND t.ticker IS NOT NULL
		 ORDER BY t.date ASC, t.id ASC`,
		taxpayerID, string(AccountTaxable))
	if err != nil {
		return nil, fmt.Errorf("querying taxable transactions: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var raw []byte
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Date, &tx.Type, &tx.Ticker, &tx.Qty, &tx.Amount, &raw); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		tx.Links = scanTxnLinks(raw)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// BuysInWindow returns BUY transactions for an account set within
// [start, end], used by the wash-sale sub-procedure (§4.3.2) and
// wash_risk_for_loss_sale (§6).
func (c *Conn) BuysInWindow(ctx context.Context, accountIDs []int, start, end time.Time) ([]Transaction, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	rows, err := c.DB.Query(ctx,
		`SELECT id, account_id, date, type, ticker, qty, amount, links
		 FROM transactions
		 WHERE account_id = ANY($1) AND type = $2 AND date >= $3 AND date <= $4
		 ORDER BY date ASC, id ASC`,
		accountIDs, string(TxnBuy), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying buys in window: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var raw []byte
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Date, &tx.Type, &tx.Ticker, &tx.Qty, &tx.Amount, &raw); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		tx.Links = scanTxnLinks(raw)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (c *Conn) CorporateActionsForTaxpayer(ctx context.Context, taxpayerID int) ([]CorporateActionEvent, error) {
	rows, err := c.DB.Query(ctx,
		`SELECT id, taxpayer_id, account_id, security_id, action_date, action_type, ratio, applied, details
		 FROM corporate_action_events WHERE taxpayer_id = $1 ORDER BY action_date ASC, id ASC`, taxpayerID)
	if err != nil {
		return nil, fmt.Errorf("querying corporate actions: %w", err)
	}
	defer rows.Close()
	var out []CorporateActionEvent
	for rows.Next() {
		var ev CorporateActionEvent
		var details []byte
		if err := rows.Scan(&ev.ID, &ev.TaxpayerID, &ev.AccountID, &ev.SecurityID, &ev.ActionDate, &ev.ActionType, &ev.Ratio, &ev.Applied, &details); err != nil {
			return nil, fmt.Errorf("scanning corporate action: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &ev.Details)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReplaceReconstructedLots atomically deletes this taxpayer's
// source=RECONSTRUCTED rows and inserts the freshly replayed set (spec
// §4.3.3: "single serial transaction... delete... replay... insert").
func (c *Conn) ReplaceReconstructedLots(ctx context.Context, taxpayerID int, lots []TaxLot, disposals []LotDisposal, washAdjustments []WashSaleAdjustment) error {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM wash_sale_adjustments WHERE replacement_lot_id IN (
			SELECT id FROM tax_lots WHERE taxpayer_id = $1 AND source = $2
		) OR loss_sale_txn_id IN (
			SELECT d.sell_txn_id FROM lot_disposals d
			JOIN tax_lots l ON l.id = d.tax_lot_id
			WHERE l.taxpayer_id = $1 AND l.source = $2
		)`, taxpayerID, string(LotReconstructed)); err != nil {
		return fmt.Errorf("clearing wash adjustments: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM lot_disposals WHERE tax_lot_id IN (
			SELECT id FROM tax_lots WHERE taxpayer_id = $1 AND source = $2
		)`, taxpayerID, string(LotReconstructed)); err != nil {
		return fmt.Errorf("clearing disposals: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM tax_lots WHERE taxpayer_id = $1 AND source = $2`,
		taxpayerID, string(LotReconstructed)); err != nil {
		return fmt.Errorf("clearing lots: %w", err)
	}

	idForIndex := make(map[int]int, len(lots)) // replay-index -> new DB id
	for i, lot := range lots {
		var newID int
		if err := tx.QueryRow(ctx,
			`INSERT INTO tax_lots (taxpayer_id, account_id, security_id, acquired_date, quantity_open, basis_open, source, created_from_txn_id)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			lot.TaxpayerID, lot.AccountID, lot.SecurityID, lot.AcquiredDate, lot.QuantityOpen, lot.BasisOpen, string(lot.Source), lot.CreatedFromTxnID,
		).Scan(&newID); err != nil {
			return fmt.Errorf("inserting lot: %w", err)
		}
		idForIndex[i] = newID
	}

	disposalIDForIndex := make(map[int]int, len(disposals))
	for i, d := range disposals {
		lotID, ok := idForIndex[d.TaxLotID]
		if !ok {
			lotID = d.TaxLotID // already a resolved DB id (not a replay index)
		}
		var newID int
		if err := tx.QueryRow(ctx,
			`INSERT INTO lot_disposals (sell_txn_id, tax_lot_id, quantity_sold, proceeds_allocated, basis_allocated, realized_gain, term, as_of_date)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			d.SellTxnID, lotID, d.QuantitySold, d.ProceedsAllocated, d.BasisAllocated, d.RealizedGain, string(d.Term), d.AsOfDate,
		).Scan(&newID); err != nil {
			return fmt.Errorf("inserting disposal: %w", err)
		}
		disposalIDForIndex[i] = newID
	}

	for _, w := range washAdjustments {
		lotID := w.ReplacementLotID
		if lotID != nil {
			if resolved, ok := idForIndex[*lotID]; ok {
				resolvedCopy := resolved
				lotID = &resolvedCopy
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO wash_sale_adjustments (loss_sale_txn_id, replacement_buy_txn_id, replacement_lot_id, deferred_loss, basis_increase, window_start, window_end, status)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			w.LossSaleTxnID, w.ReplacementBuyTxnID, lotID, w.DeferredLoss, w.BasisIncrease, w.WindowStart, w.WindowEnd, string(w.Status),
		); err != nil {
			return fmt.Errorf("inserting wash adjustment: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DisposalRow is a closed-lot row joined against its lot's source and
// security, for taxdash's capital-gains computation (§4.4.2): broker-supplied
// (AUTHORITATIVE) rows take precedence over C4's own RECONSTRUCTED replay
// per account/ticker when both exist.
type DisposalRow struct {
	LotDisposal
	AccountID int
	Ticker    string
	Source    LotSource
}

// DisposalsForTaxpayer returns every closed-lot row for this taxpayer's
// accounts whose sell date falls in [start, end], restricted to the given
// account set (already connection-preference filtered by the caller).
func (c *Conn) DisposalsForTaxpayer(ctx context.Context, accountIDs []int, start, end time.Time) ([]DisposalRow, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	rows, err := c.DB.Query(ctx,
		`SELECT d.id, d.sell_txn_id, d.tax_lot_id, d.quantity_sold, d.proceeds_allocated, d.basis_allocated,
		        d.realized_gain, d.term, d.as_of_date, l.account_id, s.ticker, l.source
		 FROM lot_disposals d
		 JOIN tax_lots l ON l.id = d.tax_lot_id
		 JOIN securities s ON s.id = l.security_id
		 WHERE l.account_id = ANY($1) AND d.as_of_date >= $2 AND d.as_of_date <= $3
		 ORDER BY d.as_of_date ASC, d.id ASC`,
		accountIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying disposals: %w", err)
	}
	defer rows.Close()
	var out []DisposalRow
	for rows.Next() {
		var r DisposalRow
		if err := rows.Scan(&r.ID, &r.SellTxnID, &r.TaxLotID, &r.QuantitySold, &r.ProceedsAllocated,
			&r.BasisAllocated, &r.RealizedGain, &r.Term, &r.AsOfDate, &r.AccountID, &r.Ticker, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning disposal row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TaggedTransactionsByCategory returns transactions tagged with the given
// category, restricted to an account set and date window, for §4.4.2's
// withholding/fees/estimated-payment/business-income totals.
func (c *Conn) TaggedTransactionsByCategory(ctx context.Context, accountIDs []int, category TaxTagCategory, start, end time.Time) ([]Transaction, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	rows, err := c.DB.Query(ctx,
		`SELECT t.id, t.account_id, t.date, t.type, t.ticker, t.qty, t.amount, t.links
		 FROM transactions t
		 JOIN tax_tags g ON g.transaction_id = t.id
		 WHERE t.account_id = ANY($1) AND g.category = $2 AND t.date >= $3 AND t.date <= $4
		 ORDER BY t.date ASC, t.id ASC`,
		accountIDs, string(category), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying tagged transactions: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var raw []byte
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Date, &tx.Type, &tx.Ticker, &tx.Qty, &tx.Amount, &raw); err != nil {
			return nil, fmt.Errorf("scanning tagged transaction: %w", err)
		}
		tx.Links = scanTxnLinks(raw)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// TransactionsByTypeInWindow returns transactions of the given types across
// an account set within [start, end], used for dividend/interest/withholding
// ledger derivation (§4.4.2).
func (c *Conn) TransactionsByTypeInWindow(ctx context.Context, accountIDs []int, types []TxnType, start, end time.Time) ([]Transaction, error) {
	if len(accountIDs) == 0 || len(types) == 0 {
		return nil, nil
	}
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	rows, err := c.DB.Query(ctx,
		`SELECT id, account_id, date, type, ticker, qty, amount, links
		 FROM transactions
		 WHERE account_id = ANY($1) AND type = ANY($2) AND date >= $3 AND date <= $4
		 ORDER BY date ASC, id ASC`,
		accountIDs, typeStrs, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying transactions by type: %w", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var raw []byte
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Date, &tx.Type, &tx.Ticker, &tx.Qty, &tx.Amount, &raw); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		tx.Links = scanTxnLinks(raw)
		out = append(out, tx)
	}
	return out, rows.Err()
}
