package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ExternalTxnMapping looks up the transaction_id already mapped to
// (connectionID, providerTxnID), enforcing invariant I1: at most one
// Transaction row per (connection_id, provider_txn_id).
func (c *Conn) ExternalTxnMapping(ctx context.Context, connectionID int, providerTxnID string) (int, bool, error) {
	var txnID int
	err := c.DB.QueryRow(ctx,
		`SELECT transaction_id FROM external_transaction_maps WHERE connection_id = $1 AND provider_txn_id = $2`,
		connectionID, providerTxnID).Scan(&txnID)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up external txn map: %w", err)
	}
	return txnID, true, nil
}

func (c *Conn) TransactionByID(ctx context.Context, id int) (*Transaction, error) {
	var tx Transaction
	var raw []byte
	err := c.DB.QueryRow(ctx,
		`SELECT id, account_id, date, type, ticker, qty, amount, links FROM transactions WHERE id = $1`, id).
		Scan(&tx.ID, &tx.AccountID, &tx.Date, &tx.Type, &tx.Ticker, &tx.Qty, &tx.Amount, &raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading transaction %d: %w", id, err)
	}
	tx.Links = scanTxnLinks(raw)
	return &tx, nil
}

// InsertTransaction writes a brand-new canonical row and maps it to the
// connector's provider identity in the same transaction, so I1 never has
// a window where the map is missing for an existing row.
func (c *Conn) InsertTransaction(ctx context.Context, connectionID int, providerTxnID string, txn Transaction) (int, error) {
	linksJSON, err := json.Marshal(txn.Links)
	if err != nil {
		return 0, fmt.Errorf("marshaling links: %w", err)
	}
	dbtx, err := c.DB.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	var newID int
	if err := dbtx.QueryRow(ctx,
		`INSERT INTO transactions (account_id, date, type, ticker, qty, amount, links)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		txn.AccountID, txn.Date, string(txn.Type), txn.Ticker, txn.Qty, txn.Amount, linksJSON,
	).Scan(&newID); err != nil {
		return 0, fmt.Errorf("inserting transaction: %w", err)
	}
	if _, err := dbtx.Exec(ctx,
		`INSERT INTO external_transaction_maps (connection_id, provider_txn_id, transaction_id) VALUES ($1,$2,$3)`,
		connectionID, providerTxnID, newID); err != nil {
		return 0, fmt.Errorf("inserting external txn map: %w", err)
	}
	if err := dbtx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing inserted transaction: %w", err)
	}
	return newID, nil
}

// UpdateTransactionClassification rewrites type/amount/links for an
// existing row. Callers (ingest package) are responsible for the
// specificity check in spec §4.1 step 5 — this just performs the write.
func (c *Conn) UpdateTransactionClassification(ctx context.Context, id int, newType TxnType, amount decimal.Decimal, qty *decimal.Decimal, links TxnLinks) error {
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("marshaling links: %w", err)
	}
	_, err = c.DB.Exec(ctx,
		`UPDATE transactions SET type = $1, amount = $2, qty = $3, links = $4 WHERE id = $5`,
		string(newType), amount, qty, linksJSON, id)
	if err != nil {
		return fmt.Errorf("updating transaction %d: %w", id, err)
	}
	return nil
}

// PayloadAlreadyIngested implements the per-connection content-hash ledger
// (spec §4.1 step 1): a unit is a no-op to re-run once its hash is seen.
func (c *Conn) PayloadAlreadyIngested(ctx context.Context, connectionID int, hash string) (bool, error) {
	var exists bool
	err := c.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM ingested_payload_hashes WHERE connection_id = $1 AND payload_hash = $2)`,
		connectionID, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking payload hash: %w", err)
	}
	return exists, nil
}

func (c *Conn) MarkPayloadIngested(ctx context.Context, connectionID int, hash string) error {
	_, err := c.DB.Exec(ctx,
		`INSERT INTO ingested_payload_hashes (connection_id, payload_hash) VALUES ($1,$2)
		 ON CONFLICT (connection_id, payload_hash) DO NOTHING`, connectionID, hash)
	if err != nil {
		return fmt.Errorf("marking payload ingested: %w", err)
	}
	return nil
}

// AccountForProvider resolves (connectionID, providerAccountID) to the
// internal account_id via ExternalAccountMap.
func (c *Conn) AccountForProvider(ctx context.Context, connectionID int, providerAccountID string) (int, error) {
	var accountID int
	err := c.DB.QueryRow(ctx,
		`SELECT account_id FROM external_account_maps WHERE connection_id = $1 AND provider_account_id = $2`,
		connectionID, providerAccountID).Scan(&accountID)
	if err != nil {
		return 0, fmt.Errorf("resolving account for provider %s: %w", providerAccountID, err)
	}
	return accountID, nil
}

func (c *Conn) InsertHoldingSnapshot(ctx context.Context, connectionID int, asOf time.Time, items []HoldingItem, derived bool) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling holding payload: %w", err)
	}
	_, err = c.DB.Exec(ctx,
		`INSERT INTO external_holding_snapshots (connection_id, as_of, payload, derived) VALUES ($1,$2,$3,$4)`,
		connectionID, asOf, payload, derived)
	if err != nil {
		return fmt.Errorf("inserting holding snapshot: %w", err)
	}
	return nil
}

// LatestHoldingSnapshot returns the most recent snapshot (raw or derived)
// for a connection at or before asOf.
func (c *Conn) LatestHoldingSnapshot(ctx context.Context, connectionID int, asOf time.Time) (*ExternalHoldingSnapshot, error) {
	var snap ExternalHoldingSnapshot
	var payload []byte
	err := c.DB.QueryRow(ctx,
		`SELECT id, connection_id, as_of, payload, derived FROM external_holding_snapshots
		 WHERE connection_id = $1 AND as_of <= $2 ORDER BY as_of DESC, id DESC LIMIT 1`,
		connectionID, asOf).Scan(&snap.ID, &snap.ConnectionID, &snap.AsOf, &payload, &snap.Derived)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap.Payload); err != nil {
		return nil, fmt.Errorf("decoding snapshot payload: %w", err)
	}
	return &snap, nil
}

// TransactionsOnDate returns canonical transactions for an account on a
// single date, used by the forward-roll derivation (§4.1 step 6).
func (c *Conn) TransactionsOnDate(ctx context.Context, accountID int, date time.Time) ([]Transaction, error) {
	rows, err := c.DB.Query(ctx,
		`SELECT id, account_id, date, type, ticker, qty, amount, links FROM transactions
		 WHERE account_id = $1 AND date = $2 ORDER BY id ASC`, accountID, date)
	if err != nil {
		return nil, fmt.Errorf("querying transactions on date: %w", err)
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

func (c *Conn) UpsertCashBalance(ctx context.Context, accountID int, asOf time.Time, amount decimal.Decimal) error {
	_, err := c.DB.Exec(ctx,
		`INSERT INTO cash_balances (account_id, as_of_date, amount) VALUES ($1,$2,$3)
		 ON CONFLICT (account_id, as_of_date) DO UPDATE SET amount = EXCLUDED.amount`,
		accountID, asOf, amount)
	if err != nil {
		return fmt.Errorf("upserting cash balance: %w", err)
	}
	return nil
}

// CashBalanceAsOf returns the most recent cash balance recorded for an
// account on or before asOf, or (zero, false) if none has ever been
// recorded.
func (c *Conn) CashBalanceAsOf(ctx context.Context, accountID int, asOf time.Time) (decimal.Decimal, bool, error) {
	var amount decimal.Decimal
	err := c.DB.QueryRow(ctx,
		`SELECT amount FROM cash_balances WHERE account_id = $1 AND as_of_date <= $2
		 ORDER BY as_of_date DESC LIMIT 1`, accountID, asOf).Scan(&amount)
	if err == pgx.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("reading cash balance: %w", err)
	}
	return amount, true, nil
}

func (c *Conn) BackfillDone(ctx context.Context, connectionID int) (bool, error) {
	var done bool
	err := c.DB.QueryRow(ctx,
		`SELECT backfill_done FROM connection_sync_state WHERE connection_id = $1`, connectionID).Scan(&done)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading backfill state: %w", err)
	}
	return done, nil
}

// MarkBackfillDone enforces monotonicity: once true, never reset to false
// (spec §9 open question resolution — the core only requires monotonicity).
func (c *Conn) MarkBackfillDone(ctx context.Context, connectionID int) error {
	_, err := c.DB.Exec(ctx,
		`INSERT INTO connection_sync_state (connection_id, backfill_done, last_synced_at) VALUES ($1, TRUE, now())
		 ON CONFLICT (connection_id) DO UPDATE SET backfill_done = TRUE, last_synced_at = now()`,
		connectionID)
	if err != nil {
		return fmt.Errorf("marking backfill done: %w", err)
	}
	return nil
}
