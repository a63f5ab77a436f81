package data

import "context"

// schemaDDL is applied once at startup. The teacher has no migration
// system at all (tables are assumed pre-existing); we generalize that into
// one embedded script rather than inventing a migration framework the
// pack doesn't otherwise show.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS taxpayer_entities (
	id SERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id SERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	broker TEXT NOT NULL,
	account_type TEXT NOT NULL,
	taxpayer_id INTEGER NOT NULL REFERENCES taxpayer_entities(id)
);

CREATE TABLE IF NOT EXISTS securities (
	id SERIAL PRIMARY KEY,
	ticker TEXT UNIQUE NOT NULL,
	asset_class TEXT NOT NULL DEFAULT '',
	expense_ratio NUMERIC NOT NULL DEFAULT 0,
	substitute_group_id INTEGER,
	metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS transactions (
	id SERIAL PRIMARY KEY,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	date DATE NOT NULL,
	type TEXT NOT NULL,
	ticker TEXT,
	qty NUMERIC,
	amount NUMERIC NOT NULL,
	links JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions(account_id, date);

CREATE TABLE IF NOT EXISTS cash_balances (
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	as_of_date DATE NOT NULL,
	amount NUMERIC NOT NULL,
	PRIMARY KEY (account_id, as_of_date)
);

CREATE TABLE IF NOT EXISTS external_connections (
	id SERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	provider TEXT NOT NULL,
	broker TEXT NOT NULL,
	connector TEXT NOT NULL,
	taxpayer_id INTEGER NOT NULL REFERENCES taxpayer_entities(id),
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS external_account_maps (
	connection_id INTEGER NOT NULL REFERENCES external_connections(id),
	provider_account_id TEXT NOT NULL,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	PRIMARY KEY (connection_id, provider_account_id)
);

CREATE TABLE IF NOT EXISTS external_transaction_maps (
	connection_id INTEGER NOT NULL REFERENCES external_connections(id),
	provider_txn_id TEXT NOT NULL,
	transaction_id INTEGER NOT NULL REFERENCES transactions(id),
	PRIMARY KEY (connection_id, provider_txn_id)
);

CREATE TABLE IF NOT EXISTS external_holding_snapshots (
	id SERIAL PRIMARY KEY,
	connection_id INTEGER NOT NULL REFERENCES external_connections(id),
	as_of DATE NOT NULL,
	payload JSONB NOT NULL,
	derived BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_snapshots_conn_asof ON external_holding_snapshots(connection_id, as_of);

CREATE TABLE IF NOT EXISTS ingested_payload_hashes (
	connection_id INTEGER NOT NULL REFERENCES external_connections(id),
	payload_hash TEXT NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (connection_id, payload_hash)
);

CREATE TABLE IF NOT EXISTS tax_lots (
	id SERIAL PRIMARY KEY,
	taxpayer_id INTEGER NOT NULL REFERENCES taxpayer_entities(id),
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	security_id INTEGER NOT NULL REFERENCES securities(id),
	acquired_date DATE NOT NULL,
	quantity_open NUMERIC NOT NULL,
	basis_open NUMERIC NOT NULL,
	source TEXT NOT NULL,
	created_from_txn_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tax_lots_account_security ON tax_lots(account_id, security_id);

CREATE TABLE IF NOT EXISTS lot_disposals (
	id SERIAL PRIMARY KEY,
	sell_txn_id INTEGER NOT NULL REFERENCES transactions(id),
	tax_lot_id INTEGER NOT NULL REFERENCES tax_lots(id),
	quantity_sold NUMERIC NOT NULL,
	proceeds_allocated NUMERIC NOT NULL,
	basis_allocated NUMERIC,
	realized_gain NUMERIC,
	term TEXT NOT NULL,
	as_of_date DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS wash_sale_adjustments (
	id SERIAL PRIMARY KEY,
	loss_sale_txn_id INTEGER NOT NULL REFERENCES transactions(id),
	replacement_buy_txn_id INTEGER,
	replacement_lot_id INTEGER,
	deferred_loss NUMERIC NOT NULL,
	basis_increase NUMERIC NOT NULL,
	window_start DATE NOT NULL,
	window_end DATE NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corporate_action_events (
	id SERIAL PRIMARY KEY,
	taxpayer_id INTEGER NOT NULL REFERENCES taxpayer_entities(id),
	account_id INTEGER,
	security_id INTEGER,
	action_date DATE NOT NULL,
	action_type TEXT NOT NULL,
	ratio NUMERIC,
	applied BOOLEAN NOT NULL DEFAULT FALSE,
	details JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS tax_tags (
	transaction_id INTEGER PRIMARY KEY REFERENCES transactions(id),
	category TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS connection_sync_state (
	connection_id INTEGER PRIMARY KEY REFERENCES external_connections(id),
	backfill_done BOOLEAN NOT NULL DEFAULT FALSE,
	last_synced_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS tax_profiles (
	year INTEGER PRIMARY KEY,
	filing_status TEXT NOT NULL DEFAULT 'SINGLE',
	state TEXT NOT NULL DEFAULT '',
	deductions NUMERIC NOT NULL DEFAULT 0,
	household_size INTEGER NOT NULL DEFAULT 1,
	trust_income_taxable_to_user BOOLEAN NOT NULL DEFAULT FALSE,
	trust_start_date DATE,
	last_year_total_tax NUMERIC,
	safe_harbor_multiplier NUMERIC NOT NULL DEFAULT 1.1,
	qualified_dividend_pct NUMERIC NOT NULL DEFAULT 0.9,
	niit_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	niit_rate NUMERIC NOT NULL DEFAULT 0.038,
	state_rate NUMERIC NOT NULL DEFAULT 0,
	business_net_profit NUMERIC NOT NULL DEFAULT 0,
	business_expense_ratio NUMERIC NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tax_manual_overrides (
	year INTEGER NOT NULL,
	category TEXT NOT NULL,
	monthly_values JSONB NOT NULL,
	PRIMARY KEY (year, category)
);

CREATE TABLE IF NOT EXISTS investor_income_inputs (
	year INTEGER NOT NULL,
	category TEXT NOT NULL,
	monthly_values JSONB NOT NULL,
	PRIMARY KEY (year, category)
);
`

// EnsureSchema applies the DDL idempotently, matching the teacher's
// "create tables as needed" posture without leaving that scattered across
// call sites.
func EnsureSchema(ctx context.Context, conn *Conn) error {
	_, err := conn.DB.Exec(ctx, schemaDDL)
	return err
}
