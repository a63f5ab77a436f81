// Package docfacts implements the DocumentFactStore collaborator (§6):
// confirmed, authoritative TaxFact rows read from the document-extraction
// pipeline's own database, kept separate from the ledger's pgx pool the
// same way the teacher keeps Polygon/Redis connections distinct concerns
// inside one Conn (backend/utils/conn.go).
package docfacts

import (
	"context"
	"database/sql"
	"fmt"

	"backend/data"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Store reads TaxFact rows out of a separate taxdocs database via
// database/sql + lib/pq, mirroring how the document pipeline that
// produces them is a wholly separate system from the ledger.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening taxdocs db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// FactsForYear implements taxdash.DocFactSource: every confirmed,
// authoritative TaxFact row for the year, across all owning taxpayer
// entities in scope. Unconfirmed or non-authoritative rows are excluded
// here rather than left to the caller, since §4.4.1's docs rule is defined
// in terms of "confirmed, authoritative" facts only.
func (s *Store) FactsForYear(ctx context.Context, year int) ([]data.TaxFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tax_year, fact_type, amount, owner_entity_id, is_authoritative, confirmed
		 FROM tax_facts
		 WHERE tax_year = $1 AND confirmed = true AND is_authoritative = true`,
		year)
	if err != nil {
		return nil, fmt.Errorf("querying tax facts for %d: %w", year, err)
	}
	defer rows.Close()

	var out []data.TaxFact
	for rows.Next() {
		var f data.TaxFact
		var amount float64
		if err := rows.Scan(&f.TaxYear, &f.FactType, &amount, &f.OwnerEntityID, &f.IsAuthoritative, &f.Confirmed); err != nil {
			return nil, fmt.Errorf("scanning tax fact: %w", err)
		}
		f.Amount = decimal.NewFromFloat(amount)
		out = append(out, f)
	}
	return out, rows.Err()
}
