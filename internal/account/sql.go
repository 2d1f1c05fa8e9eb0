package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// SQLDirectory reads the accounts table in Postgres or SQLite.
type SQLDirectory struct {
	db       *sql.DB
	postgres bool
}

// NewSQLDirectory wraps db. Queries are written with ? placeholders and
// rebound to $n when postgres is set.
func NewSQLDirectory(db *sql.DB, postgres bool) *SQLDirectory {
	return &SQLDirectory{db: db, postgres: postgres}
}

func (d *SQLDirectory) bind(query string) string {
	if !d.postgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Lookup implements Directory.
func (d *SQLDirectory) Lookup(ctx context.Context, id string) (*domain.Account, error) {
	const op = "account.lookup"

	var (
		a    domain.Account
		tier string
	)
	err := d.db.QueryRowContext(ctx,
		d.bind(`SELECT id, email, name, tier, created_at FROM accounts WHERE id = ?`),
		id,
	).Scan(&a.ID, &a.Email, &a.Name, &tier, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(op, "account", id)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load account")
	}

	t, ok := domain.ParseTier(tier)
	if !ok {
		return nil, domain.Internal(fmt.Errorf("account %s has unknown tier %q", id, tier), op, "failed to load account")
	}
	a.RealTier = t
	return &a, nil
}

// Upsert creates the account or updates its email, name and tier.
func (d *SQLDirectory) Upsert(ctx context.Context, a domain.Account) error {
	const op = "account.upsert"

	if !a.RealTier.Valid() {
		return domain.Invalid(op, "Unknown tier.")
	}
	_, err := d.db.ExecContext(ctx, d.bind(`
INSERT INTO accounts (id, email, name, tier) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name, tier = excluded.tier`),
		a.ID, a.Email, a.Name, string(a.RealTier),
	)
	if err != nil {
		return domain.Internal(err, op, "failed to save account")
	}
	return nil
}

var _ Directory = (*SQLDirectory)(nil)
