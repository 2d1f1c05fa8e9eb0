package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/pixeldraft/internal/domain"
)

// Dialect selects the SQL flavour of a SQLLedger.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// The increment is a single conditional upsert: the row is inserted when
// amount fits the limit, or updated only when the sum still fits. No row
// comes back when the limit would be exceeded.
const (
	postgresTryIncrement = `
INSERT INTO usage_records (account_id, resource_kind, period_start, consumed, updated_at)
SELECT $1::text, $2::text, $3::date, $4::bigint, CURRENT_TIMESTAMP
WHERE $4::bigint <= $5::bigint
ON CONFLICT (account_id, resource_kind, period_start)
DO UPDATE SET consumed = usage_records.consumed + excluded.consumed,
              updated_at = CURRENT_TIMESTAMP
WHERE usage_records.consumed + excluded.consumed <= $5::bigint
RETURNING consumed`

	postgresCurrent = `
SELECT consumed FROM usage_records
WHERE account_id = $1 AND resource_kind = $2 AND period_start = $3::date`

	sqliteTryIncrement = `
INSERT INTO usage_records (account_id, resource_kind, period_start, consumed, updated_at)
SELECT ?, ?, ?, ?, CURRENT_TIMESTAMP
WHERE ? <= ?
ON CONFLICT (account_id, resource_kind, period_start)
DO UPDATE SET consumed = usage_records.consumed + excluded.consumed,
              updated_at = CURRENT_TIMESTAMP
WHERE usage_records.consumed + excluded.consumed <= ?
RETURNING consumed`

	sqliteCurrent = `
SELECT consumed FROM usage_records
WHERE account_id = ? AND resource_kind = ? AND period_start = ?`
)

// SQLLedger is a Ledger backed by the usage_records table in Postgres or
// SQLite. The schema comes from the embedded migrations.
type SQLLedger struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewSQLLedger wraps db. The caller owns db and closes it.
func NewSQLLedger(db *sql.DB, dialect Dialect, logger *slog.Logger) (*SQLLedger, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("ledger: unsupported sql dialect %q", dialect)
	}
	return &SQLLedger{db: db, dialect: dialect, logger: logger}, nil
}

// periodArg renders the period key. Periods are stored as calendar dates so
// both dialects compare them as plain values.
func (l *SQLLedger) periodArg(periodStart time.Time) string {
	return PeriodStart(periodStart).Format(time.DateOnly)
}

// CurrentConsumption implements Ledger.
func (l *SQLLedger) CurrentConsumption(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time) (int64, error) {
	query := postgresCurrent
	if l.dialect == DialectSQLite {
		query = sqliteCurrent
	}

	var consumed int64
	err := l.db.QueryRowContext(ctx, query, accountID, string(kind), l.periodArg(periodStart)).Scan(&consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read consumption: %w", err)
	}
	return consumed, nil
}

// TryIncrement implements Ledger.
func (l *SQLLedger) TryIncrement(ctx context.Context, accountID string, kind domain.ResourceKind, periodStart time.Time, amount int64, limit domain.Quota) (int64, error) {
	if err := checkIncrement(amount, limit); err != nil {
		return 0, err
	}

	period := l.periodArg(periodStart)
	ceiling := int64(limit)

	var row *sql.Row
	if l.dialect == DialectSQLite {
		row = l.db.QueryRowContext(ctx, sqliteTryIncrement,
			accountID, string(kind), period, amount,
			amount, ceiling,
			ceiling,
		)
	} else {
		row = l.db.QueryRowContext(ctx, postgresTryIncrement, accountID, string(kind), period, amount, ceiling)
	}

	var consumed int64
	if err := row.Scan(&consumed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrWouldExceedQuota
		}
		return 0, fmt.Errorf("ledger: increment: %w", err)
	}

	l.logger.Debug("usage incremented",
		"account_id", accountID,
		"resource", kind,
		"period", period,
		"amount", amount,
		"consumed", consumed,
	)
	return consumed, nil
}
