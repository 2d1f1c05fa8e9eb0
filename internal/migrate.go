package internal

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies the embedded migrations. dialect is a goose dialect
// name: "postgres" or "sqlite3".
func RunMigrations(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect %q: %w", dialect, err)
	}

	return goose.Up(db, "migrations")
}
