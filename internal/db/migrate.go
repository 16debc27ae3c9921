package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationTable = "schema_migrations"

var (
	ErrSetDialect      = errors.New("db migrator: failed to set dialect")
	ErrApplyMigrations = errors.New("db migrator: failed to apply migrations")
)

// Migrate applies every pending migration embedded in the binary.
func Migrate(ctx context.Context, pool *sql.DB, log *slog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{log: log})
	goose.SetTableName(migrationTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}

	if err := goose.UpContext(ctx, pool, "migrations"); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}

	return nil
}

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...), "component", "migrate")
}

// Fatalf logs at error level only; goose returns the error to Migrate, so
// the caller decides whether to exit.
func (g *gooseLogger) Fatalf(format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...), "component", "migrate")
}
