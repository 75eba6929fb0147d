package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// gooseUp is swapped in tests.
var gooseUp = func(ctx context.Context, p *Pool, dir string) error {
	sqlDB := stdlib.OpenDBFromPool(p.Pool)
	defer sqlDB.Close()
	return goose.UpContext(ctx, sqlDB, dir)
}

// Migrate applies every pending goose migration found at the root of migrations.
func Migrate(ctx context.Context, p *Pool, migrations fs.FS) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, p, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
