package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/db"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/model"
)

// catalogSeedLock is the pg_advisory_xact_lock key serialising catalog seeding.
const catalogSeedLock int64 = 0x686f6d6561756469

type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ServicePackages(ctx context.Context) ([]model.ServicePackage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, description, price::text, features, duration_minutes
		FROM service_packages
		ORDER BY price, name
	`)
	if err != nil {
		return nil, translate("service packages", err)
	}
	pkgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ServicePackage, error) {
		var (
			p     model.ServicePackage
			price string
		)
		if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Features, &p.DurationMinutes); err != nil {
			return p, err
		}
		amount, err := model.ParseAmount(price)
		if err != nil {
			return p, fmt.Errorf("package %s price %q: %w", p.ID, price, err)
		}
		p.Price = amount
		return p, nil
	})
	return pkgs, translate("service packages", err)
}

// SeedServicePackages inserts pkgs when the table is empty and reports how many
// rows were written. Concurrent callers serialise on an advisory lock.
func (r *CatalogRepository) SeedServicePackages(ctx context.Context, pkgs []model.ServicePackage) (int, error) {
	inserted := 0
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, catalogSeedLock); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_packages)`).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		for _, p := range pkgs {
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO service_packages (id, name, description, price, features, duration_minutes)
				VALUES ($1, $2, $3, $4::numeric, $5, $6)
			`, p.ID, p.Name, p.Description, p.Price.String(), p.Features, p.DurationMinutes); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, translate("seed service packages", err)
	}
	return inserted, nil
}

func (r *CatalogRepository) Officers(ctx context.Context) ([]model.Officer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, email, phone, specializations, is_active
		FROM officers
		WHERE is_active
		ORDER BY name
	`)
	if err != nil {
		return nil, translate("officers", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Officer, error) {
		var o model.Officer
		err := row.Scan(&o.ID, &o.Name, &o.Email, &o.Phone, &o.Specializations, &o.IsActive)
		return o, err
	})
	return list, translate("officers", err)
}
