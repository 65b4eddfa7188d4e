package database

import (
	"context"
	_ "embed"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed catalog_schema.sql
var catalogSchema string

func NewPool(dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Catalog database connected successfully")

	return pool, nil
}

// EnsureCatalogSchema applies the embedded catalog DDL. All statements are
// idempotent (CREATE TABLE IF NOT EXISTS) so this is safe on every startup.
func EnsureCatalogSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, catalogSchema)
	return err
}
