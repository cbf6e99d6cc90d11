package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres provides client state storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the database.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// Migrate creates the state table if it does not exist.
func (pg *Postgres) Migrate(ctx context.Context) error {
	if _, err := pg.bun.NewCreateTable().Model((*state)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// KV returns a tier storing keys under namespace.
func (pg *Postgres) KV(namespace string) *KV {
	return &KV{bun: pg.bun, namespace: namespace}
}

// KV is a key-value tier backed by the client_state table.
type KV struct {
	bun       *bun.DB
	namespace string
}

// Get returns the value stored at key.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var s state
	err := kv.bun.NewSelect().
		Model(&s).
		Where("namespace = ?", kv.namespace).
		Where("state_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scan: %w", err)
	}
	return s.Value, true, nil
}

// Set inserts or replaces the value stored at key.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	s := &state{
		Namespace: kv.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	_, err := kv.bun.NewInsert().
		Model(s).
		On("CONFLICT (namespace, state_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	_, err := kv.bun.NewDelete().
		Model((*state)(nil)).
		Where("namespace = ?", kv.namespace).
		Where("state_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Keys lists the keys of the namespace in lexical order.
func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := kv.bun.NewSelect().
		Model((*state)(nil)).
		Column("state_key").
		Where("namespace = ?", kv.namespace).
		Order("state_key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return keys, nil
}
