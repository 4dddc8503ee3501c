package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	_ "github.com/lib/pq"
)

const capabilitySchemaSQL = `
CREATE TABLE IF NOT EXISTS capability_support (
	storage_name TEXT NOT NULL,
	capability TEXT NOT NULL,
	supported BOOLEAN NOT NULL,
	settled_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (storage_name, capability)
);
`

type PostgresStore struct {
	db   *sql.DB
	name string
}

func NewPostgresStore(ctx context.Context, dsn, storageName string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, name: name(storageName)}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, capabilitySchemaSQL); err != nil {
		return fmt.Errorf("ensure capability_support schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Load(ctx context.Context) (capability.Snapshot, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT capability, supported
		 FROM capability_support
		 WHERE storage_name = $1`,
		s.name,
	)
	if err != nil {
		return nil, fmt.Errorf("query capability snapshot: %w", err)
	}
	defer rows.Close()

	out := make(capability.Snapshot)
	for rows.Next() {
		var (
			field     string
			supported bool
		)
		if err := rows.Scan(&field, &supported); err != nil {
			return nil, fmt.Errorf("scan capability row: %w", err)
		}
		decodeEntry(out, field, capability.FromBool(supported).String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capability rows: %w", err)
	}

	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, c capability.Capability, supported bool) error {
	if err := validate(c); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO capability_support (storage_name, capability, supported, settled_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (storage_name, capability) DO NOTHING`,
		s.name,
		string(c),
		supported,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert capability %s: %w", c, err)
	}

	return nil
}
