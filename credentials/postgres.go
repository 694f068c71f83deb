package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool abstracts the pgx connection pool to make testing easier.
type Pool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// Connect initialises a PostgreSQL connection pool for credential storage.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// PostgresStore implements Store on PostgreSQL, keyed by a profile name so a
// headless deployment can hold credentials for several service accounts in
// one table.
type PostgresStore struct {
	pool    Pool
	profile string
}

// NewPostgresStore constructs a credential store scoped to the given profile.
func NewPostgresStore(pool Pool, profile string) *PostgresStore {
	if profile == "" {
		profile = "default"
	}
	return &PostgresStore{pool: pool, profile: profile}
}

// EnsureSchema creates the credentials table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS account_credentials (
                profile TEXT NOT NULL,
                key     TEXT NOT NULL,
                value   TEXT NOT NULL,
                PRIMARY KEY (profile, key)
        )`)
	if err != nil {
		return fmt.Errorf("ensure credentials table: %w", err)
	}
	return nil
}

// Get retrieves a value by key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var value string
	err = conn.QueryRow(ctx, `
        SELECT value FROM account_credentials
        WHERE profile = $1 AND key = $2
    `, s.profile, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select credential: %w", err)
	}
	return value, nil
}

// Set stores or replaces the value under key.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO account_credentials (profile, key, value)
        VALUES ($1, $2, $3)
        ON CONFLICT (profile, key)
        DO UPDATE SET value = EXCLUDED.value
    `, s.profile, key, value)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Delete removes the value stored under key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        DELETE FROM account_credentials
        WHERE profile = $1 AND key = $2
    `, s.profile, key)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
