package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/router-for-me/VertexProxyAPI/internal/config"
)

const (
	defaultStateTable = "state_store"
	stateRowKey       = "state"
)

// PostgresStateStore keeps the state document as a single upserted row.
type PostgresStateStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStateStore connects to PostgreSQL and ensures the state
// table exists.
func NewPostgresStateStore(ctx context.Context, cfg config.PostgresStoreConfig) (*PostgresStateStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultStateTable
	}
	if schema := strings.TrimSpace(cfg.Schema); schema != "" {
		table = schema + "." + table
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	createStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
	if _, err = db.ExecContext(ctx, createStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: create table: %w", err)
	}

	return &PostgresStateStore{db: db, table: table}, nil
}

// Load returns the state row, or nil, nil when it does not exist.
func (s *PostgresStateStore) Load(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE key = $1", s.table)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, stateRowKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load state: %w", err)
	}
	return data, nil
}

// Save upserts the state row.
func (s *PostgresStateStore) Save(ctx context.Context, data []byte) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (key, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt, stateRowKey, data); err != nil {
		return fmt.Errorf("postgres store: save state: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStateStore) Close() error {
	return s.db.Close()
}
