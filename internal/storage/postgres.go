package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnectPostgres opens and pings a Postgres connection pool.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// feedSourcesSchema creates the registry table if missing.
const feedSourcesSchema = `
CREATE TABLE IF NOT EXISTS feed_sources (
	id             TEXT PRIMARY KEY,
	symbol         TEXT NOT NULL UNIQUE,
	company        TEXT NOT NULL DEFAULT '',
	feed_url       TEXT NOT NULL,
	last_updated   TIMESTAMPTZ,
	update_history TIMESTAMPTZ[] NOT NULL DEFAULT '{}'
)`

// feedSourceSelectColumns lists columns for SELECT queries on feed_sources.
const feedSourceSelectColumns = `id, symbol, company, feed_url, last_updated`

// PostgresRegistry keeps feed sources in the feed_sources table.
type PostgresRegistry struct {
	db *sqlx.DB
}

// NewPostgresRegistry creates a registry on db.
func NewPostgresRegistry(db *sqlx.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// EnsureSchema creates the feed_sources table if it does not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, feedSourcesSchema); err != nil {
		return fmt.Errorf("failed to create feed_sources: %w", err)
	}
	return nil
}

// List returns every registered source ordered by symbol. The update history
// stays in the database.
func (r *PostgresRegistry) List(ctx context.Context) ([]*domain.FeedSource, error) {
	query := `SELECT ` + feedSourceSelectColumns + ` FROM feed_sources ORDER BY symbol`

	var sources []*domain.FeedSource
	if err := r.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list feed sources: %w", err)
	}
	return sources, nil
}

// Register upserts the source keyed by symbol.
func (r *PostgresRegistry) Register(ctx context.Context, src *domain.FeedSource) error {
	src.ID = src.Symbol

	query := `
		INSERT INTO feed_sources (id, symbol, company, feed_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET company = EXCLUDED.company, feed_url = EXCLUDED.feed_url
	`

	if _, err := r.db.ExecContext(ctx, query, src.ID, src.Symbol, src.Company, src.FeedURL); err != nil {
		return fmt.Errorf("failed to register %s: %w", src.Symbol, err)
	}
	return nil
}

// RecordUpdate appends updated to update_history and sets last_updated.
func (r *PostgresRegistry) RecordUpdate(ctx context.Context, src *domain.FeedSource, updated time.Time) error {
	query := `
		UPDATE feed_sources
		SET last_updated = $2, update_history = array_append(update_history, $2)
		WHERE symbol = $1
	`

	result, err := r.db.ExecContext(ctx, query, src.Symbol, updated)
	return execRequireRows(result, err, fmt.Errorf("%w: %s", ErrSourceNotFound, src.Symbol))
}

// DropAll removes every source.
func (r *PostgresRegistry) DropAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM feed_sources`); err != nil {
		return fmt.Errorf("failed to drop feed sources: %w", err)
	}
	return nil
}

// execRequireRows validates that an ExecContext result affected at least one row.
// Returns err if non-nil, or notFoundErr if rowsAffected is 0.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}
