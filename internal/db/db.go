package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// DB represents a PostgreSQL database connection
type DB struct {
	client *sql.DB
	config *Config
}

// GetConfig returns the original DB connection settings
func (d *DB) GetConfig() *Config {
	return d.config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host             string        // Database host
	Port             string        // Database port
	User             string        // Database user
	Password         string        // Database password
	Database         string        // Database name
	SSLMode          string        // SSL mode (disable, require, verify-ca, verify-full)
	MaxIdleConns     int           // Maximum number of idle connections
	MaxOpenConns     int           // Maximum number of open connections
	MaxLifetime      time.Duration // Maximum lifetime of a connection
	StatementTimeout time.Duration // Server-side statement_timeout, 0 leaves the DSN untouched
	DatabaseURL      string        // Original DATABASE_URL if used
}

// ConnectionString returns the PostgreSQL connection string
func (c *Config) ConnectionString() string {
	var dsn string
	if c.DatabaseURL != "" {
		dsn = c.DatabaseURL
	} else {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
	return withStatementTimeout(dsn, c.StatementTimeout)
}

// withStatementTimeout appends statement_timeout to dsn unless it already
// carries one. Both URL and key=value forms are handled.
func withStatementTimeout(dsn string, timeout time.Duration) string {
	if dsn == "" || timeout <= 0 || strings.Contains(dsn, "statement_timeout") {
		return dsn
	}
	ms := strconv.FormatInt(timeout.Milliseconds(), 10)

	if strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "postgres://") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		return dsn + separator + "statement_timeout=" + ms
	}
	return dsn + " statement_timeout=" + ms
}

func (c *Config) validate() error {
	if c.DatabaseURL != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port == "" {
		return fmt.Errorf("database port is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 4
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 20 * time.Minute
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = 30 * time.Second
	}
}

// New creates a new PostgreSQL database connection and ensures the
// host_probes table exists.
func New(ctx context.Context, config *Config) (*DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	client, err := sql.Open("pgx", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	client.SetMaxOpenConns(config.MaxOpenConns)
	client.SetMaxIdleConns(config.MaxIdleConns)
	client.SetConnMaxLifetime(config.MaxLifetime)

	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := setupSchema(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	log.Info().
		Str("host", config.Host).
		Bool("database_url", config.DatabaseURL != "").
		Msg("Connected to PostgreSQL")

	return &DB{client: client, config: config}, nil
}

// InitFromEnv creates a PostgreSQL connection from DATABASE_URL, falling
// back to the POSTGRES_* variables.
func InitFromEnv(ctx context.Context) (*DB, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return New(ctx, &Config{DatabaseURL: url})
	}

	config := &Config{
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     os.Getenv("POSTGRES_PORT"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DB"),
		SSLMode:  os.Getenv("POSTGRES_SSL_MODE"),
	}

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == "" {
		config.Port = "5432"
	}
	if config.User == "" {
		config.User = "postgres"
	}
	if config.Database == "" {
		config.Database = "hostprobe"
	}

	return New(ctx, config)
}

const createHostProbesTable = `
	CREATE TABLE IF NOT EXISTS host_probes (
		host TEXT PRIMARY KEY,
		run_id UUID NOT NULL,
		available BOOLEAN NOT NULL,
		final_url TEXT NOT NULL DEFAULT '',
		redirect_type TEXT NOT NULL DEFAULT 'none',
		status_code INTEGER NOT NULL DEFAULT 0,
		title TEXT,
		content_type TEXT NOT NULL DEFAULT '',
		technologies TEXT[] NOT NULL DEFAULT '{}',
		probed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

const createHostProbesRunIndex = `
	CREATE INDEX IF NOT EXISTS idx_host_probes_run_id ON host_probes(run_id)
`

// setupSchema creates the necessary tables in PostgreSQL
func setupSchema(ctx context.Context, client *sql.DB) error {
	if _, err := client.ExecContext(ctx, createHostProbesTable); err != nil {
		return fmt.Errorf("failed to create host_probes table: %w", err)
	}
	if _, err := client.ExecContext(ctx, createHostProbesRunIndex); err != nil {
		return fmt.Errorf("failed to create host_probes run index: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.client.Close()
}

// GetDB returns the underlying database connection
func (d *DB) GetDB() *sql.DB {
	return d.client
}
