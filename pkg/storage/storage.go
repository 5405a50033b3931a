// Package storage implements the persistent backends on a shared SQL
// database: the extraction cache, the knowledge graph, and chunk content.
// Postgres, MySQL, and SQLite are supported; transient failures are retried.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/retry"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL connection with its dialect and retry policy. The three
// stores (cache, graph, chunk) share one DB.
type DB struct {
	db      *sql.DB
	dialect string
	retryer *retry.Retryer
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS lattice_cache (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id VARCHAR(255) NOT NULL,
    cache_type VARCHAR(64) NOT NULL,
    chunk_id VARCHAR(255),
    content_hash CHAR(64) NOT NULL,
    result TEXT NOT NULL,
    tokens_used INTEGER,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (project_id, cache_type, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_cache_project_type ON lattice_cache(project_id, cache_type);

CREATE TABLE IF NOT EXISTS lattice_entities (
    project_id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    entity_type VARCHAR(255),
    description TEXT,
    source_id VARCHAR(255),
    file_path TEXT,
    source_chunk_ids TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (project_id, name)
);

CREATE TABLE IF NOT EXISTS lattice_relations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id VARCHAR(255) NOT NULL,
    src_id VARCHAR(255) NOT NULL,
    tgt_id VARCHAR(255) NOT NULL,
    description TEXT,
    keywords TEXT,
    weight REAL,
    file_path TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_src ON lattice_relations(project_id, src_id);
CREATE INDEX IF NOT EXISTS idx_relations_tgt ON lattice_relations(project_id, tgt_id);

CREATE TABLE IF NOT EXISTS lattice_chunks (
    chunk_id VARCHAR(255) NOT NULL PRIMARY KEY,
    project_id VARCHAR(255),
    content TEXT NOT NULL,
    document_id VARCHAR(255),
    chunk_index INTEGER,
    created_at TIMESTAMP NOT NULL
);
`

const schemaSQLPostgres = `
CREATE TABLE IF NOT EXISTS lattice_cache (
    id SERIAL PRIMARY KEY,
    project_id VARCHAR(255) NOT NULL,
    cache_type VARCHAR(64) NOT NULL,
    chunk_id VARCHAR(255),
    content_hash CHAR(64) NOT NULL,
    result TEXT NOT NULL,
    tokens_used INTEGER,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (project_id, cache_type, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_cache_project_type ON lattice_cache(project_id, cache_type);

CREATE TABLE IF NOT EXISTS lattice_entities (
    project_id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    entity_type VARCHAR(255),
    description TEXT,
    source_id VARCHAR(255),
    file_path TEXT,
    source_chunk_ids TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (project_id, name)
);

CREATE TABLE IF NOT EXISTS lattice_relations (
    id SERIAL PRIMARY KEY,
    project_id VARCHAR(255) NOT NULL,
    src_id VARCHAR(255) NOT NULL,
    tgt_id VARCHAR(255) NOT NULL,
    description TEXT,
    keywords TEXT,
    weight DOUBLE PRECISION,
    file_path TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relations_src ON lattice_relations(project_id, src_id);
CREATE INDEX IF NOT EXISTS idx_relations_tgt ON lattice_relations(project_id, tgt_id);

CREATE TABLE IF NOT EXISTS lattice_chunks (
    chunk_id VARCHAR(255) NOT NULL PRIMARY KEY,
    project_id VARCHAR(255),
    content TEXT NOT NULL,
    document_id VARCHAR(255),
    chunk_index INTEGER,
    created_at TIMESTAMP NOT NULL
);
`

const schemaSQLMySQL = `
CREATE TABLE IF NOT EXISTS lattice_cache (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    project_id VARCHAR(255) NOT NULL,
    cache_type VARCHAR(64) NOT NULL,
    chunk_id VARCHAR(255),
    content_hash CHAR(64) NOT NULL,
    result TEXT NOT NULL,
    tokens_used INTEGER,
    created_at TIMESTAMP NOT NULL,
    UNIQUE KEY uq_cache (project_id, cache_type, content_hash),
    INDEX idx_cache_project_type (project_id, cache_type)
);

CREATE TABLE IF NOT EXISTS lattice_entities (
    project_id VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    entity_type VARCHAR(255),
    description TEXT,
    source_id VARCHAR(255),
    file_path TEXT,
    source_chunk_ids TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (project_id, name)
);

CREATE TABLE IF NOT EXISTS lattice_relations (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    project_id VARCHAR(255) NOT NULL,
    src_id VARCHAR(255) NOT NULL,
    tgt_id VARCHAR(255) NOT NULL,
    description TEXT,
    keywords TEXT,
    weight DOUBLE,
    file_path TEXT,
    created_at TIMESTAMP NOT NULL,
    INDEX idx_relations_src (project_id, src_id),
    INDEX idx_relations_tgt (project_id, tgt_id)
);

CREATE TABLE IF NOT EXISTS lattice_chunks (
    chunk_id VARCHAR(255) NOT NULL PRIMARY KEY,
    project_id VARCHAR(255),
    content TEXT NOT NULL,
    document_id VARCHAR(255),
    chunk_index INTEGER,
    created_at TIMESTAMP NOT NULL
);
`

// Open connects to the configured database, applies pool settings, verifies
// the connection, and bootstraps the schema.
func Open(cfg config.DatabaseConfig, retryCfg config.RetryConfig) (*DB, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	retryCfg.SetDefaults()
	d := &DB{
		db:      db,
		dialect: cfg.Driver,
		retryer: retry.NewRetryer(retry.Config{
			MaxRetries:   retryCfg.MaxRetries,
			BaseDelay:    time.Duration(retryCfg.BaseDelay) * time.Second,
			MaxDelay:     time.Duration(retryCfg.MaxDelay) * time.Second,
			JitterFactor: retryCfg.JitterFactor,
		}),
	}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("Database ready", "driver", cfg.Driver)
	return d, nil
}

// NewDB wraps an existing connection. Used by tests.
func NewDB(db *sql.DB, dialect string) (*DB, error) {
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}
	d := &DB{db: db, dialect: dialect, retryer: retry.NewRetryer(retry.Config{MaxRetries: 0})}
	if err := d.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

func (d *DB) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements(d.dialect) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// schemaStatements returns the dialect's DDL split into individual
// statements; MySQL drivers reject multi-statement Exec by default.
func schemaStatements(dialect string) []string {
	ddl := schemaSQL
	switch dialect {
	case "postgres":
		ddl = schemaSQLPostgres
	case "mysql":
		ddl = schemaSQLMySQL
	}

	parts := strings.Split(ddl, ";")
	stmts := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			stmts = append(stmts, trimmed)
		}
	}
	return stmts
}

// bind rewrites ? placeholders to the dialect's form. Queries are written
// with ? and converted to $N for postgres.
func (d *DB) bind(query string) string {
	if d.dialect != "postgres" {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}
