package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/retry"
)

// CacheStore implements cache.Store on the shared SQL database.
type CacheStore struct {
	d *DB
}

var _ cache.Store = (*CacheStore)(nil)

// NewCacheStore returns the cache store backed by db.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{d: db}
}

// Get implements cache.Store.
func (s *CacheStore) Get(ctx context.Context, projectID string, typ cache.Type, contentHash string) (*cache.Entry, error) {
	query := s.d.bind(`
SELECT id, project_id, cache_type, chunk_id, content_hash, result, tokens_used, created_at
FROM lattice_cache
WHERE project_id = ? AND cache_type = ? AND content_hash = ?
`)

	return retry.DoWithResult(ctx, s.d.retryer, "cache.get", func() (*cache.Entry, error) {
		var (
			entry      cache.Entry
			id         int64
			chunkID    sql.NullString
			tokensUsed sql.NullInt64
		)
		err := s.d.db.QueryRowContext(ctx, query, projectID, string(typ), contentHash).Scan(
			&id, &entry.ProjectID, &entry.Type, &chunkID, &entry.ContentHash,
			&entry.Result, &tokensUsed, &entry.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query cache entry: %w", err)
		}

		entry.ID = strconv.FormatInt(id, 10)
		entry.ChunkID = chunkID.String
		entry.TokensUsed = int(tokensUsed.Int64)
		return &entry, nil
	})
}

// Put implements cache.Store. Existing entries for the same key are
// replaced.
func (s *CacheStore) Put(ctx context.Context, entry cache.Entry) (string, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	upsert := `
INSERT INTO lattice_cache (project_id, cache_type, chunk_id, content_hash, result, tokens_used, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, cache_type, content_hash)
DO UPDATE SET chunk_id = excluded.chunk_id, result = excluded.result,
    tokens_used = excluded.tokens_used, created_at = excluded.created_at
`
	if s.d.dialect == "mysql" {
		upsert = `
INSERT INTO lattice_cache (project_id, cache_type, chunk_id, content_hash, result, tokens_used, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE chunk_id = VALUES(chunk_id), result = VALUES(result),
    tokens_used = VALUES(tokens_used), created_at = VALUES(created_at)
`
	}
	upsert = s.d.bind(upsert)

	selectID := s.d.bind(`
SELECT id FROM lattice_cache WHERE project_id = ? AND cache_type = ? AND content_hash = ?
`)

	return retry.DoWithResult(ctx, s.d.retryer, "cache.put", func() (string, error) {
		_, err := s.d.db.ExecContext(ctx, upsert,
			entry.ProjectID, string(entry.Type), nullString(entry.ChunkID),
			entry.ContentHash, entry.Result, entry.TokensUsed, entry.CreatedAt,
		)
		if err != nil {
			return "", fmt.Errorf("failed to store cache entry: %w", err)
		}

		var id int64
		if err := s.d.db.QueryRowContext(ctx, selectID,
			entry.ProjectID, string(entry.Type), entry.ContentHash).Scan(&id); err != nil {
			return "", fmt.Errorf("failed to read cache entry id: %w", err)
		}
		return strconv.FormatInt(id, 10), nil
	})
}

// DeleteByProject implements cache.Store.
func (s *CacheStore) DeleteByProject(ctx context.Context, projectID string, typ cache.Type) (int, error) {
	query := s.d.bind(`DELETE FROM lattice_cache WHERE project_id = ? AND cache_type = ?`)

	return retry.DoWithResult(ctx, s.d.retryer, "cache.delete_by_project", func() (int, error) {
		res, err := s.d.db.ExecContext(ctx, query, projectID, string(typ))
		if err != nil {
			return 0, fmt.Errorf("failed to delete cache entries: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read delete count: %w", err)
		}
		return int(affected), nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
