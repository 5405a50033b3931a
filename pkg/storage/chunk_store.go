package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/latticeai/lattice/pkg/kv"
	"github.com/latticeai/lattice/pkg/retry"
)

// ChunkStore implements kv.Store for chunk content lookup by chunk id.
type ChunkStore struct {
	d *DB
}

var _ kv.Store = (*ChunkStore)(nil)

// NewChunkStore returns the chunk store backed by db.
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{d: db}
}

// Get implements kv.Store.
func (s *ChunkStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := s.d.bind(`SELECT content FROM lattice_chunks WHERE chunk_id = ?`)

	type lookup struct {
		content string
		found   bool
	}
	result, err := retry.DoWithResult(ctx, s.d.retryer, "chunks.get", func() (lookup, error) {
		var content string
		err := s.d.db.QueryRowContext(ctx, query, key).Scan(&content)
		if errors.Is(err, sql.ErrNoRows) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, fmt.Errorf("failed to query chunk: %w", err)
		}
		return lookup{content: content, found: true}, nil
	})
	if err != nil {
		return "", false, err
	}
	return result.content, result.found, nil
}

// Keys implements kv.Store.
func (s *ChunkStore) Keys(ctx context.Context) ([]string, error) {
	query := `SELECT chunk_id FROM lattice_chunks ORDER BY chunk_id ASC`

	return retry.DoWithResult(ctx, s.d.retryer, "chunks.keys", func() ([]string, error) {
		rows, err := s.d.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query chunk ids: %w", err)
		}
		defer rows.Close()

		var keys []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return nil, fmt.Errorf("failed to scan chunk id: %w", err)
			}
			keys = append(keys, key)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating chunk ids: %w", err)
		}
		return keys, nil
	})
}

// PutChunk stores chunk content. Used by ingestion and tests.
func (s *ChunkStore) PutChunk(ctx context.Context, chunkID, projectID, content, documentID string, chunkIndex int) error {
	upsert := `
INSERT INTO lattice_chunks (chunk_id, project_id, content, document_id, chunk_index, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (chunk_id)
DO UPDATE SET project_id = excluded.project_id, content = excluded.content,
    document_id = excluded.document_id, chunk_index = excluded.chunk_index
`
	if s.d.dialect == "mysql" {
		upsert = `
INSERT INTO lattice_chunks (chunk_id, project_id, content, document_id, chunk_index, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE project_id = VALUES(project_id), content = VALUES(content),
    document_id = VALUES(document_id), chunk_index = VALUES(chunk_index)
`
	}
	upsert = s.d.bind(upsert)

	_, err := retry.DoWithResult(ctx, s.d.retryer, "chunks.put", func() (struct{}, error) {
		_, err := s.d.db.ExecContext(ctx, upsert,
			chunkID, projectID, content, nullString(documentID), chunkIndex, time.Now(),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to store chunk: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}
