package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/retry"
)

// GraphStore implements graph.Store on the shared SQL database. Source chunk
// ids are stored as a JSON array in a TEXT column.
type GraphStore struct {
	d *DB
}

var _ graph.Store = (*GraphStore)(nil)

// NewGraphStore returns the graph store backed by db.
func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{d: db}
}

// GetEntities implements graph.Store. Results follow the order of names.
func (s *GraphStore) GetEntities(ctx context.Context, projectID string, names []string) ([]graph.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	query := s.d.bind(fmt.Sprintf(`
SELECT name, entity_type, description, source_id, file_path, source_chunk_ids
FROM lattice_entities
WHERE project_id = ? AND name IN (%s)
`, placeholders))

	args := make([]any, 0, len(names)+1)
	args = append(args, projectID)
	for _, name := range names {
		args = append(args, name)
	}

	return retry.DoWithResult(ctx, s.d.retryer, "graph.get_entities", func() ([]graph.Entity, error) {
		rows, err := s.d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query entities: %w", err)
		}
		defer rows.Close()

		byName := make(map[string]graph.Entity)
		for rows.Next() {
			entity, err := scanEntity(rows)
			if err != nil {
				return nil, err
			}
			byName[entity.Name] = entity
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating entities: %w", err)
		}

		out := make([]graph.Entity, 0, len(byName))
		for _, name := range names {
			if e, ok := byName[name]; ok {
				out = append(out, e)
			}
		}
		return out, nil
	})
}

// GetRelationsForEntity implements graph.Store.
func (s *GraphStore) GetRelationsForEntity(ctx context.Context, projectID string, name string) ([]graph.Relation, error) {
	query := s.d.bind(`
SELECT src_id, tgt_id, description, keywords, weight, file_path
FROM lattice_relations
WHERE project_id = ? AND (src_id = ? OR tgt_id = ?)
ORDER BY id ASC
`)

	return retry.DoWithResult(ctx, s.d.retryer, "graph.get_relations", func() ([]graph.Relation, error) {
		rows, err := s.d.db.QueryContext(ctx, query, projectID, name, name)
		if err != nil {
			return nil, fmt.Errorf("failed to query relations: %w", err)
		}
		defer rows.Close()

		var out []graph.Relation
		for rows.Next() {
			var (
				r           graph.Relation
				description sql.NullString
				keywords    sql.NullString
				weight      sql.NullFloat64
				filePath    sql.NullString
			)
			if err := rows.Scan(&r.SrcID, &r.TgtID, &description, &keywords, &weight, &filePath); err != nil {
				return nil, fmt.Errorf("failed to scan relation: %w", err)
			}
			r.Description = description.String
			r.Keywords = keywords.String
			r.Weight = weight.Float64
			r.FilePath = filePath.String
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating relations: %w", err)
		}
		return out, nil
	})
}

// UpsertEntity implements graph.Store. An existing row's source chunk ids
// are unioned with the incoming ones. Callers serialize writes to the same
// entity through the lock registry.
func (s *GraphStore) UpsertEntity(ctx context.Context, projectID string, entity graph.Entity) error {
	if entity.Name == "" {
		return fmt.Errorf("entity name is required")
	}

	selectQuery := s.d.bind(`
SELECT source_chunk_ids FROM lattice_entities WHERE project_id = ? AND name = ?
`)
	insertQuery := s.d.bind(`
INSERT INTO lattice_entities (project_id, name, entity_type, description, source_id, file_path, source_chunk_ids, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	updateQuery := s.d.bind(`
UPDATE lattice_entities
SET entity_type = ?, description = ?, source_id = ?, file_path = ?, source_chunk_ids = ?, updated_at = ?
WHERE project_id = ? AND name = ?
`)

	_, err := retry.DoWithResult(ctx, s.d.retryer, "graph.upsert_entity", func() (struct{}, error) {
		var existing sql.NullString
		err := s.d.db.QueryRowContext(ctx, selectQuery, projectID, entity.Name).Scan(&existing)

		now := time.Now()
		if errors.Is(err, sql.ErrNoRows) {
			ids, err := marshalChunkIDs(entity.SourceChunkIDs)
			if err != nil {
				return struct{}{}, err
			}
			if _, err := s.d.db.ExecContext(ctx, insertQuery,
				projectID, entity.Name, entity.Type, entity.Description,
				entity.SourceID, entity.FilePath, ids, now, now,
			); err != nil {
				return struct{}{}, fmt.Errorf("failed to insert entity: %w", err)
			}
			return struct{}{}, nil
		}
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to query entity: %w", err)
		}

		merged := unionChunkIDs(unmarshalChunkIDs(existing.String), entity.SourceChunkIDs)
		ids, err := marshalChunkIDs(merged)
		if err != nil {
			return struct{}{}, err
		}
		if _, err := s.d.db.ExecContext(ctx, updateQuery,
			entity.Type, entity.Description, entity.SourceID, entity.FilePath,
			ids, now, projectID, entity.Name,
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to update entity: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// AddRelation inserts a relation edge. Used by ingestion and tests.
func (s *GraphStore) AddRelation(ctx context.Context, projectID string, relation graph.Relation) error {
	query := s.d.bind(`
INSERT INTO lattice_relations (project_id, src_id, tgt_id, description, keywords, weight, file_path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`)

	_, err := retry.DoWithResult(ctx, s.d.retryer, "graph.add_relation", func() (struct{}, error) {
		_, err := s.d.db.ExecContext(ctx, query,
			projectID, relation.SrcID, relation.TgtID, relation.Description,
			relation.Keywords, relation.Weight, relation.FilePath, time.Now(),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to insert relation: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (graph.Entity, error) {
	var (
		e           graph.Entity
		entityType  sql.NullString
		description sql.NullString
		sourceID    sql.NullString
		filePath    sql.NullString
		chunkIDs    sql.NullString
	)
	if err := row.Scan(&e.Name, &entityType, &description, &sourceID, &filePath, &chunkIDs); err != nil {
		return graph.Entity{}, fmt.Errorf("failed to scan entity: %w", err)
	}
	e.Type = entityType.String
	e.Description = description.String
	e.SourceID = sourceID.String
	e.FilePath = filePath.String
	e.SourceChunkIDs = unmarshalChunkIDs(chunkIDs.String)
	return e, nil
}

func marshalChunkIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chunk ids: %w", err)
	}
	return string(data), nil
}

// unmarshalChunkIDs tolerates malformed stored values and returns nil for
// them; a broken provenance list must not fail retrieval.
func unmarshalChunkIDs(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil
	}
	return ids
}

func unionChunkIDs(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	merged := append([]string(nil), existing...)
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range incoming {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	return merged
}
