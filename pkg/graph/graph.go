// Package graph holds the knowledge-graph model consumed by retrieval:
// entities, relations, the storage interface, and BFS expansion over the
// relation structure.
package graph

import (
	"context"

	"github.com/latticeai/lattice/pkg/locks"
)

// Entity is a knowledge-graph node produced by ingestion.
type Entity struct {
	// Name identifies the entity within a project. Together with Type it
	// forms the primary key; type comparison is case-insensitive.
	Name string

	// Type classifies the entity ("person", "organization", ...). Empty
	// means untyped.
	Type string

	// Description is the merged description text.
	Description string

	// SourceID records ingestion provenance.
	SourceID string

	// FilePath is the originating file, when known.
	FilePath string

	// SourceChunkIDs lists the chunks this entity was extracted from.
	SourceChunkIDs []string
}

// Relation is an undirected knowledge-graph edge.
type Relation struct {
	SrcID       string
	TgtID       string
	Description string

	// Keywords summarize the relation, comma separated.
	Keywords string

	// Weight is the relation strength assigned at extraction time.
	Weight float64

	FilePath string
}

// PairKey returns the normalized pair key identifying this edge regardless
// of direction.
func (r Relation) PairKey() string {
	return locks.NormalizePair(r.SrcID, r.TgtID)
}

// Store is the graph storage interface. Retrieval reads entities and
// relations; the description summarizer may write merged descriptions back.
type Store interface {
	// GetEntities returns the entities matching the given names, in input
	// order. Unknown names are skipped.
	GetEntities(ctx context.Context, projectID string, names []string) ([]Entity, error)

	// GetRelationsForEntity returns every relation touching the named entity.
	GetRelationsForEntity(ctx context.Context, projectID string, name string) ([]Relation, error)

	// UpsertEntity inserts or updates an entity. Callers hold the entity-name
	// lock when updating descriptions.
	UpsertEntity(ctx context.Context, projectID string, entity Entity) error
}
