package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore implements Store using chromem-go, an embedded pure-Go vector
// database. It needs no external service and optionally persists to disk,
// which makes it the default backend.
type ChromemStore struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) an embedded store. An empty persistPath
// keeps everything in memory.
func NewChromemStore(persistPath string, compress bool) (*ChromemStore, error) {
	var db *chromem.DB

	if persistPath != "" {
		if err := os.MkdirAll(persistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		dbPath := dbFilePath(persistPath, compress)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, compress)
			if err != nil {
				slog.Warn("Failed to load existing vector database, starting empty",
					"path", dbPath,
					"error", err)
				db = chromem.NewDB()
			} else {
				slog.Info("Loaded vector database", "path", dbPath)
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:          db,
		persistPath: persistPath,
		compress:    compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func dbFilePath(persistPath string, compress bool) string {
	name := "vectors.gob"
	if compress {
		name += ".gz"
	}
	return filepath.Join(persistPath, name)
}

// getCollection returns a cached collection handle, creating it on first use.
func (s *ChromemStore) getCollection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Vectors arrive pre-computed, so the embedding function must never run.
	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vectors must be pre-computed")
	}

	col, err := s.db.GetOrCreateCollection(name, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// Upsert implements Store.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, id string, vec []float32, metadata map[string]any) error {
	col, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	// chromem stores string metadata only.
	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}
	content := ""
	if c, ok := metadata[MetaContent].(string); ok {
		content = c
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMeta,
		Embedding: vec,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", id, err)
	}

	if err := s.persist(); err != nil {
		slog.Warn("Failed to persist vector database", "error", err)
	}
	return nil
}

// Search implements Store.
func (s *ChromemStore) Search(ctx context.Context, collection string, vec []float32, topK int) ([]SearchResult, error) {
	return s.SearchWithFilter(ctx, collection, vec, topK, nil)
}

// SearchWithFilter implements Store.
func (s *ChromemStore) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	col, err := s.getCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than stored documents.
	if count := col.Count(); topK > count {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	matches, err := col.QueryEmbedding(ctx, vec, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		metadata := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			metadata[k] = v
		}
		results = append(results, SearchResult{
			ID:       m.ID,
			Content:  m.Content,
			Score:    m.Similarity,
			Metadata: metadata,
		})
	}
	return results, nil
}

// Close persists the database when persistence is configured.
func (s *ChromemStore) Close() error {
	return s.persist()
}

func (s *ChromemStore) persist() error {
	if s.persistPath == "" {
		return nil
	}
	//nolint:staticcheck // Export remains the stable persistence entry point.
	if err := s.db.Export(dbFilePath(s.persistPath, s.compress), s.compress, ""); err != nil {
		return fmt.Errorf("failed to persist vector database: %w", err)
	}
	return nil
}
