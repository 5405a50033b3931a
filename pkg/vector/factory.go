package vector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/registry"
)

// Factory builds a Store from its config section.
type Factory func(cfg config.VectorStoreConfig) (Store, error)

var backends = registry.NewBaseRegistry[Factory]()

func init() {
	_ = backends.Register("memory", func(config.VectorStoreConfig) (Store, error) {
		return NewMemoryStore(), nil
	})
	_ = backends.Register("chromem", func(cfg config.VectorStoreConfig) (Store, error) {
		store, err := NewChromemStore(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, err
		}
		slog.Debug("Vector store ready", "type", "chromem", "persist_path", cfg.PersistPath)
		return store, nil
	})
	_ = backends.Register("qdrant", func(cfg config.VectorStoreConfig) (Store, error) {
		useTLS := cfg.EnableTLS != nil && *cfg.EnableTLS
		store, err := NewQdrantStore(cfg.Host, cfg.Port, cfg.APIKey, useTLS)
		if err != nil {
			return nil, err
		}
		slog.Debug("Vector store ready", "type", "qdrant", "host", cfg.Host, "port", cfg.Port)
		return store, nil
	})
}

// New builds a Store from config, resolving the backend by type name
// (case-insensitive) in the backend registry.
func New(cfg config.VectorStoreConfig) (Store, error) {
	cfg.SetDefaults()

	factory, ok := backends.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown vector store type %q (known: %s)",
			cfg.Type, strings.Join(backends.Names(), ", "))
	}
	return factory(cfg)
}
