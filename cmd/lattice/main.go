// Command lattice is the CLI for the lattice retrieval engine.
//
// Usage:
//
//	lattice query "who supplies acme?" --project p1 --mode hybrid
//	lattice query "who supplies acme?" --project p1 --prompt-only
//	lattice cache invalidate --project p1
//	lattice version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/latticeai/lattice"
	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/embedder"
	"github.com/latticeai/lattice/pkg/logger"
	"github.com/latticeai/lattice/pkg/model"
	"github.com/latticeai/lattice/pkg/observability"
	"github.com/latticeai/lattice/pkg/query"
	"github.com/latticeai/lattice/pkg/storage"
	"github.com/latticeai/lattice/pkg/vector"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Query   QueryCmd   `cmd:"" help:"Answer a question against a project's indexed data."`
	Cache   CacheCmd   `cmd:"" help:"Manage cached query responses."`

	Config    string `short:"c" help:"Path to config file (default lattice.yaml when present)." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides config."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text, json). Overrides config."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(lattice.GetVersion().String())
	return nil
}

// QueryCmd runs a single retrieval query.
type QueryCmd struct {
	Question string `arg:"" help:"Question to answer."`

	Project      string `short:"p" help:"Project id." default:"default"`
	Mode         string `short:"m" help:"Retrieval mode (naive, local, global, hybrid, mix)." default:"hybrid"`
	TopK         int    `name:"top-k" help:"Entity and relation retrieval width (0 = config default)."`
	ChunkTopK    int    `name:"chunk-top-k" help:"Chunk retrieval width (0 = config default)."`
	ResponseType string `name:"response-type" help:"Requested answer shape, e.g. 'Multiple Paragraphs'."`
	ContextOnly  bool   `name:"context-only" help:"Print the merged context instead of answering."`
	PromptOnly   bool   `name:"prompt-only" help:"Print the assembled prompt instead of answering."`
	Sources      bool   `help:"List the source chunks after the answer."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	mode, err := query.ParseMode(c.Mode)
	if err != nil {
		return err
	}

	engine, closeEngine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	result, err := engine.Query(ctx, c.Project, c.Question, query.Param{
		Mode:            mode,
		TopK:            c.TopK,
		ChunkTopK:       c.ChunkTopK,
		OnlyNeedContext: c.ContextOnly,
		OnlyNeedPrompt:  c.PromptOnly,
		ResponseType:    c.ResponseType,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	switch {
	case c.ContextOnly:
		fmt.Println(result.Context)
	case c.PromptOnly:
		fmt.Println(result.Prompt)
	default:
		fmt.Println(result.Answer)
		if c.Sources {
			fmt.Printf("\nMode: %s, sources: %d\n", result.Mode, result.TotalSources)
			for _, src := range result.Sources {
				fmt.Printf("  [%s] %s (score %.3f)\n", src.Type, src.ID, src.Score)
			}
		}
	}
	return nil
}

// CacheCmd groups cache maintenance commands.
type CacheCmd struct {
	Invalidate CacheInvalidateCmd `cmd:"" help:"Drop cached query responses for a project."`
}

// CacheInvalidateCmd drops a project's cached responses.
type CacheInvalidateCmd struct {
	Project string `short:"p" help:"Project id." required:""`
}

func (c *CacheInvalidateCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cleanup, err := setup(cli)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, closeEngine, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	deleted, err := engine.InvalidateCache(ctx, c.Project)
	if err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	fmt.Printf("Invalidated %d cached responses for project %s\n", deleted, c.Project)
	return nil
}

// setup loads the config and initializes the process logger, applying CLI
// overrides on top of the config file.
func setup(cli *CLI) (*config.Config, func(), error) {
	path := cli.Config
	if path == "" {
		if _, err := os.Stat("lattice.yaml"); err == nil {
			path = "lattice.yaml"
		}
	}

	var cfg *config.Config
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, nil, err
		}
		output = file
		cleanup = closeFile
	}
	logger.Init(level, output, cfg.Logging.Format)

	if path != "" {
		slog.Debug("Loaded configuration", "path", path)
	}
	return cfg, cleanup, nil
}

// buildEngine wires storage backends, model clients, and metrics into a
// query engine. The returned closer releases everything in reverse order.
func buildEngine(ctx context.Context, cfg *config.Config) (*query.Engine, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := storage.Open(cfg.Database, cfg.Retry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closers = append(closers, func() {
		if err := db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	})

	vecStore, err := vector.New(cfg.VectorStore)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	cacheStore, err := openCacheStore(ctx, cfg, db)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if closer, ok := cacheStore.(interface{ Close() error }); ok {
		closers = append(closers, func() {
			if err := closer.Close(); err != nil {
				slog.Warn("Failed to close cache store", "error", err)
			}
		})
	}

	metrics, metricsHandler, err := observability.InitMetrics(cfg.Metrics)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if metricsHandler != nil {
		closers = append(closers, serveMetrics(cfg.Metrics.Addr, metricsHandler))
	}

	engine, err := query.New(*cfg, query.Dependencies{
		LLM:      model.NewOpenAIClient(cfg.LLM),
		Embedder: embedder.NewOpenAIEmbedder(cfg.Embedder),
		Vector:   vecStore,
		Graph:    storage.NewGraphStore(db),
		Chunks:   storage.NewChunkStore(db),
		Cache:    cacheStore,
		Metrics:  metrics,
	})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to build engine: %w", err)
	}
	closers = append(closers, func() {
		if err := engine.Close(); err != nil {
			slog.Warn("Failed to close engine", "error", err)
		}
	})

	return engine, closeAll, nil
}

// openCacheStore selects the persistent cache backend. The database backend
// shares the SQL connection pool with the graph and chunk stores.
func openCacheStore(ctx context.Context, cfg *config.Config, db *storage.DB) (cache.Store, error) {
	switch cfg.Cache.Type {
	case "database":
		return storage.NewCacheStore(db), nil
	case "redis":
		store, err := cache.NewRedisStore(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect cache store: %w", err)
		}
		return store, nil
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}

// serveMetrics exposes the Prometheus handler on its own listener and
// returns a shutdown func.
func serveMetrics(addr string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server error", "error", err)
		}
	}()
	slog.Info("Metrics endpoint listening", "addr", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("lattice"),
		kong.Description("Lattice - graph-augmented retrieval engine"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
