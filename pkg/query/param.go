package query

import (
	"fmt"

	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/model"
	"github.com/latticeai/lattice/pkg/pipeline"
)

// Param tunes one query. Zero widths take the configured defaults.
type Param struct {
	// Mode selects the retrieval strategy. Empty means hybrid.
	Mode Mode

	// TopK is the entity retrieval width.
	TopK int

	// ChunkTopK is the chunk retrieval width.
	ChunkTopK int

	// OnlyNeedContext returns the merged context without building a prompt
	// or calling the LLM.
	OnlyNeedContext bool

	// OnlyNeedPrompt returns the assembled prompt without calling the LLM.
	OnlyNeedPrompt bool

	// ResponseType is an instruction appended to the prompt, e.g.
	// "Multiple Paragraphs".
	ResponseType string

	// History holds prior conversation turns, oldest first.
	History []model.Turn
}

// withDefaults fills zero fields from config.
func (p Param) withDefaults(cfg config.QueryConfig) Param {
	if p.Mode == "" {
		p.Mode = ModeHybrid
	}
	if p.TopK <= 0 {
		p.TopK = cfg.TopK
	}
	if p.ChunkTopK <= 0 {
		p.ChunkTopK = cfg.ChunkTopK
	}
	return p
}

func (p Param) validate() error {
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if p.TopK < 1 {
		return fmt.Errorf("topK must be positive, got %d", p.TopK)
	}
	if p.ChunkTopK < 1 {
		return fmt.Errorf("chunkTopK must be positive, got %d", p.ChunkTopK)
	}
	return nil
}

// Result is the outcome of one query.
type Result struct {
	// Answer is the LLM response. Empty when only context or prompt was
	// requested.
	Answer string

	// Sources lists the chunks that backed the answer. Cache hits return an
	// empty list with TotalSources preserved.
	Sources []pipeline.SourceChunk

	// Mode is the strategy that produced the result.
	Mode Mode

	// TotalSources is the source count at answer time.
	TotalSources int

	// Context is the merged context, set when OnlyNeedContext was requested.
	Context string

	// Prompt is the assembled prompt, set when OnlyNeedPrompt was requested.
	Prompt string
}
