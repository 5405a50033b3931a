// Package query is the engine's entry point: it validates query parameters,
// consults the response cache, dispatches to the per-mode retrieval
// pipeline, invokes the LLM on the assembled prompt, and returns the answer
// with its source provenance.
package query

import (
	"fmt"
	"strings"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeNaive is plain vector chunk search, no graph involvement.
	ModeNaive Mode = "naive"

	// ModeLocal is keyword-steered chunk search for entity-specific
	// questions.
	ModeLocal Mode = "local"

	// ModeGlobal is entity and relation search for thematic questions.
	ModeGlobal Mode = "global"

	// ModeHybrid runs chunk and entity retrieval concurrently and fuses
	// the results.
	ModeHybrid Mode = "hybrid"

	// ModeMix seeds entity search, expands the graph around the seeds, and
	// combines the expansion with chunk search.
	ModeMix Mode = "mix"
)

// Modes lists every mode, in documentation order.
func Modes() []Mode {
	return []Mode{ModeNaive, ModeLocal, ModeGlobal, ModeHybrid, ModeMix}
}

// ParseMode resolves a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNaive:
		return ModeNaive, nil
	case ModeLocal:
		return ModeLocal, nil
	case ModeGlobal:
		return ModeGlobal, nil
	case ModeHybrid:
		return ModeHybrid, nil
	case ModeMix:
		return ModeMix, nil
	default:
		return "", fmt.Errorf("unknown query mode %q (valid: naive, local, global, hybrid, mix)", s)
	}
}

func (m Mode) String() string {
	return string(m)
}
