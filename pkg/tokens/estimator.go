// Package tokens provides token estimation, budget-aware truncation, and
// text chunking for context assembly.
//
// Counting uses the cl100k_base BPE encoding when it can be initialized
// (the encoding data may need to be fetched on first use). When the encoding
// is unavailable the estimator degrades to a character heuristic of four
// characters per token, rounded up.
package tokens

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingName = "cl100k_base"

	// charsPerToken is the heuristic ratio used when no encoding is loaded.
	charsPerToken = 4

	ellipsis = "..."
)

var (
	encodingOnce   sync.Once
	sharedEncoding *tiktoken.Tiktoken
)

// loadEncoding initializes the shared cl100k_base encoding once per process.
// Failure is logged and leaves the estimator in heuristic mode.
func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			slog.Warn("Tokenizer unavailable, using character-based estimation",
				"encoding", encodingName, "error", err)
			return
		}
		sharedEncoding = enc
	})
	return sharedEncoding
}

// Estimator counts tokens and splits text under token budgets.
// The zero value is not usable; construct with New or NewHeuristic.
type Estimator struct {
	encoding *tiktoken.Tiktoken
}

// New returns an Estimator backed by the shared cl100k_base encoding,
// falling back to the character heuristic when the encoding cannot load.
func New() *Estimator {
	return &Estimator{encoding: loadEncoding()}
}

// NewHeuristic returns an Estimator that always uses the character
// heuristic. Deterministic and dependency-free; used by tests and as the
// explicit opt-out of BPE counting.
func NewHeuristic() *Estimator {
	return &Estimator{}
}

// Estimate returns the token count of text. Empty text counts zero.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.encoding != nil {
		return len(e.encoding.Encode(text, nil, nil))
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// TruncateToLimit returns text unchanged when it fits within maxTokens.
// Otherwise it truncates to maxTokens-1 tokens and appends "...", so the
// result still fits the limit. Non-positive limits yield the empty string.
func (e *Estimator) TruncateToLimit(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if e.Estimate(text) <= maxTokens {
		return text
	}

	keep := maxTokens - 1 // one token reserved for the ellipsis
	if e.encoding != nil {
		ids := e.encoding.Encode(text, nil, nil)
		return e.encoding.Decode(ids[:keep]) + ellipsis
	}
	return truncateRunes(text, keep*charsPerToken) + ellipsis
}

// ChunkText splits text into chunks of at most maxTokens tokens. Splits
// prefer sentence boundaries; a single sentence over the budget is split on
// token (or character) windows. Consecutive chunks share the last overlap
// tokens of the preceding chunk.
func (e *Estimator) ChunkText(text string, maxTokens, overlap int) ([]string, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("maxTokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("overlap must be in [0, maxTokens), got overlap=%d maxTokens=%d", overlap, maxTokens)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var (
		chunks  []string
		current string
		tokens  int
	)
	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
		}
		current = ""
		tokens = 0
	}

	for _, sentence := range splitSentences(text) {
		st := e.Estimate(sentence)

		if st > maxTokens {
			flush()
			chunks = append(chunks, e.hardSplit(sentence, maxTokens, overlap)...)
			continue
		}

		if current != "" && tokens+1+st > maxTokens {
			prev := current
			flush()
			if overlap > 0 {
				tail := e.overlapTail(prev, overlap)
				if tt := e.Estimate(tail); tail != "" && tt+1+st <= maxTokens {
					current = tail
					tokens = tt
				}
			}
		}

		if current == "" {
			current = sentence
			tokens = st
		} else {
			current += " " + sentence
			tokens += 1 + st
		}
	}
	flush()

	return chunks, nil
}

// BudgetRatios divides a context budget across the three context types.
type BudgetRatios struct {
	Chunk    float64
	Entity   float64
	Relation float64
}

// Sum returns the total of the three ratios.
func (r BudgetRatios) Sum() float64 {
	return r.Chunk + r.Entity + r.Relation
}

// Split allocates maxTokens across the three context types. Ratios that do
// not sum to 1.0 (within 0.01) are logged but still applied as given.
func (r BudgetRatios) Split(maxTokens int) (chunkBudget, entityBudget, relationBudget int) {
	if math.Abs(r.Sum()-1.0) > 0.01 {
		slog.Warn("Budget ratios do not sum to 1.0",
			"chunk", r.Chunk, "entity", r.Entity, "relation", r.Relation, "sum", r.Sum())
	}
	if maxTokens <= 0 {
		return 0, 0, 0
	}
	return int(float64(maxTokens) * r.Chunk),
		int(float64(maxTokens) * r.Entity),
		int(float64(maxTokens) * r.Relation)
}

// sentenceBoundary matches terminal punctuation followed by whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)

// splitSentences splits on sentence boundaries, keeping terminal
// punctuation with its sentence. Text without boundaries is one sentence.
func splitSentences(text string) []string {
	bounds := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}

	var sentences []string
	last := 0
	for _, b := range bounds {
		s := strings.TrimSpace(text[last:b[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
		last = b[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// hardSplit windows text into maxTokens-sized pieces stepping by
// maxTokens-overlap, on tokens when the encoding is loaded and on runes
// (approximately, at the heuristic ratio) otherwise.
func (e *Estimator) hardSplit(text string, maxTokens, overlap int) []string {
	step := maxTokens - overlap

	if e.encoding != nil {
		ids := e.encoding.Encode(text, nil, nil)
		var out []string
		for start := 0; start < len(ids); start += step {
			end := start + maxTokens
			if end > len(ids) {
				end = len(ids)
			}
			out = append(out, e.encoding.Decode(ids[start:end]))
			if end == len(ids) {
				break
			}
		}
		return out
	}

	runes := []rune(text)
	maxRunes := maxTokens * charsPerToken
	stepRunes := step * charsPerToken
	var out []string
	for start := 0; start < len(runes); start += stepRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// overlapTail returns the last overlap tokens of text.
func (e *Estimator) overlapTail(text string, overlap int) string {
	if overlap <= 0 || text == "" {
		return ""
	}
	if e.encoding != nil {
		ids := e.encoding.Encode(text, nil, nil)
		if len(ids) <= overlap {
			return text
		}
		return e.encoding.Decode(ids[len(ids)-overlap:])
	}

	n := overlap * charsPerToken
	if len(text) <= n {
		return text
	}
	cut := len(text) - n
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return text[cut:]
}

// truncateRunes cuts text to at most n bytes without splitting a rune.
func truncateRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
