package pipeline

import (
	"context"
	"strings"

	"github.com/latticeai/lattice/pkg/merge"
)

// BuilderOptions control prompt assembly.
type BuilderOptions struct {
	// Grouped renders the context grouped by type under subsection headers.
	// Ungrouped output prefixes each item with its type label instead.
	Grouped bool

	// Headers toggles section headers entirely.
	Headers bool
}

// ContextBuilderStage assembles the final prompt from the merged context,
// conversation history, and the query. Sections appear in a fixed order and
// empty sections are omitted; an empty query still yields a prompt with the
// query section alone.
type ContextBuilderStage struct {
	opts BuilderOptions
}

// NewContextBuilderStage returns the stage.
func NewContextBuilderStage(opts BuilderOptions) *ContextBuilderStage {
	return &ContextBuilderStage{opts: opts}
}

// Name implements Stage.
func (s *ContextBuilderStage) Name() string { return "context_builder" }

// Run implements Stage.
func (s *ContextBuilderStage) Run(ctx context.Context, p *Context) error {
	var sb strings.Builder

	if len(p.History) > 0 {
		if s.opts.Headers {
			sb.WriteString("## Conversation History\n")
		}
		for _, turn := range p.History {
			sb.WriteString(capitalizeRole(turn.Role))
			sb.WriteString(": ")
			sb.WriteString(turn.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(p.Merged.Included) > 0 {
		if s.opts.Headers {
			sb.WriteString("## Context\n\n")
		}
		if s.opts.Grouped {
			s.writeGrouped(&sb, p.Merged.Included)
		} else {
			s.writeFlat(&sb, p.Merged.Included)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Query\n")
	sb.WriteString(p.Query)
	sb.WriteString("\n")

	if p.ResponseType != "" {
		sb.WriteString("\nPlease respond with: ")
		sb.WriteString(p.ResponseType)
		sb.WriteString("\n")
	}

	p.FinalPrompt = sb.String()
	return nil
}

// writeGrouped emits the items grouped by type, preserving merge order
// within each group. Empty groups are omitted.
func (s *ContextBuilderStage) writeGrouped(sb *strings.Builder, items []merge.ContextItem) {
	groups := []struct {
		typ    string
		header string
	}{
		{merge.TypeEntity, "### Entities\n"},
		{merge.TypeRelation, "### Relations\n"},
		{merge.TypeChunk, "### Sources\n"},
	}
	for _, group := range groups {
		wrote := false
		for _, item := range items {
			if item.Type != group.typ {
				continue
			}
			if !wrote {
				sb.WriteString(group.header)
				wrote = true
			}
			sb.WriteString(item.Content)
			sb.WriteString("\n")
		}
		if wrote {
			sb.WriteString("\n")
		}
	}
}

// writeFlat emits the items in merge order with per-item type labels.
func (s *ContextBuilderStage) writeFlat(sb *strings.Builder, items []merge.ContextItem) {
	for _, item := range items {
		switch item.Type {
		case merge.TypeEntity:
			sb.WriteString("[Entity] ")
		case merge.TypeRelation:
			sb.WriteString("[Relation] ")
		default:
			sb.WriteString("[Source] ")
		}
		sb.WriteString(item.Content)
		sb.WriteString("\n")
	}
}

// capitalizeRole uppercases the first letter of a role label ("user" ->
// "User").
func capitalizeRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
