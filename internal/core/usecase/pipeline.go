package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
	"github.com/mpetrov/refragd/internal/core/selection"
)

const answerPromptTemplate = `Use the following context to answer the query.

Context:
%s

Query: %s

Answer:`

// Pipeline drives one query through retrieval, selection, context assembly
// and (when a generator is configured) answer generation. A single run is
// strictly sequential; distinct runs may share one Pipeline.
type Pipeline struct {
	retriever ports.Retriever
	generator ports.Generator // nil disables the generation stage
	selector  selection.Selector
	k         int
	budget    int
}

func NewPipeline(
	retriever ports.Retriever,
	generator ports.Generator,
	selector selection.Selector,
	k int,
	budget int,
) *Pipeline {
	if k <= 0 {
		k = 5
	}
	if budget <= 0 {
		budget = 2
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		selector:  selector,
		k:         k,
		budget:    budget,
	}
}

// Run executes the pipeline for one query with the configured retrieval
// depth and selection budget.
func (p *Pipeline) Run(ctx context.Context, query string) (*domain.RAGContext, error) {
	return p.RunWithLimits(ctx, query, 0, 0)
}

// RunWithLimits executes the pipeline for one query. Non-positive k or
// budget values fall back to the configured defaults. Retrieval failures
// abort the run; generation failures are captured into the answer so the
// caller always receives a complete RAGContext.
func (p *Pipeline) RunWithLimits(ctx context.Context, query string, k, budget int) (*domain.RAGContext, error) {
	if k <= 0 {
		k = p.k
	}
	if budget <= 0 {
		budget = p.budget
	}

	candidates, err := p.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	queryVector, err := p.retriever.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vectors := make([][]float32, len(candidates))
	for i, candidate := range candidates {
		vectors[i] = candidate.Vector
	}
	selected := p.selector.Select(queryVector, vectors, budget)

	selectedSet := make(map[int]bool, len(selected))
	for _, idx := range selected {
		selectedSet[idx] = true
	}

	// Caller-supplied metadata is never annotated in place.
	annotated := make([]domain.SelectedCandidate, len(candidates))
	for i, candidate := range candidates {
		metadata := domain.CopyMetadata(candidate.Metadata)
		metadata["selected"] = selectedSet[i]
		annotated[i] = domain.SelectedCandidate{
			Vector:   candidate.Vector,
			Metadata: metadata,
		}
	}

	// Context holds only the selected passages, in selection order.
	parts := make([]string, 0, len(selected))
	for _, idx := range selected {
		parts = append(parts, candidates[idx].Text)
	}
	contextBlock := strings.Join(parts, "\n\n")
	prompt := fmt.Sprintf(answerPromptTemplate, contextBlock, query)

	result := &domain.RAGContext{
		Query:        query,
		Candidates:   annotated,
		ContextChars: utf8.RuneCountInString(contextBlock),
		PromptChars:  utf8.RuneCountInString(prompt),
	}

	if p.generator == nil {
		slog.DebugContext(ctx, "pipeline_done",
			"query_chars", utf8.RuneCountInString(query),
			"candidates", len(candidates),
			"selected", len(selected),
			"generation", false,
		)
		return result, nil
	}

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		// Downstream failures never abort a run that already has context.
		slog.WarnContext(ctx, "generation_failed", "error", err)
		answer = fmt.Sprintf("generation error: %v", err)
	}
	result.Answer = &answer

	slog.DebugContext(ctx, "pipeline_done",
		"query_chars", utf8.RuneCountInString(query),
		"candidates", len(candidates),
		"selected", len(selected),
		"generation", true,
	)
	return result, nil
}

// SelectedCount reports how many candidates in a finished context carry the
// selected flag. Used by the HTTP layer for metrics.
func SelectedCount(result *domain.RAGContext) int {
	count := 0
	for _, candidate := range result.Candidates {
		if selected, ok := candidate.Metadata["selected"].(bool); ok && selected {
			count++
		}
	}
	return count
}
