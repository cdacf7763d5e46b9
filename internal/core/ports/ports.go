package ports

import (
	"context"

	"github.com/mpetrov/refragd/internal/core/domain"
)

// Embedder builds vectors for fragment text and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds queries and fetches candidate passages. Backends that
// cannot serve a call return an error wrapping domain.ErrUnimplemented
// rather than half-working.
type Retriever interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error)
}

// FragmentIndex is the optional write side of a retriever backend.
type FragmentIndex interface {
	AddFragments(ctx context.Context, fragments []domain.Fragment) error
}

// Generator creates the final user-facing answer from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MessageQueue moves fragment batches from the API to the indexing worker.
type MessageQueue interface {
	PublishFragments(ctx context.Context, fragments []domain.Fragment) error
	SubscribeFragments(ctx context.Context, handler func(context.Context, []domain.Fragment) error) error
}

// MemoryStore persists session memory records and searches them by lexical
// match count. The selection core has no dependency on it.
type MemoryStore interface {
	Save(ctx context.Context, record *domain.MemoryRecord) error
	Search(ctx context.Context, sessionID, query string, k int, typeFilter domain.MemoryRecordType) ([]domain.MemoryRecord, error)
}
