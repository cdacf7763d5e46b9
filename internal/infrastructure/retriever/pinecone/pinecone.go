// Package pinecone reserves the backend name in configuration. Every
// operation fails with domain.ErrUnimplemented until a real client lands.
package pinecone

import (
	"context"
	"fmt"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
)

type Retriever struct {
	index string
}

func New(index string) *Retriever {
	return &Retriever{index: index}
}

func (r *Retriever) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, r.unimplemented("embed query")
}

func (r *Retriever) Retrieve(context.Context, string, int) ([]domain.Candidate, error) {
	return nil, r.unimplemented("retrieve")
}

func (r *Retriever) AddFragments(context.Context, []domain.Fragment) error {
	return r.unimplemented("add fragments")
}

func (r *Retriever) unimplemented(operation string) error {
	return domain.WrapError(domain.ErrUnimplemented, "pinecone "+operation,
		fmt.Errorf("index %q has no client", r.index))
}

var (
	_ ports.Retriever     = (*Retriever)(nil)
	_ ports.FragmentIndex = (*Retriever)(nil)
)
