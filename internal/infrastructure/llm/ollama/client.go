// Package ollama adapts a local Ollama server as the embedding and
// generation backend.
package ollama

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mpetrov/refragd/internal/core/ports"
	"github.com/mpetrov/refragd/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder returns unit-length vectors. Selection scores are dot products,
// so normalization happens here rather than in the math.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed result count %d, want %d", len(response.Embeddings), len(texts))
	}
	for i, vector := range response.Embeddings {
		response.Embeddings[i] = unitVector(vector)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", request, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func unitVector(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vector
	}
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

var (
	_ ports.Embedder  = (*Embedder)(nil)
	_ ports.Generator = (*Generator)(nil)
)
