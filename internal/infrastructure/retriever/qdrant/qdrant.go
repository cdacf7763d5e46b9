// Package qdrant adapts a Qdrant collection as a retrieval backend over its
// HTTP API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
)

type Retriever struct {
	baseURL    string
	collection string
	embedder   ports.Embedder
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, embedder ports.Embedder) *Retriever {
	return &Retriever{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return r.embedder.EmbedQuery(ctx, query)
}

func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		return []domain.Candidate{}, nil
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", r.baseURL, r.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, hit := range searchResp.Result {
		metadata := map[string]any{}
		if nested, ok := hit.Payload["metadata"].(map[string]any); ok {
			metadata = domain.CopyMetadata(nested)
		}
		metadata["fragment_id"] = stringPayload(hit.Payload, "fragment_id")
		if parent := stringPayload(hit.Payload, "parent_doc_id"); parent != "" {
			metadata["parent_doc_id"] = parent
		}
		metadata["score"] = hit.Score
		out = append(out, domain.Candidate{
			Text:     stringPayload(hit.Payload, "text"),
			Vector:   hit.Vector,
			Metadata: metadata,
		})
	}
	return out, nil
}

// AddFragments upserts fragments as points. Point ids are fresh uuids; the
// fragment id lives in the payload.
func (r *Retriever) AddFragments(ctx context.Context, fragments []domain.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	if err := r.ensureCollection(ctx, len(fragments[0].Embedding)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(fragments))
	for _, fragment := range fragments {
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: fragment.Embedding,
			Payload: map[string]any{
				"text":          fragment.Text,
				"fragment_id":   fragment.FragmentID,
				"parent_doc_id": fragment.ParentDocID,
				"metadata":      fragment.Metadata,
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", r.baseURL, r.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant upsert", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s", resp.Status)
	}
	return nil
}

func (r *Retriever) ensureCollection(ctx context.Context, vectorSize int) error {
	r.ensureMu.Lock()
	if r.ensuredCollection && r.ensuredVectorSize == vectorSize {
		r.ensureMu.Unlock()
		return nil
	}
	r.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Dot",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", r.baseURL, r.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant ensure collection", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if the collection already exists.
	if resp.StatusCode == http.StatusConflict {
		r.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	r.markCollectionEnsured(vectorSize)
	return nil
}

func (r *Retriever) markCollectionEnsured(vectorSize int) {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	r.ensuredCollection = true
	r.ensuredVectorSize = vectorSize
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

var (
	_ ports.Retriever     = (*Retriever)(nil)
	_ ports.FragmentIndex = (*Retriever)(nil)
)
