package codec

import (
	"encoding/json"
	"math"

	"github.com/mpetrov/refragd/internal/core/domain"
)

// JSONCodec is the human-readable structured-text format. By default it
// rescales embeddings to unit length on encode; that transform is lossy
// relative to the original vector and decoding yields the normalized form.
type JSONCodec struct {
	normalize bool
}

type JSONOption func(*JSONCodec)

// WithoutNormalization disables the unit-length rescaling pass.
func WithoutNormalization() JSONOption {
	return func(c *JSONCodec) {
		c.normalize = false
	}
}

func NewJSON(opts ...JSONOption) *JSONCodec {
	codec := &JSONCodec{normalize: true}
	for _, opt := range opts {
		opt(codec)
	}
	return codec
}

func (c *JSONCodec) EncodeFragment(fragment domain.Fragment) ([]byte, error) {
	payload := toPayload(fragment)
	if c.normalize {
		payload.Embedding = normalizeEmbedding(payload.Embedding)
	}
	return json.Marshal(payload)
}

func (c *JSONCodec) DecodeFragment(data []byte) (domain.Fragment, error) {
	var payload fragmentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.Fragment{}, domain.WrapError(domain.ErrDecode, "json fragment", err)
	}
	return payload.toFragment()
}

func (c *JSONCodec) EncodeBatch(fragments []domain.Fragment) ([]byte, error) {
	payloads := make([]fragmentPayload, len(fragments))
	for i, fragment := range fragments {
		payloads[i] = toPayload(fragment)
		if c.normalize {
			payloads[i].Embedding = normalizeEmbedding(payloads[i].Embedding)
		}
	}
	return json.Marshal(payloads)
}

func (c *JSONCodec) DecodeBatch(data []byte) ([]domain.Fragment, error) {
	var payloads []fragmentPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "json batch", err)
	}
	fragments := make([]domain.Fragment, len(payloads))
	for i, payload := range payloads {
		fragment, err := payload.toFragment()
		if err != nil {
			return nil, err
		}
		fragments[i] = fragment
	}
	return fragments, nil
}

// normalizeEmbedding rescales to unit length; a zero vector is returned
// unchanged.
func normalizeEmbedding(embedding []float32) []float32 {
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return embedding
	}
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
