package codec

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mpetrov/refragd/internal/core/domain"
)

const (
	// EnvelopeVersion is stamped on every envelope; decoders reject other
	// versions.
	EnvelopeVersion = "1.0"

	EnvelopeTypeFragment        = "Fragment"
	EnvelopeTypeFragmentBatch   = "FragmentBatch"
	EnvelopeTypeRetrievalResult = "RetrievalResult"
)

// Envelope wraps a typed, versioned JSON payload so consumers can route a
// message before parsing its body.
type Envelope struct {
	Type    string          `json:"type"`
	Version string          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

type batchPayload struct {
	BatchID   string            `json:"batch_id"`
	Count     int               `json:"count"`
	Fragments []fragmentPayload `json:"fragments"`
}

// RankedFragment is one entry of a retrieval-result envelope. Score is nil
// when the producer had no similarity score for the fragment.
type RankedFragment struct {
	Fragment domain.Fragment
	Rank     int
	Score    *float64
}

type rankedPayload struct {
	fragmentPayload
	Rank  int      `json:"rank"`
	Score *float64 `json:"score,omitempty"`
}

type retrievalPayload struct {
	Query     string          `json:"query"`
	Count     int             `json:"count"`
	Fragments []rankedPayload `json:"fragments"`
}

// EnvelopeCodec is the versioned JSON envelope format. Fragment and batch
// bodies are the plain JSON shapes wrapped with a type tag and version.
type EnvelopeCodec struct{}

func NewEnvelope() *EnvelopeCodec {
	return &EnvelopeCodec{}
}

func (c *EnvelopeCodec) EncodeFragment(fragment domain.Fragment) ([]byte, error) {
	return sealEnvelope(EnvelopeTypeFragment, toPayload(fragment))
}

func (c *EnvelopeCodec) DecodeFragment(data []byte) (domain.Fragment, error) {
	var payload fragmentPayload
	if err := openEnvelope(data, EnvelopeTypeFragment, &payload); err != nil {
		return domain.Fragment{}, err
	}
	return payload.toFragment()
}

func (c *EnvelopeCodec) EncodeBatch(fragments []domain.Fragment) ([]byte, error) {
	payloads := make([]fragmentPayload, len(fragments))
	for i, fragment := range fragments {
		payloads[i] = toPayload(fragment)
	}
	return sealEnvelope(EnvelopeTypeFragmentBatch, batchPayload{
		BatchID:   uuid.NewString(),
		Count:     len(payloads),
		Fragments: payloads,
	})
}

func (c *EnvelopeCodec) DecodeBatch(data []byte) ([]domain.Fragment, error) {
	var payload batchPayload
	if err := openEnvelope(data, EnvelopeTypeFragmentBatch, &payload); err != nil {
		return nil, err
	}
	if payload.Count != len(payload.Fragments) {
		return nil, domain.WrapError(domain.ErrDecode, "envelope batch",
			fmt.Errorf("count %d does not match %d fragments", payload.Count, len(payload.Fragments)))
	}
	fragments := make([]domain.Fragment, len(payload.Fragments))
	for i, fp := range payload.Fragments {
		fragment, err := fp.toFragment()
		if err != nil {
			return nil, err
		}
		fragments[i] = fragment
	}
	return fragments, nil
}

// EncodeRetrievalResult wraps a ranked retrieval answer. Ranks are assigned
// by position; scores may be nil or shorter than the fragment list, missing
// entries are encoded without a score.
func (c *EnvelopeCodec) EncodeRetrievalResult(query string, fragments []domain.Fragment, scores []float64) ([]byte, error) {
	ranked := make([]rankedPayload, len(fragments))
	for i, fragment := range fragments {
		ranked[i] = rankedPayload{fragmentPayload: toPayload(fragment), Rank: i + 1}
		if i < len(scores) {
			score := scores[i]
			ranked[i].Score = &score
		}
	}
	return sealEnvelope(EnvelopeTypeRetrievalResult, retrievalPayload{
		Query:     query,
		Count:     len(ranked),
		Fragments: ranked,
	})
}

func (c *EnvelopeCodec) DecodeRetrievalResult(data []byte) (string, []RankedFragment, error) {
	var payload retrievalPayload
	if err := openEnvelope(data, EnvelopeTypeRetrievalResult, &payload); err != nil {
		return "", nil, err
	}
	if payload.Count != len(payload.Fragments) {
		return "", nil, domain.WrapError(domain.ErrDecode, "envelope retrieval result",
			fmt.Errorf("count %d does not match %d fragments", payload.Count, len(payload.Fragments)))
	}
	ranked := make([]RankedFragment, len(payload.Fragments))
	for i, rp := range payload.Fragments {
		fragment, err := rp.toFragment()
		if err != nil {
			return "", nil, err
		}
		ranked[i] = RankedFragment{Fragment: fragment, Rank: rp.Rank, Score: rp.Score}
	}
	return payload.Query, ranked, nil
}

func sealEnvelope(envelopeType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: envelopeType, Version: EnvelopeVersion, Payload: body})
}

func openEnvelope(data []byte, wantType string, out any) error {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return domain.WrapError(domain.ErrDecode, "envelope", err)
	}
	if envelope.Type != wantType {
		return domain.WrapError(domain.ErrDecode, "envelope",
			fmt.Errorf("type %q, want %q", envelope.Type, wantType))
	}
	if envelope.Version != EnvelopeVersion {
		return domain.WrapError(domain.ErrDecode, "envelope",
			fmt.Errorf("unsupported version %q", envelope.Version))
	}
	if err := json.Unmarshal(envelope.Payload, out); err != nil {
		return domain.WrapError(domain.ErrDecode, "envelope payload", err)
	}
	return nil
}
