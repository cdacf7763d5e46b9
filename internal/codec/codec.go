// Package codec serializes fragments to and from the supported wire
// formats behind a single dispatch facade.
package codec

import (
	"fmt"

	"github.com/mpetrov/refragd/internal/core/domain"
)

const (
	FormatJSON     = "json"
	FormatMsgpack  = "msgpack"
	FormatGob      = "gob"
	FormatEnvelope = "envelope"
)

// Codec encodes and decodes fragments, single or batched. Decoders reject
// payloads with missing required fields (domain.ErrDecode) instead of
// substituting defaults.
type Codec interface {
	EncodeFragment(fragment domain.Fragment) ([]byte, error)
	DecodeFragment(data []byte) (domain.Fragment, error)
	EncodeBatch(fragments []domain.Fragment) ([]byte, error)
	DecodeBatch(data []byte) ([]domain.Fragment, error)
}

// fragmentPayload is the shared wire shape for the structured formats.
type fragmentPayload struct {
	Text        string         `json:"text" msgpack:"text"`
	Embedding   []float32      `json:"embedding" msgpack:"embedding"`
	Metadata    map[string]any `json:"metadata" msgpack:"metadata"`
	FragmentID  string         `json:"fragment_id" msgpack:"fragment_id"`
	ParentDocID string         `json:"parent_doc_id,omitempty" msgpack:"parent_doc_id,omitempty"`
}

func toPayload(fragment domain.Fragment) fragmentPayload {
	return fragmentPayload{
		Text:        fragment.Text,
		Embedding:   fragment.Embedding,
		Metadata:    fragment.Metadata,
		FragmentID:  fragment.FragmentID,
		ParentDocID: fragment.ParentDocID,
	}
}

// toFragment revalidates the required fields so malformed payloads fail
// instead of producing half-empty fragments.
func (p fragmentPayload) toFragment() (domain.Fragment, error) {
	fragment, err := domain.NewFragment(p.Text, p.Embedding, p.Metadata, p.FragmentID, p.ParentDocID)
	if err != nil {
		return domain.Fragment{}, domain.WrapError(domain.ErrDecode, "decode fragment", err)
	}
	return fragment, nil
}

// Unified dispatches encode/decode calls to the codec named by a format
// tag. Unknown tags are a configuration error, both at construction and at
// call time.
type Unified struct {
	defaultFormat string
	codecs        map[string]Codec
}

func NewUnified(defaultFormat string) (*Unified, error) {
	codecs := map[string]Codec{
		FormatJSON:     NewJSON(),
		FormatMsgpack:  NewMsgpack(),
		FormatGob:      NewGob(),
		FormatEnvelope: NewEnvelope(),
	}
	if defaultFormat == "" {
		defaultFormat = FormatJSON
	}
	if _, ok := codecs[defaultFormat]; !ok {
		return nil, domain.WrapError(domain.ErrUnknownFormat, "unified codec", fmt.Errorf("%q", defaultFormat))
	}
	return &Unified{defaultFormat: defaultFormat, codecs: codecs}, nil
}

// Formats lists the supported format tags.
func Formats() []string {
	return []string{FormatJSON, FormatMsgpack, FormatGob, FormatEnvelope}
}

// Codec resolves a format tag; the empty tag means the default format.
func (u *Unified) Codec(format string) (Codec, error) {
	if format == "" {
		format = u.defaultFormat
	}
	codec, ok := u.codecs[format]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnknownFormat, "unified codec", fmt.Errorf("%q", format))
	}
	return codec, nil
}

func (u *Unified) EncodeFragment(fragment domain.Fragment, format string) ([]byte, error) {
	codec, err := u.Codec(format)
	if err != nil {
		return nil, err
	}
	return codec.EncodeFragment(fragment)
}

func (u *Unified) DecodeFragment(data []byte, format string) (domain.Fragment, error) {
	codec, err := u.Codec(format)
	if err != nil {
		return domain.Fragment{}, err
	}
	return codec.DecodeFragment(data)
}

func (u *Unified) EncodeBatch(fragments []domain.Fragment, format string) ([]byte, error) {
	codec, err := u.Codec(format)
	if err != nil {
		return nil, err
	}
	return codec.EncodeBatch(fragments)
}

func (u *Unified) DecodeBatch(data []byte, format string) ([]domain.Fragment, error) {
	codec, err := u.Codec(format)
	if err != nil {
		return nil, err
	}
	return codec.DecodeBatch(data)
}

var (
	_ Codec = (*JSONCodec)(nil)
	_ Codec = (*MsgpackCodec)(nil)
	_ Codec = (*GobCodec)(nil)
	_ Codec = (*EnvelopeCodec)(nil)
)
