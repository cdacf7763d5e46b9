package codec

import (
	"bytes"
	"encoding/gob"

	"github.com/mpetrov/refragd/internal/core/domain"
)

func init() {
	// Metadata values travel as interface values; nested containers need
	// registering for gob.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// GobCodec is the native binary format: the fastest of the codecs but tied
// to Go's gob encoding. Not suitable for interchange with non-Go systems.
type GobCodec struct{}

func NewGob() *GobCodec {
	return &GobCodec{}
}

func (c *GobCodec) EncodeFragment(fragment domain.Fragment) ([]byte, error) {
	return gobEncode(toPayload(fragment))
}

func (c *GobCodec) DecodeFragment(data []byte) (domain.Fragment, error) {
	var payload fragmentPayload
	if err := gobDecode(data, &payload); err != nil {
		return domain.Fragment{}, domain.WrapError(domain.ErrDecode, "gob fragment", err)
	}
	return payload.toFragment()
}

func (c *GobCodec) EncodeBatch(fragments []domain.Fragment) ([]byte, error) {
	payloads := make([]fragmentPayload, len(fragments))
	for i, fragment := range fragments {
		payloads[i] = toPayload(fragment)
	}
	return gobEncode(payloads)
}

func (c *GobCodec) DecodeBatch(data []byte) ([]domain.Fragment, error) {
	var payloads []fragmentPayload
	if err := gobDecode(data, &payloads); err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "gob batch", err)
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

func gobEncode(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}
