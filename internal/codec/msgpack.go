package codec

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mpetrov/refragd/internal/core/domain"
)

// MsgpackCodec is the compact binary format. No transforms: every field
// round-trips exactly.
type MsgpackCodec struct{}

func NewMsgpack() *MsgpackCodec {
	return &MsgpackCodec{}
}

func (c *MsgpackCodec) EncodeFragment(fragment domain.Fragment) ([]byte, error) {
	return msgpack.Marshal(toPayload(fragment))
}

func (c *MsgpackCodec) DecodeFragment(data []byte) (domain.Fragment, error) {
	var payload fragmentPayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return domain.Fragment{}, domain.WrapError(domain.ErrDecode, "msgpack fragment", err)
	}
	return payload.toFragment()
}

func (c *MsgpackCodec) EncodeBatch(fragments []domain.Fragment) ([]byte, error) {
	payloads := make([]fragmentPayload, len(fragments))
	for i, fragment := range fragments {
		payloads[i] = toPayload(fragment)
	}
	return msgpack.Marshal(payloads)
}

func (c *MsgpackCodec) DecodeBatch(data []byte) ([]domain.Fragment, error) {
	var payloads []fragmentPayload
	if err := msgpack.Unmarshal(data, &payloads); err != nil {
		return nil, domain.WrapError(domain.ErrDecode, "msgpack batch", err)
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
