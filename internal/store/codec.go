package store

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec is an interface for encoding and decoding data.
// It is used to abstract away the underlying serialization format.
// The default codec is MessagePack.
type Codec interface {
	// Marshal encodes the given value into a byte slice.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes the given byte slice into the provided value.
	Unmarshal(data []byte, v any) error
}

// DefaultCodec is MessagePack.
var DefaultCodec Codec = msgpackCodec{}

type msgpackCodec struct{}

// Marshal sorts map keys so equal values always encode to equal bytes.
func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
