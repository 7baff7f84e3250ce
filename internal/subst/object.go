package subst

import (
	"errors"
	"fmt"

	"github.com/FiskLee/stattracker/internal/codec"
)

// Errors returned by ObjectCodec. Both are recoverable: callers fall back to
// a default record.
var (
	ErrSerialization   = errors.New("subst: serialization failed")
	ErrDeserialization = errors.New("subst: deserialization failed")
)

// ObjectCodec serializes records to text with a codec.Codec and runs the
// result through a substitution Codec.
type ObjectCodec struct {
	codec *Codec
	ser   codec.Codec
}

// NewObjectCodec pairs a substitution codec with a text serializer.
func NewObjectCodec(c *Codec, ser codec.Codec) *ObjectCodec {
	if ser == nil {
		ser = codec.Default
	}
	return &ObjectCodec{codec: c, ser: ser}
}

// Codec returns the underlying substitution codec.
func (o *ObjectCodec) Codec() *Codec { return o.codec }

// CompressObject serializes record and compresses the resulting text.
func (o *ObjectCodec) CompressObject(record any) ([]byte, error) {
	payload, _, err := o.Encode(record)
	return payload, err
}

// Encode is CompressObject that also returns the serialized length before
// compression.
func (o *ObjectCodec) Encode(record any) ([]byte, int, error) {
	raw, err := o.ser.Marshal(record)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrSerialization, o.ser.Name(), err)
	}
	return []byte(o.codec.Compress(string(raw))), len(raw), nil
}

// DecompressToObject decompresses data and deserializes it into dest, which
// must be a pointer.
func (o *ObjectCodec) DecompressToObject(data []byte, dest any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrDeserialization)
	}
	text := o.codec.Decompress(string(data))
	if err := o.ser.Unmarshal([]byte(text), dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeserialization, o.ser.Name(), err)
	}
	return nil
}
