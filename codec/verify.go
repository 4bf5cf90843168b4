package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mplewis/persist/kv"
)

// ErrBijection reports that encoding and decoding did not round-trip. It means
// either a codec defect or a corrupted name on disk; callers must stop the
// operation rather than continue with the name.
var ErrBijection = errors.New("key/file-name bijection failed")

// Verify checks that b survives an Encode/Decode round trip.
func Verify(b []byte) error {
	s := Encode(b)
	if x := Decode(s); !bytes.Equal(x, b) {
		return fmt.Errorf("%w: %q <-> %q <-> %q", ErrBijection, b, s, x)
	}
	return nil
}

// VerifyString checks that s survives a Decode/Encode round trip.
func VerifyString(s string) error {
	b := Decode(s)
	if x := Encode(b); x != s {
		return fmt.Errorf("%w: %q <-> %q <-> %q", ErrBijection, s, b, x)
	}
	return nil
}

// EncodeChecked encodes k and verifies the result decodes back to k.
func EncodeChecked(k kv.Key) (string, error) {
	b := k.Bytes()
	s := Encode(b)
	if x := Decode(s); !bytes.Equal(x, b) {
		return "", fmt.Errorf("%w: %s <-> %q <-> %q", ErrBijection, k, s, x)
	}
	return s, nil
}

// DecodeChecked decodes s and verifies the key encodes back to s.
func DecodeChecked(s string) (kv.Key, error) {
	if err := VerifyString(s); err != nil {
		return kv.Key{}, err
	}
	return DecodeKey(s), nil
}
