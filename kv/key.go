// Package kv holds the data model shared by the codec, the backends and the registry.
package kv

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Key type bytes. Any type byte below 32 marks a system key.
const (
	VecKeyType   byte = 4
	ChunkKeyType byte = 5
)

// chunkHeaderLen is the type byte, the replica byte and the 4-byte chunk index.
const chunkHeaderLen = 6

// ownerIndex marks a vector key: the index slot of an owning key is all ones.
const ownerIndex uint32 = 0xFFFFFFFF

// Key is an immutable, opaque byte string identifying a stored object.
type Key struct {
	b string
}

// Make builds a Key from the given bytes. The bytes are copied.
func Make(b []byte) Key {
	return Key{b: string(b)}
}

// MakeString builds a Key whose bytes are the given string.
func MakeString(s string) Key {
	return Key{b: s}
}

// VecKey builds the owning key of a chunked vector with the given name.
func VecKey(name []byte) Key {
	b := make([]byte, chunkHeaderLen, chunkHeaderLen+len(name))
	b[0] = VecKeyType
	binary.BigEndian.PutUint32(b[2:chunkHeaderLen], ownerIndex)
	return Make(append(b, name...))
}

// ChunkKey builds the key of chunk idx of the vector identified by owner.
func ChunkKey(owner Key, idx uint32) Key {
	b := owner.Bytes()
	if len(b) < chunkHeaderLen {
		panic(fmt.Sprintf("kv: %s is not a vector key", owner))
	}
	b[0] = ChunkKeyType
	binary.BigEndian.PutUint32(b[2:chunkHeaderLen], idx)
	return Make(b)
}

// Bytes returns a copy of the key bytes.
func (k Key) Bytes() []byte {
	return []byte(k.b)
}

// Len returns the number of bytes in the key.
func (k Key) Len() int {
	return len(k.b)
}

// Empty reports whether the key has no bytes.
func (k Key) Empty() bool {
	return len(k.b) == 0
}

// Equal reports whether both keys hold the same bytes.
func (k Key) Equal(o Key) bool {
	return k.b == o.b
}

// IsSystem reports whether the first byte of the key is a control byte.
func (k Key) IsSystem() bool {
	return len(k.b) > 0 && k.b[0] < 32
}

// IsChunk reports whether the key denotes a fragment of a larger vector.
func (k Key) IsChunk() bool {
	return len(k.b) >= chunkHeaderLen && k.b[0] == ChunkKeyType
}

// ChunkIndex returns the chunk number of a chunk key.
func (k Key) ChunkIndex() uint32 {
	if !k.IsChunk() {
		return 0
	}
	return binary.BigEndian.Uint32([]byte(k.b[2:chunkHeaderLen]))
}

// Owner returns the key of the vector a chunk belongs to. For any other key it
// returns the key itself.
func (k Key) Owner() Key {
	if !k.IsChunk() {
		return k
	}
	b := k.Bytes()
	b[0] = VecKeyType
	binary.BigEndian.PutUint32(b[2:chunkHeaderLen], ownerIndex)
	return Make(b)
}

// HasPrefix reports whether the key bytes start with p.
func (k Key) HasPrefix(p string) bool {
	return len(k.b) >= len(p) && k.b[:len(p)] == p
}

// String renders printable keys verbatim and anything else as quoted bytes.
func (k Key) String() string {
	if !k.IsSystem() && bytes.IndexFunc([]byte(k.b), func(r rune) bool { return r < 32 || r >= 127 }) < 0 {
		return k.b
	}
	return fmt.Sprintf("%q", k.b)
}
