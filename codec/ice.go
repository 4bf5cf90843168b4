package codec

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/mplewis/persist/kv"
)

// NotAnArraylet is the directory used for keys that are not chunk keys. Only
// chunks are expected to be spilled, so this directory should stay empty.
const NotAnArraylet = "not_an_arraylet"

// IceDirectory returns the directory holding k: one directory per owning
// vector, named by the encoded owner key.
func IceDirectory(k kv.Key) string {
	if !k.IsChunk() {
		return NotAnArraylet
	}
	return EncodeKey(k.Owner())
}

// IceName returns the path of k relative to a spill root, using the OS separator.
func IceName(k kv.Key) string {
	return filepath.Join(IceDirectory(k), EncodeKey(k))
}

// IceObjectName returns the path of k relative to a spill root in an object
// store or HDFS, always '/' separated.
func IceObjectName(k kv.Key) string {
	return path.Join(IceDirectory(k), EncodeKey(k))
}

// IceNameChecked is IceName with the round trip of both path segments verified.
func IceNameChecked(k kv.Key) (string, error) {
	name, err := EncodeChecked(k)
	if err != nil {
		return "", err
	}
	dir := NotAnArraylet
	if k.IsChunk() {
		if dir, err = EncodeChecked(k.Owner()); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, name), nil
}

// ParseIceName recovers the key stored under dir/name. It fails when the name
// does not round-trip or when it sits in the wrong directory.
func ParseIceName(dir, name string) (kv.Key, error) {
	k, err := DecodeChecked(name)
	if err != nil {
		return kv.Key{}, err
	}
	if want := IceDirectory(k); want != dir {
		return kv.Key{}, fmt.Errorf("%w: %s belongs in %s, found in %s", ErrBijection, name, want, dir)
	}
	return k, nil
}
