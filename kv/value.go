package kv

import "fmt"

// MaxBackends is the number of backend slots a registry holds.
const MaxBackends = 8

// BackendID indexes a backend slot in the registry.
type BackendID uint8

// Well known backend slots.
const (
	Ice  BackendID = 0 // node-local spill storage
	HDFS BackendID = 1
	S3   BackendID = 2
	NFS  BackendID = 3
)

// String returns the scheme-like name of the slot.
func (id BackendID) String() string {
	switch id {
	case Ice:
		return "ice"
	case HDFS:
		return "hdfs"
	case S3:
		return "s3"
	case NFS:
		return "nfs"
	default:
		return fmt.Sprintf("backend-%d", uint8(id))
	}
}

// Valid reports whether id addresses a registry slot.
func (id BackendID) Valid() bool {
	return id < MaxBackends
}

// Value is a key plus the backend holding (or about to hold) its bytes.
// Data is read by Store and is not retained by the backend after the call.
type Value struct {
	Key     Key
	Backend BackendID
	Data    []byte
}

// NewValue builds a Value for the given key, backend and payload.
func NewValue(k Key, id BackendID, data []byte) *Value {
	return &Value{Key: k, Backend: id, Data: data}
}

// String returns a human-readable representation of this value.
func (v *Value) String() string {
	return fmt.Sprintf("{Value: %s@%s, %d bytes}", v.Key, v.Backend, len(v.Data))
}
