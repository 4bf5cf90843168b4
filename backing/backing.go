// Package backing defines the contract every storage backend satisfies, and the
// concrete backends: node-local disk, HDFS, S3 and network filesystems.
//
// Backends are process-wide and shared; all of them accept concurrent calls for
// distinct keys. Every operation may block on I/O, so callers should run them on
// I/O workers. Nothing here retries: failures surface to the caller as-is.
package backing

import (
	"context"
	"errors"
	"net/url"

	"github.com/mplewis/persist/kv"
)

// UnknownSpace is returned by UsableSpace and TotalSpace when a backend cannot tell.
const UnknownSpace int64 = -1

var (
	// ErrIO is the error kind of every failed load, store or resolution that
	// touched storage. Test with errors.Is.
	ErrIO = errors.New("persist I/O error")

	// ErrNotFound is returned when the requested object does not exist. It is an ErrIO.
	ErrNotFound error = errorKind{ErrIO, "object not found"}

	// ErrUnsupportedScheme is returned when an address scheme is not handled.
	ErrUnsupportedScheme = errors.New("unsupported address scheme")

	// ErrNoRoot is returned when a spill key is stored on a backend configured without a root.
	ErrNoRoot = errors.New("backend has no spill root configured")
)

// errorKind is a sentinel error that is also a member of a broader kind.
type errorKind struct {
	kind error
	msg  string
}

func (e errorKind) Error() string        { return e.kind.Error() + ": " + e.msg }
func (e errorKind) Is(target error) bool { return target == e.kind }

// Backend is an interface by which keys are mapped to durable bytes in some storage system.
type Backend interface {
	// Name returns an identifier for logging.
	Name() string
	// Store durably persists v.Data under v.Key. Concurrent stores of the same key are last-writer-wins.
	Store(ctx context.Context, v *kv.Value) error
	// Load returns the bytes most recently stored for v.Key. Failures are ErrIO.
	Load(ctx context.Context, v *kv.Value) ([]byte, error)
	// Delete reclaims the storage of v.Key. Deleting an absent key is not an error.
	Delete(ctx context.Context, v *kv.Value) error
	// UsableSpace returns the free space in bytes, or UnknownSpace.
	UsableSpace() int64
	// TotalSpace returns the capacity in bytes, or UnknownSpace.
	TotalSpace() int64
	// ResolveURI returns a key which, when loaded from this backend, yields the
	// contents of the resource at uri.
	ResolveURI(ctx context.Context, uri *url.URL) (kv.Key, error)
}

// Lister is implemented by backends that can enumerate the spill keys they hold.
type Lister interface {
	List(ctx context.Context) ([]kv.Key, error)
}

// Locker serializes writers of the same name. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// ObjectFetcher reads objects addressed by URI from a remote store.
type ObjectFetcher interface {
	// Fetch returns the object's bytes.
	Fetch(ctx context.Context, uri *url.URL) ([]byte, error)
	// Head returns nil if the object exists, ErrNotFound if it does not.
	Head(ctx context.Context, uri *url.URL) error
}
