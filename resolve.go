package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/thoas/go-funk"

	"github.com/mplewis/persist/backing"
	"github.com/mplewis/persist/kv"
)

// resolverSlots maps an address scheme to the slot responsible for it. The
// empty scheme is a bare path.
var resolverSlots = map[string]kv.BackendID{
	"hdfs":  kv.HDFS,
	"s3n":   kv.HDFS,
	"files": kv.NFS,
	"":      kv.NFS,
}

// Schemes returns the address schemes ResolveAny accepts.
func Schemes() []string {
	return funk.Keys(resolverSlots).([]string)
}

// SlotFor returns the slot ResolveAny dispatches scheme to.
func SlotFor(scheme string) (kv.BackendID, bool) {
	id, ok := resolverSlots[strings.ToLower(scheme)]
	return id, ok
}

// ResolveAny returns a key referencing the resource at uri, produced by the
// backend responsible for the uri's scheme. Unhandled schemes fail with
// backing.ErrUnsupportedScheme.
func (r *Registry) ResolveAny(ctx context.Context, uri string) (kv.Key, error) {
	v, err := r.Resolve(ctx, uri)
	if err != nil {
		return kv.Key{}, err
	}
	return v.Key, nil
}

// Resolve is ResolveAny returning a Value bound to the resolving backend, ready to Load.
func (r *Registry) Resolve(ctx context.Context, uri string) (*kv.Value, error) {
	u, err := backing.ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backing.ErrUnsupportedScheme, err)
	}
	id, ok := SlotFor(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", backing.ErrUnsupportedScheme, u.Scheme)
	}
	b := r.Get(id)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, id)
	}
	k, err := b.ResolveURI(ctx, u)
	if err != nil {
		return nil, err
	}
	return kv.NewValue(k, id, nil), nil
}
