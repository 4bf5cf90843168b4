package backing

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/mplewis/persist/kv"
	"github.com/mplewis/persist/multilock"
)

// Local stores values as files under a node-local spill directory. Each value
// lives at root/<encoded owner key>/<encoded key>.
type Local struct {
	root   string
	locks  Locker
	verify bool
	log    *zap.Logger
}

// LocalArgs are the arguments for creating a new Local backend.
type LocalArgs struct {
	Root        string      // Required. The spill directory.
	Locker      Locker      // Optional. Serializes writers of the same key. Defaults to an in-process multilock.
	VerifyNames bool        // Optional. Check the key/file-name round trip on every access.
	Logger      *zap.Logger // Optional.
}

// NewLocal creates a new backend which stores data on local disk.
func NewLocal(args LocalArgs) (*Local, error) {
	if args.Root == "" {
		return nil, fmt.Errorf("local backend: %w", ErrNoRoot)
	}
	if args.Locker == nil {
		args.Locker = multilock.New()
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop()
	}
	return &Local{
		root:   args.Root,
		locks:  args.Locker,
		verify: args.VerifyNames,
		log:    args.Logger.With(zap.String("backend", "ice"), zap.String("root", args.Root)),
	}, nil
}

// Name returns a unique identifier for this backend.
func (l *Local) Name() string {
	return "ice:" + l.root
}

// Root returns the spill directory.
func (l *Local) Root() string {
	return l.root
}

// Store writes the value's bytes to its ice file.
func (l *Local) Store(ctx context.Context, v *kv.Value) error {
	p, err := icePath(l.root, v.Key, l.verify)
	if err != nil {
		return err
	}
	unlock, err := l.locks.Lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()
	if err := writeFile(p, v.Data); err != nil {
		l.log.Error("Failed to store value", zap.Stringer("key", v.Key), zap.Error(err))
		return err
	}
	l.log.Debug("Stored value", zap.String("path", p), zap.Int("size", len(v.Data)))
	return nil
}

// Load reads the value's bytes back from its ice file.
func (l *Local) Load(ctx context.Context, v *kv.Value) ([]byte, error) {
	p, err := icePath(l.root, v.Key, l.verify)
	if err != nil {
		return nil, err
	}
	data, err := readFile(p)
	if err != nil {
		l.log.Debug("Failed to load value", zap.Stringer("key", v.Key), zap.Error(err))
		return nil, err
	}
	return data, nil
}

// Delete removes the value's ice file, if any.
func (l *Local) Delete(ctx context.Context, v *kv.Value) error {
	p, err := icePath(l.root, v.Key, l.verify)
	if err != nil {
		return err
	}
	unlock, err := l.locks.Lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()
	return removeFile(p)
}

// List returns every key stored under the spill directory.
func (l *Local) List(ctx context.Context) ([]kv.Key, error) {
	return listIce(ctx, l.root)
}

// UsableSpace returns the free bytes on the spill filesystem.
func (l *Local) UsableSpace() int64 {
	usable, _ := diskSpace(l.root)
	return usable
}

// TotalSpace returns the size of the spill filesystem.
func (l *Local) TotalSpace() int64 {
	_, total := diskSpace(l.root)
	return total
}

// ResolveURI is not supported: the spill directory is not an import source.
func (l *Local) ResolveURI(ctx context.Context, uri *url.URL) (kv.Key, error) {
	return kv.Key{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedScheme, uri.Scheme, l.Name())
}
