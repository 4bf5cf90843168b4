package backing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/mplewis/persist/kv"
	"github.com/mplewis/persist/multilock"
)

// nfsKeyPrefix starts the bytes of every key produced by NFS.ResolveURI.
const nfsKeyPrefix = "nfs:"

// nfsSchemes are the address schemes NFS resolves. The empty scheme is a bare path.
var nfsSchemes = []string{"", "file", "files", "nfs"}

// NFS reads and writes files on a network filesystem mounted on every node.
// Resolved keys address files by absolute path; other keys spill under Root.
type NFS struct {
	root   string
	locks  Locker
	verify bool
	log    *zap.Logger
}

// NFSArgs are the arguments for creating a new NFS backend.
type NFSArgs struct {
	Root        string      // Optional. Spill directory on the shared mount.
	Locker      Locker      // Optional. Serializes writers of the same file, across nodes if backed by Redis.
	VerifyNames bool        // Optional. Check the key/file-name round trip on every spill access.
	Logger      *zap.Logger // Optional.
}

// NewNFS creates a new backend for a mounted network filesystem.
func NewNFS(args NFSArgs) *NFS {
	if args.Locker == nil {
		args.Locker = multilock.New()
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop()
	}
	return &NFS{
		root:   args.Root,
		locks:  args.Locker,
		verify: args.VerifyNames,
		log:    args.Logger.With(zap.String("backend", "nfs")),
	}
}

// Name returns a unique identifier for this backend.
func (n *NFS) Name() string {
	return "nfs:" + n.root
}

// path maps a key to a file: resolved keys carry their path, anything else spills under root.
func (n *NFS) path(k kv.Key) (string, error) {
	if k.HasPrefix(nfsKeyPrefix) {
		return strings.TrimPrefix(string(k.Bytes()), nfsKeyPrefix), nil
	}
	return icePath(n.root, k, n.verify)
}

// spillPath is path for keys this backend may write. Resolved keys name the
// user's own files and are read-only.
func (n *NFS) spillPath(k kv.Key) (string, error) {
	if k.HasPrefix(nfsKeyPrefix) {
		return "", fmt.Errorf("%w: resolved file %s is read-only", ErrUnsupportedScheme, k)
	}
	return n.path(k)
}

// Store writes the value's bytes to its spill file.
func (n *NFS) Store(ctx context.Context, v *kv.Value) error {
	p, err := n.spillPath(v.Key)
	if err != nil {
		return err
	}
	unlock, err := n.locks.Lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()
	if err := writeFile(p, v.Data); err != nil {
		n.log.Error("Failed to store value", zap.String("path", p), zap.Error(err))
		return err
	}
	n.log.Debug("Stored value", zap.String("path", p), zap.Int("size", len(v.Data)))
	return nil
}

// Load reads the value's file.
func (n *NFS) Load(ctx context.Context, v *kv.Value) ([]byte, error) {
	p, err := n.path(v.Key)
	if err != nil {
		return nil, err
	}
	return readFile(p)
}

// Delete removes the value's spill file, if any.
func (n *NFS) Delete(ctx context.Context, v *kv.Value) error {
	p, err := n.spillPath(v.Key)
	if err != nil {
		return err
	}
	unlock, err := n.locks.Lock(ctx, p)
	if err != nil {
		return err
	}
	defer unlock()
	return removeFile(p)
}

// List returns every key spilled under the root.
func (n *NFS) List(ctx context.Context) ([]kv.Key, error) {
	return listIce(ctx, n.root)
}

// UsableSpace returns the free bytes on the mount holding the root.
func (n *NFS) UsableSpace() int64 {
	usable, _ := diskSpace(n.root)
	return usable
}

// TotalSpace returns the size of the mount holding the root.
func (n *NFS) TotalSpace() int64 {
	_, total := diskSpace(n.root)
	return total
}

// ResolveURI turns a file address into a key naming the file by absolute path.
// The file must exist.
func (n *NFS) ResolveURI(ctx context.Context, uri *url.URL) (kv.Key, error) {
	if !funk.ContainsString(nfsSchemes, strings.ToLower(uri.Scheme)) {
		return kv.Key{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedScheme, uri.Scheme, n.Name())
	}
	p := uri.Path
	if uri.Opaque != "" {
		p = uri.Opaque
	}
	if uri.Host != "" {
		p = uri.Host + "/" + strings.TrimPrefix(p, "/")
	}
	if p == "" {
		return kv.Key{}, fmt.Errorf("%w: empty path in %s", ErrIO, uri)
	}
	abs, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		return kv.Key{}, fmt.Errorf("%w: %s: %v", ErrIO, uri, err)
	}
	fi, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return kv.Key{}, fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if err != nil {
		return kv.Key{}, fmt.Errorf("%w: stat %s: %v", ErrIO, abs, err)
	}
	if fi.IsDir() {
		return kv.Key{}, fmt.Errorf("%w: %s is a directory", ErrIO, abs)
	}
	n.log.Debug("Resolved URI", zap.String("uri", uri.String()), zap.String("path", abs))
	return kv.MakeString(nfsKeyPrefix + abs), nil
}
