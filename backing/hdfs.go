package backing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/colinmarc/hdfs/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/mplewis/persist/codec"
	"github.com/mplewis/persist/kv"
)

// HDFSClient is the subset of an HDFS client the backend uses.
type HDFSClient interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Remove(name string) error
	MkdirAll(dir string, perm os.FileMode) error
	StatFs() (hdfs.FsInfo, error)
	Close() error
}

// HDFSDialer connects to the namenode at addr as user.
type HDFSDialer func(addr, user string) (HDFSClient, error)

// hdfsConn adapts *hdfs.Client to HDFSClient.
type hdfsConn struct {
	*hdfs.Client
}

// DialHDFS connects to a namenode with colinmarc/hdfs.
func DialHDFS(addr, user string) (HDFSClient, error) {
	c, err := hdfs.NewClient(hdfs.ClientOptions{Addresses: []string{addr}, User: user})
	if err != nil {
		return nil, err
	}
	return hdfsConn{c}, nil
}

// WriteFile replaces name with data by writing a sibling and renaming it over name.
func (c hdfsConn) WriteFile(name string, data []byte) error {
	return replaceFile(hdfsFiles{c.Client}, name, data)
}

// fileOps are the namenode calls replaceFile needs.
type fileOps interface {
	Create(name string) (io.WriteCloser, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
}

// hdfsFiles adapts *hdfs.Client to fileOps.
type hdfsFiles struct {
	c *hdfs.Client
}

func (f hdfsFiles) Create(name string) (io.WriteCloser, error) { return f.c.Create(name) }
func (f hdfsFiles) Remove(name string) error                   { return f.c.Remove(name) }
func (f hdfsFiles) Rename(oldpath, newpath string) error        { return f.c.Rename(oldpath, newpath) }

// replaceFile writes data to a uniquely named sibling of name and renames it
// over name. The rename overwrites, so readers see either the old or the new
// bytes, and the last writer of the same name wins.
func replaceFile(ops fileOps, name string, data []byte) error {
	tmp := name + tmpMarker + uuid.New().String()
	w, err := ops.Create(tmp)
	if err != nil {
		return err
	}
	if _, err = w.Write(data); err != nil {
		_ = w.Close()
		_ = ops.Remove(tmp)
		return err
	}
	if err = w.Close(); err != nil {
		_ = ops.Remove(tmp)
		return err
	}
	if err = ops.Rename(tmp, name); err != nil {
		_ = ops.Remove(tmp)
		return err
	}
	return nil
}

// HDFS stores values in the Hadoop distributed filesystem. It also resolves
// s3n addresses, reading them through an ObjectFetcher the way Hadoop's s3n
// filesystem bridges to object storage.
type HDFS struct {
	root     *url.URL
	namenode string
	user     string
	dial     HDFSDialer
	s3n      ObjectFetcher
	verify   bool
	log      *zap.Logger

	mu      sync.Mutex
	clients map[string]HDFSClient
}

// HDFSArgs are the arguments for creating a new HDFS backend.
type HDFSArgs struct {
	Root        *url.URL      // Optional. hdfs:// spill location, used when the ice root lives in HDFS.
	Namenode    string        // Optional. Default namenode for addresses without a host and for capacity.
	User        string        // Optional. HDFS user name.
	Dialer      HDFSDialer    // Optional. Defaults to DialHDFS.
	S3N         ObjectFetcher // Optional. Reader for s3n:// keys.
	VerifyNames bool          // Optional. Check the key/file-name round trip on every spill access.
	Logger      *zap.Logger   // Optional.
}

// NewHDFS creates a new HDFS backend. Namenode connections are made lazily.
func NewHDFS(args HDFSArgs) *HDFS {
	if args.Dialer == nil {
		args.Dialer = DialHDFS
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop()
	}
	namenode := args.Namenode
	if namenode == "" && args.Root != nil {
		namenode = args.Root.Host
	}
	return &HDFS{
		root:     args.Root,
		namenode: namenode,
		user:     args.User,
		dial:     args.Dialer,
		s3n:      args.S3N,
		verify:   args.VerifyNames,
		log:      args.Logger.With(zap.String("backend", "hdfs")),
		clients:  map[string]HDFSClient{},
	}
}

// Name returns a unique identifier for this backend.
func (h *HDFS) Name() string {
	if h.root != nil {
		return "hdfs:" + h.root.String()
	}
	return "hdfs:" + h.namenode
}

// client returns the cached connection to addr, dialing it on first use.
func (h *HDFS) client(addr string) (HDFSClient, error) {
	if addr == "" {
		addr = h.namenode
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: no namenode configured", ErrIO)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[addr]; ok {
		return c, nil
	}
	c, err := h.dial(addr, h.user)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to namenode %s: %v", ErrIO, addr, err)
	}
	h.clients[addr] = c
	return c, nil
}

// location is where a key lives: a namenode and a path, or an s3n address.
// Resolved locations name the user's own files and are read-only.
type location struct {
	addr     string
	path     string
	s3n      *url.URL
	resolved bool
}

// locate maps a key to its location. Resolved keys carry their address; other
// keys spill under the root.
func (h *HDFS) locate(k kv.Key) (location, error) {
	if k.HasPrefix("hdfs://") || k.HasPrefix("s3n://") {
		u, err := url.Parse(string(k.Bytes()))
		if err != nil {
			return location{}, fmt.Errorf("%w: bad key address %s: %v", ErrIO, k, err)
		}
		if u.Scheme == "s3n" {
			return location{s3n: u, resolved: true}, nil
		}
		return location{addr: u.Host, path: u.Path, resolved: true}, nil
	}
	if h.root == nil {
		return location{}, ErrNoRoot
	}
	name := codec.IceObjectName(k)
	if h.verify {
		if _, err := codec.IceNameChecked(k); err != nil {
			return location{}, err
		}
	}
	return location{addr: h.root.Host, path: path.Join("/", h.root.Path, name)}, nil
}

// Store writes the value's bytes to its HDFS file.
func (h *HDFS) Store(ctx context.Context, v *kv.Value) error {
	loc, err := h.locate(v.Key)
	if err != nil {
		return err
	}
	if loc.resolved {
		return fmt.Errorf("%w: resolved address %s is read-only", ErrUnsupportedScheme, v.Key)
	}
	c, err := h.client(loc.addr)
	if err != nil {
		return err
	}
	if err := c.MkdirAll(path.Dir(loc.path), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrIO, path.Dir(loc.path), err)
	}
	if err := c.WriteFile(loc.path, v.Data); err != nil {
		h.log.Error("Failed to store value", zap.String("path", loc.path), zap.Error(err))
		return fmt.Errorf("%w: write %s: %v", ErrIO, loc.path, err)
	}
	h.log.Debug("Stored value", zap.String("path", loc.path), zap.Int("size", len(v.Data)))
	return nil
}

// Load reads the value's bytes from HDFS, or from object storage for s3n keys.
func (h *HDFS) Load(ctx context.Context, v *kv.Value) ([]byte, error) {
	loc, err := h.locate(v.Key)
	if err != nil {
		return nil, err
	}
	if loc.s3n != nil {
		if h.s3n == nil {
			return nil, fmt.Errorf("%w: no s3n reader configured", ErrIO)
		}
		return h.s3n.Fetch(ctx, loc.s3n)
	}
	c, err := h.client(loc.addr)
	if err != nil {
		return nil, err
	}
	data, err := c.ReadFile(loc.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, loc.path, err)
	}
	return data, nil
}

// Delete removes the value's HDFS file, if any.
func (h *HDFS) Delete(ctx context.Context, v *kv.Value) error {
	loc, err := h.locate(v.Key)
	if err != nil {
		return err
	}
	if loc.resolved {
		return fmt.Errorf("%w: resolved address %s is read-only", ErrUnsupportedScheme, v.Key)
	}
	c, err := h.client(loc.addr)
	if err != nil {
		return err
	}
	if err := c.Remove(loc.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", ErrIO, loc.path, err)
	}
	return nil
}

// fsInfo queries the default namenode; ok is false when that is not possible.
func (h *HDFS) fsInfo() (hdfs.FsInfo, bool) {
	if h.namenode == "" {
		return hdfs.FsInfo{}, false
	}
	c, err := h.client(h.namenode)
	if err != nil {
		return hdfs.FsInfo{}, false
	}
	info, err := c.StatFs()
	if err != nil {
		h.log.Debug("Failed to query filesystem capacity", zap.Error(err))
		return hdfs.FsInfo{}, false
	}
	return info, true
}

// UsableSpace returns the remaining capacity of the default namenode's filesystem.
func (h *HDFS) UsableSpace() int64 {
	info, ok := h.fsInfo()
	if !ok {
		return UnknownSpace
	}
	return int64(info.Remaining)
}

// TotalSpace returns the capacity of the default namenode's filesystem.
func (h *HDFS) TotalSpace() int64 {
	info, ok := h.fsInfo()
	if !ok {
		return UnknownSpace
	}
	return int64(info.Capacity)
}

// ResolveURI checks that an hdfs or s3n address exists and returns a key naming it.
func (h *HDFS) ResolveURI(ctx context.Context, uri *url.URL) (kv.Key, error) {
	switch strings.ToLower(uri.Scheme) {
	case "s3n":
		if h.s3n == nil {
			return kv.Key{}, fmt.Errorf("%w: no s3n reader configured", ErrIO)
		}
		if err := h.s3n.Head(ctx, uri); err != nil {
			return kv.Key{}, err
		}
		u := *uri
		u.Scheme = "s3n"
		return kv.MakeString(u.String()), nil
	case "hdfs":
		c, err := h.client(uri.Host)
		if err != nil {
			return kv.Key{}, err
		}
		fi, err := c.Stat(uri.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return kv.Key{}, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		if err != nil {
			return kv.Key{}, fmt.Errorf("%w: stat %s: %v", ErrIO, uri, err)
		}
		if fi.IsDir() {
			return kv.Key{}, fmt.Errorf("%w: %s is a directory", ErrIO, uri)
		}
		u := *uri
		u.Scheme = "hdfs"
		if u.Host == "" {
			u.Host = h.namenode
		}
		h.log.Debug("Resolved URI", zap.String("uri", u.String()))
		return kv.MakeString(u.String()), nil
	default:
		return kv.Key{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedScheme, uri.Scheme, h.Name())
	}
}

// Close closes every namenode connection.
func (h *HDFS) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var result error
	for addr, c := range h.clients {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %s: %w", addr, err))
		}
		delete(h.clients, addr)
	}
	return result
}
