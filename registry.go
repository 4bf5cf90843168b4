package persist

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/mplewis/persist/backing"
	"github.com/mplewis/persist/kv"
	"github.com/mplewis/persist/multilock"
)

// ErrNoBackend is returned when a value names a registry slot that holds no backend.
var ErrNoBackend = errors.New("no backend configured for slot")

// Registry is the fixed table of backends, indexed by kv.BackendID. It is
// filled in New and never written again, so lookups need no locking.
type Registry struct {
	slots   [kv.MaxBackends]backing.Backend
	closers []io.Closer
	log     *zap.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	log        *zap.Logger
	s3Client   backing.S3API
	hdfsDialer backing.HDFSDialer
	locker     backing.Locker
}

// WithLogger sets the logger handed to every backend.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithS3Client sets the client of the S3 backend instead of one configured from the environment.
func WithS3Client(c backing.S3API) Option {
	return func(o *options) { o.s3Client = c }
}

// WithHDFSDialer sets how the HDFS backends connect to namenodes.
func WithHDFSDialer(d backing.HDFSDialer) Option {
	return func(o *options) { o.hdfsDialer = d }
}

// WithLocker sets the locker serializing NFS writers, overriding Config.Redis.
func WithLocker(l backing.Locker) Option {
	return func(o *options) { o.locker = l }
}

// New builds the registry described by cfg. With no ice root configured it
// returns an empty registry and touches nothing.
func New(ctx context.Context, cfg Config, opts ...Option) (*Registry, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{log: o.log}
	if cfg.IceRoot == "" {
		r.log.Debug("No ice root configured, leaving registry empty")
		return r, nil
	}

	locker := o.locker
	if locker == nil && cfg.Redis.Addr != "" {
		rl := multilock.NewRedis(multilock.RedisArgs{Addr: cfg.Redis.Addr, Expiry: cfg.Redis.LockExpiry})
		r.closers = append(r.closers, rl)
		locker = rl
	}

	s3b, err := backing.NewS3(backing.S3Args{
		Bucket:    cfg.S3.Bucket,
		Namespace: cfg.S3.Prefix,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
		Client:    o.s3Client,
		Context:   ctx,
		Logger:    o.log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 backend: %w", err)
	}
	hdfsb := backing.NewHDFS(backing.HDFSArgs{
		Namenode:    cfg.HDFS.Namenode,
		User:        cfg.HDFS.User,
		Dialer:      o.hdfsDialer,
		S3N:         s3b,
		VerifyNames: cfg.VerifyNames,
		Logger:      o.log,
	})
	nfsb := backing.NewNFS(backing.NFSArgs{
		Root:        cfg.NFS.Root,
		Locker:      locker,
		VerifyNames: cfg.VerifyNames,
		Logger:      o.log,
	})

	ice, err := newIce(cfg, o, s3b)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	r.slots[kv.Ice] = ice
	r.slots[kv.HDFS] = hdfsb
	r.slots[kv.S3] = s3b
	r.slots[kv.NFS] = nfsb
	r.log.Info("Registry initialized",
		zap.String("ice", ice.Name()),
		zap.String("hdfs", hdfsb.Name()),
		zap.String("s3", s3b.Name()),
		zap.String("nfs", nfsb.Name()))
	return r, nil
}

// newIce builds the spill backend for the configured ice root.
func newIce(cfg Config, o options, s3n backing.ObjectFetcher) (backing.Backend, error) {
	root := cfg.IceRoot
	u, err := backing.ParseURI(root)
	if err != nil {
		return nil, fmt.Errorf("parsing ice root %q: %w", root, err)
	}
	switch u.Scheme {
	case "", "file":
		p := u.Path
		if u.Host != "" {
			p = u.Host + p
		}
		return backing.NewLocal(backing.LocalArgs{Root: p, VerifyNames: cfg.VerifyNames, Logger: o.log})
	case "hdfs":
		return backing.NewHDFS(backing.HDFSArgs{
			Root:        u,
			User:        cfg.HDFS.User,
			Dialer:      o.hdfsDialer,
			S3N:         s3n,
			VerifyNames: cfg.VerifyNames,
			Logger:      o.log,
		}), nil
	default:
		return nil, fmt.Errorf("ice root %q: %w", root, backing.ErrUnsupportedScheme)
	}
}

// Get returns the backend in slot id, or nil if the slot was never filled.
func (r *Registry) Get(id kv.BackendID) backing.Backend {
	if !id.Valid() {
		return nil
	}
	return r.slots[id]
}

// Ice returns the node-local spill backend.
func (r *Registry) Ice() backing.Backend {
	return r.slots[kv.Ice]
}

// backend returns the backend for v, or ErrNoBackend.
func (r *Registry) backend(v *kv.Value) (backing.Backend, error) {
	b := r.Get(v.Backend)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, v.Backend)
	}
	return b, nil
}

// Store persists v on the backend it names.
func (r *Registry) Store(ctx context.Context, v *kv.Value) error {
	b, err := r.backend(v)
	if err != nil {
		return err
	}
	return b.Store(ctx, v)
}

// Load reads v back from the backend it names.
func (r *Registry) Load(ctx context.Context, v *kv.Value) ([]byte, error) {
	b, err := r.backend(v)
	if err != nil {
		return nil, err
	}
	return b.Load(ctx, v)
}

// Delete reclaims v's storage on the backend it names.
func (r *Registry) Delete(ctx context.Context, v *kv.Value) error {
	b, err := r.backend(v)
	if err != nil {
		return err
	}
	return b.Delete(ctx, v)
}

// Close releases every backend connection the registry owns.
func (r *Registry) Close() error {
	var result error
	for _, b := range r.slots {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("closing %s: %w", b.Name(), err))
			}
		}
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
