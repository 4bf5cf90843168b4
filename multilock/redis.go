package multilock

import (
	"context"
	"fmt"
	"time"

	goredislib "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

// Default values for RedisArgs values, if unset.
const (
	DEFAULT_LOCK_EXPIRY = 30 * time.Second
	DEFAULT_LOCK_TRIES  = 32
	DEFAULT_NAMESPACE   = "persist:lock:"
)

// Redis locks names across every process sharing a Redis server.
type Redis struct {
	client *goredislib.Client
	owned  bool
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
	ns     string
}

// RedisArgs is the set of arguments for creating a new Redis locker.
type RedisArgs struct {
	Addr      string             // Required unless Client is set. TCP address of the Redis server.
	Client    *goredislib.Client // Optional. A preconfigured client; Addr is ignored when set.
	Expiry    time.Duration      // Optional. How long a lock survives a crashed holder.
	Tries     int                // Optional. How many times to try acquiring before failing.
	Namespace string             // Optional. Prefix of every lock name.
}

// NewRedis creates a Redis-backed locker.
func NewRedis(args RedisArgs) *Redis {
	owned := false
	if args.Client == nil {
		args.Client = goredislib.NewClient(&goredislib.Options{Network: "tcp", Addr: args.Addr})
		owned = true
	}
	if args.Expiry == 0 {
		args.Expiry = DEFAULT_LOCK_EXPIRY
	}
	if args.Tries == 0 {
		args.Tries = DEFAULT_LOCK_TRIES
	}
	if args.Namespace == "" {
		args.Namespace = DEFAULT_NAMESPACE
	}
	return &Redis{
		client: args.Client,
		owned:  owned,
		rs:     redsync.New(goredis.NewPool(args.Client)),
		expiry: args.Expiry,
		tries:  args.Tries,
		ns:     args.Namespace,
	}
}

// Lock acquires a Redis mutex for name.
func (r *Redis) Lock(ctx context.Context, name string) (func(), error) {
	mutex := r.rs.NewMutex(r.ns+name, redsync.WithTries(r.tries), redsync.WithExpiry(r.expiry))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("locking %s: %w", name, err)
	}
	return func() { _, _ = mutex.UnlockContext(context.Background()) }, nil
}

// Close closes the Redis client if this locker created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
