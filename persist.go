// Package persist maps opaque binary keys to durable byte blobs across several
// storage backends: node-local disk, HDFS, S3 and network filesystems.
//
// A Registry is built once at startup from a Config and is read-only
// afterwards. Callers get backends from it by identifier, or resolve an
// external address to a key.
//
// Example usage:
//
//	reg, err := persist.New(ctx, persist.Config{IceRoot: "/var/lib/ice"})
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	// Spill a chunk to local disk
//	owner := kv.VecKey([]byte("frame.csv"))
//	v := kv.NewValue(kv.ChunkKey(owner, 0), kv.Ice, data)
//	if err := reg.Store(ctx, v); err != nil {
//		return err
//	}
//
//	// Read it back
//	data, err = reg.Load(ctx, v)
//	if err != nil {
//		return err
//	}
//
//	// Point at a file on HDFS; its bytes are fetched on first load
//	key, err := reg.ResolveAny(ctx, "hdfs://namenode:8020/data/frame.csv")
//	if errors.Is(err, backing.ErrUnsupportedScheme) {
//		return errors.New("cannot import from this address")
//	}
package persist
