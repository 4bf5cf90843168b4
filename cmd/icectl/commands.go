package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mplewis/persist/backing"
	"github.com/mplewis/persist/codec"
	"github.com/mplewis/persist/kv"
)

var keyFlags = []cli.Flag{
	&cli.StringFlag{Name: "key", Usage: "key as text"},
	&cli.StringFlag{Name: "key-hex", Usage: "key as hex bytes"},
	&cli.StringFlag{Name: "vec", Usage: "name of the owning vector; with --chunk builds a chunk key"},
	&cli.IntFlag{Name: "chunk", Value: -1, Usage: "chunk index within --vec"},
	&cli.StringFlag{Name: "backend", Value: "ice", Usage: "backend slot: ice, hdfs, s3, nfs or a number"},
}

// keyFromFlags builds the key a command operates on.
func keyFromFlags(cCtx *cli.Context) (kv.Key, error) {
	switch {
	case cCtx.IsSet("key-hex"):
		b, err := hex.DecodeString(cCtx.String("key-hex"))
		if err != nil {
			return kv.Key{}, fmt.Errorf("bad --key-hex: %w", err)
		}
		return kv.Make(b), nil
	case cCtx.IsSet("vec"):
		owner := kv.VecKey([]byte(cCtx.String("vec")))
		if idx := cCtx.Int("chunk"); idx >= 0 {
			return kv.ChunkKey(owner, uint32(idx)), nil
		}
		return owner, nil
	case cCtx.IsSet("key"):
		return kv.MakeString(cCtx.String("key")), nil
	default:
		return kv.Key{}, cli.Exit("one of --key, --key-hex or --vec is required", 2)
	}
}

// backendFromFlags parses --backend.
func backendFromFlags(cCtx *cli.Context) (kv.BackendID, error) {
	name := strings.ToLower(cCtx.String("backend"))
	for id := kv.BackendID(0); id.Valid(); id++ {
		if id.String() == name {
			return id, nil
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(name, "%d", &n); err == nil && kv.BackendID(n).Valid() {
		return kv.BackendID(n), nil
	}
	return 0, cli.Exit(fmt.Sprintf("unknown backend %q", name), 2)
}

// valueFromFlags builds the value a command operates on.
func valueFromFlags(cCtx *cli.Context) (*kv.Value, error) {
	k, err := keyFromFlags(cCtx)
	if err != nil {
		return nil, err
	}
	id, err := backendFromFlags(cCtx)
	if err != nil {
		return nil, err
	}
	return kv.NewValue(k, id, nil), nil
}

var encodeCommand = &cli.Command{
	Name:      "encode",
	Usage:     "print the file name of a key given as hex bytes",
	ArgsUsage: "<hex>...",
	Action: func(cCtx *cli.Context) error {
		b, err := hex.DecodeString(strings.Join(cCtx.Args().Slice(), ""))
		if err != nil {
			return fmt.Errorf("bad hex key: %w", err)
		}
		k := kv.Make(b)
		name, err := codec.EncodeChecked(k)
		if err != nil {
			return err
		}
		fmt.Fprintln(cCtx.App.Writer, name)
		fmt.Fprintln(cCtx.App.Writer, codec.IceName(k))
		return nil
	},
}

var decodeCommand = &cli.Command{
	Name:      "decode",
	Usage:     "print the key bytes, as hex, of a file name",
	ArgsUsage: "<name>",
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() != 1 {
			return cli.Exit("decode takes exactly one file name", 2)
		}
		name := cCtx.Args().First()
		if err := codec.VerifyString(name); err != nil {
			fmt.Fprintf(cCtx.App.ErrWriter, "warning: %v\n", err)
		}
		k := codec.DecodeKey(name)
		fmt.Fprintln(cCtx.App.Writer, hex.EncodeToString(k.Bytes()))
		if k.IsChunk() {
			fmt.Fprintf(cCtx.App.Writer, "chunk %d of %s\n", k.ChunkIndex(), k.Owner())
		}
		return nil
	},
}

var storeCommand = &cli.Command{
	Name:      "store",
	Usage:     "store a file (or stdin with -) as a value",
	ArgsUsage: "<file>",
	Flags:     keyFlags,
	Action: func(cCtx *cli.Context) error {
		v, err := valueFromFlags(cCtx)
		if err != nil {
			return err
		}
		var r io.Reader = cCtx.App.Reader
		if f := cCtx.Args().First(); f != "" && f != "-" {
			fh, err := os.Open(f)
			if err != nil {
				return err
			}
			defer fh.Close()
			r = fh
		}
		if v.Data, err = io.ReadAll(r); err != nil {
			return err
		}
		reg, err := openRegistry(cCtx)
		if err != nil {
			return err
		}
		defer reg.Close()
		return reg.Store(cCtx.Context, v)
	},
}

var loadCommand = &cli.Command{
	Name:  "load",
	Usage: "write a stored value to stdout",
	Flags: keyFlags,
	Action: func(cCtx *cli.Context) error {
		v, err := valueFromFlags(cCtx)
		if err != nil {
			return err
		}
		reg, err := openRegistry(cCtx)
		if err != nil {
			return err
		}
		defer reg.Close()
		data, err := reg.Load(cCtx.Context, v)
		if err != nil {
			return err
		}
		_, err = cCtx.App.Writer.Write(data)
		return err
	},
}

var deleteCommand = &cli.Command{
	Name:    "rm",
	Aliases: []string{"delete"},
	Usage:   "delete a stored value",
	Flags:   keyFlags,
	Action: func(cCtx *cli.Context) error {
		v, err := valueFromFlags(cCtx)
		if err != nil {
			return err
		}
		reg, err := openRegistry(cCtx)
		if err != nil {
			return err
		}
		defer reg.Close()
		return reg.Delete(cCtx.Context, v)
	},
}

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "resolve an address to a key, optionally printing its contents",
	ArgsUsage: "<uri>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "cat", Usage: "load and print the resolved contents"},
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() != 1 {
			return cli.Exit("resolve takes exactly one address", 2)
		}
		reg, err := openRegistry(cCtx)
		if err != nil {
			return err
		}
		defer reg.Close()
		v, err := reg.Resolve(cCtx.Context, cCtx.Args().First())
		if err != nil {
			return err
		}
		if !cCtx.Bool("cat") {
			fmt.Fprintf(cCtx.App.Writer, "%s\t%s\n", v.Backend, v.Key)
			return nil
		}
		data, err := reg.Load(cCtx.Context, v)
		if err != nil {
			return err
		}
		_, err = cCtx.App.Writer.Write(data)
		return err
	},
}

var listCommand = &cli.Command{
	Name:  "ls",
	Usage: "list the keys spilled on a backend",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "backend", Value: "ice", Usage: "backend slot: ice or nfs"},
	},
	Action: func(cCtx *cli.Context) error {
		id, err := backendFromFlags(cCtx)
		if err != nil {
			return err
		}
		reg, err := openRegistry(cCtx)
		if err != nil {
			return err
		}
		defer reg.Close()
		l, ok := reg.Get(id).(backing.Lister)
		if !ok {
			return cli.Exit(fmt.Sprintf("backend %s cannot list its keys", id), 1)
		}
		keys, err := l.List(cCtx.Context)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintf(cCtx.App.Writer, "%s\t%s\n", codec.IceName(k), k)
		}
		return nil
	},
}

var spaceCommand = &cli.Command{
	Name:  "df",
	Usage: "report usable and total space of every backend",
	Action: func(cCtx *cli.Context) error {
		reg, err := openRegistry(cCtx)
		if err != nil {
			return err
		}
		defer reg.Close()
		for id := kv.BackendID(0); id.Valid(); id++ {
			b := reg.Get(id)
			if b == nil {
				continue
			}
			fmt.Fprintf(cCtx.App.Writer, "%-5s %-40s %15s %15s\n", id, b.Name(), space(b.UsableSpace()), space(b.TotalSpace()))
		}
		return nil
	},
}

// space renders a capacity, or "unknown".
func space(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", n)
}
