package backing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mplewis/persist/codec"
	"github.com/mplewis/persist/kv"
)

// tmpMarker separates a file name from the suffix of its in-flight copy. Encoded
// names never contain a raw '.', so temp files cannot collide with stored keys.
const tmpMarker = ".tmp-"

// icePath places a spill key under root.
func icePath(root string, k kv.Key, verify bool) (string, error) {
	if root == "" {
		return "", ErrNoRoot
	}
	if !verify {
		return filepath.Join(root, codec.IceName(k)), nil
	}
	name, err := codec.IceNameChecked(k)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

// writeFile replaces the file at p with data. The bytes go to a uniquely named
// sibling first and are renamed into place, so readers never see partial data.
func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrIO, err)
	}
	tmp := p + tmpMarker + uuid.New().String()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, tmp, err)
	}
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, p)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: write %s: %v", ErrIO, p, err)
	}
	return nil
}

// readFile reads the file at p, mapping a missing file to ErrNotFound.
func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, p, err)
	}
	return data, nil
}

// removeFile deletes the file at p. A missing file is not an error.
func removeFile(p string) error {
	err := os.Remove(p)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", ErrIO, p, err)
	}
	return nil
}

// listIce walks a spill root and decodes every stored file name back into its key.
func listIce(ctx context.Context, root string) ([]kv.Key, error) {
	if root == "" {
		return nil, ErrNoRoot
	}
	dirs, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrIO, root, err)
	}
	var keys []kv.Key
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := os.ReadDir(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", ErrIO, d.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || strings.Contains(f.Name(), tmpMarker) {
				continue
			}
			k, err := codec.ParseIceName(d.Name(), f.Name())
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}
