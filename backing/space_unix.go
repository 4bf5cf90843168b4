//go:build linux || darwin || freebsd || netbsd || openbsd

package backing

import "golang.org/x/sys/unix"

// diskSpace reports the usable and total bytes of the filesystem holding dir.
func diskSpace(dir string) (usable, total int64) {
	if dir == "" {
		return UnknownSpace, UnknownSpace
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return UnknownSpace, UnknownSpace
	}
	bsize := int64(st.Bsize)
	return int64(st.Bavail) * bsize, int64(st.Blocks) * bsize
}
