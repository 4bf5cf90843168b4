//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package backing

func diskSpace(dir string) (usable, total int64) {
	return UnknownSpace, UnknownSpace
}
