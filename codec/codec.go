// Package codec converts arbitrary binary keys into file names and back.
//
// The mapping is a bijection over all byte strings. Its output never contains a
// raw % . / : " > \ or NUL outside of a two-character escape, so an encoded key
// is safe to use as a single path segment. The escape alphabet, the hex digit
// alphabet and the system-key prefix delimiter are an on-disk format: files
// written by earlier versions are named with exactly this encoding.
//
// Example:
//
//	name := codec.Encode([]byte("a.b/c")) // "a%db%sc"
//	raw := codec.Decode(name)             // []byte("a.b/c")
package codec

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mplewis/persist/kv"
)

// escapeChar is the prefix of every escape sequence and the system-key prefix delimiter.
const escapeChar = '%'

// escapes maps a reserved byte to the character following '%' in its escape.
var escapes = [256]byte{
	'%':  '%',
	'.':  'd',
	'/':  's',
	':':  'c',
	'"':  'q',
	'>':  'g',
	'\\': 'b',
	0:    'z',
}

// unescapes is the reverse of escapes.
var unescapes = map[byte]byte{
	'%':  '%',
	'c':  ':',
	'd':  '.',
	'g':  '>',
	'q':  '"',
	's':  '/',
	'b':  '\\',
	'z':  0,
}

// isSystem reports whether b starts with a control byte.
func isSystem(b []byte) bool {
	return len(b) > 0 && b[0] < 32
}

// printable reports whether c is printable 7-bit ASCII.
func printable(c byte) bool {
	return c >= 32 && c < 128
}

// Encode converts key bytes into a filesystem-safe name.
func Encode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) + len(b)/2 + 4)
	i := 0
	if isSystem(b) {
		// Hexalate everything up to the last non-printable byte.
		j := len(b) - 1
		for j >= 0 && printable(b[j]) {
			j--
		}
		sb.WriteByte(escapeChar)
		for ; i <= j; i++ {
			sb.WriteByte(hexDigit(b[i] >> 4))
			sb.WriteByte(hexDigit(b[i] & 15))
		}
		sb.WriteByte(escapeChar)
	}
	escapeBytes(&sb, b[i:])
	return sb.String()
}

// EncodeKey is Encode applied to the bytes of k.
func EncodeKey(k kv.Key) string {
	return Encode(k.Bytes())
}

// escapeBytes writes b to sb, escaping reserved bytes.
func escapeBytes(sb *strings.Builder, b []byte) {
	for _, c := range b {
		if e := escapes[c]; e != 0 {
			sb.WriteByte(escapeChar)
			sb.WriteByte(e)
			continue
		}
		sb.WriteByte(c)
	}
}

// hexDigit renders a nibble with the uppercase hex alphabet.
func hexDigit(n byte) byte {
	d := n + '0'
	if d > '9' {
		d += 'A' - 10 - '0'
	}
	return d
}

// unhex inverts hexDigit. Characters outside the alphabet still map to a
// value, using 16-bit wrap-around the way the name format was first written.
func unhex(c byte) uint16 {
	d := uint16(c) - '0'
	if d > 9 {
		d -= 'A' - '0' - 10
	}
	return d
}

// Decode converts a name produced by Encode back into key bytes.
//
// Decoding is lenient: an unknown escape sequence decodes to a literal '%' and
// a warning is logged, since names may come from files we did not write.
func Decode(s string) []byte {
	out := make([]byte, 0, len(s))
	i := 0
	if len(s) > 2 && s[0] == escapeChar && s[1] >= '0' && s[1] <= '9' {
		for i = 1; i < len(s); i += 2 {
			if s[i] == escapeChar {
				break
			}
			if i+1 >= len(s) {
				zap.L().Warn("Dangling hex digit in file name",
					zap.String("name", s), zap.Int("index", i))
				break
			}
			out = append(out, byte(unhex(s[i])<<4|unhex(s[i+1])))
		}
		i++ // skip the closing '%'
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c != escapeChar {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(s) {
			zap.L().Warn("Invalid format of file name",
				zap.String("name", s), zap.Int("index", i))
			out = append(out, escapeChar)
			break
		}
		u, ok := unescapes[s[i]]
		if !ok {
			zap.L().Warn("Invalid format of file name",
				zap.String("name", s), zap.Int("index", i))
			u = escapeChar
		}
		out = append(out, u)
	}
	return out
}

// DecodeKey is Decode returning a Key.
func DecodeKey(s string) kv.Key {
	return kv.Make(Decode(s))
}
