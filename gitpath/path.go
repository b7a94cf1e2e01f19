// Package gitpath normalizes and quotes paths the way Git does: forward
// slashes regardless of platform, `.`/`..` resolution, and octal-escaped
// quoting of non-ASCII or control bytes for display.
package gitpath

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrAboveRoot is returned by ResolveDots when a ".." would escape an
// absolute path's root.
var ErrAboveRoot = errors.New("gitpath: cannot normalize path above root")

func isDirSep(b byte) bool { return b == '/' || b == '\\' }

// Normalize converts separators to '/' and strips trailing slashes (except
// for the lone root "/").
func Normalize(path []byte) []byte {
	out := make([]byte, 0, len(path))
	for _, b := range path {
		if isDirSep(b) {
			out = append(out, '/')
		} else {
			out = append(out, b)
		}
	}
	for len(out) > 1 && out[len(out)-1] == '/' {
		out = out[:len(out)-1]
	}
	return out
}

// Join concatenates base and other with '/', normalizing separators. If
// other is absolute, it replaces base entirely.
func Join(base, other []byte) []byte {
	if len(other) == 0 {
		return append([]byte(nil), base...)
	}
	if isDirSep(other[0]) {
		return Normalize(other)
	}
	if len(base) == 0 {
		return Normalize(other)
	}
	var buf bytes.Buffer
	buf.Write(base)
	if buf.Len() == 0 || buf.Bytes()[buf.Len()-1] != '/' {
		buf.WriteByte('/')
	}
	buf.Write(Normalize(other))
	return Normalize(buf.Bytes())
}

// Dirname returns the directory portion, "." if there is none, "/" if the
// path is rooted directly under "/".
func Dirname(path []byte) []byte {
	if len(path) == 0 {
		return []byte(".")
	}
	pos := bytes.LastIndexByte(path, '/')
	switch pos {
	case -1:
		return []byte(".")
	case 0:
		return []byte("/")
	default:
		return path[:pos]
	}
}

// Basename returns the filename portion.
func Basename(path []byte) []byte {
	if len(path) == 0 {
		return []byte{}
	}
	pos := bytes.LastIndexByte(path, '/')
	if pos < 0 {
		return path
	}
	return path[pos+1:]
}

// ResolveDots resolves "." and ".." components, matching C git's
// normalize_path_copy. An absolute path may never climb above "/".
func ResolveDots(path []byte) ([]byte, error) {
	if len(path) == 0 {
		return []byte{}, nil
	}
	isAbsolute := path[0] == '/'

	var components [][]byte
	for _, comp := range bytes.Split(path, []byte{'/'}) {
		switch {
		case len(comp) == 0 || bytes.Equal(comp, []byte(".")):
			continue
		case bytes.Equal(comp, []byte("..")):
			if len(components) == 0 {
				if isAbsolute {
					return nil, ErrAboveRoot
				}
				components = append(components, []byte(".."))
			} else if bytes.Equal(components[len(components)-1], []byte("..")) {
				components = append(components, []byte(".."))
			} else {
				components = components[:len(components)-1]
			}
		default:
			components = append(components, comp)
		}
	}

	var buf bytes.Buffer
	if isAbsolute {
		buf.WriteByte('/')
	}
	for i, c := range components {
		if i > 0 {
			buf.WriteByte('/')
		}
		buf.Write(c)
	}
	if buf.Len() == 0 {
		if isAbsolute {
			return []byte("/"), nil
		}
		return []byte("."), nil
	}
	return buf.Bytes(), nil
}

// IsAbsolute reports whether path is rooted (Unix "/..." or Windows
// drive-letter "C:/...").
func IsAbsolute(path []byte) bool {
	if len(path) == 0 {
		return false
	}
	if path[0] == '/' {
		return true
	}
	if len(path) >= 3 && isAlpha(path[0]) && path[1] == ':' && isDirSep(path[2]) {
		return true
	}
	return false
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// RelativeTo rewrites path relative to base, matching C git's
// relative_path, e.g. RelativeTo("a/b/c", "a/b") == "c".
func RelativeTo(path, base []byte) []byte {
	if len(path) == 0 {
		return []byte(".")
	}
	if len(base) == 0 {
		return append([]byte(nil), path...)
	}

	i, j := 0, 0
	prefixOff, inOff := 0, 0
	for i < len(base) && j < len(path) && base[i] == path[j] {
		if base[i] == '/' {
			for i < len(base) && base[i] == '/' {
				i++
			}
			for j < len(path) && path[j] == '/' {
				j++
			}
			prefixOff, inOff = i, j
		} else {
			i++
			j++
		}
	}

	if i >= len(base) && prefixOff < len(base) {
		if j >= len(path) {
			return []byte(".")
		} else if j < len(path) && path[j] == '/' {
			for j < len(path) && path[j] == '/' {
				j++
			}
			inOff = j
		} else {
			i = prefixOff
		}
	} else if j >= len(path) && inOff < len(path) && i < len(base) && base[i] == '/' {
		for i < len(base) && base[i] == '/' {
			i++
		}
		inOff = len(path)
	}

	remaining := path[inOff:]
	if i >= len(base) {
		if len(remaining) == 0 {
			return []byte(".")
		}
		return remaining
	}

	var result bytes.Buffer
	pi := i
	for pi < len(base) {
		if base[pi] == '/' {
			result.WriteString("../")
			for pi < len(base) && base[pi] == '/' {
				pi++
			}
			continue
		}
		pi++
	}
	if base[len(base)-1] != '/' {
		result.WriteString("../")
	}
	result.Write(remaining)

	out := result.Bytes()
	for len(out) > 1 && out[len(out)-1] == '/' {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return []byte(".")
	}
	return out
}

// Quote formats path for display matching Git's core.quotePath=true
// default: printable ASCII passes through verbatim; any control byte,
// non-ASCII byte, backslash, or double-quote triggers octal-escaped
// double-quoted output.
func Quote(path []byte) string {
	needsQuoting := false
	for _, b := range path {
		if b < 0x20 || b == 0x7f || b > 0x7f || b == '\\' || b == '"' {
			needsQuoting = true
			break
		}
	}
	if !needsQuoting {
		return string(path)
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, b := range path {
		switch {
		case b == '\\':
			sb.WriteString(`\\`)
		case b == '"':
			sb.WriteString(`\"`)
		case b == '\n':
			sb.WriteString(`\n`)
		case b == '\t':
			sb.WriteString(`\t`)
		case b < 0x20 || b == 0x7f || b > 0x7f:
			fmt.Fprintf(&sb, `\%03o`, b)
		default:
			sb.WriteByte(b)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
