// Package filemode defines Git's closed set of tree entry modes.
package filemode

import (
	"fmt"
	"os"
	"strconv"
)

// FileMode represents a tree entry's mode, matching Git's octal encoding.
type FileMode uint32

const (
	// Empty is the zero value, used for entries that have not been set.
	Empty FileMode = 0
	// Regular is a normal, non-executable file.
	Regular FileMode = 0o100644
	// Executable is an executable file.
	Executable FileMode = 0o100755
	// Symlink is a symbolic link, whose blob content is the link target.
	Symlink FileMode = 0o120000
	// Dir is a tree (directory) entry.
	Dir FileMode = 0o040000
	// Submodule is a commit entry, referencing another repository.
	Submodule FileMode = 0o160000
)

// IsFile reports whether the mode addresses blob content (regular,
// executable, or symlink).
func (m FileMode) IsFile() bool {
	return m == Regular || m == Executable || m == Symlink
}

// String formats the mode the way Git prints it: six octal digits, except
// Dir which prints without the leading zeros as "40000".
func (m FileMode) String() string {
	if m == Dir {
		return "40000"
	}
	return fmt.Sprintf("%06o", uint32(m))
}

// New parses a mode from its textual (octal) form, as found in tree
// object entries and the index.
func New(s string) (FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("filemode: invalid mode %q: %w", s, err)
	}
	m := FileMode(v)
	switch m {
	case Regular, Executable, Symlink, Dir, Submodule:
		return m, nil
	default:
		return 0, fmt.Errorf("filemode: unrecognized mode %q", s)
	}
}

// FromOSFileMode approximates a FileMode from an os.FileMode, as used when
// staging working-tree files into the index.
func FromOSFileMode(m os.FileMode) FileMode {
	switch {
	case m&os.ModeSymlink != 0:
		return Symlink
	case m.IsDir():
		return Dir
	case m&0o111 != 0:
		return Executable
	default:
		return Regular
	}
}
