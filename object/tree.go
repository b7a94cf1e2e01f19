package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/nullpx/gitcore/filemode"
	"github.com/nullpx/gitcore/hash"
)

// TreeEntry is one {mode, name, oid} tuple inside a Tree.
type TreeEntry struct {
	Mode filemode.FileMode
	Name string
	OID  hash.ID
}

// Tree is an ordered list of directory entries.
type Tree struct {
	Entries []TreeEntry
}

// sortKey implements Git's canonical tree-entry ordering: lexicographic on
// name, except directory entries sort as if a '/' byte were appended. This
// makes "foo" (a file) sort before "foo.c" but "foo/" (a directory) sort
// after "foo.c" if "foo" were a directory, matching `git mktree`.
func sortKey(e TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Sort orders t.Entries in place in Git's canonical tree order, the
// order Encode writes entries in (Encode sorts its own copy).
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

// Encode serializes the tree in Git's canonical byte form:
// "<mode-ascii> <name>\0<raw-oid>" per entry, concatenated in sorted order.
func (t *Tree) Encode() []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		buf.WriteString(strconv.FormatUint(uint64(e.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.OID.Bytes())
	}
	return buf.Bytes()
}

// DecodeTree parses a tree object's payload.
func DecodeTree(payload []byte, algo hash.Algorithm) (*Tree, error) {
	if algo == 0 {
		algo = hash.SHA1
	}
	size := algo.Size()

	t := &Tree{}
	for len(payload) > 0 {
		sp := bytes.IndexByte(payload, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("object: malformed tree entry: missing space")
		}
		modeStr := string(payload[:sp])
		mode, err := filemode.New(modeStr)
		if err != nil {
			return nil, fmt.Errorf("object: malformed tree entry: %w", err)
		}
		rest := payload[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("object: malformed tree entry: missing NUL")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]
		if len(rest) < size {
			return nil, fmt.Errorf("object: malformed tree entry: short OID")
		}
		oid, err := hash.FromBytes(rest[:size])
		if err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, TreeEntry{Mode: mode, Name: name, OID: oid})
		payload = rest[size:]
	}
	return t, nil
}

// Find returns the entry with the given name, or false if absent.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}
