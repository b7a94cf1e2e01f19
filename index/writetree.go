package index

import (
	"sort"
	"strings"

	"github.com/nullpx/gitcore/filemode"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

// ObjectWriter is the minimal surface WriteTree needs from an object
// database: write a tree payload and get back its OID. Satisfied by
// odb.DB.Write(object.TreeType, payload).
type ObjectWriter interface {
	Write(typ object.Type, payload []byte) (hash.ID, error)
}

// dirNode is one directory's worth of entries while building the tree,
// keyed by the final path component.
type dirNode struct {
	files map[string]*Entry
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]*Entry{}, dirs: map[string]*dirNode{}}
}

// WriteTree groups idx's Merged-stage entries by directory prefix and
// writes one Tree object per directory, recursing bottom-up, returning
// the root tree's OID. Entries within each directory are sorted
// by Git's canonical tree order before encoding — delegated to
// object.Tree.Encode, which already implements it.
func WriteTree(w ObjectWriter, idx *Index) (hash.ID, error) {
	root := newDirNode()
	for _, e := range idx.Entries {
		if e.Stage != Merged {
			continue
		}
		insert(root, strings.Split(e.Name, "/"), e)
	}
	return writeDirNode(w, root)
}

func insert(node *dirNode, parts []string, e *Entry) {
	if len(parts) == 1 {
		node.files[parts[0]] = e
		return
	}
	child, ok := node.dirs[parts[0]]
	if !ok {
		child = newDirNode()
		node.dirs[parts[0]] = child
	}
	insert(child, parts[1:], e)
}

func writeDirNode(w ObjectWriter, node *dirNode) (hash.ID, error) {
	t := &object.Tree{}

	for name, e := range node.files {
		t.Entries = append(t.Entries, object.TreeEntry{Mode: e.Mode, Name: name, OID: e.OID})
	}

	names := make([]string, 0, len(node.dirs))
	for name := range node.dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		oid, err := writeDirNode(w, node.dirs[name])
		if err != nil {
			return hash.ID{}, err
		}
		t.Entries = append(t.Entries, object.TreeEntry{Mode: filemode.Dir, Name: name, OID: oid})
	}

	return w.Write(object.TreeType, t.Encode())
}
