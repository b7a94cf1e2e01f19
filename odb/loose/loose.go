// Package loose implements Git's sharded, zlib-compressed loose-object
// backend: one file per object under objects/xx/yyyy…, written via
// temp-file-then-rename so a reader never observes a partial write.
//
// Grounded on go-git's storage/filesystem/dotgit ObjectWriter/Object
// (writers.go, dotgit.go) and plumbing/format/objfile's WriteHeader/Hash
// contract (writer_test.go), adapted to this module's hash and object
// packages instead of go-git's plumbing.Hash/ObjectType.
package loose

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

// ErrNotFound is returned when no loose object exists for the given ID.
var ErrNotFound = errors.New("loose: object not found")

// ErrCorrupt is returned when a loose object's header or zlib stream is
// malformed.
var ErrCorrupt = errors.New("loose: corrupt object")

const objectsDir = "objects"
const tmpPrefix = "tmp_obj_"

// Store is a loose-object backend rooted at a ".git/objects" directory
// (addressed relative to root through fs).
type Store struct {
	fs   billy.Filesystem
	root string // e.g. "objects", or "objects" under an alternate's root
	algo hash.Algorithm
}

// Open returns a Store backed by fs, rooted at objects beneath root (pass
// "" for a filesystem chrooted directly to the ".git" directory).
func Open(fs billy.Filesystem, root string, algo hash.Algorithm) *Store {
	if algo == 0 {
		algo = hash.SHA1
	}
	return &Store{fs: fs, root: fs.Join(root, objectsDir), algo: algo}
}

func (s *Store) shardPath(id hash.ID) string {
	h := id.String()
	return s.fs.Join(s.root, h[:2], h[2:])
}

// Has reports whether a loose object exists for id.
func (s *Store) Has(id hash.ID) bool {
	_, err := s.fs.Stat(s.shardPath(id))
	return err == nil
}

// Header is the cheap metadata read from a loose object without inflating
// its full payload.
type Header struct {
	Type object.Type
	Size int64
}

// ReadHeader parses just the "<type> <size>\0" prefix of a loose object.
func (s *Store) ReadHeader(id hash.ID) (Header, error) {
	f, err := s.fs.Open(s.shardPath(id))
	if err != nil {
		return Header{}, ErrNotFound
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	typ, size, err := readObjectHeader(zr)
	if err != nil {
		return Header{}, err
	}
	return Header{Type: typ, Size: size}, nil
}

// Read returns an object's type and fully-inflated payload.
func (s *Store) Read(id hash.ID) (object.Type, []byte, error) {
	f, err := s.fs.Open(s.shardPath(id))
	if err != nil {
		return 0, nil, ErrNotFound
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	typ, size, err := readObjectHeader(zr)
	if err != nil {
		return 0, nil, err
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(zr, payload); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated payload: %v", ErrCorrupt, err)
	}
	return typ, payload, nil
}

// readObjectHeader parses "<type> <size>\0" from the start of r.
func readObjectHeader(r io.Reader) (object.Type, int64, error) {
	var hdr []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, 0, fmt.Errorf("%w: truncated header: %v", ErrCorrupt, err)
		}
		if buf[0] == 0 {
			break
		}
		hdr = append(hdr, buf[0])
		if len(hdr) > 64 {
			return 0, 0, fmt.Errorf("%w: header too long", ErrCorrupt)
		}
	}
	sp := bytes.IndexByte(hdr, ' ')
	if sp < 0 {
		return 0, 0, fmt.Errorf("%w: missing size separator", ErrCorrupt)
	}
	typ, err := object.ParseType(string(hdr[:sp]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	size, err := strconv.ParseInt(string(hdr[sp+1:]), 10, 64)
	if err != nil || size < 0 {
		return 0, 0, fmt.Errorf("%w: bad size field", ErrCorrupt)
	}
	return typ, size, nil
}

// Write computes the object's ID and, if it does not already exist, writes
// it as a new loose object. Write is idempotent: writing the same content
// twice is a no-op the second time.
func (s *Store) Write(typ object.Type, payload []byte) (hash.ID, error) {
	id := hash.Sum(s.algo, typ.String(), payload)
	if s.Has(id) {
		return id, nil
	}

	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return hash.ID{}, err
	}
	tmp, err := s.fs.TempFile(s.root, tmpPrefix)
	if err != nil {
		return hash.ID{}, err
	}

	zw := zlib.NewWriter(tmp)
	header := typ.String() + " " + strconv.FormatInt(int64(len(payload)), 10) + "\x00"
	if _, err := io.WriteString(zw, header); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return hash.ID{}, err
	}
	if _, err := zw.Write(payload); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return hash.ID{}, err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return hash.ID{}, err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return hash.ID{}, err
	}

	dst := s.shardPath(id)
	if err := s.fs.MkdirAll(s.fs.Join(s.root, id.String()[:2]), 0o755); err != nil {
		s.fs.Remove(tmp.Name())
		return hash.ID{}, err
	}
	if err := s.fs.Rename(tmp.Name(), dst); err != nil {
		s.fs.Remove(tmp.Name())
		return hash.ID{}, err
	}
	if chmodFS, ok := s.fs.(billy.Chmod); ok {
		_ = chmodFS.Chmod(dst, 0o444)
	}
	return id, nil
}

// Remove deletes id's loose object file, if present. A missing file is
// not an error: callers typically call Remove after already confirming
// the object now lives in a pack.
func (s *Store) Remove(id hash.ID) error {
	path := s.shardPath(id)
	if chmodFS, ok := s.fs.(billy.Chmod); ok {
		_ = chmodFS.Chmod(path, 0o644)
	}
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List enumerates every object ID present in the loose store, scanning the
// two-level xx/yyyy… shard directories.
func (s *Store) List() ([]hash.ID, error) {
	shards, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, nil
	}

	var ids []hash.ID
	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != 2 || !isHex(shard.Name()) {
			continue
		}
		entries, err := s.fs.ReadDir(s.fs.Join(s.root, shard.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
				continue
			}
			id, err := hash.FromHex(shard.Name() + e.Name())
			if err != nil {
				continue // not an object file; skip
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= '0' && b <= '9':
		case b >= 'a' && b <= 'f':
		case b >= 'A' && b <= 'F':
		default:
			return false
		}
	}
	return true
}
