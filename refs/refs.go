// Package refs implements Git's reference store: loose refs under
// "refs/" plus "HEAD", the packed-refs fallback, symbolic resolution,
// reflog, and the transactional multi-ref commit protocol.
//
// Grounded on go-git's storage/filesystem/dotgit (dotgit_setref.go's
// lock-then-check-then-write protocol and dotgit_rewrite_packed_refs.go's
// lockfile-then-rename pattern) and original_source/crates/git-ref/src/files/mod.rs
// (FilesRefStore: loose-wins-over-packed precedence, MAX_SYMREF_DEPTH loop
// guard, and the reflog/transaction API shape this package's Store mirrors
// directly). The packed-refs append-only reflog layout additionally follows
// antgroup-hugescm's modules/zeta/reflog package (see reflog.go).
package refs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	billy "github.com/go-git/go-billy/v5"
	"github.com/nullpx/gitcore/gitpath"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

const (
	symrefPrefix   = "ref: "
	packedRefsFile = "packed-refs"
	packedRefsHdr  = "# pack-refs with: peeled fully-peeled sorted\n"
	lockSuffix     = ".lock"
	reflogDir      = "logs"

	// maxSymrefDepth bounds symbolic-reference chain following.
	maxSymrefDepth = 10
)

var (
	// ErrNotFound is returned when a reference does not exist, loose or packed.
	ErrNotFound = errors.New("refs: reference not found")
	// ErrCorrupt is returned when a loose ref or packed-refs entry cannot be parsed.
	ErrCorrupt = errors.New("refs: corrupt reference")
	// ErrSymrefLoop is returned when following symbolic refs exceeds maxSymrefDepth.
	ErrSymrefLoop = errors.New("refs: symbolic reference loop")
	// ErrLocked is returned when a ref's lockfile already exists.
	ErrLocked = errors.New("refs: reference is locked")
	// ErrConflict is returned when a transaction's expected old value doesn't match.
	ErrConflict = errors.New("refs: reference changed concurrently")
	// ErrInvalidName is returned by ValidateName for a malformed reference name.
	ErrInvalidName = errors.New("refs: invalid reference name")
)

// Kind distinguishes a direct (hash) reference from a symbolic one.
type Kind int8

const (
	KindInvalid Kind = iota
	KindDirect
	KindSymbolic
)

// Reference is a single resolved ref: either Direct (Target holds an
// object ID) or Symbolic (Symbolic holds the referenced name, unresolved).
type Reference struct {
	Name     string
	Kind     Kind
	Target   hash.ID
	Symbolic string
}

// NewDirect returns a Direct reference.
func NewDirect(name string, target hash.ID) *Reference {
	return &Reference{Name: name, Kind: KindDirect, Target: target}
}

// NewSymbolic returns a Symbolic reference.
func NewSymbolic(name, target string) *Reference {
	return &Reference{Name: name, Kind: KindSymbolic, Symbolic: target}
}

// IsSymbolic reports whether r is a symbolic reference.
func (r *Reference) IsSymbolic() bool { return r.Kind == KindSymbolic }

// ValidateName rejects empty, "."/".." path components. "HEAD" is always valid.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if name == "HEAD" {
		return nil
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

func dirOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// Store is a files-backed reference store rooted directly at a
// ".git"-style directory within fs (pass an fs already Chroot-ed there).
type Store struct {
	fs   billy.Filesystem
	algo hash.Algorithm

	// Peel resolves a tag object to the object it ultimately points at;
	// consulted when packing refs to write peeled packed-refs entries.
	// Nil disables peeling.
	Peel func(id hash.ID) (hash.ID, bool)

	// Committer is the identity recorded in reflog entries appended by
	// CommitTransaction.
	Committer object.Signature

	mu sync.Mutex // serializes packed-refs load/write and transactions
}

// Open returns a Store backed by fs.
func Open(fs billy.Filesystem, algo hash.Algorithm) *Store {
	if algo == 0 {
		algo = hash.SHA1
	}
	return &Store{fs: fs, algo: algo}
}

// SetCommitter sets the identity used for reflog entries.
func (s *Store) SetCommitter(sig object.Signature) { s.Committer = sig }

func (s *Store) readLooseRef(name string) (*Reference, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, ErrNotFound
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return parseRefContent(name, data)
}

func parseRefContent(name string, data []byte) (*Reference, error) {
	line := strings.TrimRight(string(data), "\r\n")
	if strings.HasPrefix(line, symrefPrefix) {
		target := strings.TrimSpace(line[len(symrefPrefix):])
		return NewSymbolic(name, target), nil
	}
	id, err := hash.FromHex(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return NewDirect(name, id), nil
}

// Resolve reads name as Direct or Symbolic, without following symbolic
// chains.
func (s *Store) Resolve(name string) (*Reference, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if ref, err := s.readLooseRef(name); err == nil {
		return ref, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	pr, err := s.loadPackedRefs()
	if err != nil {
		return nil, err
	}
	if e, ok := pr.find(name); ok {
		return NewDirect(name, e.OID), nil
	}
	return nil, ErrNotFound
}

// ResolveToOID follows symbolic chains down to a direct object ID,
// guarding against loops past maxSymrefDepth.
func (s *Store) ResolveToOID(name string) (hash.ID, error) {
	return s.resolveToOID(name, 0)
}

func (s *Store) resolveToOID(name string, depth int) (hash.ID, error) {
	if depth > maxSymrefDepth {
		return hash.ID{}, fmt.Errorf("%w: %s", ErrSymrefLoop, name)
	}
	ref, err := s.Resolve(name)
	if err != nil {
		return hash.ID{}, err
	}
	if ref.Kind == KindSymbolic {
		return s.resolveToOID(ref.Symbolic, depth+1)
	}
	return ref.Target, nil
}

// enumerateLoose walks refs/ (plus HEAD) collecting every loose ref name,
// filtered by prefix if non-empty.
func (s *Store) enumerateLoose(prefix string) ([]string, error) {
	var names []string
	if _, err := s.fs.Stat("HEAD"); err == nil {
		names = append(names, "HEAD")
	}

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			full := s.fs.Join(dir, e.Name())
			if e.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			names = append(names, string(gitpath.Normalize([]byte(full))))
		}
		return nil
	}
	if err := walk("refs"); err != nil {
		return nil, err
	}

	if prefix == "" {
		return names, nil
	}
	filtered := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// Iter returns every reference whose name has the given prefix (pass ""
// for all), loose refs and packed refs merged (loose wins), sorted by
// name.
func (s *Store) Iter(prefix string) ([]*Reference, error) {
	looseNames, err := s.enumerateLoose(prefix)
	if err != nil {
		return nil, err
	}

	looseSet := make(map[string]bool, len(looseNames))
	var refs []*Reference
	for _, name := range looseNames {
		looseSet[name] = true
		ref, err := s.readLooseRef(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // removed between enumerate and read
			}
			return nil, err
		}
		refs = append(refs, ref)
	}

	pr, err := s.loadPackedRefs()
	if err != nil {
		return nil, err
	}
	for _, e := range pr.entries {
		if looseSet[e.Name] {
			continue // loose ref takes precedence
		}
		if prefix != "" && !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		refs = append(refs, NewDirect(e.Name, e.OID))
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (s *Store) writeLooseRef(name, content string) error {
	if dir := dirOf(name); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := s.fs.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(content))
	return err
}

// SetRef writes name -> oid directly, non-transactionally (original's
// write_ref).
func (s *Store) SetRef(name string, oid hash.ID) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.writeLooseRef(name, oid.String()+"\n")
}

// WriteSymbolicRef writes name as a symbolic ref pointing at target,
// non-transactionally (original's write_symbolic_ref). E.g. HEAD ->
// refs/heads/main is written as "ref: refs/heads/main\n".
func (s *Store) WriteSymbolicRef(name, target string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateName(target); err != nil {
		return err
	}
	return s.writeLooseRef(name, symrefPrefix+target+"\n")
}

// DeleteRef removes name's loose file and, if present, its packed-refs
// entry, non-transactionally (original's delete_ref).
func (s *Store) DeleteRef(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pr, err := s.loadPackedRefs()
	if err != nil {
		return err
	}
	if pr.remove(name) {
		return s.writePackedRefs(pr)
	}
	return nil
}

// PackRef moves name from the loose store into packed-refs: write
// packed-refs.lock, rename over packed-refs, then
// delete the loose file — a reader observing the moment between the two
// still sees the correct value, since loose wins until it's gone and
// packed takes over immediately after.
func (s *Store) PackRef(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, err := s.readLooseRef(name)
	if err != nil {
		return err
	}
	if ref.Kind == KindSymbolic {
		return fmt.Errorf("refs: cannot pack symbolic ref %q", name)
	}

	pr, err := s.loadPackedRefs()
	if err != nil {
		return err
	}
	var peeled hash.ID
	if s.Peel != nil {
		if p, ok := s.Peel(ref.Target); ok {
			peeled = p
		}
	}
	pr.upsert(name, ref.Target, peeled)
	if err := s.writePackedRefs(pr); err != nil {
		return err
	}

	return s.fs.Remove(name)
}

// packedEntry is one line (plus optional peeled line) of packed-refs.
type packedEntry struct {
	Name   string
	OID    hash.ID
	Peeled hash.ID // zero if not peeled
}

type packedRefs struct {
	entries []packedEntry // kept sorted by Name
}

func (p *packedRefs) find(name string) (packedEntry, bool) {
	i := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].Name >= name })
	if i < len(p.entries) && p.entries[i].Name == name {
		return p.entries[i], true
	}
	return packedEntry{}, false
}

func (p *packedRefs) upsert(name string, oid, peeled hash.ID) {
	i := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].Name >= name })
	if i < len(p.entries) && p.entries[i].Name == name {
		p.entries[i].OID = oid
		p.entries[i].Peeled = peeled
		return
	}
	p.entries = append(p.entries, packedEntry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = packedEntry{Name: name, OID: oid, Peeled: peeled}
}

func (p *packedRefs) remove(name string) bool {
	for i, e := range p.entries {
		if e.Name == name {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) loadPackedRefs() (*packedRefs, error) {
	f, err := s.fs.Open(packedRefsFile)
	if err != nil {
		return &packedRefs{}, nil
	}
	defer f.Close()
	return parsePackedRefs(f)
}

func parsePackedRefs(r io.Reader) (*packedRefs, error) {
	pr := &packedRefs{}
	var last *packedEntry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			continue
		case line[0] == '#':
			continue
		case line[0] == '^':
			if last == nil {
				return nil, fmt.Errorf("%w: packed-refs: peeled line with no preceding ref", ErrCorrupt)
			}
			id, err := hash.FromHex(strings.TrimSpace(line[1:]))
			if err != nil {
				return nil, fmt.Errorf("%w: packed-refs: %v", ErrCorrupt, err)
			}
			last.Peeled = id
		default:
			sp := strings.IndexByte(line, ' ')
			if sp < 0 {
				return nil, fmt.Errorf("%w: packed-refs: missing name", ErrCorrupt)
			}
			id, err := hash.FromHex(line[:sp])
			if err != nil {
				return nil, fmt.Errorf("%w: packed-refs: %v", ErrCorrupt, err)
			}
			pr.entries = append(pr.entries, packedEntry{Name: line[sp+1:], OID: id})
			last = &pr.entries[len(pr.entries)-1]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pr.entries, func(i, j int) bool { return pr.entries[i].Name < pr.entries[j].Name })
	return pr, nil
}

func (s *Store) writePackedRefs(pr *packedRefs) error {
	lockPath := packedRefsFile + lockSuffix
	lock, err := s.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: packed-refs", ErrLocked)
	}

	bw := bufio.NewWriter(lock)
	bw.WriteString(packedRefsHdr)
	for _, e := range pr.entries {
		fmt.Fprintf(bw, "%s %s\n", e.OID, e.Name)
		if !e.Peeled.IsZero() {
			fmt.Fprintf(bw, "^%s\n", e.Peeled)
		}
	}
	if err := bw.Flush(); err != nil {
		lock.Close()
		s.fs.Remove(lockPath)
		return err
	}
	if err := lock.Close(); err != nil {
		s.fs.Remove(lockPath)
		return err
	}
	if err := s.fs.Rename(lockPath, packedRefsFile); err != nil {
		s.fs.Remove(lockPath)
		return err
	}
	return nil
}
