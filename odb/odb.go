// Package odb implements the unified object database: a read/write
// surface aggregating the loose backend, any number of open packfiles,
// an optional multi-pack index, a bounded object cache, and recursive
// alternates.
//
// Grounded on go-git's storage/filesystem/object.go (ObjectStorage): lazy
// pack loading on refresh, a search-order fallback across loose/packed/
// alternates, mtime-ordered pack preference, and prefix-based ambiguous-OID
// resolution. The fixed search order (loose, then packs by descending
// mtime, then alternates) is used directly rather than go-git's own
// index-presence-dependent ordering — see DESIGN.md's Open Question
// entry for this package.
package odb

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
	"github.com/nullpx/gitcore/odb/cache"
	"github.com/nullpx/gitcore/odb/idx"
	"github.com/nullpx/gitcore/odb/loose"
	"github.com/nullpx/gitcore/odb/pack"
)

const (
	packSubdir     = "pack"
	alternatesFile = "info/alternates"
	packExt        = ".pack"
	idxExt         = ".idx"

	// MinPrefixLen is the shortest hex prefix ResolvePrefix accepts.
	MinPrefixLen = 4
)

// ErrCorruptObject is returned when a stored object's header or payload
// cannot be parsed.
var ErrCorruptObject = errors.New("odb: corrupt object")

// ErrNoSuchPrefix is returned by ResolvePrefix when no object matches.
var ErrNoSuchPrefix = errors.New("odb: no object matches prefix")

// MissingObjectError is returned when oid cannot be found anywhere in the
// database (loose, any open pack, or any alternate).
type MissingObjectError struct{ OID hash.ID }

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("odb: missing object %s", e.OID)
}

// AmbiguousPrefixError is returned by ResolvePrefix when more than one
// object matches the requested prefix.
type AmbiguousPrefixError struct {
	Prefix     string
	Candidates []hash.ID
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("odb: ambiguous prefix %q matches %d objects", e.Prefix, len(e.Candidates))
}

// Header is the cheap metadata returned by ReadHeader.
type Header struct {
	Type object.Type
	Size int64
}

// openPack is one loaded packfile plus the file handles backing it, kept
// open for the lifetime of the DB (or until Refresh notices its .idx has
// disappeared).
type openPack struct {
	name    string // base name shared by <name>.pack and <name>.idx
	mtime   time.Time
	file    billy.File
	idxFile billy.File
	pack    *pack.Pack
}

func (p *openPack) close() {
	if p.file != nil {
		p.file.Close()
	}
	if p.idxFile != nil {
		p.idxFile.Close()
	}
}

// DB is a Git object database rooted at a ".git"-style directory (root)
// within fs, holding "objects/xx/yyyy…" loose objects and "objects/pack/"
// packfiles.
type DB struct {
	fs   billy.Filesystem
	algo hash.Algorithm

	loose *loose.Store
	cache *cache.ObjectLRU

	mu         sync.RWMutex
	packs      []*openPack // sorted by descending mtime
	alternates []*DB

	// rootFS is the filesystem as originally handed to the outermost
	// Open call, before any per-repository Chroot. Absolute alternates
	// paths (objects/info/alternates) are resolved against it rather
	// than against db.fs, since db.fs may already be chrooted
	// onto this repository's own root and so has no way back to a
	// sibling directory outside it.
	rootFS billy.Filesystem
}

// Open returns a DB backed by fs, rooted at root (pass "" for a filesystem
// already chrooted to the repository's ".git" directory), loading its
// current packs and recursively opening any alternates.
func Open(fs billy.Filesystem, root string, algo hash.Algorithm) (*DB, error) {
	return open(fs, root, algo, fs, map[string]bool{})
}

func open(fs billy.Filesystem, root string, algo hash.Algorithm, rootFS billy.Filesystem, visited map[string]bool) (*DB, error) {
	if algo == 0 {
		algo = hash.SHA1
	}

	// Normalize every DB to be chrooted onto its own root (root becomes
	// "" from here on), so fs.Root() alone is a canonical identifier for
	// this database's directory regardless of whether it was reached via
	// a root-relative Open or via an alternate's Chroot — without this,
	// the same physical directory would produce two different cycle-guard
	// keys depending on the path taken to it.
	if root != "" {
		chrooted, err := fs.Chroot(root)
		if err != nil {
			return nil, fmt.Errorf("odb: chroot to %q: %w", root, err)
		}
		fs = chrooted
		root = ""
	}

	key := fs.Root()
	if visited[key] {
		return nil, fmt.Errorf("odb: alternates cycle detected at %s", key)
	}
	visited[key] = true

	db := &DB{
		fs:     fs,
		algo:   algo,
		loose:  loose.Open(fs, root, algo),
		cache:  cache.NewObjectLRUDefault(),
		rootFS: rootFS,
	}
	if err := db.refreshPacksLocked(); err != nil {
		return nil, err
	}
	if err := db.loadAlternatesLocked(visited); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases every open pack/idx file handle, recursively through
// alternates.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.packs {
		p.close()
	}
	for _, alt := range db.alternates {
		alt.Close()
	}
	return nil
}

// Refresh rescans the pack directory for newly-written or removed
// packs, recursing into alternates. The alternates list itself is only
// computed once, at Open.
func (db *DB) Refresh() error {
	db.mu.Lock()
	err := db.refreshPacksLocked()
	alts := append([]*DB(nil), db.alternates...)
	db.mu.Unlock()
	if err != nil {
		return err
	}
	for _, alt := range alts {
		if err := alt.Refresh(); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) refreshPacksLocked() error {
	packPath := db.fs.Join("objects", packSubdir)
	entries, err := db.fs.ReadDir(packPath)
	if err != nil {
		return nil // no pack directory yet: nothing to load
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), idxExt) {
			continue
		}
		base := strings.TrimSuffix(e.Name(), idxExt)
		present[base] = true
		if db.findPackLocked(base) != nil {
			continue
		}
		if err := db.openPackLocked(packPath, base); err != nil {
			return fmt.Errorf("odb: opening pack %q: %w", base, err)
		}
	}

	kept := db.packs[:0]
	for _, p := range db.packs {
		if present[p.name] {
			kept = append(kept, p)
		} else {
			p.close()
		}
	}
	db.packs = kept
	sortPacksByMtimeDesc(db.packs)
	return nil
}

func (db *DB) findPackLocked(base string) *openPack {
	for _, p := range db.packs {
		if p.name == base {
			return p
		}
	}
	return nil
}

func (db *DB) openPackLocked(packPath, base string) error {
	idxPath := db.fs.Join(packPath, base+idxExt)
	packPathFull := db.fs.Join(packPath, base+packExt)

	idxFile, err := db.fs.Open(idxPath)
	if err != nil {
		return err
	}
	idxInfo, err := db.fs.Stat(idxPath)
	if err != nil {
		idxFile.Close()
		return err
	}

	parsedIdx, err := idx.Open(idxFile, idxInfo.Size(), db.algo)
	if err != nil {
		idxFile.Close()
		return err
	}

	packFile, err := db.fs.Open(packPathFull)
	if err != nil {
		idxFile.Close()
		return err
	}

	p, err := pack.Open(packFile, parsedIdx, db.algo)
	if err != nil {
		idxFile.Close()
		packFile.Close()
		return err
	}

	mtime := time.Time{}
	if info, err := db.fs.Stat(packPathFull); err == nil {
		mtime = info.ModTime()
	}

	db.packs = append(db.packs, &openPack{
		name:    base,
		mtime:   mtime,
		file:    packFile,
		idxFile: idxFile,
		pack:    p,
	})
	return nil
}

func sortPacksByMtimeDesc(packs []*openPack) {
	for i := 1; i < len(packs); i++ {
		for j := i; j > 0 && packs[j].mtime.After(packs[j-1].mtime); j-- {
			packs[j], packs[j-1] = packs[j-1], packs[j]
		}
	}
}

// loadAlternatesLocked parses objects/info/alternates (one objects-
// directory path per line, Git convention) and recursively opens each as
// a nested DB. Unreachable or cyclic alternates are skipped rather than
// failing the whole open, since a dangling alternate shouldn't make the
// primary database unusable.
func (db *DB) loadAlternatesLocked(visited map[string]bool) error {
	altPath := db.fs.Join("objects", alternatesFile)
	f, err := db.fs.Open(altPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		altRoot := strings.TrimSuffix(strings.TrimSuffix(line, "/"), "/objects")
		altFS, err := db.rootFS.Chroot(altRoot)
		if err != nil {
			continue
		}
		alt, err := open(altFS, "", db.algo, db.rootFS, visited)
		if err != nil {
			continue
		}
		db.alternates = append(db.alternates, alt)
	}
	return scanner.Err()
}

// resolveRaw implements the database's fixed search order: loose, then
// open packs in descending-mtime order, then alternates recursively.
// First hit wins.
func (db *DB) resolveRaw(id hash.ID) (object.Type, []byte, bool) {
	if typ, payload, err := db.loose.Read(id); err == nil {
		return typ, payload, true
	}

	db.mu.RLock()
	packsSnapshot := append([]*openPack(nil), db.packs...)
	altsSnapshot := append([]*DB(nil), db.alternates...)
	db.mu.RUnlock()

	for _, p := range packsSnapshot {
		typ, payload, ok, err := p.pack.ReadObject(id, db.resolver())
		if err == nil && ok {
			return typ, payload, true
		}
	}
	for _, alt := range altsSnapshot {
		if typ, payload, ok := alt.resolveRaw(id); ok {
			return typ, payload, true
		}
	}
	return 0, nil, false
}

// resolver returns the pack.Resolver callback that breaks the
// packfile-ODB dependency cycle: a REF_DELTA base absent from its own
// pack's index is looked up via the same search order as a top-level
// read, so a base that only lives in another pack, in loose storage, or
// in an alternate still resolves.
func (db *DB) resolver() pack.Resolver {
	return func(id hash.ID) (object.Type, []byte, bool) {
		return db.resolveRaw(id)
	}
}

// Read fully parses the object identified by id.
func (db *DB) Read(id hash.ID) (*object.Object, error) {
	typ, payload, err := db.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	obj, err := object.Decode(typ, payload, db.algo)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptObject, id, err)
	}
	return obj, nil
}

// ReadRaw returns id's type and undecoded payload, without an object.Type
// switch/decode pass.
func (db *DB) ReadRaw(id hash.ID) (object.Type, []byte, error) {
	typ, payload, ok := db.resolveRaw(id)
	if !ok {
		return 0, nil, &MissingObjectError{OID: id}
	}
	return typ, payload, nil
}

// ReadCached is Read's raw form consulting (and populating) the bounded
// object cache first.
func (db *DB) ReadCached(id hash.ID) (object.Type, []byte, error) {
	if typ, payload, ok := db.cache.Get(id); ok {
		return typ, payload, nil
	}
	typ, payload, err := db.ReadRaw(id)
	if err != nil {
		return 0, nil, err
	}
	db.cache.Put(id, typ, payload)
	return typ, payload, nil
}

// ReadHeader returns id's type and size without necessarily materializing
// its full payload. Loose objects are read cheaply (just the zlib-
// prefixed header); a packed object has no such shortcut in general —
// resolving its size requires walking (and, for delta entries, fully
// applying) the delta chain down to a base object, so ReadHeader falls
// back to a full ReadRaw for those.
func (db *DB) ReadHeader(id hash.ID) (Header, error) {
	if h, err := db.loose.ReadHeader(id); err == nil {
		return Header{Type: h.Type, Size: h.Size}, nil
	} else if !errors.Is(err, loose.ErrNotFound) {
		return Header{}, fmt.Errorf("%w: %s: %v", ErrCorruptObject, id, err)
	}

	typ, payload, err := db.ReadRaw(id)
	if err != nil {
		return Header{}, err
	}
	return Header{Type: typ, Size: int64(len(payload))}, nil
}

// Write computes payload's OID and, if absent, writes it as a new loose
// object. Idempotent.
func (db *DB) Write(typ object.Type, payload []byte) (hash.ID, error) {
	return db.loose.Write(typ, payload)
}

// WriteObject encodes and writes a parsed object.
func (db *DB) WriteObject(obj *object.Object) (hash.ID, error) {
	payload, err := obj.Encode()
	if err != nil {
		return hash.ID{}, err
	}
	return db.Write(obj.Type, payload)
}

// Contains reports whether id exists anywhere in the database.
func (db *DB) Contains(id hash.ID) bool {
	if db.loose.Has(id) {
		return true
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, p := range db.packs {
		if p.pack.Contains(id) {
			return true
		}
	}
	for _, alt := range db.alternates {
		if alt.Contains(id) {
			return true
		}
	}
	return false
}

// IterAllOIDs returns every object ID in the database (loose, packed,
// and alternates), deduplicated and in ascending order.
func (db *DB) IterAllOIDs() ([]hash.ID, error) {
	seen := make(map[hash.ID]bool)
	var out []hash.ID
	add := func(id hash.ID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	looseIDs, err := db.loose.List()
	if err != nil {
		return nil, err
	}
	for _, id := range looseIDs {
		add(id)
	}

	db.mu.RLock()
	packsSnapshot := append([]*openPack(nil), db.packs...)
	altsSnapshot := append([]*DB(nil), db.alternates...)
	db.mu.RUnlock()

	for _, p := range packsSnapshot {
		matches, err := p.pack.Index().All()
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(m.OID)
		}
	}

	for _, alt := range altsSnapshot {
		altIDs, err := alt.IterAllOIDs()
		if err != nil {
			return nil, err
		}
		for _, id := range altIDs {
			add(id)
		}
	}

	hash.Sort(out)
	return out, nil
}

// Pack writes a new packfile+index under objects/pack/ containing the
// given OIDs (every loose object currently present, if oids is nil),
// using pack.WriteFull's full-objects-only encoding, and refreshes the
// pack list so subsequent reads see it. It returns the new pack's base
// name (e.g. "pack-<checksum>"), matching Git's own
// pack-<checksum>.{pack,idx} naming. Pack does not remove the
// now-redundant loose copies; call Prune for that.
func (db *DB) Pack(oids []hash.ID) (string, error) {
	if oids == nil {
		var err error
		oids, err = db.loose.List()
		if err != nil {
			return "", err
		}
	}
	if len(oids) == 0 {
		return "", nil
	}

	entries := make([]pack.Entry, len(oids))
	for i, id := range oids {
		typ, payload, err := db.loose.Read(id)
		if err != nil {
			return "", fmt.Errorf("odb: reading %s for pack: %w", id, err)
		}
		entries[i] = pack.Entry{OID: id, Type: typ, Payload: payload}
	}

	packPath := db.fs.Join("objects", packSubdir)
	if err := db.fs.MkdirAll(packPath, 0o755); err != nil {
		return "", err
	}

	tmpPack, err := db.fs.TempFile(packPath, "tmp_pack_")
	if err != nil {
		return "", err
	}
	written, packChecksum, err := pack.WriteFull(tmpPack, db.algo, entries)
	if err != nil {
		tmpPack.Close()
		db.fs.Remove(tmpPack.Name())
		return "", err
	}
	if err := tmpPack.Close(); err != nil {
		db.fs.Remove(tmpPack.Name())
		return "", err
	}

	tmpIdx, err := db.fs.TempFile(packPath, "tmp_idx_")
	if err != nil {
		db.fs.Remove(tmpPack.Name())
		return "", err
	}
	idxEntries := make([]idx.WriteEntry, len(written))
	for i, we := range written {
		idxEntries[i] = idx.WriteEntry{OID: we.OID, Offset: we.Offset, CRC32: we.CRC32}
	}
	if err := idx.Write(tmpIdx, db.algo, packChecksum, idxEntries); err != nil {
		tmpIdx.Close()
		db.fs.Remove(tmpPack.Name())
		db.fs.Remove(tmpIdx.Name())
		return "", err
	}
	if err := tmpIdx.Close(); err != nil {
		db.fs.Remove(tmpPack.Name())
		db.fs.Remove(tmpIdx.Name())
		return "", err
	}

	base := "pack-" + packChecksum.String()
	finalPack := db.fs.Join(packPath, base+packExt)
	finalIdx := db.fs.Join(packPath, base+idxExt)
	if err := db.fs.Rename(tmpPack.Name(), finalPack); err != nil {
		db.fs.Remove(tmpPack.Name())
		db.fs.Remove(tmpIdx.Name())
		return "", err
	}
	if err := db.fs.Rename(tmpIdx.Name(), finalIdx); err != nil {
		db.fs.Remove(tmpIdx.Name())
		db.fs.Remove(finalPack)
		return "", err
	}

	db.mu.Lock()
	err = db.refreshPacksLocked()
	db.mu.Unlock()
	if err != nil {
		return "", err
	}
	return base, nil
}

// Prune removes every loose object already present in some open pack,
// so the database keeps only one copy of each object. It does not
// recurse into alternates: an alternate's loose objects belong to its
// own repository, not to this one.
func (db *DB) Prune() (int, error) {
	looseIDs, err := db.loose.List()
	if err != nil {
		return 0, err
	}

	db.mu.RLock()
	packsSnapshot := append([]*openPack(nil), db.packs...)
	db.mu.RUnlock()

	pruned := 0
	for _, id := range looseIDs {
		inPack := false
		for _, p := range packsSnapshot {
			if p.pack.Contains(id) {
				inPack = true
				break
			}
		}
		if !inPack {
			continue
		}
		if err := db.loose.Remove(id); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// ResolvePrefix performs unique-prefix resolution: hexPrefix must be at
// least MinPrefixLen hex characters. Zero matches is
// ErrNoSuchPrefix; more than one is AmbiguousPrefixError carrying every
// candidate, sorted.
func (db *DB) ResolvePrefix(hexPrefix string) (hash.ID, error) {
	if len(hexPrefix) < MinPrefixLen {
		return hash.ID{}, fmt.Errorf("odb: prefix %q shorter than %d hex characters", hexPrefix, MinPrefixLen)
	}
	full, halfNibble, hasHalf, err := hexPrefixBytes(hexPrefix)
	if err != nil {
		return hash.ID{}, err
	}

	raw, err := db.collectPrefixCandidates(full, halfNibble, hasHalf)
	if err != nil {
		return hash.ID{}, err
	}

	seen := make(map[hash.ID]bool)
	var candidates []hash.ID
	for _, id := range raw {
		if !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}

	switch len(candidates) {
	case 0:
		return hash.ID{}, fmt.Errorf("%w: %q", ErrNoSuchPrefix, hexPrefix)
	case 1:
		return candidates[0], nil
	default:
		hash.Sort(candidates)
		return hash.ID{}, &AmbiguousPrefixError{Prefix: hexPrefix, Candidates: candidates}
	}
}

func (db *DB) collectPrefixCandidates(full []byte, halfNibble byte, hasHalf bool) ([]hash.ID, error) {
	var out []hash.ID

	looseIDs, err := db.loose.List()
	if err != nil {
		return nil, err
	}
	for _, id := range looseIDs {
		if matchesPrefix(id, full, halfNibble, hasHalf) {
			out = append(out, id)
		}
	}

	db.mu.RLock()
	packsSnapshot := append([]*openPack(nil), db.packs...)
	altsSnapshot := append([]*DB(nil), db.alternates...)
	db.mu.RUnlock()

	for _, p := range packsSnapshot {
		matches, err := p.pack.Index().FindPrefix(full)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if matchesPrefix(m.OID, full, halfNibble, hasHalf) {
				out = append(out, m.OID)
			}
		}
	}

	for _, alt := range altsSnapshot {
		sub, err := alt.collectPrefixCandidates(full, halfNibble, hasHalf)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}

	return out, nil
}

// hexPrefixBytes splits a (possibly odd-length) hex prefix into its full
// bytes plus, for an odd trailing character, the high nibble it
// constrains.
func hexPrefixBytes(hexPrefix string) (full []byte, halfNibble byte, hasHalf bool, err error) {
	for i := 0; i < len(hexPrefix); i++ {
		if !isHexChar(hexPrefix[i]) {
			return nil, 0, false, fmt.Errorf("odb: invalid hex prefix %q", hexPrefix)
		}
	}
	fullLen := len(hexPrefix) / 2
	full, err = hex.DecodeString(hexPrefix[:fullLen*2])
	if err != nil {
		return nil, 0, false, fmt.Errorf("odb: invalid hex prefix %q: %v", hexPrefix, err)
	}
	if len(hexPrefix)%2 == 1 {
		v, _ := strconv.ParseUint(hexPrefix[len(hexPrefix)-1:], 16, 8)
		return full, byte(v) << 4, true, nil
	}
	return full, 0, false, nil
}

func isHexChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		return true
	default:
		return false
	}
}

func matchesPrefix(id hash.ID, full []byte, halfNibble byte, hasHalf bool) bool {
	b := id.Bytes()
	if len(b) < len(full) {
		return false
	}
	if !bytes.Equal(b[:len(full)], full) {
		return false
	}
	if hasHalf {
		if len(b) <= len(full) {
			return false
		}
		if b[len(full)]&0xf0 != halfNibble {
			return false
		}
	}
	return true
}
