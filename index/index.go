// Package index implements the DIRC v2 staging area: the binary-encoded
// cache of what will become the next commit's tree, plus the
// write-tree operation that turns a flat list of staged entries into
// a recursive object.Tree.
//
// Grounded on go-git's plumbing/format/index (Index/Entry/Decoder/Encoder)
// for the on-disk layout and on object/tree.go's existing canonical
// sort-then-encode for tree serialization. Scope is limited to version
// 2, the base stat/OID/flags entry layout, and the trailing checksum —
// no split index, untracked cache, fsmonitor, or resolve-undo
// extensions, since nothing here calls for them beyond the core
// staging/write-tree surface.
package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	stdhash "hash"
	"io"
	"sort"
	"time"

	"github.com/nullpx/gitcore/filemode"
	"github.com/nullpx/gitcore/hash"
)

// Version is the only on-disk index version this package produces or
// requires.
const Version = 2

const (
	entryHeaderLength = 62 // 10*4 stat words + 20-byte OID + 2-byte flags
	nameMask          = 0x0fff
	stageShift        = 12
	assumeValidBit    = 1 << 15
	extendedBit       = 1 << 14
)

var (
	indexSignature = []byte("DIRC")

	// ErrMalformedSignature is returned by Decode when the header magic
	// does not read "DIRC".
	ErrMalformedSignature = errors.New("index: malformed signature")
	// ErrUnsupportedVersion is returned by Decode for any version other
	// than 2.
	ErrUnsupportedVersion = errors.New("index: unsupported version")
	// ErrInvalidChecksum is returned by Decode when the trailing digest
	// does not match the content read.
	ErrInvalidChecksum = errors.New("index: invalid checksum")
)

// Stage identifies which side of a conflict an entry represents. Stage 0
// (Merged) is the normal, fully-resolved case.
type Stage uint8

const (
	Merged       Stage = 0
	AncestorMode Stage = 1
	OurMode      Stage = 2
	TheirMode    Stage = 3
)

// Entry is a single staged path at a single stage.
type Entry struct {
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Dev, Inode  uint32
	Mode        filemode.FileMode
	UID, GID    uint32
	Size        uint32
	OID         hash.ID
	Stage       Stage
	AssumeValid bool
	Name        string
}

// Index is the in-memory staging area: an unordered bag of entries plus
// the algorithm its OIDs are hashed with.
type Index struct {
	Algo    hash.Algorithm
	Entries []*Entry
}

// New returns an empty index for algo.
func New(algo hash.Algorithm) *Index {
	return &Index{Algo: algo}
}

// Add stages path at Merged stage, returning the new entry for the caller
// to fill in.
func (idx *Index) Add(path string) *Entry {
	e := &Entry{Name: path}
	idx.Entries = append(idx.Entries, e)
	return e
}

// Entry returns the Merged-stage entry for path, if present.
func (idx *Index) Entry(path string) (*Entry, bool) {
	for _, e := range idx.Entries {
		if e.Name == path && e.Stage == Merged {
			return e, true
		}
	}
	return nil, false
}

// Remove deletes every entry (at any stage) with the given path.
func (idx *Index) Remove(path string) {
	out := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Name != path {
			out = append(out, e)
		}
	}
	idx.Entries = out
}

// byNameAndStage implements the on-disk entry ordering: path name first,
// then stage, matching Git's index sort.
type byNameAndStage []*Entry

func (l byNameAndStage) Len() int      { return len(l) }
func (l byNameAndStage) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l byNameAndStage) Less(i, j int) bool {
	if l[i].Name != l[j].Name {
		return l[i].Name < l[j].Name
	}
	return l[i].Stage < l[j].Stage
}

// Encoder writes an Index to a stream in DIRC v2 form, followed by the
// trailing checksum over everything written.
type Encoder struct {
	w io.Writer
	h stdhash.Hash
}

// NewEncoder returns an Encoder that writes to w using algo for the
// trailing checksum.
func NewEncoder(w io.Writer, algo hash.Algorithm) *Encoder {
	h := hash.New(algo)
	return &Encoder{w: io.MultiWriter(w, h), h: h}
}

// Encode writes idx in full, including the header, every entry (sorted by
// name then stage), and the trailing checksum.
func (e *Encoder) Encode(idx *Index) error {
	sorted := make([]*Entry, len(idx.Entries))
	copy(sorted, idx.Entries)
	sort.Sort(byNameAndStage(sorted))

	if err := e.writeHeader(len(sorted)); err != nil {
		return err
	}
	for _, entry := range sorted {
		if err := e.writeEntry(entry); err != nil {
			return err
		}
	}
	_, err := e.w.Write(e.h.Sum(nil))
	return err
}

func (e *Encoder) writeHeader(count int) error {
	if _, err := e.w.Write(indexSignature); err != nil {
		return err
	}
	return writeUint32s(e.w, uint32(Version), uint32(count))
}

func (e *Encoder) writeEntry(entry *Entry) error {
	csec, cnsec := timeParts(entry.CreatedAt)
	msec, mnsec := timeParts(entry.ModifiedAt)

	if err := writeUint32s(e.w,
		csec, cnsec, msec, mnsec,
		entry.Dev, entry.Inode, uint32(entry.Mode),
		entry.UID, entry.GID, entry.Size,
	); err != nil {
		return err
	}

	if _, err := e.w.Write(entry.OID.Bytes()); err != nil {
		return err
	}

	flags := uint16(entry.Stage&0x3) << stageShift
	if entry.AssumeValid {
		flags |= assumeValidBit
	}
	if l := len(entry.Name); l < nameMask {
		flags |= uint16(l)
	} else {
		flags |= nameMask
	}
	if err := writeUint16(e.w, flags); err != nil {
		return err
	}

	if _, err := io.WriteString(e.w, entry.Name); err != nil {
		return err
	}
	written := entryHeaderLength + len(entry.Name)
	padLen := 8 - written%8
	_, err := e.w.Write(bytes.Repeat([]byte{0}, padLen))
	return err
}

func timeParts(t time.Time) (uint32, uint32) {
	if t.IsZero() {
		return 0, 0
	}
	return uint32(t.Unix()), uint32(t.Nanosecond())
}

// Decoder reads an Index from a DIRC v2 stream.
type Decoder struct {
	r    io.Reader
	h    stdhash.Hash
	algo hash.Algorithm
}

// NewDecoder returns a Decoder reading from r, assuming OIDs are algo-sized.
func NewDecoder(r io.Reader, algo hash.Algorithm) *Decoder {
	h := hash.New(algo)
	buf := bufio.NewReader(r)
	return &Decoder{r: io.TeeReader(buf, h), h: h, algo: algo}
}

// Decode reads a full index into idx.
func (d *Decoder) Decode(idx *Index) error {
	idx.Algo = d.algo

	sig := make([]byte, 4)
	if _, err := io.ReadFull(d.r, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, indexSignature) {
		return ErrMalformedSignature
	}

	version, err := readUint32(d.r)
	if err != nil {
		return err
	}
	if version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	count, err := readUint32(d.r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		e, err := d.readEntry()
		if err != nil {
			return err
		}
		idx.Entries = append(idx.Entries, e)
	}

	expected := d.h.Sum(nil)
	got := make([]byte, len(expected))
	if _, err := io.ReadFull(d.r, got); err != nil {
		return err
	}
	if !bytes.Equal(expected, got) {
		return ErrInvalidChecksum
	}
	return nil
}

func (d *Decoder) readEntry() (*Entry, error) {
	words, err := readUint32s(d.r, 10)
	if err != nil {
		return nil, err
	}

	oidBytes := make([]byte, d.algo.Size())
	if _, err := io.ReadFull(d.r, oidBytes); err != nil {
		return nil, err
	}
	oid, err := hash.FromBytes(oidBytes)
	if err != nil {
		return nil, err
	}

	flags, err := readUint16(d.r)
	if err != nil {
		return nil, err
	}

	nameLen := int(flags & nameMask)
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(d.r, nameBuf); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(d.r, make([]byte, 1)); err != nil { // NUL terminator
		return nil, err
	}

	read := entryHeaderLength + nameLen + 1
	padLen := (8 - read%8) % 8
	if _, err := io.CopyN(io.Discard, d.r, int64(padLen)); err != nil {
		return nil, err
	}

	e := &Entry{
		Dev: words[4], Inode: words[5], Mode: filemode.FileMode(words[6]),
		UID: words[7], GID: words[8], Size: words[9],
		OID:         oid,
		Stage:       Stage(flags>>stageShift) & 0x3,
		AssumeValid: flags&assumeValidBit != 0,
		Name:        string(nameBuf),
	}
	if words[0] != 0 || words[1] != 0 {
		e.CreatedAt = time.Unix(int64(words[0]), int64(words[1]))
	}
	if words[2] != 0 || words[3] != 0 {
		e.ModifiedAt = time.Unix(int64(words[2]), int64(words[3]))
	}
	return e, nil
}
