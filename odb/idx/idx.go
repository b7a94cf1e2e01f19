// Package idx implements Git's pack index v2 format: a fan-out table over
// sorted object IDs plus parallel CRC32 and pack-offset tables, giving
// O(log N) OID → pack-offset lookup without loading the whole file.
//
// Grounded on go-git's plumbing/format/idxfile/readerat.go (ReaderAt-based,
// non-mmap reading; fanout narrowing then binary search) and
// original_source/crates/git-pack/src/index.rs for the exact v2 byte
// layout (fanout_range/lookup/lookup_prefix/offset_at_index semantics).
package idx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nullpx/gitcore/hash"
)

var signature = [4]byte{0xff, 't', 'O', 'c'}

const (
	version       = 2
	fanoutSize    = 256 * 4
	headerSize    = 8
	offsetBigFlag = 0x80000000
	offsetBigMask = 0x7fffffff
)

// ErrCorruptIndex is returned for a malformed or truncated .idx file.
var ErrCorruptIndex = errors.New("idx: corrupt pack index")

// Index is a parsed (but not fully loaded) pack index v2, reading through
// a ReaderAt so large indexes need not be held in memory.
type Index struct {
	ra   io.ReaderAt
	algo hash.Algorithm
	size int64

	numObjects  uint32
	fanout      [256]uint32
	oidOffset   int64
	crcOffset   int64
	off32Offset int64
	off64Offset int64
	off64Size   int64 // byte length of the 64-bit offset table (0 if absent)
}

// Open parses the header, fanout table, and offset bookkeeping of a pack
// index; the OID/CRC/offset tables themselves are read on demand. size is
// the total byte length of the index file, needed to size the variable-
// length 64-bit offset table ahead of the fixed two-checksum trailer.
func Open(ra io.ReaderAt, size int64, algo hash.Algorithm) (*Index, error) {
	if algo == 0 {
		algo = hash.SHA1
	}
	hashSize := int64(algo.Size())

	var hdr [headerSize]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if !bytes.Equal(hdr[0:4], signature[:]) {
		return nil, fmt.Errorf("%w: bad signature", ErrCorruptIndex)
	}
	v := be32(hdr[4:8])
	if v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}

	var fanoutRaw [fanoutSize]byte
	if _, err := ra.ReadAt(fanoutRaw[:], headerSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	idx := &Index{ra: ra, algo: algo, size: size}
	for i := 0; i < 256; i++ {
		idx.fanout[i] = be32(fanoutRaw[i*4 : i*4+4])
	}
	idx.numObjects = idx.fanout[255]

	n := int64(idx.numObjects)
	idx.oidOffset = headerSize + fanoutSize
	idx.crcOffset = idx.oidOffset + n*hashSize
	idx.off32Offset = idx.crcOffset + n*4
	idx.off64Offset = idx.off32Offset + n*4

	trailerSize := 2 * hashSize
	idx.off64Size = size - idx.off64Offset - trailerSize
	if idx.off64Size < 0 {
		return nil, fmt.Errorf("%w: file too small for %d objects", ErrCorruptIndex, n)
	}

	return idx, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// NumObjects returns the number of objects recorded in the index.
func (idx *Index) NumObjects() int { return int(idx.numObjects) }

// fanoutRange returns the [lo, hi) slice of sorted-OID-table indices whose
// OIDs begin with firstByte.
func (idx *Index) fanoutRange(firstByte byte) (int, int) {
	hi := int(idx.fanout[firstByte])
	lo := 0
	if firstByte > 0 {
		lo = int(idx.fanout[firstByte-1])
	}
	return lo, hi
}

func (idx *Index) oidAt(i int) (hash.ID, error) {
	hashSize := idx.algo.Size()
	buf := make([]byte, hashSize)
	if _, err := idx.ra.ReadAt(buf, idx.oidOffset+int64(i)*int64(hashSize)); err != nil {
		return hash.ID{}, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return hash.FromBytes(buf)
}

// offsetAt returns the pack-file byte offset for the sorted-table entry i,
// transparently resolving through the 64-bit overflow table when the
// 32-bit entry's high bit is set.
func (idx *Index) offsetAt(i int) (int64, error) {
	var buf [4]byte
	if _, err := idx.ra.ReadAt(buf[:], idx.off32Offset+int64(i)*4); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	v := be32(buf[:])
	if v&offsetBigFlag == 0 {
		return int64(v), nil
	}
	var buf8 [8]byte
	pos := idx.off64Offset + int64(v&offsetBigMask)*8
	if _, err := idx.ra.ReadAt(buf8[:], pos); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	var big uint64
	for _, b := range buf8 {
		big = big<<8 | uint64(b)
	}
	return int64(big), nil
}

// CRC32At returns the CRC32 of the packed (compressed) entry bytes for the
// sorted-table entry i.
func (idx *Index) CRC32At(i int) (uint32, error) {
	var buf [4]byte
	if _, err := idx.ra.ReadAt(buf[:], idx.crcOffset+int64(i)*4); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return be32(buf[:]), nil
}

// FindOffset looks up id and returns its pack-file byte offset.
func (idx *Index) FindOffset(id hash.ID) (int64, bool) {
	target := id.Bytes()
	lo, hi := idx.fanoutRange(target[0])
	for lo < hi {
		mid := lo + (hi-lo)/2
		midOID, err := idx.oidAt(mid)
		if err != nil {
			return 0, false
		}
		switch bytes.Compare(midOID.Bytes(), target) {
		case -1:
			lo = mid + 1
		case 1:
			hi = mid
		default:
			off, err := idx.offsetAt(mid)
			if err != nil {
				return 0, false
			}
			return off, true
		}
	}
	return 0, false
}

// Match is one (OID, pack-offset) pair returned by a prefix lookup.
type Match struct {
	OID    hash.ID
	Offset int64
}

// FindPrefix returns every OID in the index whose raw bytes begin with
// prefix (a raw-byte, not hex, prefix), used by the ODB's unique-prefix
// resolution: zero matches means no object, more than one means
// AmbiguousPrefix.
func (idx *Index) FindPrefix(prefix []byte) ([]Match, error) {
	if len(prefix) == 0 {
		return nil, nil
	}
	lo, hi := idx.fanoutRange(prefix[0])
	var matches []Match
	for i := lo; i < hi; i++ {
		id, err := idx.oidAt(i)
		if err != nil {
			return nil, err
		}
		b := id.Bytes()
		if len(b) < len(prefix) || !bytes.Equal(b[:len(prefix)], prefix) {
			continue
		}
		off, err := idx.offsetAt(i)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{OID: id, Offset: off})
	}
	return matches, nil
}

// All returns every (OID, offset) pair in ascending OID order.
func (idx *Index) All() ([]Match, error) {
	out := make([]Match, idx.numObjects)
	for i := range out {
		id, err := idx.oidAt(i)
		if err != nil {
			return nil, err
		}
		off, err := idx.offsetAt(i)
		if err != nil {
			return nil, err
		}
		out[i] = Match{OID: id, Offset: off}
	}
	return out, nil
}

// PackChecksum returns the SHA-1/SHA-256 of the associated pack file, as
// recorded in the index trailer.
func (idx *Index) PackChecksum() (hash.ID, error) {
	return idx.trailerHash(0)
}

// IndexChecksum returns the checksum of the index file's own preceding
// bytes, as recorded in the index trailer.
func (idx *Index) IndexChecksum() (hash.ID, error) {
	return idx.trailerHash(1)
}

func (idx *Index) trailerHash(which int) (hash.ID, error) {
	hashSize := int64(idx.algo.Size())
	trailerStart := idx.off64Offset + idx.off64Size
	pos := trailerStart + int64(which)*hashSize
	buf := make([]byte, hashSize)
	if _, err := idx.ra.ReadAt(buf, pos); err != nil {
		return hash.ID{}, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return hash.FromBytes(buf)
}

// sortMatches orders a Match slice by OID, the same order All returns
// and Write lays out its sorted tables in.
func sortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool { return m[i].OID.Compare(m[j].OID) < 0 })
}
