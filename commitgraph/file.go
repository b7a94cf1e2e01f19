package commitgraph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nullpx/gitcore/hash"
)

var (
	fileSignature = []byte("CGPH")

	// ErrMalformed is returned when the commit-graph file's header or
	// chunk table cannot be parsed.
	ErrMalformed = errors.New("commitgraph: malformed file")
	// ErrUnsupportedVersion is returned for any file format version other
	// than 1.
	ErrUnsupportedVersion = errors.New("commitgraph: unsupported version")
	// ErrUnsupportedHash is returned when the file's declared hash
	// version does not match algo passed to OpenFileIndex.
	ErrUnsupportedHash = errors.New("commitgraph: unsupported hash algorithm")

	parentNone        = uint32(0x70000000)
	parentOctopusUsed = uint32(0x80000000)
	parentOctopusMask = uint32(0x7fffffff)
	parentLast        = uint32(0x80000000)
)

const headerLen = 8 // 4-byte signature + version, hash version, chunk count, base-graph count
const chunkEntryLen = 4 + 8

// FileIndex is a read-only view over a serialized commit-graph file,
// implementing Graph.
type FileIndex struct {
	r       io.ReaderAt
	algo    hash.Algorithm
	fanout  [256]uint32
	offsets map[chunkType]int64
	hasGen2 bool
}

// OpenFileIndex parses the commit-graph file behind r, whose OIDs and
// checksum are expected to be algo-sized.
func OpenFileIndex(r io.ReaderAt, algo hash.Algorithm) (*FileIndex, error) {
	fi := &FileIndex{r: r, algo: algo, offsets: map[chunkType]int64{}}
	if err := fi.verifyHeader(); err != nil {
		return nil, err
	}
	if err := fi.readChunkTable(); err != nil {
		return nil, err
	}
	if err := fi.readFanout(); err != nil {
		return nil, err
	}
	_, fi.hasGen2 = fi.offsets[generationDataChunk]
	return fi, nil
}

func (fi *FileIndex) verifyHeader() error {
	sig := make([]byte, 4)
	if _, err := fi.r.ReadAt(sig, 0); err != nil {
		return err
	}
	if !bytes.Equal(sig, fileSignature) {
		return ErrMalformed
	}

	hdr := make([]byte, 4)
	if _, err := fi.r.ReadAt(hdr, 4); err != nil {
		return err
	}
	if hdr[0] != 1 {
		return ErrUnsupportedVersion
	}
	wantHashVersion := byte(1)
	if fi.algo == hash.SHA256 {
		wantHashVersion = 2
	}
	if hdr[1] != wantHashVersion {
		return ErrUnsupportedHash
	}
	return nil
}

func (fi *FileIndex) readChunkTable() error {
	for i := 0; ; i++ {
		entry := make([]byte, chunkEntryLen)
		if _, err := fi.r.ReadAt(entry, 8+int64(i)*chunkEntryLen); err != nil {
			return err
		}
		ct, ok := chunkTypeFromBytes(entry[:4])
		if !ok {
			continue
		}
		if ct == zeroChunk {
			break
		}
		fi.offsets[ct] = int64(getUint64(entry[4:]))
	}
	if _, ok := fi.offsets[oidFanoutChunk]; !ok {
		return fmt.Errorf("%w: missing OIDF chunk", ErrMalformed)
	}
	if _, ok := fi.offsets[oidLookupChunk]; !ok {
		return fmt.Errorf("%w: missing OIDL chunk", ErrMalformed)
	}
	if _, ok := fi.offsets[commitDataChunk]; !ok {
		return fmt.Errorf("%w: missing CDAT chunk", ErrMalformed)
	}
	return nil
}

func (fi *FileIndex) readFanout() error {
	buf := make([]byte, 256*4)
	if _, err := fi.r.ReadAt(buf, fi.offsets[oidFanoutChunk]); err != nil {
		return err
	}
	for i := 0; i < 256; i++ {
		fi.fanout[i] = getUint32(buf[i*4:])
	}
	return nil
}

// Len returns the number of commits indexed.
func (fi *FileIndex) Len() uint32 { return fi.fanout[0xff] }

// HasGenerationV2 reports whether the file carries the optional
// generation-v2 (corrected commit date) chunks.
func (fi *FileIndex) HasGenerationV2() bool { return fi.hasGen2 }

// IndexOf returns id's position in the commit-graph via fanout-narrowed
// binary search over the sorted OID lookup table.
func (fi *FileIndex) IndexOf(id hash.ID) (uint32, bool) {
	full := id.Bytes()
	size := fi.algo.Size()

	var low uint32
	first := full[0]
	if first != 0 {
		low = fi.fanout[first-1]
	}
	high := fi.fanout[first]

	oid := make([]byte, size)
	for low < high {
		mid := (low + high) / 2
		offset := fi.offsets[oidLookupChunk] + int64(mid)*int64(size)
		if _, err := fi.r.ReadAt(oid, offset); err != nil {
			return 0, false
		}
		switch bytes.Compare(full, oid) {
		case 0:
			return mid, true
		case -1:
			high = mid
		default:
			low = mid + 1
		}
	}
	return 0, false
}

// OIDAt returns the OID stored at the given commit-graph index.
func (fi *FileIndex) OIDAt(index uint32) (hash.ID, bool) {
	if index >= fi.Len() {
		return hash.ID{}, false
	}
	size := fi.algo.Size()
	buf := make([]byte, size)
	offset := fi.offsets[oidLookupChunk] + int64(index)*int64(size)
	if _, err := fi.r.ReadAt(buf, offset); err != nil {
		return hash.ID{}, false
	}
	id, err := hash.FromBytes(buf)
	if err != nil {
		return hash.ID{}, false
	}
	return id, true
}

func (fi *FileIndex) hashAt(offset int64) (hash.ID, error) {
	buf := make([]byte, fi.algo.Size())
	if _, err := fi.r.ReadAt(buf, offset); err != nil {
		return hash.ID{}, err
	}
	return hash.FromBytes(buf)
}

// CommitDataAt returns the decoded commit metadata at the given
// commit-graph index, resolving octopus-merge extra parents and, if
// present, generation-v2 data.
func (fi *FileIndex) CommitDataAt(index uint32) (*CommitData, bool) {
	if index >= fi.Len() {
		return nil, false
	}
	size := fi.algo.Size()
	entryLen := int64(size + 16)
	offset := fi.offsets[commitDataChunk] + int64(index)*entryLen

	treeOID, err := fi.hashAt(offset)
	if err != nil {
		return nil, false
	}

	rest := make([]byte, 16)
	if _, err := fi.r.ReadAt(rest, offset+int64(size)); err != nil {
		return nil, false
	}
	parent1 := getUint32(rest[0:4])
	parent2 := getUint32(rest[4:8])
	genAndTime := getUint64(rest[8:16])

	var parentIndexes []uint32
	switch {
	case parent2&parentOctopusUsed == parentOctopusUsed:
		parentIndexes = []uint32{parent1 & parentOctopusMask}
		edgeOffset := fi.offsets[extraEdgeListChunk] + 4*int64(parent2&parentOctopusMask)
		buf := make([]byte, 4)
		for {
			if _, err := fi.r.ReadAt(buf, edgeOffset); err != nil {
				return nil, false
			}
			v := getUint32(buf)
			edgeOffset += 4
			parentIndexes = append(parentIndexes, v&parentOctopusMask)
			if v&parentLast == parentLast {
				break
			}
		}
	case parent2 != parentNone:
		parentIndexes = []uint32{parent1 & parentOctopusMask, parent2 & parentOctopusMask}
	case parent1 != parentNone:
		parentIndexes = []uint32{parent1 & parentOctopusMask}
	}

	parentOIDs := make([]hash.ID, 0, len(parentIndexes))
	for _, pi := range parentIndexes {
		oid, ok := fi.OIDAt(pi)
		if !ok {
			return nil, false
		}
		parentOIDs = append(parentOIDs, oid)
	}

	data := &CommitData{
		TreeOID:    treeOID,
		ParentOIDs: parentOIDs,
		Generation: genAndTime >> 34,
		When:       time.Unix(int64(genAndTime&0x3FFFFFFFF), 0),
	}

	if fi.hasGen2 {
		gbuf := make([]byte, 4)
		gOffset := fi.offsets[generationDataChunk] + int64(index)*4
		if _, err := fi.r.ReadAt(gbuf, gOffset); err == nil {
			g := getUint32(gbuf)
			if g&0x80000000 != 0 {
				obuf := make([]byte, 8)
				oOffset := fi.offsets[generationOverflowChunk] + int64(g&0x7fffffff)*8
				if _, err := fi.r.ReadAt(obuf, oOffset); err == nil {
					data.GenerationV2 = getUint64(obuf) + uint64(data.When.Unix())
				}
			} else if g != 0 {
				data.GenerationV2 = uint64(g) + uint64(data.When.Unix())
			}
		}
	}

	return data, true
}
