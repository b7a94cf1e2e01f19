// Package pack implements Git's packfile wire format: the PACK container,
// its two delta encodings (OFS_DELTA, REF_DELTA), delta application and
// computation, and pack writing.
//
// Grounded on go-git's plumbing/format/packfile (scanner.go, patch_delta.go,
// diff_delta.go for the instruction-stream shape) and
// original_source/crates/git-pack/src/pack.rs for the iterative
// (non-recursive) delta-chain resolution strategy and the cross-pack
// resolver callback that breaks the packfile-ODB dependency cycle.
package pack

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
	"github.com/nullpx/gitcore/odb/idx"
)

var signature = [4]byte{'P', 'A', 'C', 'K'}

const (
	version         = 2
	headerSize      = 12
	checksumSize    = 20 // SHA-1; SHA-256 packs use a 32-byte trailer
	defaultMaxChain = 50
)

// MaxDeltaChainDepth bounds delta-chain resolution depth. Exported so
// callers needing a tighter bound (or the ODB's error message) can
// reference the same constant.
var MaxDeltaChainDepth = defaultMaxChain

// ErrCorruptPack is returned for a malformed pack header or entry.
var ErrCorruptPack = errors.New("pack: corrupt packfile")

// ErrDeltaChainTooDeep is returned when resolving an entry would exceed
// MaxDeltaChainDepth.
var ErrDeltaChainTooDeep = errors.New("pack: delta chain too deep")

// ErrMissingBase is returned when a REF_DELTA's base OID cannot be found
// in this pack or via the external resolver.
var ErrMissingBase = errors.New("pack: missing delta base object")

// Resolver looks up an object by ID outside of the current pack:
// cross-pack REF_DELTA resolution against other open packs, loose
// objects, or alternates. It returns ok=false if the object cannot be
// found anywhere.
type Resolver func(id hash.ID) (typ object.Type, payload []byte, ok bool)

// Pack is an opened packfile paired with its index, supporting random
// access by OID or by byte offset.
type Pack struct {
	ra         io.ReaderAt
	idx        *idx.Index
	numObjects uint32
	algo       hash.Algorithm
}

// Open parses a pack's 12-byte header and pairs it with an already-parsed
// index (callers typically load the matching .idx via the idx package).
func Open(ra io.ReaderAt, index *idx.Index, algo hash.Algorithm) (*Pack, error) {
	if algo == 0 {
		algo = hash.SHA1
	}
	var hdr [headerSize]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPack, err)
	}
	if !bytes.Equal(hdr[0:4], signature[:]) {
		return nil, fmt.Errorf("%w: bad signature", ErrCorruptPack)
	}
	v := be32(hdr[4:8])
	if v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptPack, v)
	}
	count := be32(hdr[8:12])
	if index != nil && uint32(index.NumObjects()) != count {
		return nil, fmt.Errorf("%w: pack has %d objects but index has %d", ErrCorruptPack, count, index.NumObjects())
	}
	return &Pack{ra: ra, idx: index, numObjects: count, algo: algo}, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// NumObjects returns the object count recorded in the pack header.
func (p *Pack) NumObjects() uint32 { return p.numObjects }

// Index returns the pack's associated index.
func (p *Pack) Index() *idx.Index { return p.idx }

// Contains reports whether id is present in this pack's index.
func (p *Pack) Contains(id hash.ID) bool {
	_, ok := p.idx.FindOffset(id)
	return ok
}

// ReadObject looks up id via the index and fully resolves it, including
// any delta chain. resolver is consulted for REF_DELTA bases absent from
// this pack; pass nil if cross-pack resolution is not needed.
func (p *Pack) ReadObject(id hash.ID, resolver Resolver) (object.Type, []byte, bool, error) {
	offset, ok := p.idx.FindOffset(id)
	if !ok {
		return 0, nil, false, nil
	}
	typ, payload, err := p.ReadAtOffset(offset, resolver)
	return typ, payload, true, err
}

// chainLink is one entry along a delta chain awaiting the base object's
// resolution, recorded innermost (closest to the final target) first.
type chainLink struct {
	deltaType entryType
	delta     []byte
	baseOID   hash.ID // set only for REF_DELTA
}

// ReadAtOffset resolves the object whose entry begins at offset,
// iteratively walking OFS_DELTA/REF_DELTA links down to a non-delta base
// and then folding the recorded deltas back outermost-first, matching
// git-pack's iterative (non-recursive) design so chain depth cannot
// overflow the call stack.
func (p *Pack) ReadAtOffset(offset int64, resolver Resolver) (object.Type, []byte, error) {
	var chain []chainLink
	cur := offset

	for depth := 0; ; depth++ {
		if depth >= MaxDeltaChainDepth {
			return 0, nil, fmt.Errorf("%w: offset %d", ErrDeltaChainTooDeep, offset)
		}

		typ, rawSize, contentOffset, err := p.readHeaderAt(cur)
		if err != nil {
			return 0, nil, err
		}

		switch {
		case typ == entryOfsDelta:
			br := p.byteReaderAt(contentOffset)
			negOffset, err := readOfsDeltaOffset(br)
			if err != nil {
				return 0, nil, err
			}
			deltaStart := br.pos
			delta, err := p.inflateAt(deltaStart, rawSize)
			if err != nil {
				return 0, nil, err
			}
			chain = append(chain, chainLink{deltaType: typ, delta: delta})
			cur -= negOffset

		case typ == entryRefDelta:
			var oidBuf [32]byte
			n := p.algo.Size()
			if _, err := p.ra.ReadAt(oidBuf[:n], contentOffset); err != nil {
				return 0, nil, fmt.Errorf("%w: %v", ErrCorruptPack, err)
			}
			baseOID, err := hash.FromBytes(oidBuf[:n])
			if err != nil {
				return 0, nil, err
			}
			delta, err := p.inflateAt(contentOffset+int64(n), rawSize)
			if err != nil {
				return 0, nil, err
			}
			chain = append(chain, chainLink{deltaType: typ, delta: delta, baseOID: baseOID})

			if baseOffset, ok := p.idx.FindOffset(baseOID); ok {
				cur = baseOffset
				continue
			}
			if resolver == nil {
				return 0, nil, fmt.Errorf("%w: %s", ErrMissingBase, baseOID)
			}
			baseType, baseData, ok := resolver(baseOID)
			if !ok {
				return 0, nil, fmt.Errorf("%w: %s", ErrMissingBase, baseOID)
			}
			return p.fold(baseType, baseData, chain)

		default:
			payload, err := p.inflateAt(contentOffset, rawSize)
			if err != nil {
				return 0, nil, err
			}
			return p.fold(typ.objectType(), payload, chain)
		}
	}
}

// fold applies the recorded delta chain to base starting from
// chain[len-1] (recorded last during the walk down, its base is the
// non-delta object) and ending with chain[0] (the requested entry's own
// delta).
func (p *Pack) fold(baseType object.Type, base []byte, chain []chainLink) (object.Type, []byte, error) {
	data := base
	for i := len(chain) - 1; i >= 0; i-- {
		next, err := ApplyDelta(data, chain[i].delta)
		if err != nil {
			return 0, nil, err
		}
		data = next
	}
	return baseType, data, nil
}

// readHeaderAt reads the entry-header varint at offset and returns the
// entry type, the declared (uncompressed) size, and the offset of the
// bytes immediately following the header (where OFS/REF delta base info,
// if any, or the zlib stream, begins).
func (p *Pack) readHeaderAt(offset int64) (entryType, int64, int64, error) {
	br := p.byteReaderAt(offset)
	typ, size, err := readEntryHeader(br)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrCorruptPack, err)
	}
	return typ, size, br.pos, nil
}

// inflateAt zlib-inflates the stream starting at offset, expecting
// expectedSize decompressed bytes.
func (p *Pack) inflateAt(offset int64, expectedSize int64) ([]byte, error) {
	sr := io.NewSectionReader(p.ra, offset, 1<<62-offset)
	zr, err := zlib.NewReader(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPack, err)
	}
	defer zr.Close()

	out := make([]byte, expectedSize)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: truncated entry at %d: %v", ErrCorruptPack, offset, err)
	}
	return out, nil
}

// offsetByteReader reads one byte at a time directly from a ReaderAt,
// without bufio's read-ahead, so the caller can recover the exact
// absolute offset immediately following a variable-length field (bufio
// would over-read past it into its internal buffer).
type offsetByteReader struct {
	ra  io.ReaderAt
	pos int64
}

func (p *Pack) byteReaderAt(offset int64) *offsetByteReader {
	return &offsetByteReader{ra: p.ra, pos: offset}
}

func (b *offsetByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := b.ra.ReadAt(buf[:], b.pos); err != nil {
		return 0, err
	}
	b.pos++
	return buf[0], nil
}
