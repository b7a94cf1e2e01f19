package pack

import (
	"bytes"
	"compress/zlib"
	"hash/crc32"
	"io"

	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

// Entry is one object to include in a pack being written. OID is
// supplied by the caller (the ODB already knows it — the loose store
// names its files by OID) rather than recomputed here.
type Entry struct {
	OID     hash.ID
	Type    object.Type
	Payload []byte
}

// WrittenEntry records where one Entry landed in the pack WriteFull
// just produced, giving the caller everything needed to build a
// matching index.
type WrittenEntry struct {
	OID    hash.ID
	Offset int64
	CRC32  uint32
}

// WriteFull writes entries to w as a full-object-only pack: the
// 12-byte PACK header, then for each entry its variable-length
// type+size header followed by zlib(payload), then a trailing checksum
// over every byte written before it.
//
// This is the minimum pack a writer may emit: Git's own format allows
// an all-full-objects pack with no delta compression at all, leaving
// delta selection as a space optimization a receiver's repack can
// always redo later. WriteFull does not attempt delta compression —
// ComputeDelta/ApplyDelta remain available for callers that want to
// shrink a pack themselves before writing it.
func WriteFull(w io.Writer, algo hash.Algorithm, entries []Entry) ([]WrittenEntry, hash.ID, error) {
	trailer := hash.New(algo)
	tw := io.MultiWriter(w, trailer)

	var hdr [headerSize]byte
	copy(hdr[0:4], signature[:])
	putBE32(hdr[4:8], version)
	putBE32(hdr[8:12], uint32(len(entries)))
	if _, err := tw.Write(hdr[:]); err != nil {
		return nil, hash.ID{}, err
	}

	offset := int64(headerSize)
	written := make([]WrittenEntry, len(entries))
	for i, e := range entries {
		typ, err := entryTypeFor(e.Type)
		if err != nil {
			return nil, hash.ID{}, err
		}

		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		if _, err := zw.Write(e.Payload); err != nil {
			return nil, hash.ID{}, err
		}
		if err := zw.Close(); err != nil {
			return nil, hash.ID{}, err
		}

		entryHdr := writeEntryHeader(typ, int64(len(e.Payload)))

		crc := crc32.NewIEEE()
		entryW := io.MultiWriter(tw, crc)
		if _, err := entryW.Write(entryHdr); err != nil {
			return nil, hash.ID{}, err
		}
		if _, err := entryW.Write(compressed.Bytes()); err != nil {
			return nil, hash.ID{}, err
		}

		written[i] = WrittenEntry{OID: e.OID, Offset: offset, CRC32: crc.Sum32()}
		offset += int64(len(entryHdr)) + int64(compressed.Len())
	}

	sum := trailer.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return nil, hash.ID{}, err
	}
	packID, err := hash.FromBytes(sum)
	if err != nil {
		return nil, hash.ID{}, err
	}
	return written, packID, nil
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
