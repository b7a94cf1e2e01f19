package pack

import (
	"fmt"
	"io"

	"github.com/nullpx/gitcore/object"
)

const (
	maskContinue = 0x80
	maskType     = 0x70
	typeShift    = 4
	maskFirstLen = 0x0f
	maskPayload  = 0x7f
)

// entryType is the 3-bit type tag carried in a pack entry header:
// 1=commit, 2=tree, 3=blob, 4=tag, 6=OFS_DELTA, 7=REF_DELTA.
type entryType uint8

const (
	entryCommit   entryType = 1
	entryTree     entryType = 2
	entryBlob     entryType = 3
	entryTag      entryType = 4
	entryOfsDelta entryType = 6
	entryRefDelta entryType = 7
)

func (t entryType) objectType() object.Type {
	switch t {
	case entryCommit:
		return object.CommitType
	case entryTree:
		return object.TreeType
	case entryBlob:
		return object.BlobType
	case entryTag:
		return object.TagType
	default:
		return object.InvalidType
	}
}

func entryTypeFor(t object.Type) (entryType, error) {
	switch t {
	case object.CommitType:
		return entryCommit, nil
	case object.TreeType:
		return entryTree, nil
	case object.BlobType:
		return entryBlob, nil
	case object.TagType:
		return entryTag, nil
	default:
		return 0, fmt.Errorf("pack: cannot store object type %v in a pack entry", t)
	}
}

func (t entryType) isDelta() bool {
	return t == entryOfsDelta || t == entryRefDelta
}

func (t entryType) valid() bool {
	switch t {
	case entryCommit, entryTree, entryBlob, entryTag, entryOfsDelta, entryRefDelta:
		return true
	default:
		return false
	}
}

// readEntryHeader reads the variable-length "tttt_ssss" entry header:
// the first byte's high bit continues, low 4 bits seed the size, type is
// the 3 bits above them; continuation bytes each contribute 7 more size
// bits, little-endian.
func readEntryHeader(r io.ByteReader) (entryType, int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typ := entryType((b & maskType) >> typeShift)
	if !typ.valid() {
		return 0, 0, fmt.Errorf("pack: invalid entry type %d", (b&maskType)>>typeShift)
	}
	size := int64(b & maskFirstLen)
	shift := uint(4)
	for b&maskContinue != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= int64(b&maskPayload) << shift
		shift += 7
	}
	return typ, size, nil
}

// writeEntryHeader is the inverse of readEntryHeader.
func writeEntryHeader(typ entryType, size int64) []byte {
	first := byte(typ) << typeShift
	rest := size >> 4
	b := byte(size) & maskFirstLen
	if rest > 0 {
		first |= maskContinue
	}
	out := []byte{first | b}
	for rest > 0 {
		b = byte(rest) & maskPayload
		rest >>= 7
		if rest > 0 {
			b |= maskContinue
		}
		out = append(out, b)
	}
	return out
}

// readOfsDeltaOffset reads the negative base offset following an
// OFS_DELTA entry header: each continuation byte adds (byte&0x7f)+1 into
// the accumulating value before the next 7-bit shift, matching Git's
// offset-delta varint quirk which avoids two encodings of the same
// value.
func readOfsDeltaOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	off := int64(b & maskPayload)
	for b&maskContinue != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		off = ((off + 1) << 7) | int64(b&maskPayload)
	}
	return off, nil
}

// writeOfsDeltaOffset is the inverse of readOfsDeltaOffset.
func writeOfsDeltaOffset(off int64) []byte {
	var stack []byte
	stack = append(stack, byte(off&maskPayload))
	off >>= 7
	for off > 0 {
		off--
		stack = append(stack, byte(off&maskPayload)|maskContinue)
		off >>= 7
	}
	// Reverse: the varint is written most-significant byte first for
	// OFS_DELTA offsets (unlike the size varint, which is least-significant
	// first).
	out := make([]byte, len(stack))
	for i, b := range stack {
		out[len(stack)-1-i] = b
	}
	return out
}
