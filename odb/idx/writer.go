package idx

import (
	"fmt"
	"io"
	"sort"

	"github.com/nullpx/gitcore/hash"
)

// WriteEntry is one object's record for a freshly built index: its
// OID, the pack-file byte offset of its entry, and the CRC32 of that
// entry's on-disk (header+compressed) bytes.
type WriteEntry struct {
	OID    hash.ID
	Offset int64
	CRC32  uint32
}

// Write serializes entries into a pack index v2 file on w: the fanout
// table, the sorted OID table, parallel CRC32 and offset tables, then
// the pack checksum and this file's own trailing checksum. entries
// need not arrive pre-sorted — Write sorts its own copy by OID, same
// as sortMatches orders a read Match slice.
//
// Only the 32-bit offset table is emitted; an entry whose offset
// exceeds 2^31-1 (a pack over 2GiB) is rejected rather than spilling
// into a 64-bit overflow table, matching the "minimal pack for push"
// scope this module targets.
func Write(w io.Writer, algo hash.Algorithm, packChecksum hash.ID, entries []WriteEntry) error {
	sorted := append([]WriteEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OID.Compare(sorted[j].OID) < 0 })

	trailer := hash.New(algo)
	tw := io.MultiWriter(w, trailer)

	if _, err := tw.Write(signature[:]); err != nil {
		return err
	}
	if err := writeBE32(tw, version); err != nil {
		return err
	}

	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.OID.Bytes()[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	for _, count := range fanout {
		if err := writeBE32(tw, count); err != nil {
			return err
		}
	}

	for _, e := range sorted {
		if _, err := tw.Write(e.OID.Bytes()); err != nil {
			return err
		}
	}
	for _, e := range sorted {
		if err := writeBE32(tw, e.CRC32); err != nil {
			return err
		}
	}
	for _, e := range sorted {
		if e.Offset < 0 || e.Offset > offsetBigMask {
			return fmt.Errorf("idx: offset %d exceeds 32-bit index support", e.Offset)
		}
		if err := writeBE32(tw, uint32(e.Offset)); err != nil {
			return err
		}
	}

	if _, err := tw.Write(packChecksum.Bytes()); err != nil {
		return err
	}

	sum := trailer.Sum(nil)
	_, err := w.Write(sum)
	return err
}

func writeBE32(w io.Writer, v uint32) error {
	buf := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	_, err := w.Write(buf[:])
	return err
}
