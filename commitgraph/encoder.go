package commitgraph

import (
	"io"
	"sort"

	"github.com/nullpx/gitcore/hash"
)

// Entry is one commit's worth of metadata to bake into a commit-graph
// file, keyed by the commit's own OID.
type Entry struct {
	OID  hash.ID
	Data CommitData
}

// Write serializes entries into a commit-graph file on w. Entries whose
// CommitData.GenerationV2 is nonzero for at least one entry causes the
// whole file to carry the generation-v2 chunks (GDA2/GDO2); otherwise
// they're omitted — a reader with no GDA2 chunk simply never populates
// CommitData.GenerationV2, so an absent chunk never affects correctness.
func Write(w io.Writer, algo hash.Algorithm, entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OID.Compare(sorted[j].OID) < 0 })

	index := make(map[hash.ID]uint32, len(sorted))
	for i, e := range sorted {
		index[e.OID] = uint32(i)
	}

	hasGen2 := false
	var extraEdgeCount int
	for _, e := range sorted {
		if len(e.Data.ParentOIDs) > 2 {
			extraEdgeCount += len(e.Data.ParentOIDs) - 1
		}
		if e.Data.GenerationV2 != 0 {
			hasGen2 = true
		}
	}

	size := algo.Size()
	chunkSigs := [][]byte{oidFanoutChunk.signature(), oidLookupChunk.signature(), commitDataChunk.signature()}
	chunkSizes := []int64{256 * 4, int64(len(sorted)) * int64(size), int64(len(sorted)) * int64(size+16)}
	if extraEdgeCount > 0 {
		chunkSigs = append(chunkSigs, extraEdgeListChunk.signature())
		chunkSizes = append(chunkSizes, int64(extraEdgeCount)*4)
	}
	var overflow []uint64
	if hasGen2 {
		for _, e := range sorted {
			if e.Data.GenerationV2Offset() > 0xffffffff {
				overflow = append(overflow, 0) // placeholder, filled during encode
			}
		}
		chunkSigs = append(chunkSigs, generationDataChunk.signature())
		chunkSizes = append(chunkSizes, int64(len(sorted))*4)
		if len(overflow) > 0 {
			chunkSigs = append(chunkSigs, generationOverflowChunk.signature())
			chunkSizes = append(chunkSizes, int64(len(overflow))*8)
		}
	}

	if err := writeHeader(w, algo, len(chunkSigs)); err != nil {
		return err
	}
	if err := writeChunkTable(w, chunkSigs, chunkSizes); err != nil {
		return err
	}
	if err := writeFanout(w, sorted); err != nil {
		return err
	}
	if err := writeOIDLookup(w, sorted); err != nil {
		return err
	}
	extraEdges, genData, err := writeCommitData(w, sorted, index)
	if err != nil {
		return err
	}
	if err := writeExtraEdges(w, extraEdges); err != nil {
		return err
	}
	if hasGen2 {
		if err := writeGenerationData(w, genData); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, algo hash.Algorithm, chunkCount int) error {
	if _, err := w.Write(fileSignature); err != nil {
		return err
	}
	hashVersion := byte(1)
	if algo == hash.SHA256 {
		hashVersion = 2
	}
	_, err := w.Write([]byte{1, hashVersion, byte(chunkCount), 0})
	return err
}

func writeChunkTable(w io.Writer, sigs [][]byte, sizes []int64) error {
	offset := int64(4+4) + int64(len(sigs)+1)*chunkEntryLen
	buf := make([]byte, 8)
	for i, sig := range sigs {
		if _, err := w.Write(sig); err != nil {
			return err
		}
		putUint64(buf, uint64(offset))
		if _, err := w.Write(buf); err != nil {
			return err
		}
		offset += sizes[i]
	}
	if _, err := w.Write(zeroChunk.signature()); err != nil {
		return err
	}
	putUint64(buf, uint64(offset))
	_, err := w.Write(buf)
	return err
}

func writeFanout(w io.Writer, sorted []Entry) error {
	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.OID.Bytes()[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	buf := make([]byte, 4)
	for i := 0; i < 256; i++ {
		putUint32(buf, fanout[i])
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writeOIDLookup(w io.Writer, sorted []Entry) error {
	for _, e := range sorted {
		if _, err := w.Write(e.OID.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func writeCommitData(w io.Writer, sorted []Entry, index map[hash.ID]uint32) (extraEdges []uint32, genData []uint64, err error) {
	buf := make([]byte, 8)
	for _, e := range sorted {
		if _, err = w.Write(e.Data.TreeOID.Bytes()); err != nil {
			return
		}

		var p1, p2 uint32
		switch len(e.Data.ParentOIDs) {
		case 0:
			p1, p2 = parentNone, parentNone
		case 1:
			p1, p2 = index[e.Data.ParentOIDs[0]], parentNone
		case 2:
			p1, p2 = index[e.Data.ParentOIDs[0]], index[e.Data.ParentOIDs[1]]
		default:
			p1 = index[e.Data.ParentOIDs[0]]
			p2 = uint32(len(extraEdges)) | parentOctopusUsed
			for _, poid := range e.Data.ParentOIDs[1:] {
				extraEdges = append(extraEdges, index[poid])
			}
			extraEdges[len(extraEdges)-1] |= parentLast
		}

		b4 := buf[:4]
		putUint32(b4, p1)
		if _, err = w.Write(b4); err != nil {
			return
		}
		putUint32(b4, p2)
		if _, err = w.Write(b4); err != nil {
			return
		}

		unixTime := uint64(e.Data.When.Unix()) | (e.Data.Generation << 34)
		putUint64(buf, unixTime)
		if _, err = w.Write(buf); err != nil {
			return
		}

		genData = append(genData, e.Data.GenerationV2Offset())
	}
	return
}

func writeExtraEdges(w io.Writer, edges []uint32) error {
	buf := make([]byte, 4)
	for _, v := range edges {
		putUint32(buf, v)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writeGenerationData(w io.Writer, genData []uint64) error {
	var overflow []uint64
	buf4 := make([]byte, 4)
	for _, v := range genData {
		if v > 0xffffffff {
			putUint32(buf4, uint32(len(overflow))|0x80000000)
			overflow = append(overflow, v)
		} else {
			putUint32(buf4, uint32(v))
		}
		if _, err := w.Write(buf4); err != nil {
			return err
		}
	}
	if len(overflow) == 0 {
		return nil
	}
	buf8 := make([]byte, 8)
	for _, v := range overflow {
		putUint64(buf8, v)
		if _, err := w.Write(buf8); err != nil {
			return err
		}
	}
	return nil
}
