package midx

import (
	"bytes"
	"sort"
	"testing"

	"github.com/nullpx/gitcore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type midxEntry struct {
	id     hash.ID
	pack   uint32
	offset int64
}

// buildMidx constructs an in-memory MIDX file for the given entries and
// pack names, mirroring the layout original_source's midx.rs test helper
// (build_test_midx) produces: PNAM, OIDF, OIDL, OOFF chunks, no LOFF.
func buildMidx(t *testing.T, entries []midxEntry, packNames []string) []byte {
	t.Helper()
	sorted := append([]midxEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id.Compare(sorted[j].id) < 0 })

	var pnam bytes.Buffer
	for _, n := range packNames {
		pnam.WriteString(n)
		pnam.WriteByte(0)
	}
	for pnam.Len()%4 != 0 {
		pnam.WriteByte(0)
	}

	var fanout [256]uint32
	for _, e := range sorted {
		b := e.id.Bytes()[0]
		for i := int(b); i < 256; i++ {
			fanout[i]++
		}
	}
	var fanoutBuf bytes.Buffer
	for _, v := range fanout {
		fanoutBuf.Write(be32Bytes(v))
	}

	var oidBuf bytes.Buffer
	for _, e := range sorted {
		oidBuf.Write(e.id.Bytes())
	}

	var offBuf bytes.Buffer
	for _, e := range sorted {
		offBuf.Write(be32Bytes(e.pack))
		offBuf.Write(be32Bytes(uint32(e.offset)))
	}

	const numChunks = 4
	chunksStart := int64(headerSize + (numChunks+1)*chunkTableEntrySize)
	pnamStart := chunksStart
	fanoutStart := pnamStart + int64(pnam.Len())
	oidStart := fanoutStart + int64(fanoutBuf.Len())
	offStart := oidStart + int64(oidBuf.Len())
	endOffset := offStart + int64(offBuf.Len())

	var buf bytes.Buffer
	buf.Write(signature[:])
	buf.WriteByte(version)
	buf.WriteByte(1) // OID version: SHA-1
	buf.WriteByte(numChunks)
	buf.WriteByte(0) // reserved
	buf.Write(be32Bytes(uint32(len(packNames))))

	writeChunkEntry := func(id ChunkType, offset int64) {
		buf.Write(be32Bytes(uint32(id)))
		buf.Write(be64Bytes(uint64(offset)))
	}
	writeChunkEntry(chunkPackNames, pnamStart)
	writeChunkEntry(chunkOIDFanout, fanoutStart)
	writeChunkEntry(chunkOIDLookup, oidStart)
	writeChunkEntry(chunkObjectOffsets, offStart)
	writeChunkEntry(chunkTerminator, endOffset)

	buf.Write(pnam.Bytes())
	buf.Write(fanoutBuf.Bytes())
	buf.Write(oidBuf.Bytes())
	buf.Write(offBuf.Bytes())
	buf.Write(make([]byte, hash.Size)) // trailing checksum, unused by Open

	return buf.Bytes()
}

func be32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func be64Bytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func makeOID(t *testing.T, firstByte, lastByte byte) hash.ID {
	t.Helper()
	var b [hash.Size]byte
	b[0] = firstByte
	b[hash.Size-1] = lastByte
	id, err := hash.FromBytes(b[:])
	require.NoError(t, err)
	return id
}

func TestOpenAndLookup(t *testing.T) {
	oid1 := makeOID(t, 0x10, 0x01)
	oid2 := makeOID(t, 0x20, 0x02)

	raw := buildMidx(t, []midxEntry{
		{id: oid1, pack: 0, offset: 100},
		{id: oid2, pack: 1, offset: 200},
	}, []string{"pack-aaa.pack", "pack-bbb.pack"})

	m, err := Open(bytes.NewReader(raw), hash.SHA1)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumObjects())
	assert.Equal(t, 2, m.NumPacks())
	assert.Equal(t, []string{"pack-aaa.pack", "pack-bbb.pack"}, m.PackNames())

	e, ok := m.Lookup(oid1)
	require.True(t, ok)
	assert.Equal(t, uint32(0), e.PackIndex)
	assert.Equal(t, int64(100), e.Offset)

	e, ok = m.Lookup(oid2)
	require.True(t, ok)
	assert.Equal(t, uint32(1), e.PackIndex)
	assert.Equal(t, int64(200), e.Offset)

	_, ok = m.Lookup(makeOID(t, 0x99, 0x00))
	assert.False(t, ok)
}

func TestEntriesAscendingOrder(t *testing.T) {
	entries := []midxEntry{
		{id: makeOID(t, 0x01, 0x01), pack: 0, offset: 10},
		{id: makeOID(t, 0x02, 0x01), pack: 0, offset: 20},
		{id: makeOID(t, 0xff, 0x01), pack: 1, offset: 30},
	}
	raw := buildMidx(t, entries, []string{"pack-a.pack", "pack-b.pack"})

	m, err := Open(bytes.NewReader(raw), hash.SHA1)
	require.NoError(t, err)

	got, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, entries[0].id, got[0].OID)
	assert.Equal(t, entries[2].id, got[2].OID)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].OID.Compare(got[i].OID), 0)
	}
}

func TestPackNameIndex(t *testing.T) {
	raw := buildMidx(t, []midxEntry{
		{id: makeOID(t, 0x01, 0x01), pack: 0, offset: 1},
	}, []string{"pack-a.pack", "pack-b.pack"})

	m, err := Open(bytes.NewReader(raw), hash.SHA1)
	require.NoError(t, err)

	idx, ok := m.PackNameIndex("pack-b.pack")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = m.PackNameIndex("pack-z.pack")
	assert.False(t, ok)
}

func TestOpenRejectsBadSignature(t *testing.T) {
	raw := make([]byte, headerSize)
	_, err := Open(bytes.NewReader(raw), hash.SHA1)
	assert.ErrorIs(t, err, ErrCorruptMidx)
}
