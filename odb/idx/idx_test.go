package idx

import (
	"bytes"
	"sort"
	"testing"

	"github.com/nullpx/gitcore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIndex constructs an in-memory v2 pack index for the given OIDs
// (assigning each a distinct fake offset and CRC), optionally forcing one
// entry through the 64-bit offset table when forceBig is true.
func buildIndex(t *testing.T, ids []hash.ID, offsets []int64, forceBig bool) []byte {
	t.Helper()
	require.Equal(t, len(ids), len(offsets))

	sorted := append([]hash.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	offsetFor := make(map[hash.ID]int64, len(ids))
	for i, id := range ids {
		offsetFor[id] = offsets[i]
	}

	var buf bytes.Buffer
	buf.Write(signature[:])
	buf.Write(be32Bytes(version))

	var fanout [256]uint32
	for _, id := range sorted {
		b := id.Bytes()[0]
		for i := int(b); i < 256; i++ {
			fanout[i]++
		}
	}
	for _, v := range fanout {
		buf.Write(be32Bytes(v))
	}

	for _, id := range sorted {
		buf.Write(id.Bytes())
	}
	for range sorted {
		buf.Write(be32Bytes(0)) // CRC32, unused by these tests
	}

	var off64 []byte
	for i, id := range sorted {
		off := offsetFor[id]
		if forceBig && i == 0 {
			idx64 := uint32(len(off64) / 8)
			buf.Write(be32Bytes(offsetBigFlag | idx64))
			off64 = append(off64, be64Bytes(uint64(off))...)
			continue
		}
		buf.Write(be32Bytes(uint32(off)))
	}
	buf.Write(off64)

	buf.Write(make([]byte, hash.Size)) // pack checksum (zeroed, not verified)
	buf.Write(make([]byte, hash.Size)) // index checksum

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

func testIDs(t *testing.T) []hash.ID {
	t.Helper()
	return []hash.ID{
		hash.MustFromHex("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		hash.MustFromHex("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		hash.MustFromHex("abcabcabcabcabcabcabcabcabcabcabcabcabca"),
	}
}

func TestOpenAndFindOffset(t *testing.T) {
	ids := testIDs(t)
	offsets := []int64{100, 200, 300}
	raw := buildIndex(t, ids, offsets, false)

	idx, err := Open(bytes.NewReader(raw), int64(len(raw)), hash.SHA1)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.NumObjects())

	for i, id := range ids {
		off, ok := idx.FindOffset(id)
		require.True(t, ok)
		assert.Equal(t, offsets[i], off)
	}

	missing := hash.MustFromHex("ffffffffffffffffffffffffffffffffffffffff")
	_, ok := idx.FindOffset(missing)
	assert.False(t, ok)
}

func TestFindOffsetWithBigOffsetTable(t *testing.T) {
	ids := testIDs(t)
	offsets := []int64{1 << 33, 200, 300} // first (by sort order) forced big
	raw := buildIndex(t, ids, offsets, true)

	idx, err := Open(bytes.NewReader(raw), int64(len(raw)), hash.SHA1)
	require.NoError(t, err)

	for i, id := range ids {
		off, ok := idx.FindOffset(id)
		require.True(t, ok)
		assert.Equal(t, offsets[i], off)
	}
}

func TestFindPrefix(t *testing.T) {
	ids := []hash.ID{
		hash.MustFromHex("abcabcabcabcabcabcabcabcabcabcabcabcabca"),
		hash.MustFromHex("abc1234567890abcdef1234567890abcdef12345"),
		hash.MustFromHex("ffffffffffffffffffffffffffffffffffffffff"),
	}
	offsets := []int64{10, 20, 30}
	raw := buildIndex(t, ids, offsets, false)

	idx, err := Open(bytes.NewReader(raw), int64(len(raw)), hash.SHA1)
	require.NoError(t, err)

	matches, err := idx.FindPrefix([]byte{0xab})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = idx.FindPrefix([]byte{0xff})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, ids[2], matches[0].OID)

	matches, err = idx.FindPrefix([]byte{0x11})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAllReturnsAscendingOrder(t *testing.T) {
	ids := testIDs(t)
	offsets := []int64{1, 2, 3}
	raw := buildIndex(t, ids, offsets, false)

	idx, err := Open(bytes.NewReader(raw), int64(len(raw)), hash.SHA1)
	require.NoError(t, err)

	all, err := idx.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].OID.Compare(all[i].OID), 0)
	}
}

func TestChecksums(t *testing.T) {
	ids := testIDs(t)
	offsets := []int64{1, 2, 3}
	raw := buildIndex(t, ids, offsets, false)

	idx, err := Open(bytes.NewReader(raw), int64(len(raw)), hash.SHA1)
	require.NoError(t, err)

	packSum, err := idx.PackChecksum()
	require.NoError(t, err)
	assert.True(t, packSum.IsZero())

	idxSum, err := idx.IndexChecksum()
	require.NoError(t, err)
	assert.True(t, idxSum.IsZero())
}

func TestOpenRejectsBadSignature(t *testing.T) {
	raw := make([]byte, headerSize+fanoutSize+2*hash.Size)
	_, err := Open(bytes.NewReader(raw), int64(len(raw)), hash.SHA1)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	ids := testIDs(t)
	offsets := []int64{1, 2, 3}
	raw := buildIndex(t, ids, offsets, false)
	truncated := raw[:len(raw)-10]

	_, err := Open(bytes.NewReader(truncated), int64(len(truncated)), hash.SHA1)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}
