package odb

import (
	"bytes"
	"compress/zlib"
	"sort"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- synthetic pack/index fixtures ---
//
// odb_test builds its own minimal pack+index fixtures (distinct from
// odb/pack's and odb/idx's own, more thorough, fixtures) because package
// boundaries mean unexported encoder helpers can't be shared; this mirrors
// the same hand-built-binary-fixture convention used throughout the ODB
// packages. Fixtures here stick to full objects plus single-instruction
// REF_DELTA entries, since delta-chain edge cases are odb/pack's concern,
// not odb's.

type rawObj struct {
	id      hash.ID
	typ     object.Type
	payload []byte
	baseID  hash.ID // REF_DELTA only: written between header and zlib stream
}

func blobObj(payload []byte) rawObj {
	id := hash.Sum(hash.SHA1, object.BlobType.String(), payload)
	return rawObj{id: id, typ: object.BlobType, payload: payload}
}

// refDeltaObj builds a REF_DELTA entry against baseID using a single
// literal-insert instruction (no copy ops), valid only for targets of at
// most 127 bytes.
func refDeltaObj(id, baseID hash.ID, baseSize int, target []byte) rawObj {
	if len(target) > 127 {
		panic("refDeltaObj: target too large for a single literal instruction")
	}
	var buf bytes.Buffer
	buf.Write(encodeDeltaVarint(uint64(baseSize)))
	buf.Write(encodeDeltaVarint(uint64(len(target))))
	buf.WriteByte(byte(len(target)))
	buf.Write(target)
	return rawObj{id: id, typ: object.RefDeltaType, payload: buf.Bytes(), baseID: baseID}
}

func encodeDeltaVarint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func writeEntryHeaderVarint(buf *bytes.Buffer, typ int, size int64) {
	b := byte(typ)<<4 | byte(size&0x0f)
	size >>= 4
	for size > 0 {
		buf.WriteByte(b | 0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	buf.WriteByte(b)
}

func entryTypeFor(t object.Type) int {
	switch t {
	case object.RefDeltaType:
		return 7
	case object.OFSDeltaType:
		return 6
	default:
		return int(t)
	}
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// writePackFile writes a minimal .pack + matching v2 .idx under
// <root>/objects/pack/<name>{.pack,.idx}, indexed under each object's
// stated id (which need not be the real hash of non-blob/crafted
// fixtures — pack/idx never validate that correspondence, only the ODB
// layer's callers do, via object.Decode).
func writePackFile(t *testing.T, fs billy.Filesystem, root, name string, objs []rawObj) {
	t.Helper()

	type offsetEntry struct {
		id     hash.ID
		offset int64
	}

	var body bytes.Buffer
	var entries []offsetEntry
	for _, o := range objs {
		offset := int64(body.Len())
		writeEntryHeaderVarint(&body, entryTypeFor(o.typ), int64(len(o.payload)))
		if o.typ == object.RefDeltaType {
			body.Write(o.baseID.Bytes())
		}
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		_, err := zw.Write(o.payload)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		body.Write(zbuf.Bytes())
		entries = append(entries, offsetEntry{id: o.id, offset: offset})
	}

	var pack bytes.Buffer
	pack.WriteString("PACK")
	pack.Write(be32(2))
	pack.Write(be32(uint32(len(objs))))
	pack.Write(body.Bytes())
	pack.Write(make([]byte, hash.Size)) // checksum, unvalidated by Open

	sort.Slice(entries, func(i, j int) bool { return entries[i].id.Compare(entries[j].id) < 0 })

	var fanout [256]uint32
	for _, e := range entries {
		b := e.id.Bytes()[0]
		for i := int(b); i < 256; i++ {
			fanout[i]++
		}
	}

	var idxBuf bytes.Buffer
	idxBuf.Write([]byte{0xff, 't', 'O', 'c'})
	idxBuf.Write(be32(2))
	for _, v := range fanout {
		idxBuf.Write(be32(v))
	}
	for _, e := range entries {
		idxBuf.Write(e.id.Bytes())
	}
	for range entries {
		idxBuf.Write(be32(0)) // CRC32, unused by these tests
	}
	for _, e := range entries {
		idxBuf.Write(be32(uint32(e.offset)))
	}
	idxBuf.Write(make([]byte, hash.Size)) // pack checksum, unvalidated
	idxBuf.Write(make([]byte, hash.Size)) // index checksum, unvalidated

	packDirPath := fs.Join(root, "objects", "pack")
	require.NoError(t, fs.MkdirAll(packDirPath, 0o755))
	writeFile(t, fs, fs.Join(packDirPath, name+".pack"), pack.Bytes())
	writeFile(t, fs, fs.Join(packDirPath, name+".idx"), idxBuf.Bytes())
}

func writeFile(t *testing.T, fs billy.Filesystem, path string, data []byte) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func craftID(t *testing.T, b0, b1, b2 byte) hash.ID {
	t.Helper()
	var raw [hash.Size]byte
	raw[0], raw[1], raw[2] = b0, b1, b2
	id, err := hash.FromBytes(raw[:])
	require.NoError(t, err)
	return id
}

// --- tests ---

func TestReadFromLoose(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	id, err := db.Write(object.BlobType, []byte("loose payload"))
	require.NoError(t, err)

	obj, err := db.Read(id)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, obj.Type)
	assert.Equal(t, []byte("loose payload"), obj.Blob.Content)
}

func TestReadFromPack(t *testing.T) {
	fs := memfs.New()
	o := blobObj([]byte("packed payload"))
	writePackFile(t, fs, "", "pack-a", []rawObj{o})

	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	typ, payload, err := db.ReadRaw(o.id)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, o.payload, payload)
}

func TestReadMissingReturnsMissingObjectError(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	_, err = db.Read(hash.MustFromHex("0123456789abcdef0123456789abcdef01234567"))
	var missing *MissingObjectError
	assert.ErrorAs(t, err, &missing)
}

func TestContainsAcrossLooseAndPacked(t *testing.T) {
	fs := memfs.New()
	packed := blobObj([]byte("in a pack"))
	writePackFile(t, fs, "", "pack-a", []rawObj{packed})

	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)
	looseID, err := db.Write(object.BlobType, []byte("loose one"))
	require.NoError(t, err)

	assert.True(t, db.Contains(looseID))
	assert.True(t, db.Contains(packed.id))
	assert.False(t, db.Contains(hash.MustFromHex("ffffffffffffffffffffffffffffffffffffffff")))
}

func TestCrossPackRefDeltaResolvedViaResolver(t *testing.T) {
	fs := memfs.New()

	base := blobObj([]byte("the quick brown fox"))
	writePackFile(t, fs, "", "pack-base", []rawObj{base})

	deltaID := craftID(t, 0xaa, 0xbb, 0xcc)
	target := []byte("replacement")
	delta := refDeltaObj(deltaID, base.id, len(base.payload), target)
	writePackFile(t, fs, "", "pack-delta", []rawObj{delta})

	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	typ, payload, err := db.ReadRaw(deltaID)
	require.NoError(t, err)
	assert.Equal(t, object.BlobType, typ)
	assert.Equal(t, target, payload)
}

func TestResolvePrefixRejectsShortPrefix(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	_, err = db.ResolvePrefix("abc")
	assert.Error(t, err)
}

func TestResolvePrefixUniqueMatch(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	id, err := db.Write(object.BlobType, []byte("unique content"))
	require.NoError(t, err)

	got, err := db.ResolvePrefix(id.String()[:8])
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestResolvePrefixNoMatch(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	_, err = db.ResolvePrefix("deadbeef")
	assert.ErrorIs(t, err, ErrNoSuchPrefix)
}

func TestResolvePrefixAmbiguous(t *testing.T) {
	fs := memfs.New()
	idA := craftID(t, 0x12, 0x34, 0x01)
	idB := craftID(t, 0x12, 0x34, 0x02)
	writePackFile(t, fs, "", "pack-a", []rawObj{
		{id: idA, typ: object.BlobType, payload: []byte("a")},
		{id: idB, typ: object.BlobType, payload: []byte("b")},
	})

	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	_, err = db.ResolvePrefix("1234")
	var ambiguous *AmbiguousPrefixError
	require.ErrorAs(t, err, &ambiguous)
	assert.ElementsMatch(t, []hash.ID{idA, idB}, ambiguous.Candidates)
}

func TestAlternatesAreSearchedRecursively(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/alt/objects", 0o755))
	require.NoError(t, fs.MkdirAll("/primary/objects/info", 0o755))
	writeFile(t, fs, "/primary/objects/info/alternates", []byte("/alt/objects\n"))

	altDB, err := Open(fs, "/alt", hash.SHA1)
	require.NoError(t, err)
	id, err := altDB.Write(object.BlobType, []byte("lives in the alternate"))
	require.NoError(t, err)

	db, err := Open(fs, "/primary", hash.SHA1)
	require.NoError(t, err)

	obj, err := db.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("lives in the alternate"), obj.Blob.Content)
}

func TestAlternatesCycleDoesNotHang(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/repo/objects/info", 0o755))
	writeFile(t, fs, "/repo/objects/info/alternates", []byte("/repo/objects\n"))

	db, err := Open(fs, "/repo", hash.SHA1)
	require.NoError(t, err)
	assert.Empty(t, db.alternates)
}

func TestRefreshPicksUpNewPack(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	o := blobObj([]byte("added after open"))
	_, _, errBefore := db.ReadRaw(o.id)
	require.Error(t, errBefore)

	writePackFile(t, fs, "", "pack-new", []rawObj{o})
	require.NoError(t, db.Refresh())

	_, _, errAfter := db.ReadRaw(o.id)
	require.NoError(t, errAfter)
}

func TestIterAllOIDs(t *testing.T) {
	fs := memfs.New()
	packed := blobObj([]byte("packed"))
	writePackFile(t, fs, "", "pack-a", []rawObj{packed})

	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)
	looseID, err := db.Write(object.BlobType, []byte("loose"))
	require.NoError(t, err)

	all, err := db.IterAllOIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []hash.ID{packed.id, looseID}, all)
}

func TestPackThenPruneRoundTrip(t *testing.T) {
	fs := memfs.New()
	db, err := Open(fs, "", hash.SHA1)
	require.NoError(t, err)

	blobs := [][]byte{[]byte("a"), []byte("ab"), []byte("abc")}
	ids := make([]hash.ID, len(blobs))
	for i, b := range blobs {
		id, err := db.Write(object.BlobType, b)
		require.NoError(t, err)
		ids[i] = id
	}

	base, err := db.Pack(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, base)

	pruned, err := db.Prune()
	require.NoError(t, err)
	assert.Equal(t, len(blobs), pruned)

	for i, id := range ids {
		obj, err := db.Read(id)
		require.NoError(t, err)
		assert.Equal(t, object.BlobType, obj.Type)
		assert.Equal(t, blobs[i], obj.Blob.Content)
	}

	all, err := db.IterAllOIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, all)
}
