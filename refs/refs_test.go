package refs

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/nullpx/gitcore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oidFor(b byte) hash.ID {
	buf := make([]byte, hash.Size)
	buf[hash.Size-1] = b
	id, _ := hash.FromBytes(buf)
	return id
}

func TestResolveDirectRef(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	oid := oidFor(1)
	require.NoError(t, s.SetRef(name, oid))

	resolved, err := s.ResolveToOID(name)
	require.NoError(t, err)
	assert.Equal(t, oid, resolved)
}

func TestResolveSymbolicRefChain(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	mainName := "refs/heads/main"
	oid := oidFor(1)
	require.NoError(t, s.SetRef(mainName, oid))
	require.NoError(t, s.WriteSymbolicRef("HEAD", mainName))

	resolved, err := s.ResolveToOID("HEAD")
	require.NoError(t, err)
	assert.Equal(t, oid, resolved)
}

func TestResolveNonexistent(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	_, err := s.ResolveToOID("refs/heads/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveSymrefLoopDetected(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	a, b := "refs/heads/a", "refs/heads/b"
	require.NoError(t, s.WriteSymbolicRef(a, b))
	require.NoError(t, s.WriteSymbolicRef(b, a))

	_, err := s.ResolveToOID(a)
	assert.ErrorIs(t, err, ErrSymrefLoop)
}

func TestLooseOverPackedPrecedence(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	packedOID := oidFor(0xaa)
	looseOID := oidFor(0xbb)

	pr, err := s.loadPackedRefs()
	require.NoError(t, err)
	pr.upsert(name, packedOID, hash.ID{})
	require.NoError(t, s.writePackedRefs(pr))

	require.NoError(t, s.SetRef(name, looseOID))

	resolved, err := s.ResolveToOID(name)
	require.NoError(t, err)
	assert.Equal(t, looseOID, resolved)
}

func TestResolveFromPackedWhenNoLoose(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	oid := oidFor(1)

	pr, err := s.loadPackedRefs()
	require.NoError(t, err)
	pr.upsert(name, oid, hash.ID{})
	require.NoError(t, s.writePackedRefs(pr))

	resolved, err := s.ResolveToOID(name)
	require.NoError(t, err)
	assert.Equal(t, oid, resolved)
}

func TestIterateAllRefsSorted(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	oid := oidFor(1)
	require.NoError(t, s.SetRef("refs/heads/main", oid))
	require.NoError(t, s.SetRef("refs/heads/feature", oid))
	require.NoError(t, s.SetRef("refs/tags/v1.0", oid))

	got, err := s.Iter("")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "refs/heads/feature", got[0].Name)
	assert.Equal(t, "refs/heads/main", got[1].Name)
	assert.Equal(t, "refs/tags/v1.0", got[2].Name)
}

func TestIterateWithPrefix(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	oid := oidFor(1)
	require.NoError(t, s.SetRef("refs/heads/main", oid))
	require.NoError(t, s.SetRef("refs/tags/v1.0", oid))

	got, err := s.Iter("refs/heads/")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "refs/heads/main", got[0].Name)
}

func TestIterateDeduplicatesLooseAndPacked(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	looseOID := oidFor(1)

	require.NoError(t, s.SetRef(name, looseOID))
	pr, err := s.loadPackedRefs()
	require.NoError(t, err)
	pr.upsert(name, oidFor(0xaa), hash.ID{})
	require.NoError(t, s.writePackedRefs(pr))

	got, err := s.Iter("")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, looseOID, got[0].Target)
}

func TestPackRefOperation(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	oid := oidFor(1)
	require.NoError(t, s.SetRef(name, oid))

	require.NoError(t, s.PackRef(name))

	_, err := s.readLooseRef(name)
	assert.ErrorIs(t, err, ErrNotFound)

	resolved, err := s.ResolveToOID(name)
	require.NoError(t, err)
	assert.Equal(t, oid, resolved)
}

func TestPackRefPeelsViaCallback(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	tagOID := oidFor(1)
	peeledOID := oidFor(2)
	s.Peel = func(id hash.ID) (hash.ID, bool) {
		if id == tagOID {
			return peeledOID, true
		}
		return hash.ID{}, false
	}
	name := "refs/tags/v1.0"
	require.NoError(t, s.SetRef(name, tagOID))
	require.NoError(t, s.PackRef(name))

	pr, err := s.loadPackedRefs()
	require.NoError(t, err)
	e, ok := pr.find(name)
	require.True(t, ok)
	assert.Equal(t, peeledOID, e.Peeled)
}

func TestDanglingSymrefResolveVsResolveToOID(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	target := "refs/heads/main"
	require.NoError(t, s.WriteSymbolicRef("HEAD", target))

	ref, err := s.Resolve("HEAD")
	require.NoError(t, err)
	assert.True(t, ref.IsSymbolic())

	_, err = s.ResolveToOID("HEAD")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestValidateNameRejectsDotDot(t *testing.T) {
	assert.Error(t, ValidateName("refs/heads/../escape"))
	assert.NoError(t, ValidateName("refs/heads/main"))
	assert.NoError(t, ValidateName("HEAD"))
}

func TestReflogAppendAndRead(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	old, new1 := hash.ID{}, oidFor(1)
	require.NoError(t, s.AppendReflog(name, ReflogEntry{Old: old, New: new1, Message: FormatCommit()}))

	entries, err := s.Reflog(name)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Old.IsZero())
	assert.Equal(t, new1, entries[0].New)
	assert.Equal(t, "commit", entries[0].Message)
}

func TestReflogFormatHelpers(t *testing.T) {
	assert.Equal(t, "commit", FormatCommit())
	assert.Equal(t, "commit (amend)", FormatCommitAmend())
	assert.Equal(t, "checkout: moving from a to b", FormatCheckout("a", "b"))
	assert.Equal(t, "pull", FormatPull())
	assert.Equal(t, "reset: moving to a", FormatReset("a"))
}
