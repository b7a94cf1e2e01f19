package refs

import (
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/nullpx/gitcore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitTransactionWithReflog(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	oid := oidFor(1)

	tx := NewTransaction()
	tx.Create(name, oid, "branch: Created from HEAD")
	require.NoError(t, s.CommitTransaction(tx))

	resolved, err := s.ResolveToOID(name)
	require.NoError(t, err)
	assert.Equal(t, oid, resolved)

	entries, err := s.Reflog(name)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Old.IsZero())
	assert.Equal(t, oid, entries[0].New)
}

func TestCommitTransactionConflictRollsBack(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	require.NoError(t, s.SetRef(name, oidFor(1)))

	tx := NewTransaction()
	tx.Update(name, oidFor(2) /* wrong expected old */, oidFor(3), "update")
	err := s.CommitTransaction(tx)
	assert.ErrorIs(t, err, ErrConflict)

	// Unaffected: still the original value, and no lockfile left behind.
	resolved, err := s.ResolveToOID(name)
	require.NoError(t, err)
	assert.Equal(t, oidFor(1), resolved)

	_, statErr := s.fs.Stat(name + lockSuffix)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCommitTransactionMultiRefAtomicUpdate(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	nameA, nameB := "refs/heads/a", "refs/heads/b"
	oidA, oidB := oidFor(1), oidFor(2)

	tx := NewTransaction()
	tx.Create(nameA, oidA, "create a")
	tx.Create(nameB, oidB, "create b")
	require.NoError(t, s.CommitTransaction(tx))

	resolvedA, err := s.ResolveToOID(nameA)
	require.NoError(t, err)
	assert.Equal(t, oidA, resolvedA)

	resolvedB, err := s.ResolveToOID(nameB)
	require.NoError(t, err)
	assert.Equal(t, oidB, resolvedB)
}

func TestCommitTransactionDeleteRemovesRef(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"
	oid := oidFor(1)
	require.NoError(t, s.SetRef(name, oid))

	tx := NewTransaction()
	tx.Delete(name, oid, "branch deleted")
	require.NoError(t, s.CommitTransaction(tx))

	_, err := s.ResolveToOID(name)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitTransactionSetSymbolic(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	target := "refs/heads/main"
	require.NoError(t, s.SetRef(target, oidFor(1)))

	tx := NewTransaction()
	tx.SetSymbolic("HEAD", target, "checkout")
	require.NoError(t, s.CommitTransaction(tx))

	ref, err := s.Resolve("HEAD")
	require.NoError(t, err)
	require.True(t, ref.IsSymbolic())
	assert.Equal(t, target, ref.Symbolic)
}

func TestCommitTransactionFailsWhenLockAlreadyHeld(t *testing.T) {
	s := Open(memfs.New(), hash.SHA1)
	name := "refs/heads/main"

	require.NoError(t, s.fs.MkdirAll("refs/heads", 0o755))
	f, err := s.fs.OpenFile(name+lockSuffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	tx := NewTransaction()
	tx.Create(name, oidFor(1), "create")
	err = s.CommitTransaction(tx)
	assert.ErrorIs(t, err, ErrLocked)
}
