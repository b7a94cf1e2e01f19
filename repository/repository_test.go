package repository

import (
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/nullpx/gitcore/filemode"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/index"
	"github.com/nullpx/gitcore/object"
	"github.com/nullpx/gitcore/revwalk"
)

func TestInitCreatesHeadAndConfig(t *testing.T) {
	fs := memfs.New()
	repo, err := Init(fs, nil, hash.SHA1)
	require.NoError(t, err)
	require.True(t, repo.IsBare())

	ref, err := repo.Refs.Resolve("HEAD")
	require.NoError(t, err)
	require.True(t, ref.IsSymbolic())
	require.Equal(t, DefaultBranch, ref.Symbolic)

	_, err = Init(fs, nil, hash.SHA1)
	require.ErrorIs(t, err, ErrRepositoryAlreadyExists)
}

func TestOpenRejectsMissingRepository(t *testing.T) {
	fs := memfs.New()
	_, err := Open(fs, nil, hash.SHA1)
	require.ErrorIs(t, err, ErrRepositoryNotExists)
}

func TestOpenRoundTripsConfig(t *testing.T) {
	fs := memfs.New()
	worktree := memfs.New()
	_, err := Init(fs, worktree, hash.SHA1)
	require.NoError(t, err)

	repo, err := Open(fs, worktree, hash.SHA1)
	require.NoError(t, err)
	require.False(t, repo.IsBare())
	wt, ok := repo.Worktree()
	require.True(t, ok)
	require.Equal(t, worktree, wt)
}

func TestIndexRoundTrip(t *testing.T) {
	fs := memfs.New()
	repo, err := Init(fs, nil, hash.SHA1)
	require.NoError(t, err)

	idx, err := repo.Index()
	require.NoError(t, err)
	require.Empty(t, idx.Entries)

	blob := &object.Blob{Content: []byte("hi\n")}
	oid, err := repo.ODB.Write(object.BlobType, blob.Content)
	require.NoError(t, err)

	entry := idx.Add("a.txt")
	entry.OID = oid
	entry.Mode = filemode.Regular
	entry.Stage = index.Merged

	require.NoError(t, repo.SetIndex(idx))

	reloaded, err := repo.Index()
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)
	require.Equal(t, "a.txt", reloaded.Entries[0].Name)
	require.Equal(t, oid, reloaded.Entries[0].OID)
}

func TestHeadResolvesToCommit(t *testing.T) {
	fs := memfs.New()
	repo, err := Init(fs, nil, hash.SHA1)
	require.NoError(t, err)

	tree := &object.Tree{}
	treeOID, err := repo.ODB.Write(object.TreeType, tree.Encode())
	require.NoError(t, err)

	sig := object.Signature{Name: "a", Email: "a@example.com"}
	commit := &object.Commit{Tree: treeOID, Author: sig, Committer: sig, Message: []byte("first\n")}
	commitOID, err := repo.ODB.Write(object.CommitType, commit.Encode())
	require.NoError(t, err)

	require.NoError(t, repo.Refs.SetRef(DefaultBranch, commitOID))

	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, commitOID, head)
}

func TestLogWalksFromHead(t *testing.T) {
	fs := memfs.New()
	repo, err := Init(fs, nil, hash.SHA1)
	require.NoError(t, err)

	tree := &object.Tree{}
	treeOID, err := repo.ODB.Write(object.TreeType, tree.Encode())
	require.NoError(t, err)

	sig := object.Signature{Name: "a", Email: "a@example.com"}
	first := &object.Commit{Tree: treeOID, Author: sig, Committer: sig, Message: []byte("first\n")}
	firstOID, err := repo.ODB.Write(object.CommitType, first.Encode())
	require.NoError(t, err)

	second := &object.Commit{Tree: treeOID, Parents: []hash.ID{firstOID}, Author: sig, Committer: sig, Message: []byte("second\n")}
	secondOID, err := repo.ODB.Write(object.CommitType, second.Encode())
	require.NoError(t, err)

	require.NoError(t, repo.Refs.SetRef(DefaultBranch, secondOID))
	head, err := repo.Head()
	require.NoError(t, err)

	walker := repo.Log(revwalk.Options{Sort: revwalk.Chronological})
	require.NoError(t, walker.Push(head))

	var seen []hash.ID
	for {
		oid, _, err := walker.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seen = append(seen, oid)
	}
	require.Equal(t, []hash.ID{secondOID, firstOID}, seen)
}
