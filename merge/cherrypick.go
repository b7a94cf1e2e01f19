package merge

import (
	"time"

	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

// CherryPick applies commit's change onto head: a three-way merge with
// base = commit's first parent, ours = head, theirs = commit.
// On a clean result it writes and returns a new commit carrying commit's
// message, parented on head, committed by committer at now.
func CherryPick(store Store, head, commit hash.ID, committer object.Signature, now time.Time) (hash.ID, *Result, error) {
	commitObj, err := store.Read(commit)
	if err != nil {
		return hash.ID{}, nil, err
	}
	base := hash.ID{}
	if len(commitObj.Commit.Parents) > 0 {
		base = commitObj.Commit.Parents[0]
	}

	result, err := ThreeWay(store, base, head, commit)
	if err != nil {
		return hash.ID{}, nil, err
	}
	if result.HasConflicts {
		return hash.ID{}, result, nil
	}

	sig := committer
	sig.When = now
	newCommit := &object.Commit{
		Tree:      result.TreeOID,
		Parents:   []hash.ID{head},
		Author:    commitObj.Commit.Author,
		Committer: sig,
		Message:   commitObj.Commit.Message,
	}
	oid, err := store.Write(object.CommitType, newCommit.Encode())
	if err != nil {
		return hash.ID{}, nil, err
	}
	return oid, result, nil
}

// Revert undoes commit's change on top of head: a three-way merge
// with base = commit, ours = head, theirs = commit's first parent.
func Revert(store Store, head, commit hash.ID, committer object.Signature, now time.Time) (hash.ID, *Result, error) {
	commitObj, err := store.Read(commit)
	if err != nil {
		return hash.ID{}, nil, err
	}
	parent := hash.ID{}
	if len(commitObj.Commit.Parents) > 0 {
		parent = commitObj.Commit.Parents[0]
	}

	result, err := ThreeWay(store, commit, head, parent)
	if err != nil {
		return hash.ID{}, nil, err
	}
	if result.HasConflicts {
		return hash.ID{}, result, nil
	}

	sig := committer
	sig.When = now
	newCommit := &object.Commit{
		Tree:      result.TreeOID,
		Parents:   []hash.ID{head},
		Author:    sig,
		Committer: sig,
		Message:   []byte("Revert \"" + firstLine(commitObj.Commit.Message) + "\"\n"),
	}
	oid, err := store.Write(object.CommitType, newCommit.Encode())
	if err != nil {
		return hash.ID{}, nil, err
	}
	return oid, result, nil
}

func firstLine(msg []byte) string {
	for i, b := range msg {
		if b == '\n' {
			return string(msg[:i])
		}
	}
	return string(msg)
}
