package revwalk

import (
	"time"

	"github.com/nullpx/gitcore/hash"
)

// entry is a single commit queued for emission: OID, sort date, author
// date, generation, and an insertion counter. insertionCtr breaks ties
// between equal dates/generations so that
// iteration order is deterministic regardless of map/heap internals.
type entry struct {
	oid          hash.ID
	commitDate   time.Time
	authorDate   time.Time
	generation   uint64
	hasGen       bool
	insertionCtr uint64

	parents []hash.ID
}

// less reports whether a sorts before b under mode: higher priority
// pops first. Generation (when both entries have one) dominates date:
// a commit in a strictly later generation cannot be an ancestor of one
// in an earlier generation, so comparing generations first lets the
// walker stop early in future pruning without changing emission order
// today.
func less(mode SortOrder, a, b *entry) bool {
	date := func(e *entry) time.Time {
		if mode == AuthorDate {
			return e.authorDate
		}
		return e.commitDate
	}

	if a.hasGen && b.hasGen && a.generation != b.generation {
		return a.generation > b.generation
	}

	da, db := date(a), date(b)
	if !da.Equal(db) {
		return da.After(db)
	}
	return a.insertionCtr > b.insertionCtr
}
