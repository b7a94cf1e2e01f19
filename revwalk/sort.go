package revwalk

// SortOrder selects how Walker.Next emits commits.
type SortOrder int

const (
	// Chronological pops directly off the priority queue, ordered by
	// committer date (newest first), the default.
	Chronological SortOrder = iota
	// Topological emits a commit only after every one of its children
	// among the walked commits has already been emitted, via a
	// two-phase BFS/in-degree traversal. Matches `git log --topo-order`.
	Topological
	// AuthorDate pops off the priority queue ordered by author date
	// instead of committer date.
	AuthorDate
	// Reverse collects the Chronological order in full, then emits it
	// back to front.
	Reverse
)
