// Package commitgraph implements the commit-graph chunk-table file
// format: a precomputed index of commit metadata (tree OID, parent
// OIDs, generation number) that lets a revision walker skip opening
// commit objects entirely for history that's already been graphed.
//
// Grounded on go-git's plumbing/format/commitgraph/v2 (CommitData, the
// chunk-table layout, fanout+OID-lookup binary search, octopus-merge
// extra-edge encoding), narrowed to a single, non-chained commit-graph
// file (no BASE chunk, no multi-file chain/split-graph support) since
// nothing here calls for incremental/split commit-graphs — only the
// commit-graph chunk format and generation numbers, plus the
// generation v2 (corrected commit date) form that degrades gracefully
// when absent. A reader or writer that never sees a BASE chunk behaves
// identically to one that does, for every operation this core exposes.
package commitgraph

import (
	"time"

	"github.com/nullpx/gitcore/hash"
)

// CommitData is a commit's metadata as a commit-graph entry stores it:
// just enough to walk history without reading the object.
type CommitData struct {
	TreeOID      hash.ID
	ParentOIDs   []hash.ID
	Generation   uint64 // v1 generation number, 0 if absent
	GenerationV2 uint64 // corrected commit date, 0 if absent
	When         time.Time
}

// GenerationV2Offset returns the corrected-commit-date generation number
// relative to the commit's own timestamp, or 0 if generation v2 data was
// not present when this entry was read — a partial graph degrades
// gracefully rather than failing.
func (c *CommitData) GenerationV2Offset() uint64 {
	if c.GenerationV2 == 0 {
		return 0
	}
	return c.GenerationV2 - uint64(c.When.Unix())
}

// Graph is the read access a revision walker needs from a commit-graph
// file: OID <-> index lookup plus per-index commit data.
type Graph interface {
	IndexOf(id hash.ID) (uint32, bool)
	OIDAt(index uint32) (hash.ID, bool)
	CommitDataAt(index uint32) (*CommitData, bool)
	Len() uint32
	HasGenerationV2() bool
}
