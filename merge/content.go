package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nullpx/gitcore/diff"
	"github.com/nullpx/gitcore/object"
)

// Conflict marker lines, grounded on antgroup-hugescm's
// modules/diferenco diff3 merge (Sep1/SepO/Sep2/Sep3) but spelled out
// with our own "ours"/"theirs" labels rather than caller-supplied
// branch names.
const (
	markerOursStart   = "<<<<<<< ours"
	markerBase        = "||||||| base"
	markerSep         = "======="
	markerTheirsStart = ">>>>>>> theirs"
)

// change is one contiguous region where base differs from a single side,
// in line-index coordinates of each.
type change struct {
	baseStart, baseLen int
	sideStart, sideLen int
}

// editsToChanges collapses a diff.Lines edit script into change regions,
// tracking the base/side line cursors as it walks Equal/Insert/Delete ops.
func editsToChanges(edits []diff.Edit) []change {
	var changes []change
	baseIdx, sideIdx := 0, 0
	delStart, insStart := -1, -1

	flush := func() {
		if delStart < 0 && insStart < 0 {
			return
		}
		ds, is := delStart, insStart
		dl, il := 0, 0
		if ds >= 0 {
			dl = baseIdx - ds
		} else {
			ds = baseIdx
		}
		if is >= 0 {
			il = sideIdx - is
		} else {
			is = sideIdx
		}
		changes = append(changes, change{baseStart: ds, baseLen: dl, sideStart: is, sideLen: il})
		delStart, insStart = -1, -1
	}

	for _, e := range edits {
		switch e.Op {
		case diff.Equal:
			flush()
			baseIdx++
			sideIdx++
		case diff.Delete:
			if delStart < 0 {
				delStart = baseIdx
			}
			baseIdx++
		case diff.Insert:
			if insStart < 0 {
				insStart = sideIdx
			}
			sideIdx++
		}
	}
	flush()
	return changes
}

const (
	sideOurs = iota
	sideTheirs
)

// taggedHunk is a change region attributed to one side (ours or theirs),
// the unit diff3-style merging works over.
type taggedHunk struct {
	change
	side int
}

// extent tracks the smallest region of one side's lines (and the base
// lines that produced it) touched by a group of same-side hunks, used to
// compute the skew-corrected conflict boundaries below.
type extent struct {
	sideLhs, sideRhs int
	baseLhs, baseRhs int
}

func (m *merger) readBlob(e sideEntry) ([]byte, error) {
	if !e.Present {
		return nil, nil
	}
	obj, err := m.store.Read(e.OID)
	if err != nil {
		return nil, err
	}
	if obj.Type != object.BlobType {
		return nil, fmt.Errorf("merge: %s is not a blob", e.OID)
	}
	return obj.Blob.Content, nil
}

// mergeBlob performs the three-way line merge for one path's content:
// diffs from base to each side are computed independently, then
// merged the way antgroup-hugescm's diff3 merge
// does — a region touched by only one side is taken from that side, a
// region touched by both becomes a conflict with embedded markers.
// Binary content is never merged (step 4): it returns ours unchanged
// and reports the result as not clean.
func (m *merger) mergeBlob(base, ours, theirs sideEntry) ([]byte, bool, error) {
	baseContent, err := m.readBlob(base)
	if err != nil {
		return nil, false, err
	}
	oursContent, err := m.readBlob(ours)
	if err != nil {
		return nil, false, err
	}
	theirsContent, err := m.readBlob(theirs)
	if err != nil {
		return nil, false, err
	}

	if diff.IsBinary(baseContent) || diff.IsBinary(oursContent) || diff.IsBinary(theirsContent) {
		return oursContent, false, nil
	}

	baseLines := diff.SplitLines(baseContent)
	oursLines := diff.SplitLines(oursContent)
	theirsLines := diff.SplitLines(theirsContent)

	var hunks []taggedHunk
	for _, c := range editsToChanges(diff.Lines(baseContent, oursContent)) {
		hunks = append(hunks, taggedHunk{change: c, side: sideOurs})
	}
	for _, c := range editsToChanges(diff.Lines(baseContent, theirsContent)) {
		hunks = append(hunks, taggedHunk{change: c, side: sideTheirs})
	}
	sort.SliceStable(hunks, func(i, j int) bool { return hunks[i].baseStart < hunks[j].baseStart })

	var out []string
	clean := true
	baseCommon := 0
	copyCommon := func(to int) {
		if to > baseCommon {
			out = append(out, baseLines[baseCommon:to]...)
			baseCommon = to
		}
	}

	i := 0
	for i < len(hunks) {
		first := i
		regionLhs := hunks[i].baseStart
		regionRhs := regionLhs + hunks[i].baseLen
		for i < len(hunks)-1 {
			next := hunks[i+1]
			if next.baseStart > regionRhs {
				break
			}
			if r := next.baseStart + next.baseLen; r > regionRhs {
				regionRhs = r
			}
			i++
		}

		copyCommon(regionLhs)
		if first == i {
			h := hunks[i]
			if h.sideLen > 0 {
				side := oursLines
				if h.side == sideTheirs {
					side = theirsLines
				}
				out = append(out, side[h.sideStart:h.sideStart+h.sideLen]...)
			}
		} else {
			clean = false
			oursExt := extent{sideLhs: len(oursLines), sideRhs: -1, baseLhs: len(baseLines), baseRhs: -1}
			theirsExt := extent{sideLhs: len(theirsLines), sideRhs: -1, baseLhs: len(baseLines), baseRhs: -1}
			for k := first; k <= i; k++ {
				hk := hunks[k]
				ext := &oursExt
				if hk.side == sideTheirs {
					ext = &theirsExt
				}
				if hk.sideStart < ext.sideLhs {
					ext.sideLhs = hk.sideStart
				}
				if r := hk.sideStart + hk.sideLen; r > ext.sideRhs {
					ext.sideRhs = r
				}
				if hk.baseStart < ext.baseLhs {
					ext.baseLhs = hk.baseStart
				}
				if r := hk.baseStart + hk.baseLen; r > ext.baseRhs {
					ext.baseRhs = r
				}
			}
			oursLhs := oursExt.sideLhs + (regionLhs - oursExt.baseLhs)
			oursRhs := oursExt.sideRhs + (regionRhs - oursExt.baseRhs)
			theirsLhs := theirsExt.sideLhs + (regionLhs - theirsExt.baseLhs)
			theirsRhs := theirsExt.sideRhs + (regionRhs - theirsExt.baseRhs)

			out = append(out, markerOursStart)
			out = append(out, oursLines[oursLhs:oursRhs]...)
			out = append(out, markerBase)
			out = append(out, baseLines[regionLhs:regionRhs]...)
			out = append(out, markerSep)
			out = append(out, theirsLines[theirsLhs:theirsRhs]...)
			out = append(out, markerTheirsStart)
		}
		baseCommon = regionRhs
		i++
	}
	copyCommon(len(baseLines))

	merged := strings.Join(out, "\n")
	hasTrailingNewline := len(oursContent) > 0 && oursContent[len(oursContent)-1] == '\n'
	if merged == "" || hasTrailingNewline {
		merged += "\n"
	}
	return []byte(merged), clean, nil
}
