package diff

import (
	"fmt"
	"strings"
)

// FileDiff is everything needed to render one file's entry in a
// `diff --git` stream.
type FileDiff struct {
	OldPath, NewPath       string
	OldMode, NewMode       string // e.g. "100644"; "" if not applicable
	OldOID, NewOID         string // abbreviated or full hex; "" if unknown
	IsNew, IsDelete        bool
	IsBinary               bool
	OldContent, NewContent []byte
}

// Unified renders fd as Git's unified-diff text: a `diff --git` line,
// optional mode/file-state lines, the `index` line,
// `---`/`+++` paths, then one `@@ ... @@` hunk per changed region.
// Binary files get the `Binary files ... differ` line instead of hunks.
func Unified(fd FileDiff, context int) string {
	var b strings.Builder
	oldDisplay, newDisplay := fd.OldPath, fd.NewPath
	if oldDisplay == "" {
		oldDisplay = fd.NewPath
	}
	if newDisplay == "" {
		newDisplay = fd.OldPath
	}
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", oldDisplay, newDisplay)

	switch {
	case fd.IsNew:
		if fd.NewMode != "" {
			fmt.Fprintf(&b, "new file mode %s\n", fd.NewMode)
		}
	case fd.IsDelete:
		if fd.OldMode != "" {
			fmt.Fprintf(&b, "deleted file mode %s\n", fd.OldMode)
		}
	case fd.OldMode != "" && fd.NewMode != "" && fd.OldMode != fd.NewMode:
		fmt.Fprintf(&b, "old mode %s\n", fd.OldMode)
		fmt.Fprintf(&b, "new mode %s\n", fd.NewMode)
	}

	if fd.OldOID != "" || fd.NewOID != "" {
		mode := fd.NewMode
		if mode == "" {
			mode = fd.OldMode
		}
		if mode != "" {
			fmt.Fprintf(&b, "index %s..%s %s\n", fd.OldOID, fd.NewOID, mode)
		} else {
			fmt.Fprintf(&b, "index %s..%s\n", fd.OldOID, fd.NewOID)
		}
	}

	if fd.IsBinary {
		fmt.Fprintf(&b, "Binary files a/%s and b/%s differ\n", oldDisplay, newDisplay)
		return b.String()
	}

	oldLabel, newLabel := "a/"+oldDisplay, "b/"+newDisplay
	if fd.IsNew {
		oldLabel = "/dev/null"
	}
	if fd.IsDelete {
		newLabel = "/dev/null"
	}

	edits := Lines(fd.OldContent, fd.NewContent)
	hunks := Hunks(edits, context)
	if len(hunks) == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "--- %s\n", oldLabel)
	fmt.Fprintf(&b, "+++ %s\n", newLabel)
	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, l := range h.Lines {
			b.WriteByte(l.Op)
			b.WriteString(strings.TrimSuffix(l.Text, "\n"))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
