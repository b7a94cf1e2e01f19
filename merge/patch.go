package merge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Patch is a parsed sequence of per-file unified-diff patches, in the
// format produced by package diff's Unified.
//
// Grounded on original_source/crates/git-merge/src/apply.rs's parser,
// adapted to Go idiom; unlike that reference, Apply below validates hunk
// context exactly rather than always trusting the patch text.
type Patch struct {
	Files []FilePatch
}

// FilePatch is one file's patch: its path/mode metadata plus ordered hunks.
type FilePatch struct {
	OldPath, NewPath string
	OldMode, NewMode string
	IsNew, IsDelete  bool
	Hunks            []PatchHunk
}

// Path returns the patch's effective target path, preferring NewPath.
func (fp FilePatch) Path() string {
	if fp.NewPath != "" {
		return fp.NewPath
	}
	return fp.OldPath
}

// PatchLineKind identifies one line within a hunk.
type PatchLineKind int8

const (
	PatchContext PatchLineKind = iota
	PatchAddition
	PatchDeletion
)

// PatchLine is a single line inside a PatchHunk.
type PatchLine struct {
	Kind PatchLineKind
	Text string
}

// PatchHunk is one `@@ -os,oc +ns,nc @@` region.
type PatchHunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []PatchLine
}

// ErrInvalidPatch is returned by ParsePatch for malformed patch text.
var ErrInvalidPatch = errors.New("merge: invalid patch")

// PatchDoesNotApplyError reports the first hunk (by index within its
// file) whose context failed to validate against the file it targets.
type PatchDoesNotApplyError struct {
	Path      string
	HunkIndex int
	Reason    string
}

func (e *PatchDoesNotApplyError) Error() string {
	return fmt.Sprintf("merge: patch does not apply to %q at hunk %d: %s", e.Path, e.HunkIndex, e.Reason)
}

// ParsePatch parses a sequence of file patches from unified-diff text,
// as produced by package diff's Unified output for one or more files
// concatenated together.
func ParsePatch(input []byte) (*Patch, error) {
	lines := strings.Split(string(input), "\n")
	// strings.Split on a trailing "\n" yields a spurious final "" line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var patch Patch
	i := 0
	for i < len(lines) {
		if strings.HasPrefix(lines[i], "diff --git") {
			fp, next, err := parseFilePatch(lines, i)
			if err != nil {
				return nil, err
			}
			patch.Files = append(patch.Files, fp)
			i = next
			continue
		}
		i++
	}
	return &patch, nil
}

func parseFilePatch(lines []string, i int) (FilePatch, int, error) {
	var fp FilePatch
	i++ // skip "diff --git a/... b/..."

	for i < len(lines) && !strings.HasPrefix(lines[i], "@@") && !strings.HasPrefix(lines[i], "diff --git") {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "old mode "):
			fp.OldMode = strings.TrimSpace(strings.TrimPrefix(line, "old mode "))
		case strings.HasPrefix(line, "new mode "):
			fp.NewMode = strings.TrimSpace(strings.TrimPrefix(line, "new mode "))
		case strings.HasPrefix(line, "new file mode"):
			fp.IsNew = true
			fp.NewMode = strings.TrimSpace(strings.TrimPrefix(line, "new file mode"))
		case strings.HasPrefix(line, "deleted file mode"):
			fp.IsDelete = true
			fp.OldMode = strings.TrimSpace(strings.TrimPrefix(line, "deleted file mode"))
		case strings.HasPrefix(line, "--- a/"):
			fp.OldPath = strings.TrimPrefix(line, "--- a/")
		case strings.HasPrefix(line, "+++ b/"):
			fp.NewPath = strings.TrimPrefix(line, "+++ b/")
		case line == "--- /dev/null":
			fp.OldPath = ""
			fp.IsNew = true
		case line == "+++ /dev/null":
			fp.NewPath = ""
			fp.IsDelete = true
		}
		i++
	}

	for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
		hunk, next, err := parseHunk(lines, i)
		if err != nil {
			return FilePatch{}, 0, err
		}
		fp.Hunks = append(fp.Hunks, hunk)
		i = next
	}

	return fp, i, nil
}

func parseHunk(lines []string, i int) (PatchHunk, int, error) {
	oldStart, oldCount, newStart, newCount, err := parseHunkHeader(lines[i])
	if err != nil {
		return PatchHunk{}, 0, err
	}
	i++

	hunk := PatchHunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}
	for i < len(lines) && !strings.HasPrefix(lines[i], "@@") && !strings.HasPrefix(lines[i], "diff --git") {
		line := lines[i]
		switch {
		case line == `\ No newline at end of file`:
			// Marker only; the preceding line's content is unaffected.
		case strings.HasPrefix(line, "+"):
			hunk.Lines = append(hunk.Lines, PatchLine{Kind: PatchAddition, Text: line[1:]})
		case strings.HasPrefix(line, "-"):
			hunk.Lines = append(hunk.Lines, PatchLine{Kind: PatchDeletion, Text: line[1:]})
		case strings.HasPrefix(line, " "):
			hunk.Lines = append(hunk.Lines, PatchLine{Kind: PatchContext, Text: line[1:]})
		default:
			hunk.Lines = append(hunk.Lines, PatchLine{Kind: PatchContext, Text: line})
		}
		i++
	}
	return hunk, i, nil
}

func parseHunkHeader(header string) (oldStart, oldCount, newStart, newCount int, err error) {
	header = strings.TrimSpace(header)
	atAt := strings.Index(header, "@@")
	if atAt < 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: missing @@ in hunk header", ErrInvalidPatch)
	}
	rest := header[atAt+2:]
	endAt := strings.Index(rest, "@@")
	if endAt < 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: missing closing @@ in hunk header", ErrInvalidPatch)
	}
	fields := strings.Fields(rest[:endAt])
	if len(fields) < 2 {
		return 0, 0, 0, 0, fmt.Errorf("%w: invalid hunk header %q", ErrInvalidPatch, header)
	}
	oldRange := strings.TrimPrefix(fields[0], "-")
	newRange := strings.TrimPrefix(fields[1], "+")
	if oldRange == fields[0] || newRange == fields[1] {
		return 0, 0, 0, 0, fmt.Errorf("%w: malformed range in %q", ErrInvalidPatch, header)
	}
	if oldStart, oldCount, err = parseRange(oldRange); err != nil {
		return 0, 0, 0, 0, err
	}
	if newStart, newCount, err = parseRange(newRange); err != nil {
		return 0, 0, 0, 0, err
	}
	return oldStart, oldCount, newStart, newCount, nil
}

func parseRange(s string) (start, count int, err error) {
	if comma := strings.IndexByte(s, ','); comma >= 0 {
		start, err = strconv.Atoi(s[:comma])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid range start %q", ErrInvalidPatch, s[:comma])
		}
		count, err = strconv.Atoi(s[comma+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: invalid range count %q", ErrInvalidPatch, s[comma+1:])
		}
		return start, count, nil
	}
	start, err = strconv.Atoi(s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid range %q", ErrInvalidPatch, s)
	}
	return start, 1, nil
}

// Apply applies fp to existing file content. A nil existing with
// fp.IsNew creates content purely from the patch's added lines. Unlike
// apply.rs's lenient reference, context lines are
// validated exactly against the original; the first mismatch is
// reported as a *PatchDoesNotApplyError naming the hunk index.
func Apply(fp FilePatch, existing []byte) ([]byte, error) {
	if fp.IsDelete {
		return nil, nil
	}
	if fp.IsNew {
		var out []string
		for _, h := range fp.Hunks {
			for _, l := range h.Lines {
				if l.Kind != PatchDeletion {
					out = append(out, l.Text)
				}
			}
		}
		return joinLines(out, true), nil
	}

	hadTrailingNewline := len(existing) == 0 || existing[len(existing)-1] == '\n'
	originalLines := splitPatchTarget(existing)

	var result []string
	pos := 0

	for hi, h := range fp.Hunks {
		start := h.OldStart - 1
		if start < 0 {
			start = 0
		}
		for pos < start && pos < len(originalLines) {
			result = append(result, originalLines[pos])
			pos++
		}

		for _, l := range h.Lines {
			switch l.Kind {
			case PatchContext:
				if pos >= len(originalLines) || originalLines[pos] != l.Text {
					return nil, &PatchDoesNotApplyError{
						Path:      fp.Path(),
						HunkIndex: hi,
						Reason:    fmt.Sprintf("context mismatch at original line %d", pos+1),
					}
				}
				result = append(result, l.Text)
				pos++
			case PatchDeletion:
				if pos >= len(originalLines) || originalLines[pos] != l.Text {
					return nil, &PatchDoesNotApplyError{
						Path:      fp.Path(),
						HunkIndex: hi,
						Reason:    fmt.Sprintf("deleted line mismatch at original line %d", pos+1),
					}
				}
				pos++
			case PatchAddition:
				result = append(result, l.Text)
			}
		}
	}

	for pos < len(originalLines) {
		result = append(result, originalLines[pos])
		pos++
	}

	return joinLines(result, hadTrailingNewline), nil
}

// splitPatchTarget splits file content into lines without their
// terminating newline, matching how hunk context/deletion lines are
// recorded (no trailing "\n" kept on PatchLine.Text).
func splitPatchTarget(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	text := string(data)
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

func joinLines(lines []string, trailingNewline bool) []byte {
	joined := strings.Join(lines, "\n")
	if trailingNewline && (joined != "" || len(lines) > 0) {
		joined += "\n"
	}
	return []byte(joined)
}
