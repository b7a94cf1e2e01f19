package refs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

// ErrCorruptReflog is returned when a reflog line cannot be parsed.
var ErrCorruptReflog = errors.New("refs: corrupt reflog entry")

// ReflogEntry is one line of a reference's reflog: the value transition,
// who made it, and why.
type ReflogEntry struct {
	Old, New  hash.ID
	Committer object.Signature
	Message   string
}

// String formats e the way Git writes a reflog line: "<old> <new>
// <committer>[\t<message>]\n".
func (e ReflogEntry) String() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s %s\n", e.Old, e.New, e.Committer.String())
	}
	return fmt.Sprintf("%s %s %s\t%s\n", e.Old, e.New, e.Committer.String(), strings.ReplaceAll(e.Message, "\n", " "))
}

func parseReflogLine(name, line string) (ReflogEntry, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		return ReflogEntry{}, fmt.Errorf("%w: %s", ErrCorruptReflog, name)
	}
	oldID, err := hash.FromHex(fields[0])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("%w: %s: %v", ErrCorruptReflog, name, err)
	}
	newID, err := hash.FromHex(fields[1])
	if err != nil {
		return ReflogEntry{}, fmt.Errorf("%w: %s: %v", ErrCorruptReflog, name, err)
	}

	rest := fields[2]
	sig, message := rest, ""
	if tab := strings.IndexByte(rest, '\t'); tab >= 0 {
		sig, message = rest[:tab], rest[tab+1:]
	}
	var committer object.Signature
	committer.Decode([]byte(sig))

	return ReflogEntry{Old: oldID, New: newID, Committer: committer, Message: message}, nil
}

// ReadReflog returns name's reflog entries in chronological (oldest-
// first) order, matching their on-disk append order. A ref with no
// reflog yet returns (nil, nil), not an error.
func (s *Store) ReadReflog(name string) ([]ReflogEntry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(s.fs.Join(reflogDir, name))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parseReflogLine(name, line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// AppendReflog appends entry to name's reflog, creating the log file
// and its parent directories on first use.
func (s *Store) AppendReflog(name string, entry ReflogEntry) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	logPath := s.fs.Join(reflogDir, name)
	if dir := dirOf(logPath); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := s.fs.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(entry.String()))
	return err
}

// Reflog returns name's parsed reflog. Alias of ReadReflog.
func (s *Store) Reflog(name string) ([]ReflogEntry, error) { return s.ReadReflog(name) }

// The following are well-known HEAD-update reflog message constructors
// (supplementing the distilled spec per original_source's git-ref crate,
// which threads a free-form message string but never spells out Git's
// exact phrasing). Callers building reflog entries for these situations
// should use these rather than hand-formatting Git's wording.

// FormatCommit is the message for an ordinary commit.
func FormatCommit() string { return "commit" }

// FormatCommitAmend is the message for "git commit --amend".
func FormatCommitAmend() string { return "commit (amend)" }

// FormatCheckout is the message for switching HEAD between refs/commits.
func FormatCheckout(from, to string) string {
	return fmt.Sprintf("checkout: moving from %s to %s", from, to)
}

// FormatPull is the message for a fetch+merge/rebase pull.
func FormatPull() string { return "pull" }

// FormatReset is the message for "git reset" moving a ref directly.
func FormatReset(target string) string {
	return fmt.Sprintf("reset: moving to %s", target)
}
