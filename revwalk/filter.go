package revwalk

import (
	"regexp"
	"strings"
	"time"

	"github.com/nullpx/gitcore/object"
)

// Filter holds the `--since`/`--until`/`--author`/`--committer`/`--grep`
// predicates applied per emission candidate, grounded on go-git's
// commitLimitIter (pointer-time bounds, skip-via-continue).
// A zero Filter matches every commit.
type Filter struct {
	Since time.Time
	Until time.Time

	// Author and Committer match as a case-insensitive substring against
	// "Name <email>", the same field Git's --author/--committer search.
	Author    string
	Committer string

	// Grep matches against the commit message when non-nil.
	Grep *regexp.Regexp
}

func (f Filter) matches(c *object.Commit) bool {
	if !f.Since.IsZero() && c.Committer.When.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && c.Committer.When.After(f.Until) {
		return false
	}
	if f.Author != "" && !containsFold(signatureString(c.Author), f.Author) {
		return false
	}
	if f.Committer != "" && !containsFold(signatureString(c.Committer), f.Committer) {
		return false
	}
	if f.Grep != nil && !f.Grep.Match(c.Message) {
		return false
	}
	return true
}

func signatureString(s object.Signature) string {
	return s.Name + " <" + s.Email + ">"
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
