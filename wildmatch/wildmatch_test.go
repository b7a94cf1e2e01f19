package wildmatch

import "testing"

func assertMatch(t *testing.T, pattern, path string, want bool, opts ...Option) {
	t.Helper()
	p := New(pattern, opts...)
	if got := p.Match(path); got != want {
		t.Errorf("New(%q).Match(%q) = %v, want %v", pattern, path, got, want)
	}
}

func TestLiteral(t *testing.T) {
	assertMatch(t, "foo.c", "foo.c", true)
	assertMatch(t, "foo.c", "foo.h", false)
}

func TestStar(t *testing.T) {
	assertMatch(t, "*.c", "foo.c", true)
	assertMatch(t, "*.c", "dir/foo.c", false)
	assertMatch(t, "*.c", "foo.h", false)
	assertMatch(t, "f*o", "foo", true)
	assertMatch(t, "f*o", "fo", true)
}

func TestQuestion(t *testing.T) {
	assertMatch(t, "fo?", "foo", true)
	assertMatch(t, "fo?", "fo", false)
	assertMatch(t, "fo?", "fooo", false)
}

func TestDoubleStar(t *testing.T) {
	assertMatch(t, "a/**/b", "a/b", true)
	assertMatch(t, "a/**/b", "a/x/y/b", true)
	assertMatch(t, "a/**/b", "a/x/b/c", false)
	assertMatch(t, "**/foo.c", "foo.c", true)
	assertMatch(t, "**/foo.c", "a/b/foo.c", true)
}

func TestCharClass(t *testing.T) {
	assertMatch(t, "[abc].txt", "a.txt", true)
	assertMatch(t, "[abc].txt", "d.txt", false)
	assertMatch(t, "[a-c].txt", "b.txt", true)
	assertMatch(t, "[^a-c].txt", "d.txt", true)
	assertMatch(t, "[^a-c].txt", "a.txt", false)
	assertMatch(t, "[[:digit:]].txt", "5.txt", true)
	assertMatch(t, "[[:digit:]].txt", "x.txt", false)
}

func TestBasenameOption(t *testing.T) {
	assertMatch(t, "foo.c", "a/b/foo.c", true, Basename)
	assertMatch(t, "a/foo.c", "a/b/foo.c", false, Basename) // contains '/': anchored regardless
}

func TestCaseFold(t *testing.T) {
	assertMatch(t, "FOO.C", "foo.c", true, CaseFold)
	assertMatch(t, "FOO.C", "foo.c", false)
}

func TestUnanchoredSingleComponent(t *testing.T) {
	// A pattern with no slash and a trailing slash in the raw pathspec
	// form (simulated here via Contents) should match anywhere in the tree.
	p := New("node_modules", Contents)
	if !p.Match("node_modules") {
		t.Errorf("expected direct match")
	}
	if !p.Match("a/b/node_modules") {
		t.Errorf("expected nested match")
	}
	if !p.Match("a/b/node_modules/pkg/index.js") {
		t.Errorf("expected contents to match beneath matched directory")
	}
}

func TestAttributesNeverMatchesDirectory(t *testing.T) {
	p := New("*.c", Attributes)
	if p.MatchWithOpts("foo.c", MatchOpts{IsDir: true}) {
		t.Errorf("gitattributes-mode pattern must never match a directory")
	}
	if !p.MatchWithOpts("foo.c", MatchOpts{IsDir: false}) {
		t.Errorf("expected plain file match to succeed")
	}
}

func TestEscapedWildcard(t *testing.T) {
	assertMatch(t, `foo\*bar`, "foo*bar", true)
	assertMatch(t, `foo\*bar`, "fooXbar", false)
}
