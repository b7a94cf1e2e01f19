package gitpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSeparatorsAndTrailingSlash(t *testing.T) {
	assert.Equal(t, []byte("a/b/c"), Normalize([]byte(`a\b\c`)))
	assert.Equal(t, []byte("a/b"), Normalize([]byte("a/b/")))
	assert.Equal(t, []byte("/"), Normalize([]byte("/")))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, []byte("a/b/c/d"), Join([]byte("a/b"), []byte("c/d")))
	assert.Equal(t, []byte("/c/d"), Join([]byte("a/b"), []byte("/c/d")))
	assert.Equal(t, []byte("a/b"), Join([]byte("a/b"), nil))
}

func TestDirnameBasename(t *testing.T) {
	assert.Equal(t, []byte("a/b"), Dirname([]byte("a/b/c")))
	assert.Equal(t, []byte("."), Dirname([]byte("abc")))
	assert.Equal(t, []byte("/"), Dirname([]byte("/abc")))
	assert.Equal(t, []byte("c"), Basename([]byte("a/b/c")))
}

func TestResolveDots(t *testing.T) {
	got, err := ResolveDots([]byte("a/./b/../c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a/c"), got)

	got, err = ResolveDots([]byte("/a/b/../c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("/a/c"), got)

	_, err = ResolveDots([]byte("/a/../.."))
	assert.ErrorIs(t, err, ErrAboveRoot)

	got, err = ResolveDots([]byte("../a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("../a"), got)
}

func TestIsAbsolute(t *testing.T) {
	assert.True(t, IsAbsolute([]byte("/foo")))
	assert.False(t, IsAbsolute([]byte("foo")))
	assert.False(t, IsAbsolute(nil))
}

func TestRelativeTo(t *testing.T) {
	assert.Equal(t, []byte("c"), RelativeTo([]byte("a/b/c"), []byte("a/b")))
	assert.Equal(t, []byte("."), RelativeTo([]byte("a/b"), []byte("a/b")))
	assert.Equal(t, []byte("../c"), RelativeTo([]byte("a/c"), []byte("a/b")))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "hello.txt", Quote([]byte("hello.txt")))
	assert.Equal(t, `"caf\303\251.txt"`, Quote([]byte("caf\xc3\xa9.txt")))
	assert.Equal(t, `"a \"b\""`, Quote([]byte(`a "b"`)))
}
