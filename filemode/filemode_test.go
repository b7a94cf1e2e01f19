package filemode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndString(t *testing.T) {
	m, err := New("100644")
	require.NoError(t, err)
	assert.Equal(t, Regular, m)
	assert.Equal(t, "100644", m.String())
}

func TestDirPrintsWithoutLeadingZero(t *testing.T) {
	assert.Equal(t, "40000", Dir.String())
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New("100640")
	assert.Error(t, err)
}

func TestIsFile(t *testing.T) {
	assert.True(t, Regular.IsFile())
	assert.True(t, Executable.IsFile())
	assert.True(t, Symlink.IsFile())
	assert.False(t, Dir.IsFile())
	assert.False(t, Submodule.IsFile())
}
