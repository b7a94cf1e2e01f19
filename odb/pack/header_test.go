package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		typ  entryType
		size int64
	}{
		{entryBlob, 0},
		{entryBlob, 15},
		{entryBlob, 16},
		{entryTree, 4095},
		{entryCommit, 1 << 20},
		{entryOfsDelta, 1 << 40},
	}
	for _, c := range cases {
		encoded := writeEntryHeader(c.typ, c.size)
		gotType, gotSize, err := readEntryHeader(bytes.NewReader(encoded))
		require.NoError(t, err)
		assert.Equal(t, c.typ, gotType)
		assert.Equal(t, c.size, gotSize)
	}
}

func TestOfsDeltaOffsetRoundTrip(t *testing.T) {
	for _, off := range []int64{0, 1, 127, 128, 4000, 1 << 20, 1 << 40} {
		encoded := writeOfsDeltaOffset(off)
		got, err := readOfsDeltaOffset(bytes.NewReader(encoded))
		require.NoError(t, err)
		assert.Equal(t, off, got)
	}
}

func TestEntryTypeForRejectsInvalidType(t *testing.T) {
	_, err := entryTypeFor(0)
	assert.Error(t, err)
}
