package pack

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDeltaLiteralAndCopy(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog")
	// base-size varint, result-size varint, copy [4,9) "quick", literal " slow ", copy [16,19) "fox"
	delta := append([]byte{}, encodeVarint(uint64(len(base)))...)
	delta = append(delta, encodeVarint(uint64(5+6+3))...)
	delta = append(delta, encodeCopy(4, 5)...)
	delta = append(delta, byte(6))
	delta = append(delta, []byte(" slow ")...)
	delta = append(delta, encodeCopy(16, 3)...)

	got, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, "quick slow fox", string(got))
}

func TestApplyDeltaRejectsWrongBaseSize(t *testing.T) {
	base := []byte("hello")
	delta := append([]byte{}, encodeVarint(999)...)
	delta = append(delta, encodeVarint(0)...)
	_, err := ApplyDelta(base, delta)
	assert.ErrorIs(t, err, ErrInvalidDelta)
}

func TestApplyDeltaRejectsReservedOpcode(t *testing.T) {
	base := []byte("hello")
	delta := append([]byte{}, encodeVarint(uint64(len(base)))...)
	delta = append(delta, encodeVarint(1)...)
	delta = append(delta, 0x00)
	_, err := ApplyDelta(base, delta)
	assert.ErrorIs(t, err, ErrInvalidDelta)
}

func TestComputeDeltaRoundTrip(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog, again and again and again")
	target := []byte("the slow brown fox leaps over the lazy dog, again and again and again and again")

	delta := ComputeDelta(base, target)
	got, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestComputeDeltaRoundTripRandom(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	base := make([]byte, 4096)
	r.Read(base)

	target := append([]byte(nil), base[:2048]...)
	target = append(target, []byte("some inserted bytes that are not in base at all")...)
	target = append(target, base[3000:]...)

	delta := ComputeDelta(base, target)
	got, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(target, got))
}

func TestComputeDeltaEmptyBase(t *testing.T) {
	target := []byte("brand new content with no base at all")
	delta := ComputeDelta(nil, target)
	got, err := ApplyDelta(nil, delta)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 16383, 16384, 1 << 35} {
		encoded := encodeVarint(v)
		got, rest := decodeVarint(encoded)
		assert.Equal(t, v, got)
		assert.Empty(t, rest)
	}
}
