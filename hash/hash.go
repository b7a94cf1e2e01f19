// Package hash implements content-addressed object identifiers.
//
// The primary algorithm is SHA-1, matching Git's on-disk format exactly.
// SHA-256 is supported as a parallel algorithm: it is never mixed with
// SHA-1 within a single repository, but the same ID type threads both.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strconv"

	"github.com/pjbgf/sha1cd"
)

// Algorithm identifies which hash function produced an ID.
type Algorithm uint8

const (
	// SHA1 is Git's original and default object hash.
	SHA1 Algorithm = iota
	// SHA256 is the newer object hash, usable alongside SHA1 as long as
	// a repository threads one algorithm uniformly through every ID.
	SHA256
)

const (
	// Size is the digest length of SHA-1, in bytes.
	Size = 20
	// HexSize is the hex-encoded length of a SHA-1 digest.
	HexSize = Size * 2
	// Size256 is the digest length of SHA-256, in bytes.
	Size256 = 32
	// HexSize256 is the hex-encoded length of a SHA-256 digest.
	HexSize256 = Size256 * 2
)

func (a Algorithm) Size() int {
	if a == SHA256 {
		return Size256
	}
	return Size
}

func (a Algorithm) String() string {
	if a == SHA256 {
		return "sha256"
	}
	return "sha1"
}

func newHash(a Algorithm) hash.Hash {
	if a == SHA256 {
		return sha256.New()
	}
	return sha1cd.New()
}

// ErrUnsupportedAlgorithm is returned when an unknown Algorithm is used.
var ErrUnsupportedAlgorithm = errors.New("hash: unsupported algorithm")

// ID is a content-addressed object identifier: a fixed-size digest plus the
// algorithm that produced it. The zero value is the null ID (all zeros,
// SHA-1), Git's conventional way to denote the absence of an object.
type ID struct {
	algo Algorithm
	b    [Size256]byte
}

// Zero is the null ID for SHA-1 (all-zero 20 bytes).
var Zero ID

// FromBytes builds an ID from raw digest bytes. The algorithm is inferred
// from the slice length (20 => SHA-1, 32 => SHA-256).
func FromBytes(b []byte) (ID, error) {
	var id ID
	switch len(b) {
	case Size:
		id.algo = SHA1
	case Size256:
		id.algo = SHA256
	default:
		return ID{}, fmt.Errorf("hash: invalid digest length %d", len(b))
	}
	copy(id.b[:], b)
	return id, nil
}

// FromHex parses a hex string, inferring the algorithm from its length.
func FromHex(s string) (ID, error) {
	switch len(s) {
	case HexSize, HexSize256:
	default:
		return ID{}, fmt.Errorf("hash: invalid hex length %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("hash: invalid hex: %w", err)
	}
	return FromBytes(raw)
}

// MustFromHex is FromHex but panics on error; for use with literal
// constants in tests.
func MustFromHex(s string) ID {
	id, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Algorithm reports which hash function produced this ID.
func (id ID) Algorithm() Algorithm { return id.algo }

// Bytes returns the raw digest.
func (id ID) Bytes() []byte {
	return append([]byte(nil), id.b[:id.algo.Size()]...)
}

// String formats the ID as lowercase hex, matching Git's object naming.
func (id ID) String() string {
	return hex.EncodeToString(id.b[:id.algo.Size()])
}

// IsZero reports whether this is the null ID.
func (id ID) IsZero() bool {
	n := id.algo.Size()
	for i := 0; i < n; i++ {
		if id.b[i] != 0 {
			return false
		}
	}
	return true
}

// Compare orders two IDs by their raw bytes (algorithm assumed equal).
func (id ID) Compare(other ID) int {
	n := id.algo.Size()
	return bytes.Compare(id.b[:n], other.b[:n])
}

// HasPrefix reports whether the ID's hex representation starts with prefix.
func (id ID) HasPrefix(prefix string) bool {
	return len(prefix) <= id.algo.Size()*2 && id.String()[:len(prefix)] == prefix
}

// Slice sorts IDs in ascending order, matching Git's canonical ordering.
type Slice []ID

func (s Slice) Len() int           { return len(s) }
func (s Slice) Less(i, j int) bool { return s[i].Compare(s[j]) < 0 }
func (s Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sort sorts ids in place.
func Sort(ids []ID) { sort.Sort(Slice(ids)) }

// Hasher incrementally computes the hash of a serialized Git object: the
// digest of "<type> <size>\0<payload>", never the compressed form.
type Hasher struct {
	h    hash.Hash
	algo Algorithm
}

// NewHasher primes a Hasher with the object header for the given type name
// and payload size, ready to receive the payload via Write.
func NewHasher(algo Algorithm, typeName string, size int64) *Hasher {
	hr := &Hasher{h: newHash(algo), algo: algo}
	hr.h.Write([]byte(typeName))
	hr.h.Write([]byte{' '})
	hr.h.Write([]byte(strconv.FormatInt(size, 10)))
	hr.h.Write([]byte{0})
	return hr
}

func (hr *Hasher) Write(p []byte) (int, error) { return hr.h.Write(p) }

// Sum finalizes the digest into an ID.
func (hr *Hasher) Sum() ID {
	var id ID
	id.algo = hr.algo
	copy(id.b[:], hr.h.Sum(nil))
	return id
}

// Sum computes the ID of "<typeName> <len(payload)>\0<payload>" in one call.
func Sum(algo Algorithm, typeName string, payload []byte) ID {
	hr := NewHasher(algo, typeName, int64(len(payload)))
	hr.Write(payload)
	return hr.Sum()
}

// New returns a plain, unprimed hash.Hash for raw-byte checksums (pack
// trailers, index trailers) as opposed to object hashing.
func New(a Algorithm) hash.Hash {
	return newHash(a)
}
