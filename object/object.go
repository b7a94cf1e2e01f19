// Package object implements Git's four object variants (blob, tree, commit,
// tag) with byte-exact encode/decode.
package object

import (
	"errors"
	"fmt"

	"github.com/nullpx/gitcore/hash"
)

// Type identifies which of the four object variants a payload holds.
type Type int8

const (
	InvalidType Type = 0
	CommitType  Type = 1
	TreeType    Type = 2
	BlobType    Type = 3
	TagType     Type = 4
	// OFSDeltaType and RefDeltaType appear only inside packfiles; they
	// are never the type of an object stored in the ODB.
	OFSDeltaType Type = 6
	RefDeltaType Type = 7
)

func (t Type) String() string {
	switch t {
	case CommitType:
		return "commit"
	case TreeType:
		return "tree"
	case BlobType:
		return "blob"
	case TagType:
		return "tag"
	case OFSDeltaType:
		return "ofs-delta"
	case RefDeltaType:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// ParseType parses the ASCII type name written into loose object headers
// and pack entries.
func ParseType(s string) (Type, error) {
	switch s {
	case "commit":
		return CommitType, nil
	case "tree":
		return TreeType, nil
	case "blob":
		return BlobType, nil
	case "tag":
		return TagType, nil
	default:
		return InvalidType, fmt.Errorf("object: unknown type %q", s)
	}
}

// Valid reports whether t names one of the four storable object variants.
func (t Type) Valid() bool {
	return t >= CommitType && t <= TagType
}

var (
	// ErrUnsupportedType is returned by codecs given a non-storable Type.
	ErrUnsupportedType = errors.New("object: unsupported type")
)

// Object is the tagged union over the four variants. Exactly one of the
// typed fields is meaningful, selected by Type.
type Object struct {
	Type   Type
	Blob   *Blob
	Tree   *Tree
	Commit *Commit
	Tag    *Tag
}

// Encode serializes the payload (not including the "<type> <size>\0"
// header) in Git's canonical byte form.
func (o *Object) Encode() ([]byte, error) {
	switch o.Type {
	case BlobType:
		return o.Blob.Encode(), nil
	case TreeType:
		return o.Tree.Encode(), nil
	case CommitType:
		return o.Commit.Encode(), nil
	case TagType:
		return o.Tag.Encode(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Decode parses payload bytes (without the header) into the Object variant
// named by typ. algo selects the hash size used for embedded OIDs (tree
// entries, commit tree/parents); it defaults to SHA-1 when the zero value
// is passed, matching the repository's default algorithm.
func Decode(typ Type, payload []byte, algo hash.Algorithm) (*Object, error) {
	switch typ {
	case BlobType:
		return &Object{Type: typ, Blob: NewBlob(payload)}, nil
	case TreeType:
		t, err := DecodeTree(payload, algo)
		if err != nil {
			return nil, err
		}
		return &Object{Type: typ, Tree: t}, nil
	case CommitType:
		c, err := DecodeCommit(payload, algo)
		if err != nil {
			return nil, err
		}
		return &Object{Type: typ, Commit: c}, nil
	case TagType:
		tg, err := DecodeTag(payload, algo)
		if err != nil {
			return nil, err
		}
		return &Object{Type: typ, Tag: tg}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Hash computes the object's ID for the given hash algorithm.
func (o *Object) Hash(algo hash.Algorithm) (hash.ID, error) {
	payload, err := o.Encode()
	if err != nil {
		return hash.ID{}, err
	}
	return hash.Sum(algo, o.Type.String(), payload), nil
}
