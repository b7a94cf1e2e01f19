package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/nullpx/gitcore/hash"
)

// Tag is an annotated tag object.
type Tag struct {
	Target     hash.ID
	TargetType Type
	Name       string
	Tagger     *Signature // optional
	Message    []byte
}

// Encode serializes the tag in Git's canonical byte form.
func (t *Tag) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Target.String())
	fmt.Fprintf(&buf, "type %s\n", t.TargetType.String())
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		writeHeaderLine(&buf, "tagger", t.Tagger.String())
	}
	buf.WriteByte('\n')
	buf.Write(t.Message)
	return buf.Bytes()
}

// DecodeTag parses a tag object's payload.
func DecodeTag(payload []byte, algo hash.Algorithm) (*Tag, error) {
	if algo == 0 {
		algo = hash.SHA1
	}
	t := &Tag{}
	r := bufio.NewReader(bytes.NewReader(payload))

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			rest, _ := io.ReadAll(r)
			t.Message = rest
			return t, nil
		}
		sp := strings.IndexByte(trimmed, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("object: malformed tag header %q", trimmed)
		}
		key, val := trimmed[:sp], trimmed[sp+1:]
		switch key {
		case "object":
			id, e := hash.FromHex(val)
			if e != nil {
				return nil, fmt.Errorf("object: bad tag target OID: %w", e)
			}
			t.Target = id
		case "type":
			typ, e := ParseType(val)
			if e != nil {
				return nil, e
			}
			t.TargetType = typ
		case "tag":
			t.Name = val
		case "tagger":
			var sig Signature
			sig.Decode([]byte(val))
			t.Tagger = &sig
		}
		if err == io.EOF {
			return t, nil
		}
	}
}
