package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/nullpx/gitcore/hash"
)

// ExtraHeader is an arbitrary, order-preserved commit header beyond the
// well-known tree/parent/author/committer/encoding/gpgsig fields (e.g.
// "mergetag").
type ExtraHeader struct {
	Key   string
	Value string
}

// Commit is a Git commit object: a tree, zero or more parents, author
// and committer identities, and a message.
type Commit struct {
	Tree         hash.ID
	Parents      []hash.ID
	Author       Signature
	Committer    Signature
	Encoding     string // optional; "" means absent
	GPGSignature string // optional; "" means absent
	ExtraHeaders []ExtraHeader
	Message      []byte // raw; may contain trailing newlines
}

// Encode serializes the commit in Git's canonical byte form.
func (c *Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree.String())
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p.String())
	}
	writeHeaderLine(&buf, "author", c.Author.String())
	writeHeaderLine(&buf, "committer", c.Committer.String())
	if c.Encoding != "" {
		writeHeaderLine(&buf, "encoding", c.Encoding)
	}
	for _, h := range c.ExtraHeaders {
		writeHeaderLine(&buf, h.Key, h.Value)
	}
	if c.GPGSignature != "" {
		writeHeaderLine(&buf, "gpgsig", c.GPGSignature)
	}
	buf.WriteByte('\n')
	buf.Write(c.Message)
	return buf.Bytes()
}

// writeHeaderLine writes "key value\n", indenting continuation lines of a
// multi-line value with a single space, matching Git's header-folding rule
// (used for gpgsig and mergetag bodies).
func writeHeaderLine(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte(' ')
	lines := strings.Split(value, "\n")
	buf.WriteString(lines[0])
	buf.WriteByte('\n')
	for _, l := range lines[1:] {
		buf.WriteByte(' ')
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
}

// DecodeCommit parses a commit object's payload.
func DecodeCommit(payload []byte, algo hash.Algorithm) (*Commit, error) {
	if algo == 0 {
		algo = hash.SHA1
	}
	c := &Commit{}
	r := bufio.NewReader(bytes.NewReader(payload))

	var pendingKey string
	var pendingVal strings.Builder
	flush := func() error {
		if pendingKey == "" {
			return nil
		}
		val := pendingVal.String()
		switch pendingKey {
		case "tree":
			id, err := hash.FromHex(val)
			if err != nil {
				return fmt.Errorf("object: bad tree OID: %w", err)
			}
			c.Tree = id
		case "parent":
			id, err := hash.FromHex(val)
			if err != nil {
				return fmt.Errorf("object: bad parent OID: %w", err)
			}
			c.Parents = append(c.Parents, id)
		case "author":
			c.Author.Decode([]byte(val))
		case "committer":
			c.Committer.Decode([]byte(val))
		case "encoding":
			c.Encoding = val
		case "gpgsig":
			c.GPGSignature = val
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: pendingKey, Value: val})
		}
		pendingKey = ""
		pendingVal.Reset()
		return nil
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if line == "" && err == io.EOF {
			break
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if trimmed == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			// Blank line ends the header block; remainder is the message.
			rest, _ := io.ReadAll(r)
			c.Message = rest
			return c, nil
		}
		if strings.HasPrefix(trimmed, " ") {
			// Continuation of a multi-line header value.
			pendingVal.WriteByte('\n')
			pendingVal.WriteString(trimmed[1:])
		} else {
			if err := flush(); err != nil {
				return nil, err
			}
			sp := strings.IndexByte(trimmed, ' ')
			if sp < 0 {
				return nil, fmt.Errorf("object: malformed commit header %q", trimmed)
			}
			pendingKey = trimmed[:sp]
			pendingVal.WriteString(trimmed[sp+1:])
		}
		if err == io.EOF {
			break
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return c, nil
}
