package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Signature is the `author`/`committer`/`tagger` identity line:
// "name <email> <seconds> <±HHMM>". The timezone is stored in minutes
// east of UTC internally and formatted back to Git's signed HHMM form.
type Signature struct {
	Name        string
	Email       string
	When        time.Time
	TZOffsetMin int
}

// Decode parses a signature line's payload (everything after the
// "author "/"committer "/"tagger " keyword, with no trailing newline).
func (s *Signature) Decode(b []byte) {
	*s = Signature{}

	// Email is delimited by the last "<...>" pair, since names may
	// legitimately contain angle brackets.
	open := bytes.LastIndexByte(b, '<')
	close := bytes.LastIndexByte(b, '>')
	if open < 0 || close < 0 || close < open {
		s.Name = string(bytes.TrimSpace(b))
		return
	}

	s.Name = string(bytes.TrimSpace(b[:open]))
	s.Email = string(b[open+1 : close])

	rest := bytes.TrimSpace(b[close+1:])
	fields := bytes.Fields(rest)
	if len(fields) == 0 {
		return
	}

	if len(fields) >= 1 {
		if secs, err := strconv.ParseInt(string(fields[0]), 10, 64); err == nil {
			s.When = time.Unix(secs, 0).UTC()
		}
	}
	if len(fields) >= 2 {
		if off, ok := parseTZ(string(fields[1])); ok {
			s.TZOffsetMin = off
			loc := time.FixedZone("", off*60)
			s.When = s.When.In(loc)
		}
	}
}

// parseTZ parses a Git-style "±HHMM" timezone into minutes east of UTC.
func parseTZ(s string) (int, bool) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return 0, false
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, false
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return 0, false
	}
	total := hh*60 + mm
	if s[0] == '-' {
		total = -total
	}
	return total, true
}

// formatTZ formats minutes east of UTC as Git's "±HHMM".
func formatTZ(offsetMin int) string {
	sign := "+"
	if offsetMin < 0 {
		sign = "-"
		offsetMin = -offsetMin
	}
	return fmt.Sprintf("%s%02d%02d", sign, offsetMin/60, offsetMin%60)
}

// Encode formats the signature the way Git writes it into object payloads.
func (s Signature) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(s.Name)
	buf.WriteString(" <")
	buf.WriteString(s.Email)
	buf.WriteString("> ")
	buf.WriteString(strconv.FormatInt(s.When.Unix(), 10))
	buf.WriteByte(' ')
	buf.WriteString(formatTZ(s.TZOffsetMin))
	return buf.Bytes()
}

func (s Signature) String() string {
	return string(s.Encode())
}
