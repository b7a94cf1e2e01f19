package config

import (
	"fmt"
	"io"
	"strings"
)

// Encoder writes a Config back out in Git's own `.git/config` textual
// form: tab-indented "key = value" lines under "[section]" and
// `[section "subsection"]` headers, values quoted only when they
// contain characters a bare scan would misparse.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w}
}

// Encode serializes cfg to the encoder's writer.
func (e *Encoder) Encode(cfg *Config) error {
	for _, s := range cfg.Sections {
		if err := e.encodeSection(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeSection(s *Section) error {
	if _, err := fmt.Fprintf(e.w, "[%s]\n", s.Name); err != nil {
		return err
	}
	if err := e.encodeOptions(s.Options); err != nil {
		return err
	}
	for _, ss := range s.Subsections {
		if err := e.encodeSubsection(s.Name, ss); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeSubsection(section string, ss *Subsection) error {
	if _, err := fmt.Fprintf(e.w, "[%s %q]\n", section, ss.Name); err != nil {
		return err
	}
	return e.encodeOptions(ss.Options)
}

func (e *Encoder) encodeOptions(opts Options) error {
	for _, o := range opts {
		if _, err := fmt.Fprintf(e.w, "\t%s = %s\n", o.Key, quoteValue(o.Value)); err != nil {
			return err
		}
	}
	return nil
}

func quoteValue(v string) string {
	if !needsQuote(v) {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func needsQuote(v string) bool {
	if v == "" {
		return false
	}
	if strings.ContainsAny(v, "#;\"\\") {
		return true
	}
	if v[0] == ' ' || v[len(v)-1] == ' ' {
		return true
	}
	return false
}
