package config

import (
	"io"

	"github.com/go-git/gcfg"
)

// Decoder reads and decodes `.git/config`-dialect text from an input
// stream, the way plumbing/format/config's Decoder wraps the same
// gcfg callback API.
type Decoder struct {
	io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r}
}

// Decode parses the whole input into cfg, discarding comments (this
// core does not round-trip them — it rewrites config files from
// scratch on save, like go-git's filesystem config storage does).
func (d *Decoder) Decode(cfg *Config) error {
	cb := func(s, ss, k, v string, _ bool) error {
		if ss == "" && k == "" {
			cfg.Section(s)
			return nil
		}
		if ss != "" && k == "" {
			cfg.Section(s).Subsection(ss)
			return nil
		}
		cfg.AddOption(s, ss, k, v)
		return nil
	}
	return gcfg.ReadWithCallback(d, cb)
}
