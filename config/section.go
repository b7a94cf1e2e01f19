package config

import "fmt"

// Option is a single "key = value" line inside a section or subsection.
// A key may repeat; the last value wins for single-valued lookups while
// all values survive for OptionAll, matching Git's own config semantics.
type Option struct {
	Key   string
	Value string
}

// IsKey reports whether o's key equals key, case-insensitively (Git
// config keys are case-insensitive).
func (o *Option) IsKey(key string) bool {
	return isEqualFold(o.Key, key)
}

// Options is a list of Option.
type Options []*Option

// GoString implements fmt.GoStringer for debugging/test diffs.
func (opts Options) GoString() string {
	var out string
	for i, o := range opts {
		if i != 0 {
			out += ", "
		}
		out += fmt.Sprintf("&config.Option{Key:%q, Value:%q}", o.Key, o.Value)
	}
	return out
}

// Section is a top-level `[name]` block, holding direct options and any
// subsections nested under it.
type Section struct {
	Name        string
	Options     Options
	Subsections Subsections
}

// IsName reports whether s's name equals name, case-insensitively.
func (s *Section) IsName(name string) bool {
	return isEqualFold(s.Name, name)
}

// Subsection returns the named subsection, creating it if absent.
func (s *Section) Subsection(name string) *Subsection {
	for _, ss := range s.Subsections {
		if ss.isExactName(name) {
			return ss
		}
	}
	ss := &Subsection{Name: name}
	s.Subsections = append(s.Subsections, ss)
	return ss
}

// HasSubsection reports whether s has a subsection named name.
func (s *Section) HasSubsection(name string) bool {
	for _, ss := range s.Subsections {
		if ss.isExactName(name) {
			return true
		}
	}
	return false
}

// RemoveSubsection drops the named subsection from s.
func (s *Section) RemoveSubsection(name string) *Section {
	result := Subsections{}
	for _, ss := range s.Subsections {
		if !ss.isExactName(name) {
			result = append(result, ss)
		}
	}
	s.Subsections = result
	return s
}

// Option returns the last value set for key, or "" if key is unset.
func (s *Section) Option(key string) string {
	return s.Options.last(key)
}

// OptionAll returns every value set for key, in insertion order.
func (s *Section) OptionAll(key string) []string {
	return s.Options.all(key)
}

// HasOption reports whether key has at least one value in s.
func (s *Section) HasOption(key string) bool {
	return s.Options.has(key)
}

// AddOption appends a new key/value pair, preserving any existing ones.
func (s *Section) AddOption(key, value string) *Section {
	s.Options = s.Options.withAdded(key, value)
	return s
}

// SetOption drops every existing value of key and appends values in
// their place (at the end of the option list, not key's old position).
func (s *Section) SetOption(key string, values ...string) *Section {
	s.Options = s.Options.withRemoved(key)
	for _, v := range values {
		s.Options = s.Options.withAdded(key, v)
	}
	return s
}

// RemoveOption deletes every value of key from s.
func (s *Section) RemoveOption(key string) *Section {
	s.Options = s.Options.withRemoved(key)
	return s
}

// GoString implements fmt.GoStringer for debugging/test diffs.
func (s *Section) GoString() string {
	return fmt.Sprintf("&config.Section{Name:%q, Options:%s, Subsections:%s}",
		s.Name, s.Options.GoString(), s.Subsections.GoString())
}

// Sections is a list of Section.
type Sections []*Section

// GoString implements fmt.GoStringer for debugging/test diffs.
func (secs Sections) GoString() string {
	var out string
	for i, s := range secs {
		if i != 0 {
			out += ", "
		}
		out += s.GoString()
	}
	return out
}

// Subsection is a `[section "name"]` block. Unlike a top-level Section
// name, a subsection name is case-sensitive (Git preserves subsection
// name casing verbatim).
type Subsection struct {
	Name    string
	Options Options
}

// IsName reports whether ss's name equals name, case-sensitively.
func (ss *Subsection) IsName(name string) bool {
	return ss.Name == name
}

func (ss *Subsection) isExactName(name string) bool {
	return ss.Name == name
}

// Option returns the last value set for key, or "" if key is unset.
func (ss *Subsection) Option(key string) string {
	return ss.Options.last(key)
}

// OptionAll returns every value set for key, in insertion order.
func (ss *Subsection) OptionAll(key string) []string {
	return ss.Options.all(key)
}

// HasOption reports whether key has at least one value in ss.
func (ss *Subsection) HasOption(key string) bool {
	return ss.Options.has(key)
}

// AddOption appends a new key/value pair, preserving any existing ones.
func (ss *Subsection) AddOption(key, value string) *Subsection {
	ss.Options = ss.Options.withAdded(key, value)
	return ss
}

// SetOption overwrites key's values positionally, in place, with values:
// the Nth existing occurrence of key keeps its position but takes
// values[N]; occurrences beyond len(values) are dropped, and values
// beyond the existing occurrence count are appended at the end.
func (ss *Subsection) SetOption(key string, values ...string) *Subsection {
	ss.Options = ss.Options.withSet(key, values)
	return ss
}

// RemoveOption deletes every value of key from ss.
func (ss *Subsection) RemoveOption(key string) *Subsection {
	ss.Options = ss.Options.withRemoved(key)
	return ss
}

// GoString implements fmt.GoStringer for debugging/test diffs.
func (ss *Subsection) GoString() string {
	return fmt.Sprintf("&config.Subsection{Name:%q, Options:%s}", ss.Name, ss.Options.GoString())
}

// Subsections is a list of Subsection.
type Subsections []*Subsection

// GoString implements fmt.GoStringer for debugging/test diffs.
func (subs Subsections) GoString() string {
	var out string
	for i, ss := range subs {
		if i != 0 {
			out += ", "
		}
		out += ss.GoString()
	}
	return out
}

func (opts Options) last(key string) string {
	for i := len(opts) - 1; i >= 0; i-- {
		if opts[i].IsKey(key) {
			return opts[i].Value
		}
	}
	return ""
}

func (opts Options) all(key string) []string {
	result := []string{}
	for _, o := range opts {
		if o.IsKey(key) {
			result = append(result, o.Value)
		}
	}
	return result
}

func (opts Options) has(key string) bool {
	for _, o := range opts {
		if o.IsKey(key) {
			return true
		}
	}
	return false
}

func (opts Options) withAdded(key, value string) Options {
	return append(opts, &Option{Key: key, Value: value})
}

func (opts Options) withSet(key string, values []string) Options {
	result := Options{}
	var used int
	for _, o := range opts {
		if o.IsKey(key) {
			if used < len(values) {
				o.Value = values[used]
				used++
			} else {
				continue
			}
		}
		result = append(result, o)
	}
	for ; used < len(values); used++ {
		result = append(result, &Option{Key: key, Value: values[used]})
	}
	return result
}

func (opts Options) withRemoved(key string) Options {
	result := Options{}
	for _, o := range opts {
		if !o.IsKey(key) {
			result = append(result, o)
		}
	}
	return result
}

func isEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
