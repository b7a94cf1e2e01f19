// Package config implements the `.git/config` INI dialect: sections,
// case-sensitive subsections, multi-valued options, parsed through
// gcfg and re-serialized byte-compatibly with Git's own writer.
//
// This core only needs a narrow slice of full git-config semantics:
// core.bare/core.fsync/core.symlinks as typed fields, plus raw
// section/subsection access for everything else (remotes, branches) a
// caller may want to read or round-trip.
package config

// NoSubsection is passed to Section/SetOption/AddOption/GetOption to
// mean "no subsection", matching Git's own flat [section] blocks.
const NoSubsection = ""

// New returns an empty Config.
func New() *Config {
	return &Config{}
}

// Config is the parsed form of a config file: a flat, ordered list of
// sections (each possibly repeated, each with its own subsections).
type Config struct {
	Sections Sections
}

// Section returns the named top-level section, creating it (appended
// at the end) if it does not already exist.
func (c *Config) Section(name string) *Section {
	for i := len(c.Sections) - 1; i >= 0; i-- {
		if c.Sections[i].IsName(name) {
			return c.Sections[i]
		}
	}
	s := &Section{Name: name}
	c.Sections = append(c.Sections, s)
	return s
}

// HasSection reports whether name exists as a top-level section.
func (c *Config) HasSection(name string) bool {
	for _, s := range c.Sections {
		if s.IsName(name) {
			return true
		}
	}
	return false
}

// RemoveSection drops every top-level section named name.
func (c *Config) RemoveSection(name string) *Config {
	result := Sections{}
	for _, s := range c.Sections {
		if !s.IsName(name) {
			result = append(result, s)
		}
	}
	c.Sections = result
	return c
}

// RemoveSubsection drops subsection from every occurrence of section.
func (c *Config) RemoveSubsection(section, subsection string) *Config {
	for _, s := range c.Sections {
		if s.IsName(section) {
			s.RemoveSubsection(subsection)
		}
	}
	return c
}

// AddOption appends key=value under section (and subsection, unless
// subsection is NoSubsection).
func (c *Config) AddOption(section, subsection, key, value string) *Config {
	if subsection == NoSubsection {
		c.Section(section).AddOption(key, value)
	} else {
		c.Section(section).Subsection(subsection).AddOption(key, value)
	}
	return c
}

// SetOption replaces every existing value of key under section (and
// subsection, unless NoSubsection) with values.
func (c *Config) SetOption(section, subsection, key string, values ...string) *Config {
	if subsection == NoSubsection {
		c.Section(section).SetOption(key, values...)
	} else {
		c.Section(section).Subsection(subsection).SetOption(key, values...)
	}
	return c
}

// GetOption returns key's last value under section (and subsection),
// or "" if unset — Git's own rule since v1.8.1: last definition wins.
func (c *Config) GetOption(section, subsection, key string) string {
	if subsection == NoSubsection {
		return c.Section(section).Option(key)
	}
	return c.Section(section).Subsection(subsection).Option(key)
}

// GetAllOptions returns every value of key under section (and
// subsection), in file order.
func (c *Config) GetAllOptions(section, subsection, key string) []string {
	if subsection == NoSubsection {
		return c.Section(section).OptionAll(key)
	}
	return c.Section(section).Subsection(subsection).OptionAll(key)
}
