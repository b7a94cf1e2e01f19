package config

import (
	"os"
	"strconv"

	"github.com/go-git/go-billy/v5"
)

// Path is the conventional location of a repository's config file,
// relative to the git directory.
const Path = "config"

// Load reads and parses the config file at Path inside fs. A missing
// file is not an error: it yields an empty Config, the same way a
// freshly `git init`-ed bare directory has no config section beyond
// what `git init` itself wrote.
func Load(fs billy.Filesystem) (*Config, error) {
	f, err := fs.Open(Path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	defer f.Close()

	cfg := New()
	if err := NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to Path inside fs, truncating any existing file.
func Save(fs billy.Filesystem, cfg *Config) error {
	f, err := fs.Create(Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return NewEncoder(f).Encode(cfg)
}

// Core exposes the handful of `core.*` keys this package's callers
// (repository.Repository) actually need as typed values; everything
// else in `[core]` and every other section stays reachable as raw
// Section/Subsection/Option data via Config itself.
type Core struct {
	cfg *Config
}

// CoreOf returns a typed view over cfg's `[core]` section.
func CoreOf(cfg *Config) Core {
	return Core{cfg: cfg}
}

// Bare reports core.bare (default false).
func (c Core) Bare() bool {
	return parseBool(c.cfg.GetOption("core", NoSubsection, "bare"), false)
}

// SetBare sets core.bare.
func (c Core) SetBare(v bool) {
	c.cfg.SetOption("core", NoSubsection, "bare", strconv.FormatBool(v))
}

// FSync reports core.fsync (default false: Git itself defaults to
// relying on the filesystem/OS rather than fsync-ing every write).
func (c Core) FSync() bool {
	return parseBool(c.cfg.GetOption("core", NoSubsection, "fsync"), false)
}

// SetFSync sets core.fsync.
func (c Core) SetFSync(v bool) {
	c.cfg.SetOption("core", NoSubsection, "fsync", strconv.FormatBool(v))
}

// Symlinks reports core.symlinks (default true: most platforms this
// core runs on support real symlinks).
func (c Core) Symlinks() bool {
	return parseBool(c.cfg.GetOption("core", NoSubsection, "symlinks"), true)
}

// SetSymlinks sets core.symlinks.
func (c Core) SetSymlinks(v bool) {
	c.cfg.SetOption("core", NoSubsection, "symlinks", strconv.FormatBool(v))
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}
