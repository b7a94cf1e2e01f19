// Package repository aggregates the object database, reference store,
// staging index, and config of a single Git repository, the way
// go-git's own Repository type composes a Storer and a worktree
// filesystem.
package repository

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/nullpx/gitcore/config"
	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/index"
	"github.com/nullpx/gitcore/object"
	"github.com/nullpx/gitcore/odb"
	"github.com/nullpx/gitcore/refs"
	"github.com/nullpx/gitcore/revwalk"
	"github.com/nullpx/gitcore/sequencer"
)

// DefaultBranch is the initial branch HEAD points to in a newly
// initialized repository, matching modern Git's default.
const DefaultBranch = "refs/heads/main"

// ErrRepositoryAlreadyExists is returned by Init when fs already holds
// a HEAD reference.
var ErrRepositoryAlreadyExists = errors.New("repository: already exists")

// ErrRepositoryNotExists is returned by Open when fs holds no HEAD
// reference.
var ErrRepositoryNotExists = errors.New("repository: does not exist")

// Repository is a single repository's aggregated state: its object
// database, its reference store, its config, and (for a non-bare
// repository) its working tree filesystem.
type Repository struct {
	fs       billy.Filesystem // the ".git" directory (or the bare root)
	worktree billy.Filesystem // nil for a bare repository

	Algo   hash.Algorithm
	ODB    *odb.DB
	Refs   *refs.Store
	Config *config.Config
}

// Init creates a new repository rooted at fs (its ".git" directory).
// worktree is nil for a bare repository. It fails with
// ErrRepositoryAlreadyExists if fs already has a HEAD.
func Init(fs billy.Filesystem, worktree billy.Filesystem, algo hash.Algorithm) (*Repository, error) {
	if _, err := fs.Stat("HEAD"); err == nil {
		return nil, ErrRepositoryAlreadyExists
	}

	db, err := odb.Open(fs, "", algo)
	if err != nil {
		return nil, err
	}
	refStore := refs.Open(fs, algo)
	if err := refStore.WriteSymbolicRef("HEAD", DefaultBranch); err != nil {
		return nil, err
	}

	cfg := config.New()
	core := config.CoreOf(cfg)
	core.SetBare(worktree == nil)
	if err := config.Save(fs, cfg); err != nil {
		return nil, err
	}

	return &Repository{
		fs:       fs,
		worktree: worktree,
		Algo:     algo,
		ODB:      db,
		Refs:     refStore,
		Config:   cfg,
	}, nil
}

// Open opens an existing repository rooted at fs. It fails with
// ErrRepositoryNotExists if fs has no HEAD reference.
func Open(fs billy.Filesystem, worktree billy.Filesystem, algo hash.Algorithm) (*Repository, error) {
	if _, err := fs.Stat("HEAD"); err != nil {
		return nil, ErrRepositoryNotExists
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return nil, err
	}

	db, err := odb.Open(fs, "", algo)
	if err != nil {
		return nil, err
	}
	refStore := refs.Open(fs, algo)

	return &Repository{
		fs:       fs,
		worktree: worktree,
		Algo:     algo,
		ODB:      db,
		Refs:     refStore,
		Config:   cfg,
	}, nil
}

// IsBare reports whether the repository has no working tree, per its
// stored core.bare setting.
func (r *Repository) IsBare() bool {
	return config.CoreOf(r.Config).Bare()
}

// Worktree returns the repository's working tree filesystem, or nil
// (with ok=false) for a bare repository.
func (r *Repository) Worktree() (billy.Filesystem, bool) {
	return r.worktree, r.worktree != nil
}

// Head resolves HEAD to its current commit OID.
func (r *Repository) Head() (hash.ID, error) {
	return r.Refs.ResolveToOID("HEAD")
}

// Index loads the staging area from the repository's "index" file. A
// missing file yields an empty Index, matching a freshly initialized
// repository with nothing staged yet.
func (r *Repository) Index() (*index.Index, error) {
	f, err := r.fs.Open("index")
	if err != nil {
		if isNotExist(err) {
			return index.New(r.Algo), nil
		}
		return nil, err
	}
	defer f.Close()

	idx := index.New(r.Algo)
	if err := index.NewDecoder(f, r.Algo).Decode(idx); err != nil {
		return nil, fmt.Errorf("repository: decode index: %w", err)
	}
	return idx, nil
}

// SetIndex writes idx back to the repository's "index" file.
func (r *Repository) SetIndex(idx *index.Index) error {
	f, err := r.fs.Create("index")
	if err != nil {
		return err
	}
	defer f.Close()
	return index.NewEncoder(f, r.Algo).Encode(idx)
}

// SaveConfig persists the repository's in-memory Config back to disk.
func (r *Repository) SaveConfig() error {
	return config.Save(r.fs, r.Config)
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

// StartSequencer begins a cherry-pick/revert/rebase run against this
// repository's refs and object database, failing with
// sequencer.ErrInProgress if one is already under way.
func (r *Repository) StartSequencer(committer object.Signature, op sequencer.Operation) (*sequencer.Sequencer, error) {
	return sequencer.New(r.fs, r.Refs, r.ODB, committer, op)
}

// LoadSequencer resumes a sequencer run already persisted under this
// repository's git directory, or returns nil, nil if none is in progress.
func (r *Repository) LoadSequencer(committer object.Signature) (*sequencer.Sequencer, error) {
	return sequencer.Load(r.fs, r.Refs, r.ODB, committer)
}

// Log returns a revision walker rooted at this repository's object
// database, ready for Push/Hide/ApplyRange calls against r.Refs as the
// Resolver.
func (r *Repository) Log(opts revwalk.Options) *revwalk.Walker {
	return revwalk.New(r.ODB, opts)
}
