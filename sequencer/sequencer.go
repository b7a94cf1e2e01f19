// Package sequencer implements a persistent state machine for
// multi-commit cherry-pick/revert/rebase sequences, resumable across
// process restarts via files under "sequencer/" in the git directory.
//
// Grounded on original_source/crates/git-merge/src/sequencer.rs, whose
// execute/continue_operation/abort/skip loop and head/opts/todo file
// layout this package mirrors closely. Unlike that reference's
// stubbed-out abort() (its own "TODO: Reset HEAD" comment left it a
// no-op), this package's Abort actually restores HEAD through
// refs.Store, matching the rest of this module's write paths.
package sequencer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/merge"
	"github.com/nullpx/gitcore/object"
	"github.com/nullpx/gitcore/refs"
)

// Operation identifies the kind of multi-commit operation a sequencer
// run drives.
type Operation int8

const (
	CherryPick Operation = iota
	Revert
	Rebase
)

func (o Operation) String() string {
	switch o {
	case CherryPick:
		return "cherry-pick"
	case Revert:
		return "revert"
	case Rebase:
		return "rebase"
	default:
		return "unknown"
	}
}

func parseOperation(s string) (Operation, error) {
	switch s {
	case "cherry-pick":
		return CherryPick, nil
	case "revert":
		return Revert, nil
	case "rebase":
		return Rebase, nil
	default:
		return 0, fmt.Errorf("sequencer: unknown operation %q", s)
	}
}

// Action is the per-commit step a todo entry performs.
type Action int8

const (
	Pick Action = iota
	ActionRevert
	Edit
	Squash
	Fixup
	Exec
	Break
)

func (a Action) String() string {
	switch a {
	case Pick:
		return "pick"
	case ActionRevert:
		return "revert"
	case Edit:
		return "edit"
	case Squash:
		return "squash"
	case Fixup:
		return "fixup"
	case Exec:
		return "exec"
	case Break:
		return "break"
	default:
		return "unknown"
	}
}

func parseAction(s string) (Action, error) {
	switch s {
	case "pick":
		return Pick, nil
	case "revert":
		return ActionRevert, nil
	case "edit":
		return Edit, nil
	case "squash":
		return Squash, nil
	case "fixup":
		return Fixup, nil
	case "exec":
		return Exec, nil
	case "break":
		return Break, nil
	default:
		return 0, fmt.Errorf("sequencer: unknown action %q", s)
	}
}

// Entry is a single step in the todo list.
type Entry struct {
	Commit  hash.ID // zero for Break and most Exec entries
	Action  Action
	Command string // the shell command text, set only for Exec
}

// Status reports whether Execute ran every entry or stopped partway.
type Status int8

const (
	Complete Status = iota
	Paused
)

// StepResult is returned by Execute/Continue/Skip: either every todo
// entry ran (Complete), or execution stopped at CurrentIndex because of
// a conflict or an Edit/Break entry (Paused), with Merge set whenever a
// merge was actually attempted for that step.
type StepResult struct {
	Status       Status
	CurrentIndex int
	Merge        *merge.Result
}

// ErrInProgress is returned by New when sequencer state already exists:
// only one sequencer may run against a repository at a time.
var ErrInProgress = errors.New("sequencer: operation already in progress")

const stateDir = "sequencer"

// Sequencer drives a multi-commit cherry-pick/revert/rebase sequence,
// persisting its progress to stateDir so it can be resumed after the
// process exits (e.g. to let the user resolve a conflict).
type Sequencer struct {
	fs           billy.Filesystem
	refs         *refs.Store
	store        merge.Store
	committer    object.Signature
	originalHead hash.ID
	operation    Operation
	entries      []Entry
	current      int
}

// New starts a sequencer for operation, anchored at the repository's
// current HEAD. It fails with ErrInProgress if sequencer state already
// exists on disk.
func New(fsys billy.Filesystem, refStore *refs.Store, store merge.Store, committer object.Signature, operation Operation) (*Sequencer, error) {
	if _, err := fsys.Stat(stateDir); err == nil {
		return nil, ErrInProgress
	}
	head, err := refStore.ResolveToOID("HEAD")
	if err != nil {
		return nil, err
	}
	return &Sequencer{
		fs:           fsys,
		refs:         refStore,
		store:        store,
		committer:    committer,
		originalHead: head,
		operation:    operation,
	}, nil
}

// Add appends one todo entry.
func (s *Sequencer) Add(commit hash.ID, action Action, command string) {
	s.entries = append(s.entries, Entry{Commit: commit, Action: action, Command: command})
}

// Operation reports which kind of run this is.
func (s *Sequencer) Operation() Operation { return s.operation }

// Current reports the index of the next entry to run.
func (s *Sequencer) Current() int { return s.current }

// Total reports the number of todo entries.
func (s *Sequencer) Total() int { return len(s.entries) }

// OriginalHead reports HEAD's value when the sequence started.
func (s *Sequencer) OriginalHead() hash.ID { return s.originalHead }

// Execute runs entries starting at Current until the list is exhausted
// or a step pauses. Clean steps are folded into HEAD by fast-forwarding
// the current branch ref to the new commit; a conflicted step leaves
// HEAD untouched so the caller can inspect and resolve it before
// calling Continue.
func (s *Sequencer) Execute() (StepResult, error) {
	if err := s.Save(); err != nil {
		return StepResult{}, err
	}

	for s.current < len(s.entries) {
		entry := s.entries[s.current]

		switch entry.Action {
		case Exec:
			// A real shell invocation belongs to the porcelain layer
			// driving this sequencer; this core only tracks the step.
			s.current++
			continue

		case Break:
			if err := s.Save(); err != nil {
				return StepResult{}, err
			}
			return StepResult{Status: Paused, CurrentIndex: s.current}, nil

		case Edit:
			head, err := s.refs.ResolveToOID("HEAD")
			if err != nil {
				return StepResult{}, err
			}
			newHead, result, err := merge.CherryPick(s.store, head, entry.Commit, s.committer, now())
			if err != nil {
				return StepResult{}, err
			}
			if !result.HasConflicts {
				if err := s.advanceHead(head, newHead); err != nil {
					return StepResult{}, err
				}
			}
			// Edit always pauses, clean or not, so the caller can amend.
			if err := s.Save(); err != nil {
				return StepResult{}, err
			}
			return StepResult{Status: Paused, CurrentIndex: s.current, Merge: result}, nil

		case Pick, Squash, Fixup:
			head, err := s.refs.ResolveToOID("HEAD")
			if err != nil {
				return StepResult{}, err
			}
			newHead, result, err := merge.CherryPick(s.store, head, entry.Commit, s.committer, now())
			if err != nil {
				return StepResult{}, err
			}
			if result.HasConflicts {
				if err := s.Save(); err != nil {
					return StepResult{}, err
				}
				return StepResult{Status: Paused, CurrentIndex: s.current, Merge: result}, nil
			}
			if err := s.advanceHead(head, newHead); err != nil {
				return StepResult{}, err
			}

		case ActionRevert:
			head, err := s.refs.ResolveToOID("HEAD")
			if err != nil {
				return StepResult{}, err
			}
			newHead, result, err := merge.Revert(s.store, head, entry.Commit, s.committer, now())
			if err != nil {
				return StepResult{}, err
			}
			if result.HasConflicts {
				if err := s.Save(); err != nil {
					return StepResult{}, err
				}
				return StepResult{Status: Paused, CurrentIndex: s.current, Merge: result}, nil
			}
			if err := s.advanceHead(head, newHead); err != nil {
				return StepResult{}, err
			}
		}

		s.current++
		if err := s.Save(); err != nil {
			return StepResult{}, err
		}
	}

	if err := s.cleanup(); err != nil {
		return StepResult{}, err
	}
	return StepResult{Status: Complete, CurrentIndex: s.current}, nil
}

// now is a seam so tests can observe the committer timestamp path
// without depending on wall-clock time elsewhere in this package.
var now = time.Now

func (s *Sequencer) advanceHead(oldHead, newHead hash.ID) error {
	head, err := s.refs.Resolve("HEAD")
	if err != nil {
		return err
	}
	target := "HEAD"
	if head.IsSymbolic() {
		target = head.Symbolic
	}
	tx := refs.NewTransaction()
	tx.Update(target, oldHead, newHead, "sequencer: "+s.operation.String())
	return s.refs.CommitTransaction(tx)
}

// Continue resumes after the caller has resolved a conflict at Current,
// advancing past it and re-entering Execute.
func (s *Sequencer) Continue() (StepResult, error) {
	s.current++
	return s.Execute()
}

// Skip drops the entry at Current without applying it and re-enters
// Execute.
func (s *Sequencer) Skip() (StepResult, error) {
	s.current++
	return s.Execute()
}

// Abort restores HEAD to its value when the sequence started and
// removes the persisted state.
func (s *Sequencer) Abort() error {
	head, err := s.refs.Resolve("HEAD")
	if err != nil {
		return err
	}
	target := "HEAD"
	if head.IsSymbolic() {
		target = head.Symbolic
	}
	tx := refs.NewTransaction()
	tx.Force(target, s.originalHead, "sequencer: abort "+s.operation.String())
	if err := s.refs.CommitTransaction(tx); err != nil {
		return err
	}
	return s.cleanup()
}

// Save persists the sequencer's full state to stateDir: head, opts, and
// todo, with every entry before Current marked "done".
func (s *Sequencer) Save() error {
	if err := s.fs.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	if err := s.writeFile("head", s.originalHead.String()+"\n"); err != nil {
		return err
	}
	if err := s.writeFile("opts", s.operation.String()+"\n"); err != nil {
		return err
	}

	var b strings.Builder
	for i, e := range s.entries {
		prefix := "todo"
		if i < s.current {
			prefix = "done"
		}
		if e.Action == Exec {
			fmt.Fprintf(&b, "%s %s %s\n", prefix, e.Action, e.Command)
			continue
		}
		fmt.Fprintf(&b, "%s %s %s\n", prefix, e.Action, e.Commit)
	}
	return s.writeFile("todo", b.String())
}

func (s *Sequencer) writeFile(name, content string) error {
	f, err := s.fs.Create(stateDir + "/" + name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.WriteString(f, content)
	return err
}

// Load reads a sequencer's state back from stateDir, returning nil, nil
// if no sequencer is in progress.
func Load(fsys billy.Filesystem, refStore *refs.Store, store merge.Store, committer object.Signature) (*Sequencer, error) {
	if _, err := fsys.Stat(stateDir); err != nil {
		return nil, nil
	}

	headData, err := readFile(fsys, stateDir+"/head")
	if err != nil {
		return nil, err
	}
	originalHead, err := hash.FromHex(strings.TrimSpace(headData))
	if err != nil {
		return nil, fmt.Errorf("sequencer: invalid head in state: %w", err)
	}

	optsData, err := readFile(fsys, stateDir+"/opts")
	if err != nil {
		return nil, err
	}
	operation, err := parseOperation(strings.TrimSpace(optsData))
	if err != nil {
		return nil, err
	}

	todoData, err := readFile(fsys, stateDir+"/todo")
	if err != nil {
		return nil, err
	}

	s := &Sequencer{
		fs:           fsys,
		refs:         refStore,
		store:        store,
		committer:    committer,
		originalHead: originalHead,
		operation:    operation,
	}

	scanner := bufio.NewScanner(strings.NewReader(todoData))
	done := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			continue
		}
		isDone := parts[0] == "done"
		action, err := parseAction(parts[1])
		if err != nil {
			continue
		}
		var entry Entry
		entry.Action = action
		if action == Exec {
			entry.Command = parts[2]
		} else {
			id, err := hash.FromHex(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, fmt.Errorf("sequencer: invalid commit OID in todo: %w", err)
			}
			entry.Commit = id
		}
		s.entries = append(s.entries, entry)
		if isDone {
			done++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	s.current = done
	return s, nil
}

func readFile(fsys billy.Filesystem, name string) (string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Sequencer) cleanup() error {
	return util.RemoveAll(s.fs, stateDir)
}
