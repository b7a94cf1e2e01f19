package refs

import (
	"errors"
	"fmt"
	"os"

	"github.com/nullpx/gitcore/hash"
)

type txOp int8

const (
	opUpdate txOp = iota
	opSymbolic
	opDelete
)

type txEntry struct {
	op          txOp
	name        string
	expectedOld *hash.ID // nil: no optimistic check
	newOID      hash.ID
	newTarget   string
	message     string
}

// Transaction batches ref updates for CommitTransaction's atomic
// multi-ref protocol.
type Transaction struct {
	entries []txEntry
}

// NewTransaction returns an empty Transaction.
func NewTransaction() *Transaction { return &Transaction{} }

// Create adds name -> oid, expecting the ref not to already exist (its
// current value, if any, must be the zero OID).
func (tx *Transaction) Create(name string, oid hash.ID, message string) {
	zero := hash.ID{}
	tx.entries = append(tx.entries, txEntry{op: opUpdate, name: name, expectedOld: &zero, newOID: oid, message: message})
}

// Update sets name -> newOID, only applied if its current value is oldOID.
func (tx *Transaction) Update(name string, oldOID, newOID hash.ID, message string) {
	old := oldOID
	tx.entries = append(tx.entries, txEntry{op: opUpdate, name: name, expectedOld: &old, newOID: newOID, message: message})
}

// Force sets name -> newOID unconditionally, without an optimistic check.
func (tx *Transaction) Force(name string, newOID hash.ID, message string) {
	tx.entries = append(tx.entries, txEntry{op: opUpdate, name: name, newOID: newOID, message: message})
}

// SetSymbolic points name at target symbolically.
func (tx *Transaction) SetSymbolic(name, target, message string) {
	tx.entries = append(tx.entries, txEntry{op: opSymbolic, name: name, newTarget: target, message: message})
}

// Delete removes name, only applied if its current value is oldOID.
func (tx *Transaction) Delete(name string, oldOID hash.ID, message string) {
	old := oldOID
	tx.entries = append(tx.entries, txEntry{op: opDelete, name: name, expectedOld: &old, message: message})
}

type lockedEntry struct {
	entry    txEntry
	lockPath string
	oldRef   *Reference // nil if the ref didn't previously exist
}

// CommitTransaction applies tx atomically: lock every entry
// (O_CREAT|O_EXCL on "<name>.lock"), compare
// each against its declared expected value, write new values into the
// lockfiles, append reflog entries, then commit by renaming every
// lockfile over its target. Rename is atomic per file; ordering across
// refs is not guaranteed, but every individual ref transitions
// atomically. Any failure before the rename phase removes every
// lockfile acquired so far, leaving no ref changed.
func (s *Store) CommitTransaction(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var locked []lockedEntry
	rollback := func() {
		for _, l := range locked {
			s.fs.Remove(l.lockPath)
		}
	}

	for _, e := range tx.entries {
		if err := ValidateName(e.name); err != nil {
			rollback()
			return err
		}

		lockPath := e.name + lockSuffix
		if dir := dirOf(lockPath); dir != "" {
			if err := s.fs.MkdirAll(dir, 0o755); err != nil {
				rollback()
				return err
			}
		}
		lf, err := s.fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: %s", ErrLocked, e.name)
		}

		oldRef, err := s.Resolve(e.name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			lf.Close()
			rollback()
			return err
		}
		if errors.Is(err, ErrNotFound) {
			oldRef = nil
		}

		if e.expectedOld != nil {
			var current hash.ID
			if oldRef != nil && oldRef.Kind == KindDirect {
				current = oldRef.Target
			}
			if current != *e.expectedOld {
				lf.Close()
				rollback()
				return fmt.Errorf("%w: %s", ErrConflict, e.name)
			}
		}

		if e.op != opDelete {
			content := e.newOID.String() + "\n"
			if e.op == opSymbolic {
				content = symrefPrefix + e.newTarget + "\n"
			}
			if _, err := lf.Write([]byte(content)); err != nil {
				lf.Close()
				rollback()
				return err
			}
		}
		lf.Close()

		locked = append(locked, lockedEntry{entry: e, lockPath: lockPath, oldRef: oldRef})
	}

	for _, l := range locked {
		if l.entry.op == opDelete {
			continue
		}
		var old hash.ID
		if l.oldRef != nil && l.oldRef.Kind == KindDirect {
			old = l.oldRef.Target
		}
		entry := ReflogEntry{Old: old, New: l.entry.newOID, Committer: s.Committer, Message: l.entry.message}
		if err := s.AppendReflog(l.entry.name, entry); err != nil {
			rollback()
			return err
		}
	}

	for _, l := range locked {
		if l.entry.op != opDelete {
			continue
		}
		var old hash.ID
		if l.oldRef != nil && l.oldRef.Kind == KindDirect {
			old = l.oldRef.Target
		}
		entry := ReflogEntry{Old: old, New: hash.ID{}, Committer: s.Committer, Message: l.entry.message}
		if err := s.AppendReflog(l.entry.name, entry); err != nil {
			rollback()
			return err
		}
	}

	for _, l := range locked {
		if l.entry.op == opDelete {
			s.fs.Remove(l.lockPath)
			if err := s.fs.Remove(l.entry.name); err != nil && !os.IsNotExist(err) {
				return err
			}
			pr, err := s.loadPackedRefs()
			if err != nil {
				return err
			}
			if pr.remove(l.entry.name) {
				if err := s.writePackedRefs(pr); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.fs.Rename(l.lockPath, l.entry.name); err != nil {
			return err
		}
	}

	return nil
}
