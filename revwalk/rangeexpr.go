package revwalk

import (
	"fmt"
	"strings"

	"github.com/nullpx/gitcore/hash"
)

// Resolver resolves a revision name — a ref name or an OID — to an
// object ID. *refs.Store satisfies this directly via ResolveToOID.
type Resolver interface {
	ResolveToOID(name string) (hash.ID, error)
}

// ApplyRange parses a whitespace-separated range expression ("A..B",
// "A...B", "^A B", "A^!") plus the supplemented "A^@" form
// (original_source/crates/git-revwalk/src/walk.rs: all of A's parents,
// excluding A) and pushes/hides the resulting OIDs onto w.
func ApplyRange(w *Walker, resolver Resolver, expr string) error {
	for _, tok := range strings.Fields(expr) {
		if err := applyToken(w, resolver, tok); err != nil {
			return fmt.Errorf("revwalk: %q: %w", tok, err)
		}
	}
	return nil
}

func applyToken(w *Walker, resolver Resolver, tok string) error {
	switch {
	case strings.HasSuffix(tok, "^!"):
		return applyExcludeParents(w, resolver, strings.TrimSuffix(tok, "^!"))

	case strings.HasSuffix(tok, "^@"):
		return applyParentsOnly(w, resolver, strings.TrimSuffix(tok, "^@"))

	case strings.Contains(tok, "..."):
		parts := strings.SplitN(tok, "...", 2)
		return applySymmetricDifference(w, resolver, parts[0], parts[1])

	case strings.Contains(tok, ".."):
		parts := strings.SplitN(tok, "..", 2)
		return applyTwoDot(w, resolver, parts[0], parts[1])

	case strings.HasPrefix(tok, "^"):
		id, err := resolveRev(resolver, strings.TrimPrefix(tok, "^"))
		if err != nil {
			return err
		}
		return w.Hide(id)

	default:
		id, err := resolveRev(resolver, tok)
		if err != nil {
			return err
		}
		return w.Push(id)
	}
}

// applyTwoDot implements "A..B" = {B's ancestry} minus {A's ancestry}:
// push B, hide A.
func applyTwoDot(w *Walker, resolver Resolver, a, b string) error {
	aid, err := resolveRev(resolver, a)
	if err != nil {
		return err
	}
	bid, err := resolveRev(resolver, b)
	if err != nil {
		return err
	}
	if err := w.Hide(aid); err != nil {
		return err
	}
	return w.Push(bid)
}

// applySymmetricDifference implements "A...B": commits reachable from
// either A or B but not both, via hiding the intersection of their
// full ancestor closures.
func applySymmetricDifference(w *Walker, resolver Resolver, a, b string) error {
	aid, err := resolveRev(resolver, a)
	if err != nil {
		return err
	}
	bid, err := resolveRev(resolver, b)
	if err != nil {
		return err
	}

	aAnc, err := w.ancestors(aid)
	if err != nil {
		return err
	}
	bAnc, err := w.ancestors(bid)
	if err != nil {
		return err
	}

	if err := w.Push(aid); err != nil {
		return err
	}
	if err := w.Push(bid); err != nil {
		return err
	}

	for id := range aAnc {
		if _, common := bAnc[id]; common {
			if err := w.Hide(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyExcludeParents implements "A^!": push A, hide each of A's
// direct parents (and therefore, via Hide's ancestor closure, every
// commit reachable through them) — "A but not its ancestors".
func applyExcludeParents(w *Walker, resolver Resolver, a string) error {
	aid, err := resolveRev(resolver, a)
	if err != nil {
		return err
	}
	if err := w.Push(aid); err != nil {
		return err
	}
	parents, err := w.parentsOf(aid)
	if err != nil {
		return err
	}
	for _, p := range parents {
		if err := w.Hide(p); err != nil {
			return err
		}
	}
	return nil
}

// applyParentsOnly implements the supplemented "A^@": push every
// parent of A, excluding A itself.
func applyParentsOnly(w *Walker, resolver Resolver, a string) error {
	aid, err := resolveRev(resolver, a)
	if err != nil {
		return err
	}
	parents, err := w.parentsOf(aid)
	if err != nil {
		return err
	}
	for _, p := range parents {
		if err := w.Push(p); err != nil {
			return err
		}
	}
	return nil
}

func resolveRev(resolver Resolver, name string) (hash.ID, error) {
	if id, err := resolver.ResolveToOID(name); err == nil {
		return id, nil
	}
	return hash.FromHex(name)
}
