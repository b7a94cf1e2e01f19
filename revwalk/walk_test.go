package revwalk

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullpx/gitcore/hash"
	"github.com/nullpx/gitcore/object"
)

type memStore struct {
	objects map[hash.ID]*object.Object
	counter uint64
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[hash.ID]*object.Object)}
}

func (m *memStore) Read(id hash.ID) (*object.Object, error) {
	obj, ok := m.objects[id]
	if !ok {
		return nil, errNotFound{id}
	}
	return obj, nil
}

type errNotFound struct{ id hash.ID }

func (e errNotFound) Error() string { return "not found: " + e.id.String() }

// commit stores a synthetic commit with no tree/blob backing (the
// walker never reads Tree), returning its OID.
func (m *memStore) commit(msg string, when time.Time, parents ...hash.ID) hash.ID {
	m.counter++
	var b [20]byte
	binary.BigEndian.PutUint64(b[12:], m.counter)
	id, err := hash.FromBytes(b[:])
	if err != nil {
		panic(err)
	}

	sig := object.Signature{Name: "tester", Email: "t@example.com", When: when}
	m.objects[id] = &object.Object{
		Type: object.CommitType,
		Commit: &object.Commit{
			Parents:   parents,
			Author:    sig,
			Committer: sig,
			Message:   []byte(msg),
		},
	}
	return id
}

func collect(t *testing.T, w *Walker) []hash.ID {
	t.Helper()
	var out []hash.ID
	for {
		id, _, err := w.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}

func TestChronologicalOrderNewestFirst(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)
	c3 := store.commit("three", base.Add(2*time.Hour), c2)

	w := New(store, Options{Sort: Chronological})
	require.NoError(t, w.Push(c3))

	require.Equal(t, []hash.ID{c3, c2, c1}, collect(t, w))
}

func TestHideExcludesAncestors(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)
	c3 := store.commit("three", base.Add(2*time.Hour), c2)

	w := New(store, Options{Sort: Chronological})
	require.NoError(t, w.Push(c3))
	require.NoError(t, w.Hide(c1))

	require.Equal(t, []hash.ID{c3, c2}, collect(t, w))
}

func TestMaxCountAndSkip(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)
	c3 := store.commit("three", base.Add(2*time.Hour), c2)

	w := New(store, Options{Sort: Chronological, Skip: 1, MaxCount: 1})
	require.NoError(t, w.Push(c3))

	require.Equal(t, []hash.ID{c2}, collect(t, w))
}

func TestReverseOrder(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)
	c3 := store.commit("three", base.Add(2*time.Hour), c2)

	w := New(store, Options{Sort: Reverse})
	require.NoError(t, w.Push(c3))

	require.Equal(t, []hash.ID{c1, c2, c3}, collect(t, w))
}

func TestTopologicalOrderRespectsChildBeforeParent(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	root := store.commit("root", base)
	left := store.commit("left", base.Add(time.Hour), root)
	right := store.commit("right", base.Add(2*time.Hour), root)
	merge := store.commit("merge", base.Add(3*time.Hour), left, right)

	w := New(store, Options{Sort: Topological})
	require.NoError(t, w.Push(merge))

	order := collect(t, w)
	require.Len(t, order, 4)
	require.Equal(t, merge, order[0])
	require.Equal(t, root, order[3])

	pos := make(map[hash.ID]int)
	for i, id := range order {
		pos[id] = i
	}
	require.Less(t, pos[left], pos[root])
	require.Less(t, pos[right], pos[root])
}

func TestFirstParentOnlySkipsMergedSide(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	root := store.commit("root", base)
	side := store.commit("side", base.Add(time.Hour), root)
	mainline := store.commit("mainline", base.Add(2*time.Hour), root)
	merge := store.commit("merge", base.Add(3*time.Hour), mainline, side)

	w := New(store, Options{Sort: Chronological, FirstParentOnly: true})
	require.NoError(t, w.Push(merge))

	require.Equal(t, []hash.ID{merge, mainline, root}, collect(t, w))
}

func TestFilterByAuthorSubstring(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)

	w := New(store, Options{Sort: Chronological, Filter: Filter{Author: "nobody"}})
	require.NoError(t, w.Push(c2))
	require.Empty(t, collect(t, w))

	w2 := New(store, Options{Sort: Chronological, Filter: Filter{Author: "tester"}})
	require.NoError(t, w2.Push(c2))
	require.Equal(t, []hash.ID{c2, c1}, collect(t, w2))
}

type fakeResolver struct {
	refs map[string]hash.ID
}

func (f fakeResolver) ResolveToOID(name string) (hash.ID, error) {
	if id, ok := f.refs[name]; ok {
		return id, nil
	}
	return hash.ID{}, errNotFound{}
}

func TestApplyRangeTwoDot(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)
	c3 := store.commit("three", base.Add(2*time.Hour), c2)

	resolver := fakeResolver{refs: map[string]hash.ID{"a": c1, "b": c3}}
	w := New(store, Options{Sort: Chronological})
	require.NoError(t, ApplyRange(w, resolver, "a..b"))

	require.Equal(t, []hash.ID{c3, c2}, collect(t, w))
}

func TestApplyRangeExcludeParents(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := store.commit("one", base)
	c2 := store.commit("two", base.Add(time.Hour), c1)

	resolver := fakeResolver{refs: map[string]hash.ID{"a": c2}}
	w := New(store, Options{Sort: Chronological})
	require.NoError(t, ApplyRange(w, resolver, "a^!"))

	require.Equal(t, []hash.ID{c2}, collect(t, w))
}

func TestApplyRangeSymmetricDifference(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	root := store.commit("root", base)
	left := store.commit("left", base.Add(time.Hour), root)
	right := store.commit("right", base.Add(2*time.Hour), root)

	resolver := fakeResolver{refs: map[string]hash.ID{"a": left, "b": right}}
	w := New(store, Options{Sort: Chronological})
	require.NoError(t, ApplyRange(w, resolver, "a...b"))

	order := collect(t, w)
	require.ElementsMatch(t, []hash.ID{left, right}, order)
}
