package kb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKBStore struct {
	name string
	kbs  map[string]*KnowledgeBase
}

func newFakeKBStore(name string, descs ...Descriptor) *fakeKBStore {
	s := &fakeKBStore{name: name, kbs: map[string]*KnowledgeBase{}}
	for _, d := range descs {
		s.kbs[d.Name] = NewKnowledgeBase(d, nil)
	}
	return s
}

func (s *fakeKBStore) Name() string { return s.name }

func (s *fakeKBStore) List() []*KnowledgeBase {
	out := make([]*KnowledgeBase, 0, len(s.kbs))
	for _, kb := range s.kbs {
		out = append(out, kb)
	}
	return out
}

func (s *fakeKBStore) Get(name string) *KnowledgeBase { return s.kbs[name] }

func (s *fakeKBStore) Upsert(desc Descriptor) (bool, error) {
	if _, ok := s.kbs[desc.Name]; !ok {
		return false, nil
	}
	s.kbs[desc.Name] = NewKnowledgeBase(desc, nil)
	return true, nil
}

func (s *fakeKBStore) Delete(name string) (bool, error) {
	if _, ok := s.kbs[name]; !ok {
		return false, nil
	}
	delete(s.kbs, name)
	return true, nil
}

func (s *fakeKBStore) Refresh() error { return nil }

var _ KBStore = (*fakeKBStore)(nil)

func TestCompositeKBStore_GetUnqualifiedFallsBackToLinearSearch(t *testing.T) {
	storeA := newFakeKBStore("alpha", Descriptor{Name: "k1"})
	storeB := newFakeKBStore("beta", Descriptor{Name: "k2"})
	c := NewCompositeKBStore([]KBStore{storeA, storeB})

	kb := c.Get("k2")
	require.NotNil(t, kb)
	assert.Equal(t, "beta/k2", kb.FullName)
}

func TestCompositeKBStore_GetByFullNameRoutesToOwningStore(t *testing.T) {
	storeA := newFakeKBStore("alpha", Descriptor{Name: "k1"})
	storeB := newFakeKBStore("beta", Descriptor{Name: "k2"})
	c := NewCompositeKBStore([]KBStore{storeA, storeB})

	kb := c.Get("beta/k2")
	require.NotNil(t, kb)
	assert.Equal(t, "beta/k2", kb.FullName)

	assert.Nil(t, c.Get("alpha/k2"))
}

func TestCompositeKBStore_GetByFullNameRecursesThroughNestedComposite(t *testing.T) {
	inner := NewCompositeKBStore([]KBStore{newFakeKBStore("alpha", Descriptor{Name: "k1"})})
	inner.name = "nested"
	outer := NewCompositeKBStore([]KBStore{inner})

	kb := outer.Get("nested/alpha/k1")
	require.NotNil(t, kb)
	assert.Equal(t, "nested/alpha/k1", kb.FullName)
}

func TestCompositeKBStore_UpsertTriesEachStoreUntilOneAccepts(t *testing.T) {
	storeA := newFakeKBStore("alpha", Descriptor{Name: "k1"})
	storeB := newFakeKBStore("beta", Descriptor{Name: "k2"})
	c := NewCompositeKBStore([]KBStore{storeA, storeB})

	ok, err := c.Upsert(Descriptor{Name: "k2", Selection: []string{"*.pdf"}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"*.pdf"}, storeB.kbs["k2"].Selection)

	ok, err = c.Upsert(Descriptor{Name: "unknown"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompositeKBStore_DeleteRequiresFullName(t *testing.T) {
	storeA := newFakeKBStore("alpha", Descriptor{Name: "k1"})
	c := NewCompositeKBStore([]KBStore{storeA})

	ok, err := c.Delete("k1")
	require.NoError(t, err)
	assert.False(t, ok, "an unqualified name has no owning store to route to")

	ok, err = c.Delete("alpha/k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, storeA.Get("k1"))
}

func TestCompositeKBStore_ListPrefixesEveryKBWithItsStoreName(t *testing.T) {
	storeA := newFakeKBStore("alpha", Descriptor{Name: "k1"})
	storeB := newFakeKBStore("beta", Descriptor{Name: "k2"})
	c := NewCompositeKBStore([]KBStore{storeA, storeB})

	names := make([]string, 0)
	for _, kb := range c.List() {
		names = append(names, kb.FullName)
	}
	assert.ElementsMatch(t, []string{"alpha/k1", "beta/k2"}, names)
}
