package kb

import (
	"sort"
	"strings"
)

// CompositeKBStore routes get/upsert/delete by full-name prefix
// "<store>/<kb>" across nested KBStores (§4.5 "composite KB Store"),
// grounded on the original's SuperKBStore/AddressedKnowledgeBase pair:
// every KB handed out carries its full_name prefixed by the owning store's
// name, and unqualified names fall back to a linear search across stores.
type CompositeKBStore struct {
	name   string
	stores []KBStore
}

// NewCompositeKBStore builds a composite over stores, named "super_store"
// like the original's SuperKBStore.
func NewCompositeKBStore(stores []KBStore) *CompositeKBStore {
	return &CompositeKBStore{name: "super_store", stores: stores}
}

func (c *CompositeKBStore) Name() string { return c.name }

// addressed returns a shallow copy of kb with its FullName prefixed,
// mirroring AddressedKnowledgeBase.create: the underlying store is shared,
// only the addressing changes.
func addressed(kb *KnowledgeBase, prefix string) *KnowledgeBase {
	clone := *kb
	clone.FullName = prefix + kb.FullName
	return &clone
}

func (c *CompositeKBStore) List() []*KnowledgeBase {
	var out []*KnowledgeBase
	for _, s := range c.stores {
		for _, kb := range s.List() {
			out = append(out, addressed(kb, s.Name()+"/"))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// Get resolves name either as a full "<store>/<kb>" address or, failing
// that, as an unqualified name searched linearly across every store.
func (c *CompositeKBStore) Get(name string) *KnowledgeBase {
	if strings.Contains(name, "/") {
		return c.getByFullName(name)
	}
	for _, s := range c.stores {
		if kb := s.Get(name); kb != nil {
			return addressed(kb, s.Name()+"/")
		}
	}
	return nil
}

func (c *CompositeKBStore) getByFullName(fullName string) *KnowledgeBase {
	storeName, rest, ok := strings.Cut(fullName, "/")
	if !ok {
		return nil
	}
	for _, s := range c.stores {
		if s.Name() != storeName {
			continue
		}
		if nested, ok := s.(*CompositeKBStore); ok {
			if kb := nested.getByFullName(rest); kb != nil {
				return addressed(kb, s.Name()+"/")
			}
			continue
		}
		if kb := s.Get(rest); kb != nil {
			return addressed(kb, s.Name()+"/")
		}
	}
	return nil
}

// Upsert tries every store in order until one accepts desc, refreshing
// regardless of outcome (§4.5, mirroring SuperKBStore.upsert's finally).
// Routing by a qualified name is done by UpsertByFullName instead.
func (c *CompositeKBStore) Upsert(desc Descriptor) (ok bool, err error) {
	defer func() { _ = c.Refresh() }()

	for _, s := range c.stores {
		done, e := s.Upsert(desc)
		if e != nil {
			err = e
			continue
		}
		if done {
			return true, nil
		}
	}
	return false, err
}

// UpsertByFullName routes desc to the store named by the first "/" segment
// of fullName, recursing through nested composites.
func (c *CompositeKBStore) UpsertByFullName(fullName string, desc Descriptor) (bool, error) {
	defer func() { _ = c.Refresh() }()

	storeName, rest, ok := strings.Cut(fullName, "/")
	if !ok {
		return false, nil
	}
	for _, s := range c.stores {
		if s.Name() != storeName {
			continue
		}
		if nested, ok := s.(*CompositeKBStore); ok {
			return nested.UpsertByFullName(rest, desc)
		}
		return s.Upsert(desc)
	}
	return false, nil
}

// Delete expects a full "<store>/<kb>" name and routes to the owning store,
// recursing through nested composites (§4.5).
func (c *CompositeKBStore) Delete(fullName string) (ok bool, err error) {
	defer func() { _ = c.Refresh() }()

	storeName, rest, found := strings.Cut(fullName, "/")
	if !found {
		return false, nil
	}
	for _, s := range c.stores {
		if s.Name() != storeName {
			continue
		}
		if nested, ok := s.(*CompositeKBStore); ok {
			return nested.Delete(rest)
		}
		return s.Delete(rest)
	}
	return false, nil
}

func (c *CompositeKBStore) Refresh() error {
	for _, s := range c.stores {
		if err := s.Refresh(); err != nil {
			return err
		}
	}
	return nil
}

var _ KBStore = (*CompositeKBStore)(nil)
