package pickle

import (
	"fmt"
	"sort"

	"github.com/aristanetworks/gomap"
)

// Set represents Python's set and frozenset.
//
// Membership follows the same equality rules as Dict keys.
//
// Note: like Dict, Set is pointer-like and its zero value is a nil set
// that is empty and invalid to Add to.
type Set struct {
	m *gomap.Map[any, struct{}]
}

// NewSet returns new set with the given items.
//
// NewSet panics if an item is not allowed to be a set member.
func NewSet(items ...any) Set {
	s := Set{m: gomap.NewHint[any, struct{}](len(items), equal, hash)}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add adds item to the set.
//
// Add panics if item's type is not allowed to be a set member.
func (s Set) Add(item any) {
	s.m.Set(item, struct{}{})
}

// tryAdd is like Add but returns error instead of panicking on unhashable item.
func (s Set) tryAdd(item any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = malformedf("invalid set item type %T", item)
		}
	}()
	s.Add(item)
	return nil
}

// Has reports whether an item equal to x is present in the set.
func (s Set) Has(x any) bool {
	if s.m == nil {
		return false
	}
	_, ok := s.m.Get(x)
	return ok
}

// Len returns the number of items in the set.
func (s Set) Len() int {
	if s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Iter returns iterator over the set items in arbitrary order.
func (s Set) Iter() /* iter.Seq */ func(yield func(any) bool) {
	return func(yield func(any) bool) {
		if s.m == nil {
			return
		}
		it := s.m.Iter()
		for it.Next() {
			if !yield(it.Key()) {
				break
			}
		}
	}
}

// Items returns the set items in arbitrary order.
func (s Set) Items() []any {
	items := make([]any, 0, s.Len())
	s.Iter()(func(item any) bool {
		items = append(items, item)
		return true
	})
	return items
}

func (s Set) String() string {
	vs := make([]string, 0, s.Len())
	s.Iter()(func(item any) bool {
		vs = append(vs, fmt.Sprintf("%v", item))
		return true
	})
	sort.Strings(vs)

	out := "{"
	for i, v := range vs {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out + "}"
}

func eq_Set_Set(a, b Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	eq := true
	a.Iter()(func(item any) bool {
		if !b.Has(item) {
			eq = false
			return false
		}
		return true
	})
	return eq
}
