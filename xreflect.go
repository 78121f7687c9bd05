package pickle
// Utilities that complement std reflect package.

import (
	"reflect"
)

// deepEqual is like reflect.DeepEqual but also supports Dict and Set.
//
// It is needed because reflect.DeepEqual considers two Dicts not-equal because
// each Dict is made with its own seed. Dict, Set, *List, Tuple and ClassDict
// are compared recursively so that nested Dicts work too.
func deepEqual(a, b any) bool {
	switch a := a.(type) {
	case Dict:
		b, ok := b.(Dict)
		return ok && deepEqualDict(a, b)

	case Set:
		b, ok := b.(Set)
		return ok && deepEqualSet(a, b)

	case *List:
		b, ok := b.(*List)
		if !ok || (a == nil) != (b == nil) {
			return false
		}
		return a == b || deepEqualSlice(*a, *b)

	case Tuple:
		b, ok := b.(Tuple)
		return ok && deepEqualSlice(a, b)

	case ClassDict:
		b, ok := b.(ClassDict)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, va := range a {
			vb, ok := b[k]
			if !ok || !deepEqual(va, vb) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func deepEqualSlice(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !deepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// XXX O(n^2) because we want to compare keys exactly and so cannot use
//     b.Get(ka) because Dict.Get uses general equality that would match e.g. int == int64
func deepEqualDict(a, b Dict) bool {
	if a.m == b.m {
		return true
	}
	if a.Len() != b.Len() {
		return false
	}

	eq := true
	a.Iter()(func(ka, va any) bool {
		keq := false
		b.Iter()(func(kb, vb any) bool {
			if reflect.TypeOf(ka) == reflect.TypeOf(kb) && equal(ka, kb) {
				keq = deepEqual(va, vb)
				return false
			}
			return true
		})
		if !keq {
			eq = false
			return false
		}
		return true
	})
	return eq
}

// sets hold only hashable items, so exact type plus equality is enough.
func deepEqualSet(a, b Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	eq := true
	a.Iter()(func(ia any) bool {
		found := false
		b.Iter()(func(ib any) bool {
			if reflect.TypeOf(ia) == reflect.TypeOf(ib) && equal(ia, ib) {
				found = true
				return false
			}
			return true
		})
		if !found {
			eq = false
			return false
		}
		return true
	})
	return eq
}
