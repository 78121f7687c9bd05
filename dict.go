package pickle

// Python-like Dict that handles keys by Python-like equality on access.
//
// For example Dict.Get() will access the same element for all keys int(1), float64(1.0) and uint8(1).

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"math"
	"reflect"
	"sort"

	"github.com/aristanetworks/gomap"
	"github.com/cockroachdb/apd/v3"
)

// Dict represents dict from Python.
//
// It mirrors Python with respect to which types are allowed to be used as
// keys, and with respect to keys equality. For example Tuple is allowed to be
// used as key, and all int(1), float64(1.0) and true are considered to be
// equal. [Bytes] and string are never equal, even with the same content.
//
// *List, Dict, ClassDict and []byte are unhashable, like their Python
// counterparts, and cannot be used as keys. Set is hashable as Python's
// frozenset is.
//
// Note: similarly to builtin map Dict is pointer-like type: its zero-value
// represents nil dictionary that is empty and invalid to use Set on.
type Dict struct {
	m *gomap.Map[any, any]
}

// NewDict returns new empty dictionary.
func NewDict() Dict {
	return NewDictWithSizeHint(0)
}

// NewDictWithSizeHint returns new empty dictionary with preallocated space for size items.
func NewDictWithSizeHint(size int) Dict {
	return Dict{m: gomap.NewHint[any, any](size, equal, hash)}
}

// NewDictWithData returns new dictionary with preset data.
//
// kv should be key₁, value₁, key₂, value₂, ...
func NewDictWithData(kv ...any) Dict {
	l := len(kv)
	if l%2 != 0 {
		panic("odd number of arguments")
	}
	l /= 2
	d := NewDictWithSizeHint(l)
	for i := 0; i < l; i++ {
		d.Set(kv[2*i], kv[2*i+1])
	}
	return d
}

// Get returns value associated with equal key.
//
// nil is returned if no matching key is present in the dictionary.
//
// Get panics if key's type is not allowed to be used as Dict key.
func (d Dict) Get(key any) any {
	value, _ := d.Get_(key)
	return value
}

// Get_ is comma-ok version of Get.
func (d Dict) Get_(key any) (value any, ok bool) {
	if d.m == nil {
		return nil, false
	}
	return d.m.Get(key)
}

// Set sets key to be associated with value.
//
// Set panics if key's type is not allowed to be used as Dict key.
func (d Dict) Set(key, value any) {
	d.m.Set(key, value)
}

// trySet is like Set but returns error instead of panicking on unhashable key.
func (d Dict) trySet(key, value any) (err error) {
	// use panic/recover to detect inappropriate keys: hash panics with
	// "unhashable type" on them, and reflect based kind checks would have to
	// walk composite keys recursively to reach the same verdict.
	defer func() {
		if r := recover(); r != nil {
			err = malformedf("invalid key type %T", key)
		}
	}()
	d.Set(key, value)
	return nil
}

// Del removes equal key from the dictionary.
//
// Del panics if key's type is not allowed to be used as Dict key.
func (d Dict) Del(key any) {
	d.m.Delete(key)
}

// Len returns the number of items in the dictionary.
func (d Dict) Len() int {
	if d.m == nil {
		return 0
	}
	return d.m.Len()
}

// Iter returns iterator over all elements in the dictionary.
//
// The order to visit entries is arbitrary.
func (d Dict) Iter() /* iter.Seq2 */ func(yield func(any, any) bool) {
	return func(yield func(any, any) bool) {
		if d.m == nil {
			return
		}
		it := d.m.Iter()
		for it.Next() {
			if !yield(it.Key(), it.Elem()) {
				break
			}
		}
	}
}

// String returns human-readable representation of the dictionary.
func (d Dict) String() string {
	return d.sprintf("%v")
}

// GoString returns detailed human-readable representation of the dictionary.
func (d Dict) GoString() string {
	return fmt.Sprintf("%T%s", d, d.sprintf("%#v"))
}

// sprintf serves String and GoString.
func (d Dict) sprintf(format string) string {
	type KV struct{ k, v string }
	vkv := make([]KV, 0, d.Len())
	d.Iter()(func(k, v any) bool {
		vkv = append(vkv, KV{
			k: fmt.Sprintf(format, k),
			v: fmt.Sprintf(format, v),
		})
		return true
	})

	sort.Slice(vkv, func(i, j int) bool {
		return vkv[i].k < vkv[j].k
	})

	s := "{"
	for i, kv := range vkv {
		if i > 0 {
			s += ", "
		}
		s += kv.k + ": " + kv.v
	}

	s += "}"
	return s
}

// ---- equal ----

// kind represents to which category a type belongs.
//
// It primarily classifies bool, numbers, slices, structs and maps, and puts
// everything else into "other" category.
type kind uint

const (
	kBool    = iota
	kInt     // int + intX
	kUint    // uint + uintX
	kFloat   // floatX
	kComplex // complexX
	kDecimal // *apd.Decimal

	kSlice   // slice + array
	kMap     // map
	kStruct  // struct
	kPointer // pointer
	kOther   // everything else
)

// kindOf returns kind of x.
func kindOf(x any) kind {
	if _, ok := x.(*apd.Decimal); ok {
		return kDecimal
	}

	r := reflect.ValueOf(x)

	switch r.Kind() {
	case reflect.Bool:
		return kBool
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		return kInt
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8:
		return kUint
	case reflect.Float64, reflect.Float32:
		return kFloat
	case reflect.Complex128, reflect.Complex64:
		return kComplex

	case reflect.Slice, reflect.Array:
		return kSlice
	case reflect.Map:
		return kMap
	case reflect.Struct:
		return kStruct
	case reflect.Pointer:
		return kPointer
	}

	return kOther
}

// equal implements equality matching what Python would return for a == b.
//
// Equality properties:
//
// 1) equality is extension of Go ==
//
//	(a == b) ⇒ equal(a,b)
//
// 2) self equal:
//
//	equal(a,a) = y
//
// 3) equality is symmetrical:
//
//	equal(a,b) = equal(b,a)
//
// 4) equality is transitive:
//
//	equal(a,b) ^ equal(b,c) ⇒ equal(a,c)
func equal(xa, xb any) bool {
	// strings/bytes
	switch a := xa.(type) {
	case string:
		b, ok := xb.(string)
		return ok && a == b
	case Bytes:
		b, ok := xb.(Bytes)
		return ok && a == b
	}

	// everything else
	a := reflect.ValueOf(xa)
	b := reflect.ValueOf(xb)

	ak := kindOf(xa)
	bk := kindOf(xb)

	// since equality is symmetric, we can implement only half of comparison matrix
	if ak > bk {
		a, b = b, a
		ak, bk = bk, ak
		xa, xb = xb, xa
	}
	// ak ≤ bk

	handled := true
	switch ak {
	default:
		handled = false

	// numbers
	case kBool:
		// bool compares to numbers as 1 or 0
		//
		// In [1]: 1.0 == True
		// Out[1]: True
		//
		// In [3]: d = {1: 'abc'}
		//
		// In [4]: d[True]
		// Out[4]: 'abc'
		abint := bint(a.Bool())
		switch bk {
		case kBool:
			return abint == bint(b.Bool())
		case kInt:
			return abint == b.Int()
		case kUint:
			return eq_Int_Uint(abint, b.Uint())
		case kFloat:
			return float64(abint) == b.Float()
		case kComplex:
			return complex(float64(abint), 0) == b.Complex()
		}

	case kInt:
		aint := a.Int()
		switch bk {
		case kInt:
			return aint == b.Int()
		case kUint:
			return eq_Int_Uint(aint, b.Uint())
		case kFloat:
			return float64(aint) == b.Float()
		case kComplex:
			return complex(float64(aint), 0) == b.Complex()
		}

	case kUint:
		auint := a.Uint()
		switch bk {
		case kUint:
			return auint == b.Uint()
		case kFloat:
			return float64(auint) == b.Float()
		case kComplex:
			return complex(float64(auint), 0) == b.Complex()
		}

	case kFloat:
		afloat := a.Float()
		switch bk {
		case kFloat:
			return afloat == b.Float()
		case kComplex:
			return complex(afloat, 0) == b.Complex()
		}

	case kComplex:
		switch bk {
		case kComplex:
			return a.Complex() == b.Complex()
		}

	case kDecimal:
		switch bk {
		case kDecimal:
			return xa.(*apd.Decimal).Cmp(xb.(*apd.Decimal)) == 0
		}

	// slices
	case kSlice:
		switch bk {
		case kSlice:
			return eq_Slice_Slice(a, b)
		}
	}

	if handled {
		return false
	}

	// our types that need special handling
	switch a := xa.(type) {
	case Dict:
		b, ok := xb.(Dict)
		return ok && eq_Dict_Dict(a, b)
	case Set:
		b, ok := xb.(Set)
		return ok && eq_Set_Set(a, b)
	case *List:
		b, ok := xb.(*List)
		if !ok || a == nil || b == nil {
			return ok && a == b
		}
		return a == b || eq_Slice_Slice(reflect.ValueOf(*a), reflect.ValueOf(*b))
	}

	// structs  (also covers None, Class, Date etc...)
	switch ak {
	case kStruct:
		switch bk {
		case kStruct:
			return eq_Struct_Struct(a, b)
		default:
			return false
		}
	}

	// builtin maps (ClassDict) compare by content
	if ak == kMap && bk == kMap {
		return eq_Map_Map(a, b)
	}

	if !a.IsValid() || !b.IsValid() || !a.Type().Comparable() || !b.Type().Comparable() {
		return a.IsValid() == b.IsValid() && !a.IsValid()
	}
	return (xa == xb) // fallback to builtin equality
}

// equality matrix. nontrivial elements

func eq_Int_Uint(a int64, b uint64) bool {
	if a >= 0 {
		return uint64(a) == b
	}
	return false
}

func eq_Slice_Slice(a, b reflect.Value) bool {
	al := a.Len()
	bl := b.Len()
	if al != bl {
		return false
	}
	for i := 0; i < al; i++ {
		if !equal(a.Index(i).Interface(), b.Index(i).Interface()) {
			return false
		}
	}
	return true
}

func eq_Struct_Struct(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}

	typ := a.Type()
	l := typ.NumField()
	for i := 0; i < l; i++ {
		af := a.Field(i)
		bf := b.Field(i)

		// .Interface() is not allowed if the field is private.
		// Work around the protection via unsafe. We may need to switch
		// to struct copy if it is not addressable because Addr() is
		// used in the workaround. https://stackoverflow.com/a/43918797/9456786
		ftyp := typ.Field(i)
		if !ftyp.IsExported() {
			if !af.CanAddr() {
				// switch a to addressable copy
				a_ := reflect.New(typ).Elem()
				a_.Set(a)
				a = a_
				af = a.Field(i)
			}

			if !bf.CanAddr() {
				// switch b to addressable copy
				b_ := reflect.New(typ).Elem()
				b_.Set(b)
				b = b_
				bf = b.Field(i)
			}

			af = reflect.NewAt(ftyp.Type, af.Addr().UnsafePointer()).Elem()
			bf = reflect.NewAt(ftyp.Type, bf.Addr().UnsafePointer()).Elem()
		}

		if !equal(af.Interface(), bf.Interface()) {
			return false
		}
	}
	return true
}

func eq_Dict_Dict(a Dict, b Dict) bool {
	// dicts D₁ and D₂ are considered equal if the following is true:
	//
	//     - len(D₁) = len(D₂)
	//     - ∀ k ∈ D₁  equal(D₁[k], D₂[k]) = y
	//
	// since equal is transitive this is the same as existence of 1-1
	// mapping in between keys of D₁ and D₂ with equal values.
	if a.Len() != b.Len() {
		return false
	}

	eq := true
	a.Iter()(func(k, va any) bool {
		vb, ok := b.Get_(k)
		if !ok || !equal(va, vb) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

func eq_Map_Map(a reflect.Value, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}

	bKeyType := b.Type().Key()

	ai := a.MapRange()
	for ai.Next() {
		k := ai.Key().Interface() // NOTE xk != ai.Key() because that might have type any
		xk := reflect.ValueOf(k)  //      while xk has type of particular contained value
		if !xk.Type().AssignableTo(bKeyType) {
			return false
		}
		xvb := b.MapIndex(xk)
		if !(xvb.IsValid() && equal(ai.Value().Interface(), xvb.Interface())) {
			return false
		}
	}
	return true
}

// ---- hash ----

// hash returns hash of x consistent with equality implemented by equal.
//
//	equal(a,b)  ⇒  hash(a) = hash(b)
//
// hash panics with "unhashable type: ..." if x is not allowed to be used as Dict key.
func hash(seed maphash.Seed, x any) uint64 {
	// strings/bytes use standard hash of string
	switch v := x.(type) {
	case string:
		return maphash.String(seed, v)
	case Bytes:
		return maphash.String(seed, string(v))
	case *List, Dict, ClassDict, []byte:
		goto unhashable
	}

	{
		// for everything else we implement custom hashing ourselves to match equal
		var h maphash.Hash
		h.SetSeed(seed)

		hash_Uint := func(u uint64) {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], u)
			h.Write(b[:])
		}

		hash_Int := func(i int64) {
			hash_Uint(uint64(i))
		}

		hash_Float := func(f float64) {
			// if float is in int range and is integer number - hash it as integer
			i := int64(f)
			f_ := float64(i)
			if f_ == f {
				hash_Int(i)

				// else use raw float64 bytes representation for hashing
			} else {
				hash_Uint(math.Float64bits(f))
			}
		}

		// numbers
		r := reflect.ValueOf(x)
		k := kindOf(x)

		handled := true
		switch k {
		default:
			handled = false

		case kBool:
			hash_Int(bint(r.Bool()))
		case kInt:
			hash_Int(r.Int())
		case kUint:
			u := r.Uint()
			if u <= math.MaxInt64 {
				hash_Int(int64(u))
			} else {
				hash_Uint(u)
			}
		case kFloat:
			hash_Float(r.Float())

		case kComplex:
			c := r.Complex()
			hash_Float(real(c))
			if imag(c) != 0 {
				hash_Float(imag(c))
			}

		case kDecimal:
			var d apd.Decimal
			d.Reduce(x.(*apd.Decimal))
			h.WriteString("decimal")
			h.WriteString(d.String())

		// kSlice  - skip

		case kPointer:
			hash_Uint(uint64(r.Pointer()))
		}

		if handled {
			return h.Sum64()
		}

		// tuple, frozenset
		switch v := x.(type) {
		case Tuple:
			h.WriteString("tuple")
			for _, item := range v {
				hash_Uint(hash(seed, item))
			}
			return h.Sum64()

		case Set:
			// iteration order is random: combine item hashes commutatively
			var sum uint64
			v.Iter()(func(item any) bool {
				sum += hash(seed, item)
				return true
			})
			h.WriteString("set")
			hash_Uint(sum)
			return h.Sum64()
		}

		// structs  (also covers None, Class, Date etc)
		if k == kStruct {
			typ := r.Type()
			h.WriteString(typ.Name())
			l := typ.NumField()
			for i := 0; i < l; i++ {
				f := r.Field(i)

				// .Interface() is not allowed if the field is private.
				// Work it around via unsafe. See eq_Struct_Struct for details.
				ftyp := typ.Field(i)
				if !ftyp.IsExported() {
					if !f.CanAddr() {
						// switch r to addressable copy
						r_ := reflect.New(typ).Elem()
						r_.Set(r)
						r = r_
						f = r.Field(i)
					}
					f = reflect.NewAt(ftyp.Type, f.Addr().UnsafePointer()).Elem()
				}

				hash_Uint(hash(seed, f.Interface()))
			}
			return h.Sum64()
		}
	}

unhashable:
	panic(fmt.Sprintf("unhashable type: %T", x))
}

// ---- misc ----

// bint returns int corresponding to bool.
//
// true  -> 1
// false -> 0
func bint(x bool) int64 {
	if x {
		return 1
	}
	return 0
}
