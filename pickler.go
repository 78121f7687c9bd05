package pickle

import (
	"reflect"
)

// Pickler encodes values of one Go type.
//
// Pickle is called with the Encoder in the middle of a dump. It should emit
// exactly one value, typically with Encoder.SaveReduce or Encoder.Save.
type Pickler interface {
	Pickle(e *Encoder, v any) error
}

// PicklerFunc adapts ordinary function to Pickler.
type PicklerFunc func(e *Encoder, v any) error

func (f PicklerFunc) Pickle(e *Encoder, v any) error {
	return f(e, v)
}

// Picklers is a set of custom picklers keyed by Go type.
//
// Lookup first tries the exact type of a value and then, in registration
// order, the registered interface types the value implements.
type Picklers struct {
	exact  map[reflect.Type]Pickler
	ifaces []ifacePickler
}

type ifacePickler struct {
	iface reflect.Type
	p     Pickler
}

// NewPicklers returns empty set of custom picklers.
func NewPicklers() *Picklers {
	return &Picklers{exact: make(map[reflect.Type]Pickler)}
}

// Register registers p for values of type typ.
//
// If typ is an interface type, p serves every type implementing it. Use
// reflect.TypeOf((*I)(nil)).Elem() to obtain interface type I.
func (ps *Picklers) Register(typ reflect.Type, p Pickler) {
	if typ.Kind() == reflect.Interface {
		for i := range ps.ifaces {
			if ps.ifaces[i].iface == typ {
				ps.ifaces[i].p = p
				return
			}
		}
		ps.ifaces = append(ps.ifaces, ifacePickler{typ, p})
		return
	}
	ps.exact[typ] = p
}

func (ps *Picklers) lookup(typ reflect.Type) (Pickler, bool) {
	if ps == nil {
		return nil, false
	}
	if p, ok := ps.exact[typ]; ok {
		return p, true
	}
	for _, ip := range ps.ifaces {
		if typ.Implements(ip.iface) {
			return ip.p, true
		}
	}
	return nil, false
}

// FieldMapper is implemented by types that control which fields get pickled.
//
// The fields are pickled as dict together with "__class__": class, so that
// on Python side they unpickle as plain dict, and in Go as ClassDict-like Dict.
type FieldMapper interface {
	PickleFields() (class string, fields map[string]any)
}

// Labeler is implemented by enumeration-like types that pickle as their label.
type Labeler interface {
	PickleLabel() string
}
