package pickle

import (
	"sync"
)

// Constructor creates Go value for a Python class reference applied to args.
//
// The decoder calls it for REDUCE, NEWOBJ, NEWOBJ_EX, OBJ and INST.
type Constructor interface {
	Construct(args Tuple) (any, error)
}

// ConstructorFunc adapts ordinary function to Constructor.
type ConstructorFunc func(args Tuple) (any, error)

func (f ConstructorFunc) Construct(args Tuple) (any, error) {
	return f(args)
}

// StateSetter is implemented by constructed values that accept state from BUILD.
//
// It is the counterpart of Python's __setstate__.
type StateSetter interface {
	SetState(state any) error
}

// Registry maps "module.name" to Constructor.
//
// A Registry must be fully configured before it is used by decoders:
// Register is not safe to call concurrently with Decode.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns registry populated with constructors for Python builtin types.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}

	for _, builtins := range []string{"__builtin__", "builtins"} {
		r.Register(builtins, "bytearray", ConstructorFunc(constructBytearray))
		r.Register(builtins, "bytes", ConstructorFunc(constructBytes))
		r.Register(builtins, "set", ConstructorFunc(constructSet))
		r.Register(builtins, "frozenset", ConstructorFunc(constructSet))
		r.Register(builtins, "complex", ConstructorFunc(constructComplex))
	}
	r.Register("_codecs", "encode", ConstructorFunc(constructBytes))
	r.Register("array", "array", ConstructorFunc(constructArray))
	r.Register("array", "_array_reconstructor", ConstructorFunc(constructArray))
	r.Register("datetime", "datetime", ConstructorFunc(constructDatetime))
	r.Register("datetime", "date", ConstructorFunc(constructDate))
	r.Register("datetime", "time", ConstructorFunc(constructTime))
	r.Register("datetime", "timedelta", ConstructorFunc(constructTimedelta))
	r.Register("datetime", "timezone", ConstructorFunc(constructTimezone))
	r.Register("pytz", "_UTC", ConstructorFunc(constructUTC))
	r.Register("pytz", "_p", ConstructorFunc(constructNamedZone))
	r.Register("pytz", "timezone", ConstructorFunc(constructNamedZone))
	for _, tz := range []string{"dateutil.tz", "dateutil.tz.tz"} {
		r.Register(tz, "tzutc", ConstructorFunc(constructUTC))
		r.Register(tz, "tzfile", ConstructorFunc(constructTzfile))
	}
	r.Register("dateutil.zoneinfo", "gettz", ConstructorFunc(constructNamedZone))
	r.Register("decimal", "Decimal", ConstructorFunc(constructDecimal))
	r.Register("copy_reg", "_reconstructor", ConstructorFunc(r.reconstruct))
	r.Register("copyreg", "_reconstructor", ConstructorFunc(r.reconstruct))

	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry used by decoders
// that were not given one explicitly.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register registers constructor c for Python class module.name in DefaultRegistry.
func Register(module, name string, c Constructor) {
	DefaultRegistry().Register(module, name, c)
}

// Register registers constructor c for Python class module.name.
//
// A later registration for the same name replaces the earlier one,
// including the builtin constructors.
func (r *Registry) Register(module, name string, c Constructor) {
	r.ctors[qualname(module, name)] = c
}

// Lookup returns constructor for Python class module.name.
//
// Classes without registered constructor get generic one: exception classes
// are built as *PythonException and everything else as ClassDict.
func (r *Registry) Lookup(module, name string) Constructor {
	if c, ok := r.lookup(module, name); ok {
		return c
	}
	if isExceptionName(module, name) {
		return ExceptionConstructor{Module: module, Name: name}
	}
	return classDictConstructor{module: module, name: name}
}

// lookup returns only explicitly registered constructor.
func (r *Registry) lookup(module, name string) (Constructor, bool) {
	c, ok := r.ctors[qualname(module, name)]
	return c, ok
}

// reconstruct handles copy_reg._reconstructor(cls, base, state), which
// protocols 0 and 1 use for instances of new-style classes.
//
// base and state are those of the builtin base type, e.g. (object, None)
// for plain classes; the instance itself is created without arguments.
func (r *Registry) reconstruct(args Tuple) (any, error) {
	if len(args) != 3 {
		return nil, malformedf("copy_reg._reconstructor: expected 3 args, got %d", len(args))
	}
	cls, ok := args[0].(Class)
	if !ok {
		return nil, malformedf("copy_reg._reconstructor: invalid class %T", args[0])
	}
	return r.Lookup(cls.Module, cls.Name).Construct(nil)
}

func constructSet(args Tuple) (any, error) {
	s := NewSet()
	if len(args) == 0 {
		return s, nil
	}
	if len(args) != 1 {
		return nil, malformedf("set: expected 1 arg, got %d", len(args))
	}

	var items []any
	switch v := args[0].(type) {
	case *List:
		items = *v
	case Tuple:
		items = v
	case Set:
		items = v.Items()
	default:
		return nil, malformedf("set: expected list of items, got %T", args[0])
	}
	for _, item := range items {
		if err := s.tryAdd(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}
