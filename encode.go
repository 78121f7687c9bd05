package pickle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// maxRecursion is the maximum nesting of values the encoder accepts.
const maxRecursion = 200

// An Encoder encodes Go data structures into pickle byte stream.
//
// The encoder emits protocol 2, which both Python 2 and Python 3 understand.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	w      io.Writer
	config *EncoderConfig

	// identity -> memo index; nil when memoization is off
	memo map[memoKey]int

	// tuples being written; a tuple cannot contain itself
	tuples map[memoKey]bool

	// values with identity seen so far
	keep []any

	depth    int
	inPersid bool
}

// EncoderConfig allows to tune Encoder.
type EncoderConfig struct {
	// NoMemo disables memoization. Shared values are then written every
	// time they are referenced and cyclic values fail with ErrRecursionLimit.
	NoMemo bool

	// PersistentID, if !nil, is consulted for every value before it is
	// encoded. If it returns ok, the value is written as persistent
	// reference pid, which the decoding side resolves with its persistent load.
	PersistentID func(obj any) (pid any, ok bool)

	// Picklers provides custom encoding for Go types.
	Picklers *Picklers
}

// NewEncoder returns a new Encoder with the default configuration.
func NewEncoder(w io.Writer) *Encoder {
	return NewEncoderWithConfig(w, &EncoderConfig{})
}

// NewEncoderWithConfig is similar to NewEncoder, but allows specifying the encoder configuration.
func NewEncoderWithConfig(w io.Writer, config *EncoderConfig) *Encoder {
	if config == nil {
		config = &EncoderConfig{}
	}
	return &Encoder{w: w, config: config}
}

// Marshal returns the pickle of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the pickle encoding of v to w, the encoder's writer.
func (e *Encoder) Encode(v any) error {
	if !e.config.NoMemo {
		e.memo = make(map[memoKey]int)
	}
	e.tuples = nil
	e.depth = 0
	defer func() {
		e.memo = nil
		e.tuples = nil
		e.keep = nil
	}()

	if err := e.emit(opProto, 2); err != nil {
		return err
	}
	if err := e.Save(v); err != nil {
		return err
	}
	if e.depth != 0 {
		return fmt.Errorf("recursion depth %d after dump: %w", e.depth, ErrInternal)
	}
	return e.emit(opStop)
}

// Save writes v without PROTO and STOP framing.
//
// It is meant to be called by custom picklers for values they are made of.
func (e *Encoder) Save(v any) error {
	e.depth++
	if e.depth > maxRecursion {
		e.depth--
		return ErrRecursionLimit
	}
	err := e.save(v)
	e.depth--
	return err
}

// SaveGlobal writes reference to Python class or function module.name.
func (e *Encoder) SaveGlobal(module, name string) error {
	if err := e.emit(opGlobal); err != nil {
		return err
	}
	return e.emitString(module + "\n" + name + "\n")
}

// SaveReduce writes call module.name(*args) that the decoding side performs.
func (e *Encoder) SaveReduce(module, name string, args ...any) error {
	if err := e.SaveGlobal(module, name); err != nil {
		return err
	}
	if err := e.saveTuple(Tuple(args)); err != nil {
		return err
	}
	return e.emit(opReduce)
}

func (e *Encoder) emit(b ...byte) error {
	_, err := e.w.Write(b)
	return err
}

func (e *Encoder) emitString(s string) error {
	_, err := io.WriteString(e.w, s)
	return err
}

func (e *Encoder) save(v any) error {
	if v == nil {
		return e.emit(opNone)
	}

	if pid := e.config.PersistentID; pid != nil && !e.inPersid {
		if id, ok := pid(v); ok {
			// the id itself is never looked up as persistent
			e.inPersid = true
			err := e.Save(id)
			e.inPersid = false
			if err != nil {
				return err
			}
			return e.emit(opBinpersid)
		}
	}

	if p, ok := e.config.Picklers.lookup(reflect.TypeOf(v)); ok {
		return p.Pickle(e, v)
	}

	switch v := v.(type) {
	case None:
		return e.emit(opNone)
	case bool:
		return e.saveBool(v)
	case int64:
		return e.saveInt(v)
	case int:
		return e.saveInt(int64(v))
	case float64:
		return e.saveFloat(v)
	case string:
		return e.saveUnicode(v)
	case Bytes:
		return e.saveBytes(v)
	case []byte:
		return e.saveBytearray(v)
	case Tuple:
		return e.saveTuple(v)
	case *List:
		if v == nil {
			return e.emit(opNone)
		}
		return e.saveList(e.identity(v), *v)
	case Dict:
		return e.saveDict(v)
	case Set:
		return e.saveSet(v)
	case ClassDict:
		return e.saveStringMap(e.identity(v), v)
	case Class:
		return e.SaveGlobal(v.Module, v.Name)
	case time.Time:
		return e.saveDatetime(v)
	case Date:
		return e.SaveReduce("datetime", "date", int64(v.Year), int64(v.Month), int64(v.Day))
	case TimeOfDay:
		return e.saveTimeOfDay(v)
	case TimeDelta:
		return e.saveTimedelta(v)
	case timezoneOffset:
		return e.saveTimezone(int(v))
	case time.Duration:
		return e.saveTimedelta(TimeDeltaOf(v))
	case *apd.Decimal:
		if v == nil {
			return e.emit(opNone)
		}
		return e.SaveReduce("decimal", "Decimal", v.String())
	case apd.Decimal:
		return e.SaveReduce("decimal", "Decimal", v.String())
	case complex128:
		return e.saveComplex(v)
	case complex64:
		return e.saveComplex(complex128(v))
	case *PythonException:
		if v == nil {
			return e.emit(opNone)
		}
		return e.saveException(v)
	case []bool:
		t := make(Tuple, len(v))
		for i, b := range v {
			t[i] = b
		}
		return e.saveTuple(t)
	case Labeler:
		return e.saveUnicode(v.PickleLabel())
	case FieldMapper:
		class, fields := v.PickleFields()
		m := make(map[string]any, len(fields)+1)
		for k, fv := range fields {
			m[k] = fv
		}
		m["__class__"] = class
		return e.saveStringMap(e.identity(v), m)
	}

	if typecode, ok := arrayTypecodeOf(v); ok {
		return e.saveArray(typecode, v)
	}

	return e.saveReflect(reflect.ValueOf(v))
}

// saveReflect handles types by their kind.
func (e *Encoder) saveReflect(rv reflect.Value) error {
	switch rk := rv.Kind(); rk {
	case reflect.Bool:
		return e.saveBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.saveInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.saveUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return e.saveFloat(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		return e.saveComplex(rv.Complex())
	case reflect.String:
		return e.saveUnicode(rv.String())

	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return e.saveBytearray(b)
		}
		if rk == reflect.Slice && rv.IsNil() {
			return e.emit(opNone)
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		var id memoKey
		if rk == reflect.Slice {
			id = e.identity(rv.Interface())
		}
		return e.saveList(id, items)

	case reflect.Map:
		return e.saveMap(rv)

	case reflect.Struct:
		return e.saveStruct(memoKey{}, rv)

	case reflect.Pointer:
		if rv.IsNil() {
			return e.emit(opNone)
		}
		if rv.Elem().Kind() == reflect.Struct {
			id := e.identity(rv.Interface())
			if ok, err := e.memoGet(id); ok || err != nil {
				return err
			}
			return e.saveStruct(id, rv.Elem())
		}
		return e.Save(rv.Elem().Interface())

	case reflect.Interface:
		if rv.IsNil() {
			return e.emit(opNone)
		}
		return e.Save(rv.Elem().Interface())

	case reflect.Invalid:
		return e.emit(opNone)
	}

	return unsupportedf("encode: unsupported type %s", rv.Type())
}

// ---- scalars ----

func (e *Encoder) saveBool(b bool) error {
	if b {
		return e.emit(opNewtrue)
	}
	return e.emit(opNewfalse)
}

// saveInt uses the smallest form that round-trips.
func (e *Encoder) saveInt(i int64) error {
	switch {
	case i >= 0 && i <= math.MaxUint8:
		return e.emit(opBinint1, byte(i))
	case i >= 0 && i <= math.MaxUint16:
		return e.emit(opBinint2, byte(i), byte(i>>8))
	case i >= math.MinInt32 && i <= math.MaxInt32:
		var b [5]byte
		b[0] = opBinint
		binary.LittleEndian.PutUint32(b[1:], uint32(i))
		return e.emit(b[:]...)
	default: // int64, but as a string :/
		return e.emitString("I" + strconv.FormatInt(i, 10) + "\n")
	}
}

func (e *Encoder) saveUint(u uint64) error {
	if u <= math.MaxInt64 {
		return e.saveInt(int64(u))
	}
	return e.emitString("I" + strconv.FormatUint(u, 10) + "\n")
}

func (e *Encoder) saveFloat(f float64) error {
	b := float64ToBE(f)
	return e.emit(append([]byte{opBinfloat}, b[:]...)...)
}

func (e *Encoder) saveUnicode(s string) error {
	var b [5]byte
	b[0] = opBinunicode
	binary.LittleEndian.PutUint32(b[1:], uint32(len(s)))
	if err := e.emit(b[:]...); err != nil {
		return err
	}
	return e.emitString(s)
}

// saveBytes writes bytes the way Python 3 does for protocol 2:
//
//	_codecs.encode(byt.decode('latin1'), 'latin1')
func (e *Encoder) saveBytes(b Bytes) error {
	if len(b) == 0 {
		return e.SaveReduce("__builtin__", "bytes")
	}
	return e.SaveReduce("_codecs", "encode", latin1Decode([]byte(b)), "latin1")
}

// saveBytearray writes bytearray(unicode, 'latin-1').
func (e *Encoder) saveBytearray(b []byte) error {
	id := e.identity(b)
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	if err := e.SaveReduce("__builtin__", "bytearray", latin1Decode(b), "latin-1"); err != nil {
		return err
	}
	return e.memoize(id)
}

func (e *Encoder) saveComplex(c complex128) error {
	return e.SaveReduce("__builtin__", "complex", real(c), imag(c))
}

func (e *Encoder) saveDatetime(t time.Time) error {
	if err := e.SaveGlobal("datetime", "datetime"); err != nil {
		return err
	}
	if err := e.emit(opMark); err != nil {
		return err
	}
	for _, field := range []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond() / 1000} {
		if err := e.saveInt(int64(field)); err != nil {
			return err
		}
	}
	// UTC is written naive; any other zone as fixed offset of this instant
	if t.Location() != time.UTC {
		_, offset := t.Zone()
		if err := e.saveTimezone(offset); err != nil {
			return err
		}
	}
	return e.emit(opTuple, opReduce)
}

// saveTimeOfDay writes time with its zone as fixed offset; the offset of
// a zone with transitions is taken on 1970-01-01.
func (e *Encoder) saveTimeOfDay(t TimeOfDay) error {
	args := []any{int64(t.Hour), int64(t.Minute), int64(t.Second), int64(t.Microsecond)}
	if t.Location != nil {
		_, offset := time.Date(1970, 1, 1, t.Hour, t.Minute, t.Second, 0, t.Location).Zone()
		args = append(args, timezoneOffset(offset))
	}
	return e.SaveReduce("datetime", "time", args...)
}

// timezoneOffset is fixed UTC offset in seconds pickled as datetime.timezone.
type timezoneOffset int

func (e *Encoder) saveTimezone(offset int) error {
	return e.SaveReduce("datetime", "timezone", NewTimeDelta(0, offset, 0))
}

func (e *Encoder) saveTimedelta(td TimeDelta) error {
	return e.SaveReduce("datetime", "timedelta", int64(td.Days), int64(td.Seconds), int64(td.Microseconds))
}

func (e *Encoder) saveException(exc *PythonException) error {
	id := e.identity(exc)
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	args := exc.Args
	if args == nil {
		args = Tuple{}
	}
	if err := e.SaveReduce(exc.Module, exc.Name, []any(args)...); err != nil {
		return err
	}
	if err := e.memoize(id); err != nil {
		return err
	}
	if len(exc.Attributes) == 0 {
		return nil
	}
	if err := e.saveStringMap(memoKey{}, exc.Attributes); err != nil {
		return err
	}
	return e.emit(opBuild)
}

// ---- containers ----

func (e *Encoder) saveTuple(t Tuple) error {
	if len(t) == 0 {
		return e.emit(opEmptyTuple)
	}

	id := e.identity(t)
	if e.tuples[id] {
		return fmt.Errorf("tuple containing itself: %w", ErrRecursiveStructure)
	}
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	if e.tuples == nil {
		e.tuples = make(map[memoKey]bool)
	}
	e.tuples[id] = true
	defer delete(e.tuples, id)

	if len(t) > 3 {
		if err := e.emit(opMark); err != nil {
			return err
		}
	}
	for _, item := range t {
		if err := e.Save(item); err != nil {
			return err
		}
	}

	var err error
	switch len(t) {
	case 1:
		err = e.emit(opTuple1)
	case 2:
		err = e.emit(opTuple2)
	case 3:
		err = e.emit(opTuple3)
	default:
		err = e.emit(opTuple)
	}
	if err != nil {
		return err
	}
	return e.memoize(id)
}

// saveList writes EMPTY_LIST, memoizes it, and appends items so that
// items can refer back to the list.
func (e *Encoder) saveList(id memoKey, items []any) error {
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	if err := e.emit(opEmptyList); err != nil {
		return err
	}
	if err := e.memoize(id); err != nil {
		return err
	}
	if err := e.emit(opMark); err != nil {
		return err
	}
	for _, item := range items {
		if err := e.Save(item); err != nil {
			return err
		}
	}
	return e.emit(opAppends)
}

type kv struct {
	k, v any
}

// saveItems writes EMPTY_DICT, memoizes it and fills it with items.
func (e *Encoder) saveItems(id memoKey, items []kv) error {
	if err := e.emit(opEmptyDict); err != nil {
		return err
	}
	if err := e.memoize(id); err != nil {
		return err
	}
	if err := e.emit(opMark); err != nil {
		return err
	}
	sortItems(items)
	for _, item := range items {
		if err := e.Save(item.k); err != nil {
			return err
		}
		if err := e.Save(item.v); err != nil {
			return err
		}
	}
	return e.emit(opSetitems)
}

func (e *Encoder) saveDict(d Dict) error {
	id := e.identity(d)
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	items := make([]kv, 0, d.Len())
	d.Iter()(func(k, v any) bool {
		items = append(items, kv{k, v})
		return true
	})
	return e.saveItems(id, items)
}

func (e *Encoder) saveStringMap(id memoKey, m map[string]any) error {
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	items := make([]kv, 0, len(m))
	for k, v := range m {
		items = append(items, kv{k, v})
	}
	return e.saveItems(id, items)
}

func (e *Encoder) saveMap(rv reflect.Value) error {
	var id memoKey
	if !rv.IsNil() {
		id = e.identity(rv.Interface())
	}
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	items := make([]kv, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		items = append(items, kv{iter.Key().Interface(), iter.Value().Interface()})
	}
	return e.saveItems(id, items)
}

// saveStruct writes exported fields of a struct as dict tagged with "__class__".
//
// Field names can be overridden with `pickle:"name"` tag; `pickle:"-"` skips the field.
func (e *Encoder) saveStruct(id memoKey, st reflect.Value) error {
	typ := st.Type()
	items := []kv{{"__class__", typ.String()}}
	for i := 0; i < typ.NumField(); i++ {
		fty := typ.Field(i)
		if !fty.IsExported() {
			continue // skip unexported names
		}
		name := fty.Name
		if tag := fty.Tag.Get("pickle"); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		items = append(items, kv{name, st.Field(i).Interface()})
	}
	return e.saveItems(id, items)
}

// saveSet writes set([items...]).
func (e *Encoder) saveSet(s Set) error {
	id := e.identity(s)
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	items := s.Items()
	sortKeys(items)
	if err := e.SaveGlobal("__builtin__", "set"); err != nil {
		return err
	}
	if err := e.saveItemList(items); err != nil {
		return err
	}
	if err := e.emit(opTuple1, opReduce); err != nil {
		return err
	}
	return e.memoize(id)
}

// saveItemList writes a list that is never referenced, e.g. constructor argument.
func (e *Encoder) saveItemList(items []any) error {
	if err := e.emit(opEmptyList, opMark); err != nil {
		return err
	}
	for _, item := range items {
		if err := e.Save(item); err != nil {
			return err
		}
	}
	return e.emit(opAppends)
}

// saveArray writes typed slice as array.array(typecode, [items...]).
func (e *Encoder) saveArray(typecode string, v any) error {
	id := e.identity(v)
	if ok, err := e.memoGet(id); ok || err != nil {
		return err
	}
	if err := e.SaveGlobal("array", "array"); err != nil {
		return err
	}
	if err := e.emit(opShortBinstring, 1, typecode[0]); err != nil {
		return err
	}

	rv := reflect.ValueOf(v)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	if err := e.saveItemList(items); err != nil {
		return err
	}
	if err := e.emit(opTuple2, opReduce); err != nil {
		return err
	}
	return e.memoize(id)
}

// ---- memo ----

// memoKey identifies a value for memoization.
//
// Only values with identity get a valid key: pointers, maps, non-empty
// slices, Dict and Set. The zero memoKey means "no identity".
type memoKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

func (k memoKey) valid() bool {
	return k.ptr != 0
}

func memoKeyOf(v any) memoKey {
	switch v := v.(type) {
	case Dict:
		return memoKey{typ: reflect.TypeOf(v), ptr: reflect.ValueOf(v.m).Pointer()}
	case Set:
		return memoKey{typ: reflect.TypeOf(v), ptr: reflect.ValueOf(v.m).Pointer()}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return memoKey{typ: rv.Type(), ptr: rv.Pointer()}
	case reflect.Slice:
		if rv.Len() == 0 {
			return memoKey{}
		}
		return memoKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}
	}
	return memoKey{}
}

// identity returns memo key of v.
//
// v is retained until the end of dump so that its address is not reused by
// a temporary value encoded later.
func (e *Encoder) identity(v any) memoKey {
	k := memoKeyOf(v)
	if k.valid() && e.memo != nil {
		e.keep = append(e.keep, v)
	}
	return k
}

// memoize records id under the next memo index and writes PUT for it.
func (e *Encoder) memoize(id memoKey) error {
	if e.memo == nil || !id.valid() {
		return nil
	}
	idx := len(e.memo)
	e.memo[id] = idx
	if idx <= 0xff {
		return e.emit(opBinput, byte(idx))
	}
	var b [5]byte
	b[0] = opLongBinput
	binary.LittleEndian.PutUint32(b[1:], uint32(idx))
	return e.emit(b[:]...)
}

// memoGet writes GET for id if it was already memoized.
func (e *Encoder) memoGet(id memoKey) (bool, error) {
	if e.memo == nil || !id.valid() {
		return false, nil
	}
	idx, ok := e.memo[id]
	if !ok {
		return false, nil
	}
	if idx <= 0xff {
		return true, e.emit(opBinget, byte(idx))
	}
	var b [5]byte
	b[0] = opLongBinget
	binary.LittleEndian.PutUint32(b[1:], uint32(idx))
	return true, e.emit(b[:]...)
}

// ---- deterministic order ----

func sortItems(items []kv) {
	sort.SliceStable(items, func(i, j int) bool {
		return keyLess(items[i].k, items[j].k)
	})
}

func sortKeys(keys []any) {
	sort.SliceStable(keys, func(i, j int) bool {
		return keyLess(keys[i], keys[j])
	})
}

// keyLess orders numbers before strings before everything else.
func keyLess(a, b any) bool {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 0:
		fa, fb := keyFloat(a), keyFloat(b)
		if fa != fb {
			return fa < fb
		}
	case 1:
		return reflect.ValueOf(a).String() < reflect.ValueOf(b).String()
	}
	return fmt.Sprintf("%#v", a) < fmt.Sprintf("%#v", b)
}

func keyRank(x any) int {
	switch kindOf(x) {
	case kBool, kInt, kUint, kFloat:
		return 0
	}
	if reflect.ValueOf(x).Kind() == reflect.String {
		return 1
	}
	return 2
}

func keyFloat(x any) float64 {
	r := reflect.ValueOf(x)
	switch kindOf(x) {
	case kBool:
		return float64(bint(r.Bool()))
	case kInt:
		return float64(r.Int())
	case kUint:
		return float64(r.Uint())
	}
	return r.Float()
}
