package pickle

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// Decoder is a decoder for pickle streams.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r        Reader
	config   *DecoderConfig
	registry *Registry

	stack stack
	memo  map[int]any

	// number of the opcode being decoded, 1-based
	insn int
}

// DecoderConfig allows to tune Decoder.
type DecoderConfig struct {
	// PersistentLoad, if !nil, will be used by decoder to handle persistent references.
	//
	// Whenever the decoder finds a persistent id (PERSID, BINPERSID) in the
	// pickle stream it calls PersistentLoad and uses returned object in place
	// of the reference. For PERSID pid is string; for BINPERSID it is
	// arbitrary decoded value.
	//
	// Without PersistentLoad, pickles with persistent ids fail to decode.
	PersistentLoad func(pid any) (any, error)

	// Registry provides constructors for class references. If nil,
	// DefaultRegistry() is used.
	Registry *Registry
}

// NewDecoder constructs a new Decoder which will decode the pickle stream in r.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithConfig(r, &DecoderConfig{})
}

// NewDecoderWithConfig is similar to NewDecoder, but allows specifying decoder configuration.
func NewDecoderWithConfig(r io.Reader, config *DecoderConfig) *Decoder {
	return newDecoder(newReader(r), config)
}

// NewDecoderReader returns Decoder reading from one of the Reader backends,
// e.g. NewBufferReader over a buffer shared with the caller. config may be nil.
func NewDecoderReader(r Reader, config *DecoderConfig) *Decoder {
	return newDecoder(r, config)
}

// NewDecoderBytes returns Decoder over in-memory pickle data. config may be nil.
func NewDecoderBytes(data []byte, config *DecoderConfig) *Decoder {
	return newDecoder(NewSliceReader(data), config)
}

func newDecoder(r Reader, config *DecoderConfig) *Decoder {
	if config == nil {
		config = &DecoderConfig{}
	}
	registry := config.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Decoder{
		r:        r,
		config:   config,
		registry: registry,
	}
}

// Unmarshal decodes one pickle from data.
func Unmarshal(data []byte) (any, error) {
	return NewDecoderBytes(data, nil).Decode()
}

// Decode decodes the pickle stream and returns the result or an error.
//
// It returns io.EOF if the stream ends cleanly before the next pickle, and
// io.ErrUnexpectedEOF if it ends in the middle of one. Consecutive calls
// decode consecutive pickles from the stream.
func (d *Decoder) Decode() (any, error) {
	d.stack.clear()
	d.memo = make(map[int]any)
	defer func() {
		d.stack.clear()
		d.memo = nil
	}()

	d.insn = 0
loop:
	for {
		key, err := d.r.ReadByte()
		if err != nil {
			if err == io.EOF && d.insn != 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		d.insn++

		switch key {
		case opMark:
			d.stack.pushMark()
		case opStop:
			break loop
		case opPop:
			_, err = d.stack.pop()
		case opPopMark:
			_, err = d.stack.popToMark()
		case opDup:
			err = d.dup()
		case opFloat:
			err = d.loadFloat()
		case opInt:
			err = d.loadInt()
		case opBinint:
			err = d.loadBinInt()
		case opBinint1:
			err = d.loadBinInt1()
		case opLong:
			err = d.loadLong()
		case opBinint2:
			err = d.loadBinInt2()
		case opNone:
			d.stack.push(None{})
		case opPersid:
			err = d.loadPersid()
		case opBinpersid:
			err = d.loadBinPersid()
		case opReduce:
			err = d.reduce()
		case opString:
			err = d.loadString()
		case opBinstring:
			err = d.loadBinString()
		case opShortBinstring:
			err = d.loadShortBinString()
		case opUnicode:
			err = d.loadUnicode()
		case opBinunicode:
			err = d.loadBinUnicode()
		case opBinunicode8:
			err = d.loadBinUnicode8()
		case opShortBinUnicode:
			err = d.loadShortBinUnicode()
		case opAppend:
			err = d.loadAppend()
		case opBuild:
			err = d.build()
		case opGlobal:
			err = d.global()
		case opStackGlobal:
			err = d.stackGlobal()
		case opDict:
			err = d.loadDict()
		case opEmptyDict:
			d.stack.push(NewDict())
		case opAppends:
			err = d.loadAppends()
		case opGet:
			err = d.get()
		case opBinget:
			err = d.binGet()
		case opLongBinget:
			err = d.longBinGet()
		case opInst:
			err = d.inst()
		case opLong1:
			err = d.loadLong1()
		case opLong4:
			err = d.loadLong4()
		case opNewfalse:
			d.stack.push(false)
		case opNewtrue:
			d.stack.push(true)
		case opList:
			err = d.loadList()
		case opEmptyList:
			d.stack.push(NewList())
		case opObj:
			err = d.obj()
		case opPut:
			err = d.loadPut()
		case opBinput:
			err = d.binPut()
		case opLongBinput:
			err = d.longBinPut()
		case opMemoize:
			err = d.memoTop(len(d.memo))
		case opSetitem:
			err = d.loadSetItem()
		case opSetitems:
			err = d.loadSetItems()
		case opTuple:
			err = d.loadTuple()
		case opTuple1:
			err = d.tupleN(1)
		case opTuple2:
			err = d.tupleN(2)
		case opTuple3:
			err = d.tupleN(3)
		case opEmptyTuple:
			d.stack.push(Tuple{})
		case opEmptySet:
			d.stack.push(NewSet())
		case opFrozenSet:
			err = d.loadFrozenSet()
		case opAddItems:
			err = d.loadAddItems()
		case opBinfloat:
			err = d.binFloat()
		case opBinbytes:
			err = d.loadBinBytes()
		case opShortBinbytes:
			err = d.loadShortBinBytes()
		case opBinbytes8:
			err = d.loadBinBytes8()
		case opBytearray8:
			err = d.loadBytearray8()
		case opNewobj:
			err = d.reduce()
		case opNewobjEx:
			err = d.newobjEx()
		case opFrame:
			// the frame length is only a buffering hint; its contents are
			// regular opcodes
			err = d.r.Skip(8)
		case opProto:
			err = d.loadProto()
		case opExt1, opExt2, opExt4:
			err = unsupportedf("extension registry opcode %q", key)
		case opNextBuffer, opReadOnlyBuffer:
			// TODO consider adding support for out-of-band data in the future
			err = unsupportedf("out-of-band buffer opcode %q", key)

		default:
			return nil, OpcodeError{key, d.insn}
		}

		if err != nil {
			// EOF from individual opcode decoder is unexpected end of stream
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	return d.popUser()
}

// popUser pops stack value and checks whether it is ok to return to user.
func (d *Decoder) popUser() (any, error) {
	v, err := d.stack.pop()
	if err != nil {
		return nil, err
	}
	if err := userOK(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Duplicate the top stack item
func (d *Decoder) dup() error {
	v, err := d.stack.peek()
	if err != nil {
		return err
	}
	if err := userOK(v); err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

func (d *Decoder) loadProto() error {
	v, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	// The PROTO opcode documentation says protocol version must be in [2, 256).
	// However CPython also loads PROTO with version 0 and 1 without error.
	// So we allow all supported versions as PROTO argument.
	if v > highestProtocol {
		return fmt.Errorf("protocol %d: %w", v, ErrInvalidPickleVersion)
	}
	return nil
}

// ---- numbers ----

// Push a float
func (d *Decoder) loadFloat() error {
	line, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return malformedf("float %q", line)
	}
	d.stack.push(v)
	return nil
}

// Push an int
func (d *Decoder) loadInt() error {
	line, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}

	switch line {
	case opFalse[1:3]:
		d.stack.push(false)
		return nil
	case opTrue[1:3]:
		d.stack.push(true)
		return nil
	}

	v, err := parseInt(line)
	if err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

// Push a long
//
// Python 2 writes LONG argument with L suffix; Python 3 keeps writing it for compatibility.
func (d *Decoder) loadLong() error {
	line, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	if l := len(line); l > 0 && line[l-1] == 'L' {
		line = line[:l-1]
	}
	v, err := parseInt(line)
	if err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

// parseInt parses decimal text integer into int64, or uint64 for values above MaxInt64.
func parseInt(s string) (any, error) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		u, err := strconv.ParseUint(s, 10, 64)
		if err == nil {
			return u, nil
		}
		return nil, fmt.Errorf("int %s: %w", s, ErrLongOverflow)
	}
	return nil, malformedf("int %q", s)
}

// Push a four-byte signed int
func (d *Decoder) loadBinInt() error {
	b, err := d.r.ReadBytes(4)
	if err != nil {
		return err
	}
	v, err := leInt32(b, 0)
	if err != nil {
		return err
	}
	d.stack.push(int64(v)) // NOTE signed: uint32 -> int32, and only then -> int64
	return nil
}

// Push a 1-byte unsigned int
func (d *Decoder) loadBinInt1() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	d.stack.push(int64(b))
	return nil
}

// Push a 2-byte unsigned int
func (d *Decoder) loadBinInt2() error {
	b, err := d.r.ReadBytes(2)
	if err != nil {
		return err
	}
	v, err := leUint16(b, 0)
	if err != nil {
		return err
	}
	d.stack.push(int64(v))
	return nil
}

// Push a long1
func (d *Decoder) loadLong1() error {
	n, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.pushLong(int(n))
}

// Push a long4
func (d *Decoder) loadLong4() error {
	n, err := d.readLen4()
	if err != nil {
		return err
	}
	return d.pushLong(n)
}

func (d *Decoder) pushLong(n int) error {
	data, err := d.r.ReadBytes(n)
	if err != nil {
		return err
	}
	v, err := decodeLong(data)
	if err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

func (d *Decoder) binFloat() error {
	b, err := d.r.ReadBytes(8)
	if err != nil {
		return err
	}
	v, err := beFloat64(b, 0)
	if err != nil {
		return err
	}
	d.stack.push(v)
	return nil
}

// ---- strings and bytes ----

// readLen4 reads signed 4-byte length.
func (d *Decoder) readLen4() (int, error) {
	b, err := d.r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	n, err := leInt32(b, 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformedf("negative length %d", n)
	}
	return int(n), nil
}

// readULen4 reads unsigned 4-byte length.
func (d *Decoder) readULen4() (int, error) {
	b, err := d.r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	n, err := leUint32(b, 0)
	if err != nil {
		return 0, err
	}
	if uint64(n) > math.MaxInt {
		return 0, malformedf("length %d too big", n)
	}
	return int(n), nil
}

// readULen8 reads unsigned 8-byte length.
func (d *Decoder) readULen8() (int, error) {
	b, err := d.r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	n, err := leUint64(b, 0)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt {
		return 0, malformedf("length %d too big", n)
	}
	return int(n), nil
}

// readShortLen reads 1-byte length.
func (d *Decoder) readShortLen() (int, error) {
	b, err := d.r.ReadByte()
	return int(b), err
}

// readData reads length via readLen and then that many bytes.
//
// The result may alias reader's internal storage.
func (d *Decoder) readData(readLen func() (int, error)) ([]byte, error) {
	n, err := readLen()
	if err != nil {
		return nil, err
	}
	return d.r.ReadBytes(n)
}

// Push a string
func (d *Decoder) loadString() error {
	line, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}

	if len(line) < 2 {
		return malformedf("string: insecure string pickle")
	}

	var delim byte
	switch line[0] {
	case '\'':
		delim = '\''
	case '"':
		delim = '"'
	default:
		return malformedf("string: invalid string delimiter: %c", line[0])
	}

	if line[len(line)-1] != delim {
		return malformedf("string: insecure string pickle")
	}

	s, err := decodeEscaped(line[1 : len(line)-1])
	if err != nil {
		return err
	}

	d.stack.push(s)
	return nil
}

// py2 str is bytes; we decode it as text with one character per byte.
func (d *Decoder) pushBinString(readLen func() (int, error)) error {
	data, err := d.readData(readLen)
	if err != nil {
		return err
	}
	d.stack.push(latin1Decode(data))
	return nil
}

func (d *Decoder) loadBinString() error {
	return d.pushBinString(d.readLen4)
}

func (d *Decoder) loadShortBinString() error {
	return d.pushBinString(d.readShortLen)
}

func (d *Decoder) loadUnicode() error {
	line, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}

	text, err := decodeUnicodeEscaped(line)
	if err != nil {
		return err
	}

	d.stack.push(text)
	return nil
}

// UTF-8 counted unicode
func (d *Decoder) pushUnicode(readLen func() (int, error)) error {
	data, err := d.readData(readLen)
	if err != nil {
		return err
	}
	d.stack.push(string(data))
	return nil
}

func (d *Decoder) loadBinUnicode() error {
	return d.pushUnicode(d.readULen4)
}

func (d *Decoder) loadShortBinUnicode() error {
	return d.pushUnicode(d.readShortLen)
}

func (d *Decoder) loadBinUnicode8() error {
	return d.pushUnicode(d.readULen8)
}

func (d *Decoder) pushBytes(readLen func() (int, error)) error {
	data, err := d.readData(readLen)
	if err != nil {
		return err
	}
	d.stack.push(Bytes(data))
	return nil
}

func (d *Decoder) loadBinBytes() error {
	return d.pushBytes(d.readULen4)
}

func (d *Decoder) loadShortBinBytes() error {
	return d.pushBytes(d.readShortLen)
}

func (d *Decoder) loadBinBytes8() error {
	return d.pushBytes(d.readULen8)
}

func (d *Decoder) loadBytearray8() error {
	data, err := d.readData(d.readULen8)
	if err != nil {
		return err
	}
	// unalias from reader's buffer
	d.stack.push(append([]byte{}, data...))
	return nil
}

// ---- persistent references ----

// Push a persistent object id
func (d *Decoder) loadPersid() error {
	pid, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	return d.handleRef(pid)
}

// Push a persistent object id from items on the stack
func (d *Decoder) loadBinPersid() error {
	pid, err := d.popUser()
	if err != nil {
		return err
	}
	return d.handleRef(pid)
}

// handleRef is common place to handle persistent references.
func (d *Decoder) handleRef(pid any) error {
	load := d.config.PersistentLoad
	if load == nil {
		return unsupportedf("persistent id %v: no PersistentLoad configured", pid)
	}
	obj, err := load(pid)
	if err != nil {
		return fmt.Errorf("pickle: persistent load %v: %w", pid, err)
	}
	d.stack.push(obj)
	return nil
}

// ---- lists, dicts, tuples, sets ----

func (d *Decoder) loadAppend() error {
	v, err := d.popUser()
	if err != nil {
		return err
	}
	l, err := d.stack.peek()
	if err != nil {
		return err
	}
	switch l := l.(type) {
	case *List:
		l.Append(v)
	default:
		return malformedf("append: expected a list, got %T", l)
	}
	return nil
}

func (d *Decoder) loadAppends() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	l, err := d.stack.peek()
	if err != nil {
		return err
	}
	switch l := l.(type) {
	case *List:
		l.Append(items...)
	default:
		return malformedf("appends: expected a list, got %T", l)
	}
	return nil
}

func (d *Decoder) loadList() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	d.stack.push(NewList(items...))
	return nil
}

func (d *Decoder) loadDict() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	m := NewDictWithSizeHint(len(items) / 2)
	if err := setItems(m, items); err != nil {
		return fmt.Errorf("dict: %w", err)
	}
	d.stack.push(m)
	return nil
}

// setItems assigns key/value pairs from kv to m.
func setItems(m Dict, kv []any) error {
	if len(kv)%2 != 0 {
		return malformedf("odd # of elements")
	}
	for i := 0; i < len(kv); i += 2 {
		if err := m.trySet(kv[i], kv[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// setObjItems serves SETITEM(S) for obj, which is either a dict or an
// instance of dict subclass such as collections.OrderedDict.
func setObjItems(obj any, kv []any) error {
	switch obj := obj.(type) {
	case Dict:
		return setItems(obj, kv)
	case ClassDict:
		if len(kv)%2 != 0 {
			return malformedf("odd # of elements")
		}
		for i := 0; i < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				return malformedf("%s: item key must be str, not %T", obj.ClassName(), kv[i])
			}
			obj[key] = kv[i+1]
		}
		return nil
	}
	return malformedf("expected a dict, got %T", obj)
}

func (d *Decoder) loadSetItem() error {
	v, err := d.popUser()
	if err != nil {
		return err
	}
	k, err := d.popUser()
	if err != nil {
		return err
	}
	m, err := d.stack.peek()
	if err != nil {
		return err
	}
	if err := setObjItems(m, []any{k, v}); err != nil {
		return fmt.Errorf("setitem: %w", err)
	}
	return nil
}

func (d *Decoder) loadSetItems() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	m, err := d.stack.peek()
	if err != nil {
		return err
	}
	if err := setObjItems(m, items); err != nil {
		return fmt.Errorf("setitems: %w", err)
	}
	return nil
}

func (d *Decoder) loadTuple() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	d.stack.push(Tuple(items))
	return nil
}

// tupleN(n) creates tuple from top n stack objects.
// it serves TUPLE{1,2,3} opcode handlers.
func (d *Decoder) tupleN(n int) error {
	if d.stack.len() < n {
		return ErrStackUnderflow
	}
	v := make(Tuple, n)
	for i := n - 1; i >= 0; i-- {
		item, err := d.popUser()
		if err != nil {
			return err
		}
		v[i] = item
	}
	d.stack.push(v)
	return nil
}

func (d *Decoder) loadFrozenSet() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	s := NewSet()
	for _, item := range items {
		if err := s.tryAdd(item); err != nil {
			return fmt.Errorf("frozenset: %w", err)
		}
	}
	d.stack.push(s)
	return nil
}

func (d *Decoder) loadAddItems() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	s, err := d.stack.peek()
	if err != nil {
		return err
	}
	switch s := s.(type) {
	case Set:
		for _, item := range items {
			if err := s.tryAdd(item); err != nil {
				return fmt.Errorf("additems: %w", err)
			}
		}
	default:
		return malformedf("additems: expected a set, got %T", s)
	}
	return nil
}

// ---- memo ----

// memoTop puts top of the stack into memo[key]; the stack is not changed.
// it is the worker for handling PUT, BINPUT, ... opcodes
func (d *Decoder) memoTop(key int) error {
	obj, err := d.stack.peek()
	if err != nil {
		return err
	}
	if err := userOK(obj); err != nil {
		return err
	}
	d.memo[key] = obj
	return nil
}

// memoGet pushes memo[key].
func (d *Decoder) memoGet(key int) error {
	v, ok := d.memo[key]
	if !ok {
		return fmt.Errorf("memo key %d: %w", key, ErrUnresolvedReference)
	}
	d.stack.push(v)
	return nil
}

// readMemoKey reads text memo index of GET and PUT.
func (d *Decoder) readMemoKey() (int, error) {
	line, err := d.r.ReadLine(false)
	if err != nil {
		return 0, err
	}
	key, err := strconv.Atoi(line)
	if err != nil || key < 0 {
		return 0, malformedf("memo key %q", line)
	}
	return key, nil
}

func (d *Decoder) readMemoKey4() (int, error) {
	b, err := d.r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	v, err := leUint32(b, 0)
	return int(v), err
}

func (d *Decoder) get() error {
	key, err := d.readMemoKey()
	if err != nil {
		return err
	}
	return d.memoGet(key)
}

func (d *Decoder) binGet() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.memoGet(int(b))
}

func (d *Decoder) longBinGet() error {
	key, err := d.readMemoKey4()
	if err != nil {
		return err
	}
	return d.memoGet(key)
}

func (d *Decoder) loadPut() error {
	key, err := d.readMemoKey()
	if err != nil {
		return err
	}
	return d.memoTop(key)
}

func (d *Decoder) binPut() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	return d.memoTop(int(b))
}

func (d *Decoder) longBinPut() error {
	key, err := d.readMemoKey4()
	if err != nil {
		return err
	}
	return d.memoTop(key)
}

// ---- classes and objects ----

func (d *Decoder) global() error {
	module, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	name, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	d.stack.push(Class{Module: module, Name: name})
	return nil
}

func (d *Decoder) stackGlobal() error {
	xname, err := d.popUser()
	if err != nil {
		return err
	}
	xmodule, err := d.popUser()
	if err != nil {
		return err
	}

	name, ok := xname.(string)
	if !ok {
		return malformedf("stack_global: invalid name: %T", xname)
	}
	module, ok := xmodule.(string)
	if !ok {
		return malformedf("stack_global: invalid module: %T", xmodule)
	}

	d.stack.push(Class{Module: module, Name: name})
	return nil
}

// reduce serves REDUCE and NEWOBJ: callable(*args).
func (d *Decoder) reduce() error {
	xargs, err := d.popUser()
	if err != nil {
		return err
	}
	callable, err := d.popUser()
	if err != nil {
		return err
	}
	args, ok := xargs.(Tuple)
	if !ok {
		return malformedf("reduce: invalid args: %T", xargs)
	}
	return d.call(callable, args)
}

func (d *Decoder) newobjEx() error {
	xkw, err := d.popUser()
	if err != nil {
		return err
	}
	kw, ok := xkw.(Dict)
	if !ok {
		return malformedf("newobj_ex: invalid kwargs: %T", xkw)
	}
	if kw.Len() != 0 {
		return unsupportedf("newobj_ex with keyword arguments")
	}
	return d.reduce()
}

// call applies constructor of callable to args and pushes the result.
func (d *Decoder) call(callable any, args Tuple) error {
	var (
		ctor Constructor
		cls  Class
	)
	switch c := callable.(type) {
	case Class:
		cls = c
		ctor = d.registry.Lookup(c.Module, c.Name)
	case Constructor:
		// e.g. returned by PersistentLoad
		cls = Class{Name: fmt.Sprintf("%T", c)}
		ctor = c
	default:
		return malformedf("reduce: invalid callable: %T", callable)
	}

	obj, err := ctor.Construct(args)
	if err != nil {
		return &ConstructionError{Module: cls.Module, Name: cls.Name, Err: err}
	}
	d.stack.push(obj)
	return nil
}

func (d *Decoder) build() error {
	state, err := d.popUser()
	if err != nil {
		return err
	}
	obj, err := d.stack.peek()
	if err != nil {
		return err
	}

	if _, ok := obj.(*time.Location); ok {
		// tzinfo subclasses such as dateutil's tzutc may carry empty state;
		// the zone is already known from the class
		return nil
	}
	setter, ok := obj.(StateSetter)
	if !ok {
		return &ConstructionError{Name: fmt.Sprintf("%T", obj), Err: errors.New("object does not accept state")}
	}
	if err := setter.SetState(state); err != nil {
		cls := Class{Name: fmt.Sprintf("%T", obj)}
		switch obj := obj.(type) {
		case ClassDict:
			cls.Name = obj.ClassName()
		case *PythonException:
			cls = Class{Module: obj.Module, Name: obj.Name}
		}
		return &ConstructionError{Module: cls.Module, Name: cls.Name, Err: fmt.Errorf("set state: %w", err)}
	}
	return nil
}

// inst serves INST: module and name come as arguments, constructor args from the stack.
func (d *Decoder) inst() error {
	module, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	name, err := d.r.ReadLine(false)
	if err != nil {
		return err
	}
	args, err := d.stack.popToMark()
	if err != nil {
		return err
	}

	ctor, ok := d.registry.lookup(module, name)
	if !ok {
		// ClassDict gets its attributes with BUILD; the constructor
		// arguments have no place there.
		ctor = classDictConstructor{module: module, name: name}
		args = nil
	}
	obj, err := ctor.Construct(args)
	if err != nil {
		return &ConstructionError{Module: module, Name: name, Err: err}
	}
	d.stack.push(obj)
	return nil
}

// obj serves OBJ: class and args all come from the stack since the mark.
func (d *Decoder) obj() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("obj: no class: %w", ErrStackUnderflow)
	}
	return d.call(items[0], Tuple(items[1:]))
}
