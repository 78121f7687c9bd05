package pickle
// array.array reconstruction.

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Python's array module pickles either as
//
//	array.array(typecode, [items...])
//
// or, since Python 3, as
//
//	array._array_reconstructor(array.array, typecode, machinecode, bytes)
//
// Typecodes map to Go slices:
//
//	c, u	string
//	b	[]int8
//	B	[]byte
//	h, H	[]int16, []uint16
//	i, I	[]int32, []uint32
//	l, L	[]int64, []uint64	(also q, Q)
//	f, d	[]float32, []float64
func constructArray(args Tuple) (any, error) {
	switch len(args) {
	case 4:
		// the first argument is the array class itself
		typecode, err := arrayTypecode(args[1])
		if err != nil {
			return nil, err
		}
		machinecode, err := AsInt64(args[2])
		if err != nil {
			return nil, malformedf("array: machine code: %s", err)
		}
		data, err := asRawBytes(args[3])
		if err != nil {
			return nil, malformedf("array: data: %s", err)
		}
		return arrayFromMachine(typecode, machinecode, data)

	case 2:
		typecode, err := arrayTypecode(args[0])
		if err != nil {
			return nil, err
		}
		switch items := args[1].(type) {
		case *List:
			return arrayFromList(typecode, *items)
		case string:
			return nil, unsupportedf("array: python 2.6 string array format")
		default:
			return nil, malformedf("array: expected list of items, got %T", args[1])
		}
	}

	return nil, malformedf("array: expected 2 or 4 args, got %d", len(args))
}

func arrayTypecode(x any) (byte, error) {
	s, err := AsString(x)
	if err != nil || len(s) != 1 {
		return 0, malformedf("array: invalid typecode %#v", x)
	}
	return s[0], nil
}

func arrayFromList(typecode byte, items []any) (any, error) {
	switch typecode {
	case 'c', 'u':
		out := make([]rune, len(items))
		for i, item := range items {
			s, err := AsString(item)
			if err != nil {
				return nil, malformedf("array %c: item %d: %s", typecode, i, err)
			}
			r := []rune(s)
			if len(r) != 1 {
				return nil, malformedf("array %c: item %d: want 1 character, got %q", typecode, i, s)
			}
			out[i] = r[0]
		}
		return string(out), nil

	case 'f':
		return floatItems(items, func(f float64) float32 { return float32(f) })
	case 'd':
		return floatItems(items, func(f float64) float64 { return f })

	case 'b':
		return intItems(items, math.MinInt8, math.MaxInt8, func(i int64) int8 { return int8(i) })
	case 'B':
		return intItems(items, 0, math.MaxUint8, func(i int64) byte { return byte(i) })
	case 'h':
		return intItems(items, math.MinInt16, math.MaxInt16, func(i int64) int16 { return int16(i) })
	case 'H':
		return intItems(items, 0, math.MaxUint16, func(i int64) uint16 { return uint16(i) })
	case 'i':
		return intItems(items, math.MinInt32, math.MaxInt32, func(i int64) int32 { return int32(i) })
	case 'I':
		return intItems(items, 0, math.MaxUint32, func(i int64) uint32 { return uint32(i) })
	case 'l', 'q':
		return intItems(items, math.MinInt64, math.MaxInt64, func(i int64) int64 { return i })
	case 'L', 'Q':
		out := make([]uint64, len(items))
		for i, item := range items {
			switch v := item.(type) {
			case uint64:
				out[i] = v
				continue
			}
			v, err := AsInt64(item)
			if err != nil || v < 0 {
				return nil, malformedf("array %c: item %d: invalid value %#v", typecode, i, item)
			}
			out[i] = uint64(v)
		}
		return out, nil
	}

	return nil, malformedf("array: invalid typecode %q", typecode)
}

func intItems[T any](items []any, lo, hi int64, conv func(int64) T) ([]T, error) {
	out := make([]T, len(items))
	for i, item := range items {
		v, err := AsInt64(item)
		if err != nil {
			return nil, malformedf("array: item %d: %s", i, err)
		}
		if v < lo || v > hi {
			return nil, malformedf("array: item %d: %d out of range", i, v)
		}
		out[i] = conv(v)
	}
	return out, nil
}

func floatItems[T any](items []any, conv func(float64) T) ([]T, error) {
	out := make([]T, len(items))
	for i, item := range items {
		var f float64
		switch v := item.(type) {
		case float64:
			f = v
		default:
			n, err := AsInt64(item)
			if err != nil {
				return nil, malformedf("array: item %d: expect float, got %T", i, item)
			}
			f = float64(n)
		}
		out[i] = conv(f)
	}
	return out, nil
}

// machine format codes, see enum machine_format_code in CPython's arraymodule.c.
//
// For codes ≥ 2 even codes are little-endian and odd codes big-endian.
type machineFormat struct {
	size int
	kind byte // 'u'nsigned, 's'igned, 'f'loat, 'c'haracter
}

var machineFormats = [...]machineFormat{
	0:  {1, 'u'},
	1:  {1, 's'},
	2:  {2, 'u'},
	3:  {2, 'u'},
	4:  {2, 's'},
	5:  {2, 's'},
	6:  {4, 'u'},
	7:  {4, 'u'},
	8:  {4, 's'},
	9:  {4, 's'},
	10: {8, 'u'},
	11: {8, 'u'},
	12: {8, 's'},
	13: {8, 's'},
	14: {4, 'f'},
	15: {4, 'f'},
	16: {8, 'f'},
	17: {8, 'f'},
	18: {2, 'c'},
	19: {2, 'c'},
	20: {4, 'c'},
	21: {4, 'c'},
}

// allowed machine codes per typecode
var typecodeMachineCodes = map[byte][]int64{
	'c': {18, 19, 20, 21},
	'u': {18, 19, 20, 21},
	'b': {1},
	'B': {0},
	'h': {4, 5},
	'H': {2, 3},
	'i': {8, 9},
	'I': {6, 7},
	'l': {8, 9, 12, 13},
	'L': {6, 7, 10, 11},
	'q': {12, 13},
	'Q': {10, 11},
	'f': {14, 15},
	'd': {16, 17},
}

func arrayFromMachine(typecode byte, machinecode int64, data []byte) (any, error) {
	allowed, ok := typecodeMachineCodes[typecode]
	if !ok {
		return nil, malformedf("array: invalid typecode %q", typecode)
	}
	if machinecode < 0 || machinecode >= int64(len(machineFormats)) {
		return nil, malformedf("array: unknown machine format code %d", machinecode)
	}
	valid := false
	for _, code := range allowed {
		if code == machinecode {
			valid = true
			break
		}
	}
	if !valid {
		return nil, malformedf("array %c: machine format code %d not allowed", typecode, machinecode)
	}

	mf := machineFormats[machinecode]
	if len(data)%mf.size != 0 {
		return nil, malformedf("array %c: %d bytes is not a multiple of item size %d", typecode, len(data), mf.size)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if machinecode >= 2 && machinecode%2 == 1 {
		order = binary.BigEndian
	}

	if mf.kind == 'c' {
		return decodeArrayText(data, mf.size, order)
	}

	n := len(data) / mf.size
	raw := func(i int) uint64 {
		b := data[i*mf.size:]
		switch mf.size {
		case 1:
			return uint64(b[0])
		case 2:
			return uint64(order.Uint16(b))
		case 4:
			return uint64(order.Uint32(b))
		default:
			return order.Uint64(b)
		}
	}
	// signed reinterprets the raw item according to its width.
	signed := func(i int) int64 {
		u := raw(i)
		switch mf.size {
		case 1:
			return int64(int8(u))
		case 2:
			return int64(int16(u))
		case 4:
			return int64(int32(u))
		default:
			return int64(u)
		}
	}

	switch typecode {
	case 'b':
		return fill(n, func(i int) int8 { return int8(signed(i)) }), nil
	case 'B':
		return fill(n, func(i int) byte { return byte(raw(i)) }), nil
	case 'h':
		return fill(n, func(i int) int16 { return int16(signed(i)) }), nil
	case 'H':
		return fill(n, func(i int) uint16 { return uint16(raw(i)) }), nil
	case 'i':
		return fill(n, func(i int) int32 { return int32(signed(i)) }), nil
	case 'I':
		return fill(n, func(i int) uint32 { return uint32(raw(i)) }), nil
	case 'l', 'q':
		return fill(n, signed), nil
	case 'L', 'Q':
		return fill(n, raw), nil
	case 'f':
		return fill(n, func(i int) float32 { return math.Float32frombits(uint32(raw(i))) }), nil
	case 'd':
		return fill(n, func(i int) float64 { return math.Float64frombits(raw(i)) }), nil
	}

	return nil, ErrInternal
}

func fill[T any](n int, item func(i int) T) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = item(i)
	}
	return out
}

// decodeArrayText decodes UTF-16 or UTF-32 array data.
func decodeArrayText(data []byte, size int, order binary.ByteOrder) (string, error) {
	var enc encoding.Encoding
	bigEndian := order == binary.BigEndian
	switch {
	case size == 2 && bigEndian:
		enc = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case size == 2:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case bigEndian:
		enc = utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	default:
		enc = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)
	}

	text, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", malformedf("array: %s", err)
	}
	return string(text), nil
}

// arrayTypecodeOf returns typecode used to pickle Go slice v as array.array.
func arrayTypecodeOf(v any) (string, bool) {
	switch v.(type) {
	case []int8:
		return "b", true
	case []int16:
		return "h", true
	case []uint16:
		return "H", true
	case []int32:
		return "i", true
	case []uint32:
		return "I", true
	case []int64:
		return "l", true
	case []uint64:
		return "L", true
	case []float32:
		return "f", true
	case []float64:
		return "d", true
	}
	return "", false
}

// asRawBytes accepts the forms a byte buffer argument takes in pickles:
// Bytes, bytearray and, from protocol 0-2 pickles, latin-1 str.
func asRawBytes(x any) ([]byte, error) {
	switch v := x.(type) {
	case Bytes:
		return []byte(v), nil
	case []byte:
		return v, nil
	case string:
		return latin1Encode(v)
	}
	return nil, fmt.Errorf("expect bytes|bytearray|str; got %T", x)
}
