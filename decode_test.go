package pickle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"
)

// TestPickle represents one pickle test: input pickle and the value it decodes to.
type TestPickle struct {
	name   string
	pickle string
	value  any
}

var decodeTests = []TestPickle{
	// numbers
	{"int", "I5\n.", int64(5)},
	{"int negative", "I-7\n.", int64(-7)},
	{"int true", "I01\n.", true},
	{"int false", "I00\n.", false},
	{"int uint64", "I18446744073709551615\n.", uint64(math.MaxUint64)},
	{"long", "L123L\n.", int64(123)},
	{"long no suffix", "L-5\n.", int64(-5)},
	{"float", "F1.5\n.", 1.5},
	{"binint1", "\x80\x02K\x05.", int64(5)},
	{"binint2", "\x80\x02M\xff\xff.", int64(0xffff)},
	{"binint", "\x80\x02J\xff\xff\xff\xff.", int64(-1)},
	{"binint max", "\x80\x02J\xff\xff\xff\x7f.", int64(math.MaxInt32)},
	{"long1 zero", "\x80\x02\x8a\x00.", int64(0)},
	{"long1 -1", "\x80\x02\x8a\x01\xff.", int64(-1)},
	{"long1 -32768", "\x80\x02\x8a\x02\x00\x80.", int64(-32768)},
	{"long1 255", "\x80\x02\x8a\x02\xff\x00.", int64(255)},
	{"long1 int64 min", "\x80\x02\x8a\x08\x00\x00\x00\x00\x00\x00\x00\x80.", int64(math.MinInt64)},
	{"long4", "\x80\x02\x8b\x02\x00\x00\x00\x00\x01.", int64(256)},
	{"binfloat", "\x80\x02G?\xf8\x00\x00\x00\x00\x00\x00.", 1.5},
	{"none", "N.", None{}},
	{"newtrue", "\x80\x02\x88.", true},
	{"newfalse", "\x80\x02\x89.", false},

	// strings
	{"string", "S'abc'\n.", "abc"},
	{"string dquote", "S\"a'b\"\n.", "a'b"},
	{"string escapes", "S'a\\x80\\n\\'b'\n.", "a\u0080\n'b"},
	{"binstring", "T\x03\x00\x00\x00abc.", "abc"},
	{"short binstring latin1", "U\x03a\xffc.", "aÿc"},
	{"unicode", "Vcaf\\u00e9\n.", "café"},
	{"binunicode", "X\x05\x00\x00\x00caf\xc3\xa9.", "café"},
	{"short binunicode", "\x8c\x02hi.", "hi"},
	{"binunicode8", "\x8d\x02\x00\x00\x00\x00\x00\x00\x00hi.", "hi"},
	{"short binbytes", "C\x03abc.", Bytes("abc")},
	{"binbytes", "B\x03\x00\x00\x00a\x00c.", Bytes("a\x00c")},
	{"binbytes8", "\x8e\x01\x00\x00\x00\x00\x00\x00\x00\xff.", Bytes("\xff")},
	{"bytearray8", "\x96\x03\x00\x00\x00\x00\x00\x00\x00abc.", []byte("abc")},

	// containers
	{"list proto0", "(lp0\nI1\naI2\na.", NewList(int64(1), int64(2))},
	{"list appends", "]q\x00(K\x01K\x02e.", NewList(int64(1), int64(2))},
	{"list empty", "]q\x00(e.", NewList()},
	{"tuple", "(I1\nI2\ntp0\n.", Tuple{int64(1), int64(2)}},
	{"tuple empty", ").", Tuple{}},
	{"tuple1", "K\x01\x85.", Tuple{int64(1)}},
	{"tuple2", "K\x01K\x02\x86.", Tuple{int64(1), int64(2)}},
	{"tuple3", "K\x01K\x02K\x03\x87.", Tuple{int64(1), int64(2), int64(3)}},
	{"dict proto0", "(dp0\nS'a'\np1\nI1\ns.", NewDictWithData("a", int64(1))},
	{"dict opcode", "(S'a'\nI1\nS'b'\nI2\nd.", NewDictWithData("a", int64(1), "b", int64(2))},
	{"dict setitems", "}q\x00(X\x01\x00\x00\x00aK\x01X\x01\x00\x00\x00bK\x02u.",
		NewDictWithData("a", int64(1), "b", int64(2))},
	{"dict tuple key", "}(K\x01K\x02\x86K\x03u.", NewDictWithData(Tuple{int64(1), int64(2)}, int64(3))},
	{"set", "\x80\x04\x8f(K\x01K\x02\x90.", NewSet(int64(1), int64(2))},
	{"frozenset", "\x80\x04(K\x01K\x02K\x01\x91.", NewSet(int64(1), int64(2))},

	// stack manipulation
	{"dup", "K\x012\x86.", Tuple{int64(1), int64(1)}},
	{"pop", "K\x01K\x020.", int64(1)},
	{"pop mark", "K\x01(K\x02K\x031.", int64(1)},
	{"frame", "\x80\x04\x95\x02\x00\x00\x00\x00\x00\x00\x00K\x01.", int64(1)},
	{"memoize", "\x80\x04\x8c\x01a\x94h\x00\x86.", Tuple{"a", "a"}},
	{"get put", "S'a'\np7\n0g7\n.", "a"},
	{"long binget", "K\x05r\x00\x01\x00\x00j\x00\x01\x00\x00\x86.", Tuple{int64(5), int64(5)}},

	// classes and objects
	{"global", "cmod\nCls\n.", Class{"mod", "Cls"}},
	{"stack global", "\x80\x04\x8c\x03mod\x8c\x03Cls\x93.", Class{"mod", "Cls"}},
	{"inst", "(S'x'\nimod\nCls\n.", ClassDict{"__class__": "mod.Cls"}},
	{"inst build", "(imod\nCls\n(dS'a'\nI1\nsb.", ClassDict{"__class__": "mod.Cls", "a": int64(1)}},
	{"obj", "(cmod\nCls\no.", ClassDict{"__class__": "mod.Cls"}},
	{"newobj build", "\x80\x02cmod\nCls\nq\x00)\x81q\x01}q\x02X\x01\x00\x00\x00aK\x01sb.",
		ClassDict{"__class__": "mod.Cls", "a": int64(1)}},
	{"newobj_ex", "\x80\x04cmod\nCls\n)}\x92.", ClassDict{"__class__": "mod.Cls"}},
	{"build slots", "\x80\x02cmod\nCls\n)\x81N}X\x01\x00\x00\x00sK\x02s\x86b.",
		ClassDict{"__class__": "mod.Cls", "s": int64(2)}},
	{"copy_reg reconstructor", "ccopy_reg\n_reconstructor\n(cmod\nCls\nc__builtin__\nobject\nNtR(dS'a'\nI1\nsb.",
		ClassDict{"__class__": "mod.Cls", "a": int64(1)}},
	{"exception", "cbuiltins\nValueError\nX\x03\x00\x00\x00bad\x85R.",
		&PythonException{Module: "builtins", Name: "ValueError", Message: "[builtins.ValueError] bad", Args: Tuple{"bad"}}},
	{"bytes py3 proto2", "\x80\x02c_codecs\nencode\nX\x03\x00\x00\x00\xc3\xbfaX\x06\x00\x00\x00latin1\x86R.", Bytes("\xffa")},
	{"bytes empty", "\x80\x02c__builtin__\nbytes\n)R.", Bytes("")},
	{"bytearray", "\x80\x02c__builtin__\nbytearray\nX\x02\x00\x00\x00abX\x07\x00\x00\x00latin-1\x86R.", []byte("ab")},
	{"ordereddict", "\x80\x02ccollections\nOrderedDict\nq\x00)Rq\x01(X\x01\x00\x00\x00aq\x02K\x01X\x01\x00\x00\x00bq\x03K\x02u.",
		ClassDict{"__class__": "collections.OrderedDict", "a": int64(1), "b": int64(2)}},
	{"classdict setitem", "ccollections\nOrderedDict\n)RU\x01aK\x01s.",
		ClassDict{"__class__": "collections.OrderedDict", "a": int64(1)}},
	{"set reduce", "\x80\x02c__builtin__\nset\n]q\x00(K\x01K\x02e\x85R.", NewSet(int64(1), int64(2))},
	{"complex", "\x80\x02c__builtin__\ncomplex\nG?\xf0\x00\x00\x00\x00\x00\x00G@\x00\x00\x00\x00\x00\x00\x00\x86R.", complex(1, 2)},
	{"datetime fields", "cdatetime\ndatetime\n(M\xe3\x07K\x05K\x1fK\x0cK\"K8K\x01tR.",
		time.Date(2019, 5, 31, 12, 34, 56, 1000, time.UTC)},
	{"datetime utc", "\x80\x02cdatetime\ndatetime\nq\x00c_codecs\nencode\nq\x01X\x0b\x00\x00\x00\x07\xc3\xa4\x01\x02\x03\x04\x05\x00\x00\x00q\x02" +
		"X\x06\x00\x00\x00latin1q\x03\x86q\x04Rq\x05cdatetime\ntimezone\nq\x06cdatetime\ntimedelta\nq\x07K\x00K\x00K\x00\x87q\x08Rq\t\x85q\nRq\x0b\x86q\x0cRq\r.",
		time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)},
	{"datetime named offset", "\x80\x02cdatetime\ndatetime\nq\x00c_codecs\nencode\nq\x01X\x0b\x00\x00\x00\x07\xc3\xa4\x01\x02\x03\x04\x05\x00\x00\x00q\x02" +
		"X\x06\x00\x00\x00latin1q\x03\x86q\x04Rq\x05cdatetime\ntimezone\nq\x06cdatetime\ntimedelta\nq\x07J\xff\xff\xff\xffJ0\x0b\x01\x00K\x00\x87q\x08Rq\t" +
		"X\x03\x00\x00\x00ESTq\n\x86q\x0bRq\x0c\x86q\rRq\x0e.",
		time.Date(2020, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))},
	{"datetime tzutc", "\x80\x02cdatetime\ndatetime\nU\n\x07\xe4\x01\x02\x03\x04\x05\x00\x00\x00cdateutil.tz.tz\ntzutc\n)\x81}b\x86R.",
		time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)},
	{"time offset", "\x80\x02cdatetime\ntime\nq\x00c_codecs\nencode\nq\x01X\x06\x00\x00\x00\x03\x04\x05\x00\x00\x00q\x02X\x06\x00\x00\x00latin1q\x03\x86q\x04Rq\x05" +
		"cdatetime\ntimezone\nq\x06cdatetime\ntimedelta\nq\x07K\x00M\x18\x15K\x00\x87q\x08Rq\t\x85q\nRq\x0b\x86q\x0cRq\r.",
		TimeOfDay{Hour: 3, Minute: 4, Second: 5, Location: time.FixedZone("UTC+01:30", 5400)}},
	{"date packed", "cdatetime\ndate\nU\x04\x07\xe3\x05\x1f\x85R.", Date{2019, 5, 31}},
	{"time packed", "cdatetime\ntime\nU\x06\x0c\"8\x00\x00\x01\x85R.", TimeOfDay{Hour: 12, Minute: 34, Second: 56, Microsecond: 1}},
	{"timedelta", "cdatetime\ntimedelta\nJ\xff\xff\xff\xffK\x00K\x00\x87R.", TimeDelta{Days: -1}},
	{"array list", "\x80\x02carray\narray\nU\x01h]q\x00(K\x01J\xff\xff\xff\xffe\x86R.", []int16{1, -1}},
	{"array machine", "\x80\x03carray\n_array_reconstructor\n(carray\narray\nX\x01\x00\x00\x00IK\x07C\x08\x00\x00\x00\x01\x00\x00\x00\x02tR.",
		[]uint32{1, 2}},
}

// decoders returns decoders over all reader backends for data.
func decoders(data string) map[string]*Decoder {
	return map[string]*Decoder{
		"slice":  NewDecoderBytes([]byte(data), nil),
		"buffer": NewDecoder(bytes.NewBufferString(data)),
		"stream": NewDecoder(bytes.NewReader([]byte(data))),
	}
}

func TestDecode(t *testing.T) {
	for _, test := range decodeTests {
		t.Run(test.name, func(t *testing.T) {
			testDecode(t, test)
		})
	}
}

// testDecode decodes test.pickle with every reader backend and verifies the
// result, then verifies that every truncated prefix fails with EOF errors.
func testDecode(t *testing.T, test TestPickle) {
	t.Helper()
	for kind, d := range decoders(test.pickle) {
		v, err := d.Decode()
		if err != nil {
			t.Errorf("%s: decode: %s", kind, err)
			continue
		}
		if !deepEqual(v, test.value) {
			t.Errorf("%s: decode:\nhave: %#v\nwant: %#v", kind, v, test.value)
		}

		// nothing left after the pickle
		v, err = d.Decode()
		if err != io.EOF {
			t.Errorf("%s: decode after end: have %#v, %v  ; want EOF", kind, v, err)
		}
	}

	for l := len(test.pickle) - 1; l >= 0; l-- {
		for kind, d := range decoders(test.pickle[:l]) {
			v, err := d.Decode()
			want := io.ErrUnexpectedEOF
			if l == 0 {
				want = io.EOF
			}
			if err != want {
				t.Errorf("%s: prefix [:%d] %q: have %#v, %v  ; want %v", kind, l, test.pickle[:l], v, err, want)
			}
		}
	}
}

func TestDecodeError(t *testing.T) {
	var ctorErr *ConstructionError
	isOpcodeErr := func(err error) bool {
		var e OpcodeError
		return errors.As(err, &e)
	}

	testv := []struct {
		name   string
		pickle string
		check  func(error) bool
	}{
		{"empty", "", func(err error) bool { return err == io.EOF }},
		{"truncated", "K", func(err error) bool { return err == io.ErrUnexpectedEOF }},
		{"no stop", "K\x01", func(err error) bool { return err == io.ErrUnexpectedEOF }},
		{"protocol 6", "\x80\x06K\x01.", func(err error) bool { return errors.Is(err, ErrInvalidPickleVersion) }},
		{"invalid opcode", "\xff", isOpcodeErr},
		{"int garbage", "I12a\n.", IsMalformed},
		{"float garbage", "Fx\n.", IsMalformed},
		{"long overflow", "L99999999999999999999L\n.", func(err error) bool { return errors.Is(err, ErrLongOverflow) }},
		{"long1 overflow", "\x80\x02\x8a\x09\x00\x00\x00\x00\x00\x00\x00\x00\x01.", IsUnsupported},
		{"string unterminated", "S'abc\n.", IsMalformed},
		{"string no quotes", "Sabc\n.", IsMalformed},
		{"string bad escape", "S'\\q'\n.", IsMalformed},
		{"unicode bad escape", "V\\x41\n.", IsMalformed},
		{"binstring negative", "T\xff\xff\xff\xff.", IsMalformed},
		{"memo miss", "h\x05.", func(err error) bool { return errors.Is(err, ErrUnresolvedReference) }},
		{"memo key", "gx\n.", IsMalformed},
		{"underflow", "a.", func(err error) bool { return errors.Is(err, ErrStackUnderflow) }},
		{"tuple3 underflow", "K\x01\x87.", func(err error) bool { return errors.Is(err, ErrStackUnderflow) }},
		{"stop empty", ".", func(err error) bool { return errors.Is(err, ErrStackUnderflow) }},
		{"mark exposed", "(.", IsMalformed},
		{"mark in tuple2", "(K\x01\x86.", IsMalformed},
		{"no marker", "K\x011.", IsMalformed},
		{"dict odd", "(K\x01d.", IsMalformed},
		{"dict unhashable key", "}(]K\x01u.", IsMalformed},
		{"setitem unhashable key", "}]K\x01s.", IsMalformed},
		{"frozenset unhashable", "(]\x91.", IsMalformed},
		{"append to dict", "}K\x01a.", IsMalformed},
		{"classdict int key", "ccollections\nOrderedDict\n)R(K\x01K\x02u.", IsMalformed},
		{"classdict odd items", "ccollections\nOrderedDict\n)R(U\x01au.", IsMalformed},
		{"setitem on list", "]U\x01aK\x01s.", IsMalformed},
		{"timezone bad offset", "cdatetime\ntimezone\nK\x01\x85R.", IsMalformed},
		{"ext1", "\x82\x01.", IsUnsupported},
		{"next buffer", "\x80\x05\x97.", IsUnsupported},
		{"persid without loader", "Pabc\n.", IsUnsupported},
		{"newobj_ex kwargs", "cmod\nCls\n)}K\x01K\x02s\x92.", IsUnsupported},
		{"reduce not class", "K\x01)R.", IsMalformed},
		{"reduce args not tuple", "cmod\nCls\nK\x01R.", IsMalformed},
		{"build on int", "K\x01}b.", func(err error) bool { return errors.As(err, &ctorErr) }},
		{"classdict with args", "cmod\nCls\nK\x01\x85R.", func(err error) bool { return errors.As(err, &ctorErr) }},
		{"date bad args", "cdatetime\ndate\n)R.", func(err error) bool {
			return errors.As(err, &ctorErr) && ctorErr.Module == "datetime" && ctorErr.Name == "date" && IsMalformed(err)
		}},
		{"stack global not str", "\x80\x04K\x01K\x02\x93.", IsMalformed},
	}

	for _, tt := range testv {
		for kind, d := range decoders(tt.pickle) {
			v, err := d.Decode()
			if err == nil {
				t.Errorf("%s: %s: no error; decoded %#v", tt.name, kind, v)
				continue
			}
			if !tt.check(err) {
				t.Errorf("%s: %s: unexpected error %T %v", tt.name, kind, err, err)
			}
		}
	}
}

func TestOpcodeError(t *testing.T) {
	_, err := Unmarshal([]byte("K\x01\xff"))
	var e OpcodeError
	if !errors.As(err, &e) {
		t.Fatalf("have %v  ; want OpcodeError", err)
	}
	if e.Key != 0xff || e.Pos != 2 {
		t.Errorf("have %#v  ; want key 0xff at 2", e)
	}
}

// verify that decoder can be used for several consecutive pickles.
func TestDecodeMultiple(t *testing.T) {
	input := "K\x01.\x80\x02X\x01\x00\x00\x00a.N."
	want := []any{int64(1), "a", None{}}

	for kind, d := range decoders(input) {
		for i, w := range want {
			v, err := d.Decode()
			if err != nil {
				t.Fatalf("%s: #%d: %s", kind, i, err)
			}
			if !deepEqual(v, w) {
				t.Errorf("%s: #%d: have %#v  ; want %#v", kind, i, v, w)
			}
		}
		if _, err := d.Decode(); err != io.EOF {
			t.Errorf("%s: end: have %v  ; want EOF", kind, err)
		}
	}
}

// memo references must decode to the same object, not to copies.
func TestDecodeMemoIdentity(t *testing.T) {
	// l = []; l.append(l)
	v, err := Unmarshal([]byte("\x80\x02]q\x00h\x00a."))
	if err != nil {
		t.Fatal(err)
	}
	l := v.(*List)
	if l.Len() != 1 || (*l)[0].(*List) != l {
		t.Errorf("self-referencing list: have %v", *l)
	}

	// x = []; [x, x]
	v, err = Unmarshal([]byte("\x80\x02](]q\x01h\x01e."))
	if err != nil {
		t.Fatal(err)
	}
	outer := v.(*List)
	if outer.Len() != 2 || (*outer)[0].(*List) != (*outer)[1].(*List) {
		t.Errorf("shared list: have %v", *outer)
	}

	// d = {}; d['self'] = d
	v, err = Unmarshal([]byte("\x80\x02}q\x00X\x04\x00\x00\x00selfh\x00s."))
	if err != nil {
		t.Fatal(err)
	}
	d := v.(Dict)
	if self, ok := d.Get("self").(Dict); !ok || self.m != d.m {
		t.Errorf("self-referencing dict: have %v", d.Get("self"))
	}
}

func TestPersistentLoad(t *testing.T) {
	loaded := map[any]any{
		"abc":    "object abc",
		int64(7): "object 7",
	}
	config := &DecoderConfig{
		PersistentLoad: func(pid any) (any, error) {
			obj, ok := loaded[pid]
			if !ok {
				return nil, fmt.Errorf("no object %v", pid)
			}
			return obj, nil
		},
	}

	testv := []struct {
		pickle string
		value  any
	}{
		{"Pabc\n.", "object abc"},
		{"\x80\x02K\x07Q.", "object 7"},
		{"\x80\x02(Pabc\nK\x07Qt.", Tuple{"object abc", "object 7"}},
	}
	for _, tt := range testv {
		v, err := NewDecoderBytes([]byte(tt.pickle), config).Decode()
		if err != nil {
			t.Errorf("%q: %s", tt.pickle, err)
			continue
		}
		if !deepEqual(v, tt.value) {
			t.Errorf("%q: have %#v  ; want %#v", tt.pickle, v, tt.value)
		}
	}

	_, err := NewDecoderBytes([]byte("Pzzz\n."), config).Decode()
	if err == nil || IsUnsupported(err) {
		t.Errorf("missing object: have %v  ; want load error", err)
	}
}

func TestDecodeRegistry(t *testing.T) {
	type point struct{ X, Y int64 }

	r := NewRegistry()
	r.Register("geo", "Point", ConstructorFunc(func(args Tuple) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 args, got %d", len(args))
		}
		x, err := AsInt64(args[0])
		if err != nil {
			return nil, err
		}
		y, err := AsInt64(args[1])
		if err != nil {
			return nil, err
		}
		return point{x, y}, nil
	}))
	// override of builtin
	r.Register("__builtin__", "set", ConstructorFunc(func(args Tuple) (any, error) {
		return "my set", nil
	}))

	config := &DecoderConfig{Registry: r}

	v, err := NewDecoderBytes([]byte("cgeo\nPoint\nK\x01K\x02\x86R."), config).Decode()
	if err != nil {
		t.Fatal(err)
	}
	if v != (point{1, 2}) {
		t.Errorf("point: have %#v", v)
	}

	v, err = NewDecoderBytes([]byte("c__builtin__\nset\n)R."), config).Decode()
	if err != nil || v != "my set" {
		t.Errorf("set override: have %#v, %v", v, err)
	}

	// the default registry is not affected
	v, err = Unmarshal([]byte("cgeo\nPoint\n)R."))
	if err != nil || !deepEqual(v, ClassDict{"__class__": "geo.Point"}) {
		t.Errorf("default registry: have %#v, %v", v, err)
	}

	_, err = NewDecoderBytes([]byte("cgeo\nPoint\nK\x01\x85R."), config).Decode()
	var ctorErr *ConstructionError
	if !errors.As(err, &ctorErr) || ctorErr.Module != "geo" || ctorErr.Name != "Point" {
		t.Errorf("constructor failure: have %v", err)
	}
}

func FuzzDecode(f *testing.F) {
	for _, test := range decodeTests {
		f.Add([]byte(test.pickle))
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		v, err := Unmarshal(data)
		if err != nil {
			return
		}
		// whatever was decoded must be encodable back without panic
		_, _ = Marshal(v)
	})
}
