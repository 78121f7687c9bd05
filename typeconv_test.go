package pickle

import (
	"math"
	"testing"
)

func TestAsInt64(t *testing.T) {
	const E = "error"

	testv := []struct {
		in    any
		outOK any
	}{
		{int64(0), int64(0)},
		{int64(1), int64(1)},
		{int64(123), int64(123)},
		{int64(math.MaxInt64), int64(math.MaxInt64)},
		{int64(math.MinInt64), int64(math.MinInt64)},
		{uint64(123), int64(123)},
		{uint64(math.MaxInt64), int64(math.MaxInt64)},
		{uint64(math.MaxInt64 + 1), E},
		{1.0, E},
		{"a", E},
		{None{}, E},
	}

	for _, tt := range testv {
		iout, err := AsInt64(tt.in)
		var out any = iout
		if err != nil {
			out = E
			if iout != 0 {
				t.Errorf("%T %#v -> err, but ret int64 = %d  ; want 0",
					tt.in, tt.in, iout)
			}
		}

		if out != tt.outOK {
			t.Errorf("%T %#v -> %T %#v  ; want %T %#v",
				tt.in, tt.in, out, out, tt.outOK, tt.outOK)
		}
	}
}

func TestAsFloat64(t *testing.T) {
	testv := []struct {
		in  any
		out float64
		ok  bool
	}{
		{1.5, 1.5, true},
		{int64(-3), -3, true},
		{uint64(1 << 63), 1 << 63, true},
		{"1.5", 0, false},
		{true, 0, false},
	}

	for _, tt := range testv {
		out, err := AsFloat64(tt.in)
		if (err == nil) != tt.ok || out != tt.out {
			t.Errorf("%#v -> %v, %v  ; want %v, ok=%v", tt.in, out, err, tt.out, tt.ok)
		}
	}
}

func TestAsBytesString(t *testing.T) {
	const y = true
	const n = false

	testv := []struct {
		in  any
		bok bool // AsBytes  succeeds
		sok bool // AsString succeeds
	}{
		{"мир", n, y},
		{Bytes("мир"), y, n},
		{[]byte("мир"), y, n},
		{1.0, n, n},
		{None{}, n, n},
	}

	for _, tt := range testv {
		bout, berr := AsBytes(tt.in)
		sout, serr := AsString(tt.in)

		if ok := berr == nil; ok != tt.bok {
			t.Errorf("%#v: AsBytes: have %#v %v  ; want ok=%v", tt.in, bout, berr, tt.bok)
		} else if ok && bout != Bytes("мир") {
			t.Errorf("%#v: AsBytes: have %q", tt.in, bout)
		}

		if ok := serr == nil; ok != tt.sok {
			t.Errorf("%#v: AsString: have %#v %v  ; want ok=%v", tt.in, sout, serr, tt.sok)
		} else if ok && sout != "мир" {
			t.Errorf("%#v: AsString: have %q", tt.in, sout)
		}
	}
}

func TestAsList(t *testing.T) {
	for _, in := range []any{NewList(int64(1), "a"), Tuple{int64(1), "a"}} {
		out, err := AsList(in)
		if err != nil {
			t.Errorf("%#v: %s", in, err)
			continue
		}
		if !deepEqual(Tuple(out), Tuple{int64(1), "a"}) {
			t.Errorf("%#v -> %#v", in, out)
		}
	}

	if _, err := AsList(NewDict()); err == nil {
		t.Errorf("dict -> no error")
	}
}
