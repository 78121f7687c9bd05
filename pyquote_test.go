package pickle

import (
	"errors"
	"testing"
)

// CodecTestCase represents 1 test case of a coder or decoder.
//
// Under the given transformation function in must be transformed to out.
type CodecTestCase struct {
	in, out string
}

// testCodec tests transform func applied to all test cases from testv.
func testCodec(t *testing.T, transform func(in string) (string, error), testv []CodecTestCase) {
	t.Helper()
	for _, tt := range testv {
		s, err := transform(tt.in)
		if err != nil {
			t.Errorf("%q -> error: %s", tt.in, err)
			continue
		}

		if s != tt.out {
			t.Errorf("%q -> unexpected:\nhave: %q\nwant: %q", tt.in, s, tt.out)
		}
	}
}

// testCodecErr verifies that transform rejects every input as malformed.
func testCodecErr(t *testing.T, transform func(in string) (string, error), inv []string) {
	t.Helper()
	for _, in := range inv {
		s, err := transform(in)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("%q -> %q, %v  ; want malformed", in, s, err)
		}
	}
}

func TestDecodeEscaped(t *testing.T) {
	testCodec(t, decodeEscaped, []CodecTestCase{
		{`hello`, "hello"},
		{"hello\\\nworld", "helloworld"},
		{`\\`, `\`},
		{`\'\"`, `'"`},
		{`\b\f\t\n\r\v\a`, "\b\f\t\n\r\v\a"},
		{`\000\001\376\377`, "\u0000\u0001þÿ"},
		{`\x00\x01\x7f\x80\xfe\xff`, "\u0000\u0001\u007f\u0080þÿ"},
		{`\7x`, "\u0007x"},
		{"été", "été"},
	})

	testCodecErr(t, decodeEscaped, []string{
		`\`,
		`abc\`,
		`\x`,
		`\x4`,
		`\xzz`,
		`\u1234`,
		`\c`,
	})
}

func TestDecodeUnicodeEscaped(t *testing.T) {
	testCodec(t, decodeUnicodeEscaped, []CodecTestCase{
		{`hello`, "hello"},
		{"\u0000\u0001\u0080þÿ", "\u0000\u0001\u0080þÿ"},
		{`\\`, `\`},
		{`\n\r\t`, "\n\r\t"},
		{`\u1234\U00004321`, "\u1234\U00004321"},
		{`\\u1234`, `\u1234`},
		{`café`, "café"},
		{`\U0001f600`, "\U0001f600"},
	})

	testCodecErr(t, decodeUnicodeEscaped, []string{
		`\`,
		`\u12`,
		`\U0000123`,
		`\uzzzz`,
		`\U00110000`,
		`\x41`,
		`\'`,
	})
}

func TestPyQuote(t *testing.T) {
	testCodec(t, func(s string) (string, error) { return pyquote(s), nil }, []CodecTestCase{
		{`hello`, `"hello"`},
		{`a"b\c`, `"a\"b\\c"`},
		{"\n\t", `"\n\t"`},
		{"мир", `"мир"`},
		{"\xff", `"\xff"`},
		{"\u2028", `"\xe2\x80\xa8"`},
	})
}
