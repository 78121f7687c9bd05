package pickle
// bytearray, bytes and _codecs.encode reconstruction.

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// constructBytearray handles bytearray(...) -> []byte(...)
//
// Python pickles bytearray as one of
//
//	bytearray(bytes)		protocol ≥ 3
//	bytearray([int, ...])
//	bytearray(unicode, encoding)	protocol ≤ 2, usually with 'latin-1'
func constructBytearray(args Tuple) (any, error) {
	return bytesFromArgs("bytearray", args)
}

// constructBytes handles bytes(...) and _codecs.encode(...) -> Bytes(...)
//
// For protocols ≤ 2 Python3 encodes bytes as `_codecs.encode(byt.decode('latin1'), 'latin1')`.
func constructBytes(args Tuple) (any, error) {
	data, err := bytesFromArgs("bytes", args)
	if err != nil {
		return nil, err
	}
	return Bytes(data), nil
}

func bytesFromArgs(what string, args Tuple) ([]byte, error) {
	switch len(args) {
	case 0:
		return []byte{}, nil

	case 1:
		switch v := args[0].(type) {
		case Bytes:
			return []byte(v), nil
		case []byte:
			return append([]byte(nil), v...), nil
		case string:
			// str from py2 pickles
			return latin1Encode(v)
		case *List:
			data := make([]byte, len(*v))
			for i, item := range *v {
				b, err := AsInt64(item)
				if err != nil || b < 0 || b > 0xff {
					return nil, malformedf("%s: item %d: want int in 0..255, got %#v", what, i, item)
				}
				data[i] = byte(b)
			}
			return data, nil
		}
		return nil, malformedf("%s: want (bytes|list,), got (%T,)", what, args[0])

	case 2:
		text, ok := args[0].(string)
		if !ok {
			return nil, malformedf("%s: want (str, encoding), got (%T, ...)", what, args[0])
		}
		name, ok := args[1].(string)
		if !ok {
			return nil, malformedf("%s: encoding must be str, got %T", what, args[1])
		}
		return encodeText(text, name)
	}

	return nil, malformedf("%s: expected 1 or 2 args, got %d", what, len(args))
}

// encodeText encodes text with the named Python codec.
func encodeText(text, name string) ([]byte, error) {
	enc, err := encodingByName(name)
	if err != nil {
		return nil, err
	}
	data, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, malformedf("encode %q: %s", name, err)
	}
	return data, nil
}

// encodingByName resolves Python codec name to encoding.
//
// latin-N names are mapped to ISO-8859-N; everything else is looked up in
// the IANA registry.
func encodingByName(name string) (encoding.Encoding, error) {
	lname := strings.ToLower(name)
	switch lname {
	case "latin-1", "latin1", "latin_1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	}
	if strings.HasPrefix(lname, "latin-") {
		name = "ISO-8859-" + name[len("latin-"):]
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, unsupportedf("unknown encoding %q", name)
	}
	return enc, nil
}

// latin1Encode converts string of runes < 0x100 into bytes, one byte per rune.
//
// Python uses such representation of bytes for protocols ≤ 2, where there are
// no BYTES* opcodes.
func latin1Encode(s string) ([]byte, error) {
	data := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= 0x100 {
			return nil, malformedf("latin1: cannot encode %q", r)
		}
		data = append(data, byte(r))
	}
	return data, nil
}
