package pickle

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// pyquote, similarly to strconv.Quote, quotes s with " but does not use "\u" and "\U" inside.
//
// We need to avoid \u and friends, since for regular strings Python translates
// \u to \\u, not an UTF-8 character.
//
// Dumping strings in a way that is possible to copy/paste into Python and use
// pickletools.dis and pickle.loads there to verify a pickle is also handy.
func pyquote(s string) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(s))

	for {
		r, width := utf8.DecodeRuneInString(s)
		if width == 0 {
			break
		}

		emitRaw := false

		switch {
		// invalid & everything else goes in numeric byte escapes
		case r == utf8.RuneError:
			fallthrough
		default:
			emitRaw = true

		case r == '\\' || r == '"':
			out = append(out, '\\', byte(r))

		case strconv.IsPrint(r):
			out = append(out, s[:width]...)

		case r < ' ':
			rq := strconv.QuoteRune(r) // e.g. "'\n'"
			rq = rq[1 : len(rq)-1]     // ->   `\n`
			out = append(out, rq...)
		}

		if emitRaw {
			for i := 0; i < width; i++ {
				out = append(out, '\\', 'x', hexdigits[s[i]>>4], hexdigits[s[i]&0xf])
			}
		}

		s = s[width:]
	}

	return "\"" + string(out) + "\""
}

// Quote returns s quoted the way Python would accept it as a str literal.
func Quote(s string) string {
	return pyquote(s)
}

// decodeEscaped decodes the body of protocol 0 STRING argument.
//
// s is latin-1 text (one rune per wire byte). Known escapes are
// \\ \' \" \a \b \f \n \r \t \v, \xHH, octal \OOO and backslash-newline;
// anything else after a backslash is malformed.
func decodeEscaped(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}

	var out strings.Builder
	out.Grow(len(s))
	for len(s) > 0 {
		r, width := utf8.DecodeRuneInString(s)
		if r != '\\' {
			out.WriteString(s[:width])
			s = s[width:]
			continue
		}

		if len(s) < 2 {
			return "", malformedf("string-escape: trailing \\")
		}

		switch c := s[1]; c {
		// \ LF -> just skip
		case '\n':
			s = s[2:]

		case '\\', '\'', '"':
			out.WriteByte(c)
			s = s[2:]

		case 'a', 'b', 'f', 'n', 'r', 't', 'v':
			out.WriteByte(controlEscapes[c])
			s = s[2:]

		case 'x':
			if len(s) < 4 {
				return "", malformedf("string-escape: truncated \\x")
			}
			v, err := strconv.ParseUint(s[2:4], 16, 8)
			if err != nil {
				return "", malformedf("string-escape: invalid \\x%s", s[2:4])
			}
			out.WriteRune(rune(v))
			s = s[4:]

		case '0', '1', '2', '3', '4', '5', '6', '7':
			n := 2
			for n < 4 && n < len(s) && '0' <= s[n] && s[n] <= '7' {
				n++
			}
			v, _ := strconv.ParseUint(s[1:n], 8, 16)
			out.WriteRune(rune(v & 0xff))
			s = s[n:]

		default:
			return "", malformedf("string-escape: unknown escape \\%c", c)
		}
	}
	return out.String(), nil
}

var controlEscapes = map[byte]byte{
	'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r', 't': '\t', 'v': '\v',
}

// decodeUnicodeEscaped decodes protocol 0 UNICODE argument.
//
// Recognized escapes are \\ \n \r \t \uHHHH and \UHHHHHHHH. Unknown
// escapes are malformed.
func decodeUnicodeEscaped(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}

	var out strings.Builder
	out.Grow(len(s))
	for len(s) > 0 {
		r, width := utf8.DecodeRuneInString(s)
		if r != '\\' {
			out.WriteString(s[:width])
			s = s[width:]
			continue
		}

		if len(s) < 2 {
			return "", malformedf("unicode-escape: trailing \\")
		}

		switch c := s[1]; c {
		case '\\':
			out.WriteByte('\\')
			s = s[2:]
		case 'n', 'r', 't':
			out.WriteByte(controlEscapes[c])
			s = s[2:]

		case 'u', 'U':
			n := 4
			if c == 'U' {
				n = 8
			}
			if len(s) < 2+n {
				return "", malformedf("unicode-escape: truncated \\%c", c)
			}
			v, err := strconv.ParseUint(s[2:2+n], 16, 32)
			if err != nil || v > utf8.MaxRune {
				return "", malformedf("unicode-escape: invalid \\%c%s", c, s[2:2+n])
			}
			out.WriteRune(rune(v))
			s = s[2+n:]

		default:
			return "", malformedf("unicode-escape: unknown escape \\%c", c)
		}
	}
	return out.String(), nil
}
