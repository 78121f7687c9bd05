package pickle
// Byte sources the decoder reads from.

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Reader is a source of pickle bytes.
//
// All methods return io.EOF when the source is exhausted before the first
// byte of the request, and io.ErrUnexpectedEOF when it ends in the middle.
type Reader interface {
	// ReadByte reads one byte.
	ReadByte() (byte, error)

	// ReadBytes reads exactly n bytes.
	//
	// The returned slice may alias internal storage and is valid only
	// until the next call on the reader.
	ReadBytes(n int) ([]byte, error)

	// ReadLine reads till \n inclusive. Every byte is mapped to one
	// character (latin-1), not decoded as UTF-8. The \n itself is part of the
	// result only if includeTerminator is set.
	ReadLine(includeTerminator bool) (string, error)

	// Skip advances the position by n bytes.
	Skip(n int) error
}

// don't allow malicious `BINSTRING <bigsize> nodata` to make us out of memory
const maxPrealloc = 0x10000

// SliceReader reads from a fixed byte slice.
type SliceReader struct {
	data []byte
	pos  int
}

// NewSliceReader returns Reader over data. data must not be modified while the reader is in use.
func NewSliceReader(data []byte) *SliceReader {
	return &SliceReader{data: data}
}

func (r *SliceReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *SliceReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, malformedf("negative length %d", n)
	}
	if n == 0 {
		return r.data[r.pos:r.pos], nil
	}
	if r.pos >= len(r.data) {
		return nil, io.EOF
	}
	if len(r.data)-r.pos < n {
		r.pos = len(r.data)
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *SliceReader) ReadLine(includeTerminator bool) (string, error) {
	if r.pos >= len(r.data) {
		return "", io.EOF
	}
	rest := r.data[r.pos:]
	i := bytes.IndexByte(rest, '\n')
	if i < 0 {
		r.pos = len(r.data)
		return "", io.ErrUnexpectedEOF
	}
	r.pos += i + 1
	return latin1Line(rest[:i+1], includeTerminator), nil
}

func (r *SliceReader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// BufferReader reads from, and consumes, a bytes.Buffer.
type BufferReader struct {
	buf *bytes.Buffer
}

// NewBufferReader returns Reader that consumes b.
func NewBufferReader(b *bytes.Buffer) *BufferReader {
	return &BufferReader{buf: b}
}

func (r *BufferReader) ReadByte() (byte, error) {
	return r.buf.ReadByte()
}

func (r *BufferReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, malformedf("negative length %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	l := r.buf.Len()
	if l == 0 {
		return nil, io.EOF
	}
	if l < n {
		r.buf.Next(l)
		return nil, io.ErrUnexpectedEOF
	}
	return r.buf.Next(n), nil
}

func (r *BufferReader) ReadLine(includeTerminator bool) (string, error) {
	if r.buf.Len() == 0 {
		return "", io.EOF
	}
	line, err := r.buf.ReadBytes('\n')
	if err != nil {
		return "", io.ErrUnexpectedEOF
	}
	return latin1Line(line, includeTerminator), nil
}

func (r *BufferReader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// StreamReader reads from an arbitrary io.Reader through a bufio.Reader.
// Reads block until the underlying reader delivers data or fails.
type StreamReader struct {
	r   *bufio.Reader
	buf bytes.Buffer

	// reusable buffer for ReadLine
	line []byte
}

// NewStreamReader returns Reader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &StreamReader{r: br}
}

func (r *StreamReader) ReadByte() (byte, error) {
	return r.r.ReadByte()
}

func (r *StreamReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, malformedf("negative length %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	r.buf.Reset()
	prealloc := n
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	r.buf.Grow(prealloc)
	m, err := io.CopyN(&r.buf, r.r, int64(n))
	if err != nil {
		if err == io.EOF && m > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return r.buf.Bytes(), nil
}

func (r *StreamReader) ReadLine(includeTerminator bool) (string, error) {
	r.line = r.line[:0]
	for {
		data, err := r.r.ReadSlice('\n')
		r.line = append(r.line, data...)

		// either have read till \n or got another error
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && len(r.line) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		break
	}
	return latin1Line(r.line, includeTerminator), nil
}

func (r *StreamReader) Skip(n int) error {
	if n < 0 {
		return malformedf("negative length %d", n)
	}
	m, err := r.r.Discard(n)
	if err == io.EOF && m > 0 {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// newReader picks the Reader backend that fits r best.
func newReader(r io.Reader) Reader {
	switch r := r.(type) {
	case Reader:
		return r
	case *bytes.Buffer:
		return NewBufferReader(r)
	}
	return NewStreamReader(r)
}

// latin1Line converts line, which ends with \n, to string mapping every byte to one rune.
func latin1Line(line []byte, includeTerminator bool) string {
	if !includeTerminator {
		line = line[:len(line)-1]
	}
	return latin1Decode(line)
}

// latin1Decode maps every byte of b to the rune with the same value.
func latin1Decode(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

func isUnexpectedEOF(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}
