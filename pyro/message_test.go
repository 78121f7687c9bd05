package pyro

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderBytes(t *testing.T) {
	m, err := New(MsgInvoke, []byte("hello"), SerializerPickle, 0, 1, nil, nil)
	require.NoError(t, err)

	want := "PYRO\x00\x30\x00\x04\x00\x00\x00\x01\x00\x00\x00\x05\x00\x04\x00\x00\x00\x00\x35\x27"
	assert.Equal(t, []byte(want), m.HeaderBytes())

	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte(want+"hello"), data)
}

func TestParseHeader(t *testing.T) {
	m, err := New(MsgResult, []byte("payload"), SerializerPickle, FlagException|FlagCompressed, 65535,
		map[string][]byte{"XYZZ": []byte("abc")}, nil)
	require.NoError(t, err)

	h, err := ParseHeader(m.HeaderBytes())
	require.NoError(t, err)
	assert.Equal(t, MsgResult, h.Type)
	assert.Equal(t, FlagException|FlagCompressed, h.Flags)
	assert.True(t, h.Flags.Has(FlagCompressed))
	assert.False(t, h.Flags.Has(FlagOneway))
	assert.Equal(t, uint16(65535), h.Seq)
	assert.Equal(t, SerializerPickle, h.SerializerID)
	assert.Equal(t, 7, h.DataSize)
	assert.Equal(t, 9, h.AnnotationsSize)
	assert.Nil(t, h.Data)
	assert.Nil(t, h.Annotations)
}

func TestParseHeaderErrors(t *testing.T) {
	m, err := New(MsgPing, nil, SerializerJSON, 0, 3, nil, nil)
	require.NoError(t, err)
	good := m.HeaderBytes()

	corrupt := func(f func(h []byte)) []byte {
		h := append([]byte(nil), good...)
		f(h)
		return h
	}

	_, err = ParseHeader(good[:HeaderSize-1])
	assert.ErrorIs(t, err, ErrHeaderSize)

	_, err = ParseHeader(corrupt(func(h []byte) { h[0] = 'X' }))
	assert.ErrorIs(t, err, ErrProtocolMismatch)

	for _, version := range []byte{47, 49} {
		_, err = ParseHeader(corrupt(func(h []byte) { h[5] = version }))
		var verr *VersionError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, int(version), verr.Version)
		assert.ErrorIs(t, err, ErrProtocolMismatch)
	}

	_, err = ParseHeader(corrupt(func(h []byte) { h[11] = 4 })) // seq
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = ParseHeader(corrupt(func(h []byte) { h[23]++ }))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestHMAC(t *testing.T) {
	key := []byte("secret")

	m, err := New(MsgInvoke, []byte("hello"), SerializerPickle, 0, 0,
		map[string][]byte{"BBBB": []byte("2"), "AAAA": []byte("1")}, key)
	require.NoError(t, err)
	assert.Equal(t, "279de316a8c9fd07e29d16b04175ec49652583aa", hex.EncodeToString(m.Annotations[AnnotationHMAC]))
	assert.Equal(t, 3*6+1+1+20, m.AnnotationsSize)

	plain, err := New(MsgInvoke, []byte("hello"), SerializerPickle, 0, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "5112055c05f944f85755efc5cd8970e194e9f45b", hex.EncodeToString(plain.HMAC(key)))

	// signing again does not include previous HMAC
	require.NoError(t, m.Sign(key))
	assert.Equal(t, "279de316a8c9fd07e29d16b04175ec49652583aa", hex.EncodeToString(m.Annotations[AnnotationHMAC]))
}

func TestAnnotations(t *testing.T) {
	m, err := New(MsgInvoke, []byte("d"), SerializerPickle, 0, 0,
		map[string][]byte{"ZZZZ": []byte("z"), "AAAA": nil}, nil)
	require.NoError(t, err)

	ann, err := m.AnnotationBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("AAAA\x00\x00ZZZZ\x00\x01z"), ann)

	_, err = New(MsgInvoke, nil, SerializerPickle, 0, 0, map[string][]byte{"TOOLONG": nil}, nil)
	var kerr *AnnotationKeyError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "TOOLONG", kerr.Key)

	_, err = New(MsgInvoke, nil, SerializerPickle, 0, 0, map[string][]byte{"HUGE": make([]byte, 70000)}, nil)
	assert.Error(t, err)

	_, err = parseAnnotations([]byte("AAAA\x00"))
	assert.ErrorIs(t, err, ErrAnnotationsCorrupt)
	_, err = parseAnnotations([]byte("AAAA\x00\x05abc"))
	assert.ErrorIs(t, err, ErrAnnotationsCorrupt)
}

func TestRecv(t *testing.T) {
	key := []byte("secret")
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	m, err := New(MsgResult, []byte("\x80\x02K\x01."), SerializerPickle, FlagBatch, 42,
		map[string][]byte{"XYZZ": []byte("extra")}, nil)
	require.NoError(t, err)
	m.SetCorrelationID(id)
	require.NoError(t, m.Sign(key))

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderSize+m.AnnotationsSize+m.DataSize), n)

	got, err := Recv(bytes.NewReader(buf.Bytes()), []MsgType{MsgResult, MsgInvoke}, key)
	require.NoError(t, err)
	assert.Equal(t, MsgResult, got.Type)
	assert.Equal(t, FlagBatch, got.Flags)
	assert.Equal(t, uint16(42), got.Seq)
	assert.Equal(t, []byte("\x80\x02K\x01."), got.Data)
	assert.Equal(t, []byte("extra"), got.Annotations["XYZZ"])
	corr, ok := got.CorrelationID()
	require.True(t, ok)
	assert.Equal(t, id, corr)

	// type not allowed
	_, err = Recv(bytes.NewReader(buf.Bytes()), []MsgType{MsgConnect}, key)
	var terr *InvalidTypeError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, MsgResult, terr.Type)

	// no key on receiving side
	_, err = Recv(bytes.NewReader(buf.Bytes()), nil, nil)
	assert.ErrorIs(t, err, ErrHMACNotSymmetric)

	// other key
	_, err = Recv(bytes.NewReader(buf.Bytes()), nil, []byte("guess"))
	assert.ErrorIs(t, err, ErrHMACMismatch)

	// tampered payload
	tampered := append([]byte(nil), buf.Bytes()...)
	tampered[len(tampered)-2] = 'K'
	_, err = Recv(bytes.NewReader(tampered), nil, key)
	assert.ErrorIs(t, err, ErrHMACMismatch)

	// unsigned message, but key on receiving side
	plain, err := New(MsgPing, nil, SerializerPickle, 0, 0, nil, nil)
	require.NoError(t, err)
	data, err := plain.Bytes()
	require.NoError(t, err)
	_, err = Recv(bytes.NewReader(data), nil, key)
	assert.ErrorIs(t, err, ErrHMACNotSymmetric)

	got, err = Recv(bytes.NewReader(data), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, MsgPing, got.Type)
	assert.Empty(t, got.Data)
	_, ok = got.CorrelationID()
	assert.False(t, ok)
}

func TestRecvTruncated(t *testing.T) {
	m, err := New(MsgInvoke, []byte("payload"), SerializerPickle, 0, 0, map[string][]byte{"XYZZ": []byte("v")}, nil)
	require.NoError(t, err)
	data, err := m.Bytes()
	require.NoError(t, err)

	for l := 0; l < len(data); l++ {
		_, err := Recv(bytes.NewReader(data[:l]), nil, nil)
		require.Error(t, err, "length %d", l)
		assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF), "length %d: %v", l, err)
	}
}

func TestRecvDataSizeOverrun(t *testing.T) {
	// header claims close to 2GiB of data but only a few bytes follow
	m := &Message{Type: MsgResult, SerializerID: SerializerPickle, DataSize: math.MaxInt32}
	data := append(m.HeaderBytes(), "\x80\x02K\x01."...)

	_, err := Recv(bytes.NewReader(data), []MsgType{MsgResult}, nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorContains(t, err, "recv data")
}

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "INVOKE", MsgInvoke.String())
	assert.Equal(t, "MsgType(99)", MsgType(99).String())
}

func TestCorrelationIDInvalid(t *testing.T) {
	m := &Message{Annotations: map[string][]byte{AnnotationCorrelation: []byte("short")}}
	_, ok := m.CorrelationID()
	assert.False(t, ok)

	m = &Message{}
	id := uuid.New()
	m.SetCorrelationID(id)
	assert.Equal(t, 6+16, m.AnnotationsSize)
	got, ok := m.CorrelationID()
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
