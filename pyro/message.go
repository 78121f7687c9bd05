// Package pyro implements the wire message framing of Pyro4, the Python
// remote objects library.
//
// A message is a 24-byte header, followed by annotation chunks, followed by
// the payload:
//
//	"PYRO" version type flags seq datasize serializer annsize 0 checksum
//	annotations: key(4) length(2) value ...
//	data
//
// All header integers are big-endian. The payload is opaque here; with
// SerializerPickle it is a pickle as produced by package pickle.
package pyro

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

const (
	// ProtocolVersion is the only protocol version accepted on the wire.
	ProtocolVersion = 48

	// HeaderSize is the size of the fixed message header.
	HeaderSize = 24

	checksumMagic = 0x34E9
)

var log = commonlog.GetLogger("pyro")

// MsgType tells what a message is for.
type MsgType uint16

const (
	MsgConnect     MsgType = 1
	MsgConnectOK   MsgType = 2
	MsgConnectFail MsgType = 3
	MsgInvoke      MsgType = 4
	MsgResult      MsgType = 5
	MsgPing        MsgType = 6
)

var msgTypeNames = map[MsgType]string{
	MsgConnect:     "CONNECT",
	MsgConnectOK:   "CONNECTOK",
	MsgConnectFail: "CONNECTFAIL",
	MsgInvoke:      "INVOKE",
	MsgResult:      "RESULT",
	MsgPing:        "PING",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MsgType(%d)", uint16(t))
}

// Flags is the message flag bit set.
type Flags uint16

const (
	FlagException Flags = 1 << iota
	FlagCompressed
	FlagOneway
	FlagBatch
	FlagMetaOnConnect
	FlagItemStreamResult
)

// Has reports whether all bits of x are set in f.
func (f Flags) Has(x Flags) bool { return f&x == x }

// SerializerID identifies the codec that produced the payload.
type SerializerID uint16

const (
	SerializerSerpent SerializerID = 1
	SerializerJSON    SerializerID = 2
	SerializerMarshal SerializerID = 3
	SerializerPickle  SerializerID = 4
)

// well-known annotation keys
const (
	AnnotationHMAC        = "HMAC"
	AnnotationCorrelation = "CORR"
)

// Message is one framed unit of Pyro communication.
type Message struct {
	Type         MsgType
	Flags        Flags
	Seq          uint16
	SerializerID SerializerID

	Data []byte

	// sizes as declared by the header
	DataSize        int
	AnnotationsSize int

	// Annotations maps 4-character keys to values. On the wire they are
	// written in key order.
	Annotations map[string][]byte
}

// New creates message with the given payload and annotations.
//
// If hmacKey is not nil, the message is signed with it: the HMAC annotation
// is computed over data and the other annotations.
func New(typ MsgType, data []byte, serializer SerializerID, flags Flags, seq uint16, annotations map[string][]byte, hmacKey []byte) (*Message, error) {
	if len(data) > math.MaxInt32 {
		return nil, fmt.Errorf("pyro: data size %d too big", len(data))
	}
	m := &Message{
		Type:         typ,
		Flags:        flags,
		Seq:          seq,
		SerializerID: serializer,
		Data:         data,
		DataSize:     len(data),
		Annotations:  make(map[string][]byte, len(annotations)+1),
	}
	for k, v := range annotations {
		m.Annotations[k] = v
	}
	if hmacKey != nil {
		m.Annotations[AnnotationHMAC] = m.HMAC(hmacKey)
	}
	if err := m.updateAnnotationsSize(); err != nil {
		return nil, err
	}
	return m, nil
}

// updateAnnotationsSize validates annotations and recomputes AnnotationsSize.
func (m *Message) updateAnnotationsSize() error {
	size := 0
	for k, v := range m.Annotations {
		if len(k) != 4 {
			return &AnnotationKeyError{Key: k}
		}
		if len(v) > math.MaxUint16 {
			return fmt.Errorf("pyro: annotation %q: value of %d bytes too big", k, len(v))
		}
		size += 6 + len(v)
	}
	if size > math.MaxUint16 {
		return fmt.Errorf("pyro: annotations of %d bytes too big", size)
	}
	m.AnnotationsSize = size
	return nil
}

func (m *Message) sortedKeys() []string {
	keys := make([]string, 0, len(m.Annotations))
	for k := range m.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HMAC returns HMAC-SHA1 of the payload followed by values of all annotations
// except HMAC itself, in key order.
func (m *Message) HMAC(key []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(m.Data)
	for _, k := range m.sortedKeys() {
		if k != AnnotationHMAC {
			mac.Write(m.Annotations[k])
		}
	}
	return mac.Sum(nil)
}

// Sign sets the HMAC annotation for key.
//
// Call it again after annotations or data change.
func (m *Message) Sign(key []byte) error {
	if m.Annotations == nil {
		m.Annotations = make(map[string][]byte)
	}
	m.Annotations[AnnotationHMAC] = m.HMAC(key)
	return m.updateAnnotationsSize()
}

func checksum(typ MsgType, dataSize, annotationsSize int, serializer SerializerID, flags Flags, seq uint16) uint16 {
	sum := int(typ) + ProtocolVersion + dataSize + annotationsSize + int(serializer) + int(flags) + int(seq) + checksumMagic
	return uint16(sum & 0xffff)
}

// HeaderBytes returns the fixed-size message header.
func (m *Message) HeaderBytes() []byte {
	h := make([]byte, HeaderSize)
	copy(h, "PYRO")
	binary.BigEndian.PutUint16(h[4:], ProtocolVersion)
	binary.BigEndian.PutUint16(h[6:], uint16(m.Type))
	binary.BigEndian.PutUint16(h[8:], uint16(m.Flags))
	binary.BigEndian.PutUint16(h[10:], m.Seq)
	binary.BigEndian.PutUint32(h[12:], uint32(m.DataSize))
	binary.BigEndian.PutUint16(h[16:], uint16(m.SerializerID))
	binary.BigEndian.PutUint16(h[18:], uint16(m.AnnotationsSize))
	// h[20:22] reserved
	binary.BigEndian.PutUint16(h[22:], checksum(m.Type, m.DataSize, m.AnnotationsSize, m.SerializerID, m.Flags, m.Seq))
	return h
}

// AnnotationBytes returns the annotation chunks in key order.
func (m *Message) AnnotationBytes() ([]byte, error) {
	if err := m.updateAnnotationsSize(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, m.AnnotationsSize)
	for _, k := range m.sortedKeys() {
		v := m.Annotations[k]
		buf = append(buf, k...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(v)))
		buf = append(buf, v...)
	}
	return buf, nil
}

// Bytes returns the whole message: header, annotations and data.
func (m *Message) Bytes() ([]byte, error) {
	ann, err := m.AnnotationBytes()
	if err != nil {
		return nil, err
	}
	m.DataSize = len(m.Data)
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(ann) + len(m.Data))
	buf.Write(m.HeaderBytes())
	buf.Write(ann)
	buf.Write(m.Data)
	return buf.Bytes(), nil
}

// WriteTo writes the whole message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	data, err := m.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("pyro: send: %w", err)
	}
	log.Debugf("send %s seq=%d data=%d annotations=%d flags=%#x", m.Type, m.Seq, m.DataSize, m.AnnotationsSize, uint16(m.Flags))
	return int64(n), nil
}

// ParseHeader decodes message header. Data and annotations are not part
// of the header and are left empty.
func ParseHeader(header []byte) (*Message, error) {
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderSize, len(header))
	}
	if string(header[:4]) != "PYRO" {
		return nil, fmt.Errorf("%w: magic %q", ErrProtocolMismatch, header[:4])
	}
	if version := binary.BigEndian.Uint16(header[4:]); version != ProtocolVersion {
		return nil, &VersionError{Version: int(version)}
	}

	m := &Message{
		Type:            MsgType(binary.BigEndian.Uint16(header[6:])),
		Flags:           Flags(binary.BigEndian.Uint16(header[8:])),
		Seq:             binary.BigEndian.Uint16(header[10:]),
		DataSize:        int(int32(binary.BigEndian.Uint32(header[12:]))),
		SerializerID:    SerializerID(binary.BigEndian.Uint16(header[16:])),
		AnnotationsSize: int(binary.BigEndian.Uint16(header[18:])),
	}
	have := binary.BigEndian.Uint16(header[22:])
	if want := checksum(m.Type, m.DataSize, m.AnnotationsSize, m.SerializerID, m.Flags, m.Seq); have != want {
		return nil, fmt.Errorf("%w: have %#04x, want %#04x", ErrChecksumMismatch, have, want)
	}
	if m.DataSize < 0 {
		return nil, fmt.Errorf("%w: negative data size %d", ErrProtocolMismatch, m.DataSize)
	}
	return m, nil
}

// parseAnnotations splits annotation chunks.
func parseAnnotations(data []byte) (map[string][]byte, error) {
	annotations := make(map[string][]byte)
	for i := 0; i < len(data); {
		if len(data)-i < 6 {
			return nil, fmt.Errorf("%w: truncated chunk header at %d", ErrAnnotationsCorrupt, i)
		}
		key := string(data[i : i+4])
		n := int(binary.BigEndian.Uint16(data[i+4:]))
		i += 6
		if len(data)-i < n {
			return nil, fmt.Errorf("%w: %q: value of %d bytes past the end", ErrAnnotationsCorrupt, key, n)
		}
		annotations[key] = data[i : i+n : i+n]
		i += n
	}
	return annotations, nil
}

// Recv reads one message from r.
//
// If allowed is not empty, the message type must be one of allowed. The
// message must carry HMAC annotation if and only if hmacKey is not nil, and
// the HMAC must match.
func Recv(r io.Reader, allowed []MsgType, hmacKey []byte) (*Message, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("pyro: recv header: %w", err)
	}
	m, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}

	if len(allowed) > 0 {
		ok := false
		for _, t := range allowed {
			if m.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return nil, &InvalidTypeError{Type: m.Type}
		}
	}

	m.Annotations = map[string][]byte{}
	if m.AnnotationsSize > 0 {
		data := make([]byte, m.AnnotationsSize)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("pyro: recv annotations: %w", err)
		}
		if m.Annotations, err = parseAnnotations(data); err != nil {
			return nil, err
		}
	}

	// the buffer grows with what arrives, not with what the header claims
	var data bytes.Buffer
	if _, err := io.CopyN(&data, r, int64(m.DataSize)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("pyro: recv data: %w", err)
	}
	m.Data = data.Bytes()

	mac, signed := m.Annotations[AnnotationHMAC]
	switch {
	case signed && hmacKey != nil:
		if !hmac.Equal(mac, m.HMAC(hmacKey)) {
			log.Warningf("recv %s seq=%d: hmac mismatch", m.Type, m.Seq)
			return nil, ErrHMACMismatch
		}
	case signed != (hmacKey != nil):
		log.Warningf("recv %s seq=%d: hmac present=%t, key configured=%t", m.Type, m.Seq, signed, hmacKey != nil)
		return nil, ErrHMACNotSymmetric
	}

	log.Debugf("recv %s seq=%d data=%d annotations=%d flags=%#x", m.Type, m.Seq, m.DataSize, m.AnnotationsSize, uint16(m.Flags))
	return m, nil
}

// CorrelationID returns the correlation id annotation, if the message has
// a valid one.
func (m *Message) CorrelationID() (uuid.UUID, bool) {
	v, ok := m.Annotations[AnnotationCorrelation]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.FromBytes(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// SetCorrelationID sets the correlation id annotation.
//
// A signed message has to be signed again afterwards.
func (m *Message) SetCorrelationID(id uuid.UUID) {
	if m.Annotations == nil {
		m.Annotations = make(map[string][]byte)
	}
	m.Annotations[AnnotationCorrelation] = id[:]
	// invalid annotations, if any, are reported by Bytes
	_ = m.updateAnnotationsSize()
}
