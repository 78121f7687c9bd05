package pickle
// Conversions in between wire bytes and numbers.

import (
	"encoding/binary"
	"math"
)

// need returns malformed error if b[off:] is shorter than n.
func need(b []byte, off, n int) error {
	if off < 0 || len(b)-off < n {
		return malformedf("need %d bytes at offset %d, have %d", n, off, len(b)-off)
	}
	return nil
}

func leUint16(b []byte, off int) (uint16, error) {
	if err := need(b, off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[off:]), nil
}

func leInt32(b []byte, off int) (int32, error) {
	v, err := leUint32(b, off)
	return int32(v), err // NOTE signed: uint32 -> int32
}

func leUint32(b []byte, off int) (uint32, error) {
	if err := need(b, off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}

func leInt64(b []byte, off int) (int64, error) {
	if err := need(b, off, 8); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[off:])), nil
}

func leUint64(b []byte, off int) (uint64, error) {
	if err := need(b, off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[off:]), nil
}

func beFloat32(b []byte, off int) (float32, error) {
	if err := need(b, off, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b[off:])), nil
}

func beFloat64(b []byte, off int) (float64, error) {
	if err := need(b, off, 8); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[off:])), nil
}

// float64ToBE returns the big-endian IEEE 754 encoding of f.
func float64ToBE(f float64) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	return b
}

// decodeLong decodes Python's little-endian two's complement long representation.
//
// Values that do not fit into int64 are rejected with ErrLongOverflow.
func decodeLong(data []byte) (int64, error) {
	n := len(data)
	if n == 0 {
		return 0, nil
	}

	// sign extension bytes (0x00 or 0xff) past the 8th byte carry no information
	ext := byte(0)
	if data[n-1] >= 0x80 {
		ext = 0xff
	}
	for n > 8 && data[n-1] == ext {
		n--
	}
	if n > 8 {
		return 0, ErrLongOverflow
	}
	// the remaining top byte must agree with the sign
	if n == 8 && len(data) > 8 && (data[7] >= 0x80) != (ext == 0xff) {
		return 0, ErrLongOverflow
	}

	var u uint64
	for i := n - 1; i >= 0; i-- {
		u = u<<8 | uint64(data[i])
	}
	if ext == 0xff && n < 8 {
		u |= ^uint64(0) << (8 * uint(n))
	}
	return int64(u), nil
}
