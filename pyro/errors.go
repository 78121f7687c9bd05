package pyro

import (
	"errors"
	"fmt"
)

var (
	ErrHeaderSize         = errors.New("pyro: header data size mismatch")
	ErrProtocolMismatch   = errors.New("pyro: invalid data or unsupported protocol version")
	ErrChecksumMismatch   = errors.New("pyro: header checksum mismatch")
	ErrAnnotationsCorrupt = errors.New("pyro: corrupt annotations")
	ErrHMACMismatch       = errors.New("pyro: message hmac mismatch")
	ErrHMACNotSymmetric   = errors.New("pyro: hmac key config not symmetric")
	ErrInvalidURI         = errors.New("pyro: invalid uri")
)

// VersionError is returned for headers of other protocol versions.
type VersionError struct {
	Version int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("pyro: unsupported protocol version %d (want %d)", e.Version, ProtocolVersion)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrProtocolMismatch
}

// InvalidTypeError is returned by Recv for messages of type not expected by the caller.
type InvalidTypeError struct {
	Type MsgType
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("pyro: invalid msg type %d received", uint16(e.Type))
}

// AnnotationKeyError reports annotation key that is not 4 bytes long.
type AnnotationKeyError struct {
	Key string
}

func (e *AnnotationKeyError) Error() string {
	return fmt.Sprintf("pyro: annotation key must be length 4, got %q", e.Key)
}
