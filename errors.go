package pickle

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by Decoder and Encoder either is
// io.EOF / io.ErrUnexpectedEOF, an OpcodeError, or wraps one of these.
var (
	// ErrMalformed marks input that does not follow the pickle format:
	// unparsable numbers, bad quotes or escapes, odd dict items, unhashable keys.
	ErrMalformed = errors.New("pickle: malformed input")

	// ErrUnresolvedReference is returned when a memo index was never written.
	ErrUnresolvedReference = errors.New("pickle: unresolved memo reference")

	// ErrUnsupported marks valid pickles that use features we do not implement.
	ErrUnsupported = errors.New("pickle: unsupported feature")

	// ErrStackUnderflow is returned when an opcode needs more stack items than present.
	ErrStackUnderflow = errors.New("pickle: stack underflow")

	// ErrRecursiveStructure is returned when a tuple contains itself.
	// Tuples have no backpatch opcode so such values cannot be written.
	ErrRecursiveStructure = errors.New("pickle: recursive structure")

	// ErrRecursionLimit is returned when the encoder nests deeper than maxRecursion.
	ErrRecursionLimit = errors.New("pickle: recursion too deep")

	// ErrInternal signals a broken internal invariant.
	ErrInternal = errors.New("pickle: internal error")
)

var (
	ErrInvalidPickleVersion = fmt.Errorf("invalid pickle version: %w", ErrUnsupported)
	ErrLongOverflow         = fmt.Errorf("long does not fit into 64 bits: %w", ErrUnsupported)

	errNoMarker  = fmt.Errorf("no marker in stack: %w", ErrMalformed)
	errNoMarkUse = fmt.Errorf("MARK object cannot be exposed: %w", ErrMalformed)
)

// OpcodeError is the error that Decode returns when it sees unknown pickle opcode.
type OpcodeError struct {
	Key byte
	Pos int
}

func (e OpcodeError) Error() string {
	return fmt.Sprintf("Unknown opcode %d (%c) at position %d: %q", e.Key, e.Key, e.Pos, e.Key)
}

// ConstructionError wraps a failure of an object constructor or of BUILD.
type ConstructionError struct {
	Module, Name string
	Err          error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("pickle: construct %s: %s", qualname(e.Module, e.Name), e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// malformedf returns ErrMalformed annotated with a formatted message.
func malformedf(format string, argv ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, argv...), ErrMalformed)
}

// unsupportedf returns ErrUnsupported annotated with a formatted message.
func unsupportedf(format string, argv ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, argv...), ErrUnsupported)
}

// IsMalformed reports whether err means the input was not a valid pickle.
// Truncated input and unknown opcodes count as malformed.
func IsMalformed(err error) bool {
	var oe OpcodeError
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnresolvedReference) ||
		errors.Is(err, ErrStackUnderflow) ||
		errors.As(err, &oe) ||
		isUnexpectedEOF(err)
}

// IsUnsupported reports whether err means the pickle uses a feature we do not support.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsInternal reports whether err signals a bug in this package.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

func qualname(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}
