package wire

import "errors"

var (
	// ErrDecodeError wraps any failure to parse a frame's outer shape.
	ErrDecodeError = errors.New("wire: malformed frame")
	// ErrInvalidOpcode is returned when an opcode-form frame's leading
	// element is not a number or not one of the known opcodes (an empty
	// array is ErrMalformedArray).
	ErrInvalidOpcode = errors.New("wire: invalid opcode")
	// ErrUnknownKind is returned when an object-form frame's "kind" field
	// is missing or not one of the known kinds.
	ErrUnknownKind = errors.New("wire: unknown kind")
	// ErrMalformedArray is returned when an opcode-form frame's array is
	// shorter than the fields its opcode requires.
	ErrMalformedArray = errors.New("wire: malformed opcode array")
)
