// Package abierr defines the stable status codes and CBOR error-blob
// shape that cross the bridge/ABI boundary. Every
// fallible ABI function returns one of these status codes and, on
// failure, an Error encodable as the error blob.
package abierr

import (
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
)

// Status is a bridge status code. OK is zero; every error is negative.
type Status int32

const (
	OK                  Status = 0
	InvalidArgument     Status = -1
	NotFound            Status = -2
	IOError             Status = -3
	OutOfMemory         Status = -4
	Internal            Status = -5
	TxnNotActive        Status = -6
	TxnAlreadyCommitted Status = -7
	ConstraintViolation Status = -8
	NotImplemented      Status = -100
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case NotFound:
		return "NOT_FOUND"
	case IOError:
		return "IO_ERROR"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case Internal:
		return "INTERNAL"
	case TxnNotActive:
		return "TXN_NOT_ACTIVE"
	case TxnAlreadyCommitted:
		return "TXN_ALREADY_COMMITTED"
	case ConstraintViolation:
		return "CONSTRAINT_VIOLATION"
	case NotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// Blob is the CBOR-encodable wire shape of an error.
type Blob struct {
	Code      int32            `cbor:"code"`
	Message   string           `cbor:"message"`
	BlockRefs []codec.BlockRef `cbor:"block_refs,omitempty"`
	Rationale string           `cbor:"rationale,omitempty"`
}

// Error is the in-process representation of a bridge failure; it
// implements error and converts to/from Blob at the ABI boundary.
type Error struct {
	Status    Status
	Message   string
	BlockRefs []codec.BlockRef
	Rationale string
}

func (e *Error) Error() string {
	if e.Rationale != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Status, e.Message, e.Rationale)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Blob converts e to its CBOR-encodable wire form.
func (e *Error) Blob() Blob {
	return Blob{
		Code:      int32(e.Status),
		Message:   e.Message,
		BlockRefs: e.BlockRefs,
		Rationale: e.Rationale,
	}
}

// New builds an Error for status with a plain message.
func New(status Status, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Newf builds an Error for status with a formatted message.
func Newf(status Status, format string, args ...interface{}) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// WithRationale attaches a narrative rationale string.
func (e *Error) WithRationale(rationale string) *Error {
	e.Rationale = rationale
	return e
}

// WithBlockRefs attaches affected block pointers.
func (e *Error) WithBlockRefs(ids ...uint64) *Error {
	refs := make([]codec.BlockRef, len(ids))
	for i, id := range ids {
		refs[i] = codec.BlockRef{BlockID: id}
	}
	e.BlockRefs = refs
	return e
}
