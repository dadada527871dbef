package codec

import (
	"errors"
	"strconv"
)

var (
	errProvenanceMissingActor     = errors.New("codec: provenance missing required actor field")
	errProvenanceMissingRationale = errors.New("codec: provenance missing required rationale field")
	errIrreversibleMissingStory   = errors.New("codec: irreversible inverse missing required story field")
)

// DecodeError wraps a decode failure with the byte offset it occurred
// at, so the bridge can surface it in an error blob.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return "codec: decode failed at offset " + strconv.Itoa(e.Offset) + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
