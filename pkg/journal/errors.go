package journal

import "errors"

var (
	// ErrChecksum is returned when an entry's CRC32C does not match
	// its header.
	ErrChecksum = errors.New("journal: checksum mismatch")
	// ErrLengthMismatch is returned when entry_len disagrees with the
	// sum of the header and the three declared payload lengths.
	ErrLengthMismatch = errors.New("journal: entry_len disagrees with payload lengths")
	// ErrTruncated is returned when fewer bytes are on disk than the
	// header declares; the entry was not fully written.
	ErrTruncated = errors.New("journal: truncated entry")
	// ErrMissingProvenance is returned when a builder is committed
	// without provenance.
	ErrMissingProvenance = errors.New("journal: provenance not set")
	// ErrMissingForward is returned when a builder is committed without
	// a forward payload.
	ErrMissingForward = errors.New("journal: forward payload not set")
	// ErrMissingInverse is returned when a builder is committed without
	// an inverse payload or an explicit Irreversible sentinel.
	ErrMissingInverse = errors.New("journal: inverse payload not set")
	// ErrSequenceGap is an internal invariant violation: two
	// successfully committed entries were not strictly increasing.
	ErrSequenceGap = errors.New("journal: sequence did not strictly increase")
)
