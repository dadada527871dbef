package blockstore

// Options mirrors the CBOR options map db_open accepts.
// Field names match the wire keys so a bridge caller's map decodes
// directly into this struct.
type Options struct {
	ReadOnly               bool  `cbor:"read_only"`
	AllowCreate            bool  `cbor:"allow_create"`
	FsyncOnCommit          bool  `cbor:"fsync_on_commit"`
	JournalCheckpointBytes int64 `cbor:"journal_checkpoint_bytes"`
}

// DefaultOptions returns db_open's documented defaults.
func DefaultOptions() Options {
	return Options{
		ReadOnly:               false,
		AllowCreate:            true,
		FsyncOnCommit:          true,
		JournalCheckpointBytes: 16 << 20,
	}
}
