package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/hyperpolymath/lithoglyph/pkg/metrics"
	"github.com/rs/zerolog"
)

// Journal is the append-only sequenced entry log.
// The physical file (data.journal) is the durable source of truth; a
// raft.LogStore projection (logstore.go) is kept alongside it purely
// for the optional replication adapter (pkg/replication) and can
// always be rebuilt from the physical file.
type Journal struct {
	mu   sync.Mutex
	f    *os.File
	path string

	nextSequence uint64
	tailOffset   int64
	fsync        bool

	proj   *logStoreProjection // nil if replication support is disabled
	logger zerolog.Logger
}

// Options configures journal durability behavior.
type Options struct {
	FsyncOnCommit bool
	// EnableReplicationProjection keeps a raft.LogStore-shaped copy of
	// every committed entry for pkg/replication to consume. The core
	// never reads it back for recovery.
	EnableReplicationProjection bool
}

// Open opens (or creates) the journal file at dir/data.journal,
// scanning it to recover the tail offset and next sequence number.
func Open(dir string, opts Options) (*Journal, error) {
	path := filepath.Join(dir, "data.journal")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{
		f:      f,
		path:   path,
		fsync:  opts.FsyncOnCommit,
		logger: log.WithComponent("journal"),
	}

	entries, tailOffset, torn, err := ScanFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if torn {
		j.logger.Warn().Int64("tail_offset", tailOffset).Msg("discarding torn trailing journal write")
		if err := f.Truncate(tailOffset); err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: truncate torn tail: %w", err)
		}
	}
	j.tailOffset = tailOffset
	if n := len(entries); n > 0 {
		j.nextSequence = entries[n-1].Sequence + 1
	} else {
		j.nextSequence = 1
	}

	if opts.EnableReplicationProjection {
		proj, err := openLogStoreProjection(filepath.Join(dir, "data.journal.raftlog"))
		if err != nil {
			f.Close()
			return nil, err
		}
		j.proj = proj
	}

	return j, nil
}

// Close releases the journal file (and its replication projection, if
// enabled).
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var err error
	if j.proj != nil {
		err = j.proj.Close()
	}
	closeErr := j.f.Close()
	if err == nil {
		err = closeErr
	}
	return err
}

// Builder accumulates the three payloads of an in-flight entry before
// it is committed or discarded.
type Builder struct {
	opType        OpType
	affectedBlock uint64
	forward       []byte
	inverse       []byte
	provenance    []byte
	pending       bool
}

// Begin starts building a new entry for opType, touching
// affectedBlock (0 if the operation spans multiple blocks).
func (j *Journal) Begin(opType OpType, affectedBlock uint64) *Builder {
	return &Builder{opType: opType, affectedBlock: affectedBlock}
}

// BeginPending starts building a new entry for an operation performed
// inside a still-open transaction. The entry is appended and fsynced
// immediately, like any other (sequence numbers stay strictly
// increasing regardless of transaction boundaries), but is flagged
// FlagPending: render_journal and replay both skip it until
// MarkCommitted clears the flag at txn_commit.
func (j *Journal) BeginPending(opType OpType, affectedBlock uint64) *Builder {
	return &Builder{opType: opType, affectedBlock: affectedBlock, pending: true}
}

// SetForward sets the operation to apply.
func (b *Builder) SetForward(cborBytes []byte) { b.forward = cborBytes }

// SetInverse sets the operation that undoes the forward payload.
func (b *Builder) SetInverse(cborBytes []byte) { b.inverse = cborBytes }

// SetInverseIrreversible marks the entry as irreversible-with-story.
func (b *Builder) SetInverseIrreversible(story string) error {
	data, err := codec.Encode(codec.Irreversible{Story: story})
	if err != nil {
		return err
	}
	b.inverse = data
	return nil
}

// SetProvenance sets the entry's provenance; actor and rationale are
// mandatory.
func (b *Builder) SetProvenance(prov codec.Provenance) error {
	if err := prov.Validate(); err != nil {
		return err
	}
	data, err := codec.Encode(prov)
	if err != nil {
		return err
	}
	b.provenance = data
	return nil
}

// Rollback discards an in-flight builder without writing anything.
func (j *Journal) Rollback(b *Builder) {
	*b = Builder{}
	metrics.JournalAbortsTotal.Inc()
}

// Commit durably appends b's entry: the journal entry is written and
// fsynced first, ahead of the block-store effects it describes (the
// two-phase commit ordering). The caller (txn manager / model layer)
// is responsible for applying
// the forward payload's block-store effects afterward and, on
// failure, appending a compensating entry and calling MarkUncompleted.
func (j *Journal) Commit(b *Builder) (uint64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.JournalCommitDuration)

	if len(b.forward) == 0 {
		return 0, ErrMissingForward
	}
	if len(b.inverse) == 0 {
		return 0, ErrMissingInverse
	}
	if len(b.provenance) == 0 {
		return 0, ErrMissingProvenance
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.nextSequence
	entry := Entry{
		Sequence:      seq,
		Timestamp:     time.Now().UnixMicro(),
		OpType:        b.opType,
		AffectedBlock: b.affectedBlock,
		Forward:       b.forward,
		Inverse:       b.inverse,
		Provenance:    b.provenance,
	}
	if b.pending {
		entry.Flags |= FlagPending
	}

	buf, err := encode(entry)
	if err != nil {
		return 0, err
	}

	if _, err := j.f.WriteAt(buf, j.tailOffset); err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	if j.fsync {
		if err := j.f.Sync(); err != nil {
			return 0, fmt.Errorf("journal: fsync: %w", err)
		}
	}

	j.tailOffset += int64(len(buf))
	j.nextSequence++

	if j.proj != nil {
		if err := j.proj.append(entry); err != nil {
			j.logger.Warn().Err(err).Msg("replication projection append failed; projection is now stale")
		}
	}

	metrics.JournalCommitsTotal.Inc()
	return seq, nil
}

// MarkUncompleted rewrites sequence's flags to set FlagUncompleted,
// used when the forward payload's block-store effects could not be
// applied durably, or when a transaction abort or crash recovery
// rolls the entry back. FlagPending is cleared at the same time: an
// uncompleted entry is conclusively resolved, not awaiting its
// transaction.
func (j *Journal) MarkUncompleted(sequence uint64) error {
	return j.rewriteFlags(sequence, func(f EntryFlags) EntryFlags { return (f | FlagUncompleted) &^ FlagPending })
}

// MarkCommitted clears FlagPending on sequence, the counterpart to
// BeginPending: txn_commit calls this for every entry the transaction
// wrote, making them reachable by render_journal and replay.
func (j *Journal) MarkCommitted(sequence uint64) error {
	return j.rewriteFlags(sequence, func(f EntryFlags) EntryFlags { return f &^ FlagPending })
}

// rewriteFlags scans the file for sequence and rewrites its flags
// word in place via mutate. The rewrite must not change the entry's
// encoded length, since flags never affect payload sizes.
func (j *Journal) rewriteFlags(sequence uint64, mutate func(EntryFlags) EntryFlags) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, _, _, err := ScanFile(j.f)
	if err != nil {
		return err
	}
	offset := int64(0)
	for _, e := range entries {
		entryBytes, err := encode(e)
		if err != nil {
			return err
		}
		if e.Sequence == sequence {
			e.Flags = mutate(e.Flags)
			rewritten, err := encode(e)
			if err != nil {
				return err
			}
			if len(rewritten) != len(entryBytes) {
				return fmt.Errorf("journal: internal: flag rewrite changed entry length")
			}
			if _, err := j.f.WriteAt(rewritten, offset); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			if j.fsync {
				return j.f.Sync()
			}
			return nil
		}
		offset += int64(len(entryBytes))
	}
	return fmt.Errorf("journal: sequence %d not found", sequence)
}

// Size returns the journal file's current byte length, i.e. the tail
// append offset. The bridge layer compares it against
// journal_checkpoint_bytes to decide when to checkpoint the
// superblock.
func (j *Journal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tailOffset
}

// HeadSequence returns the sequence of the most recently committed
// entry, or 0 if the journal is empty.
func (j *Journal) HeadSequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.nextSequence == 0 {
		return 0
	}
	return j.nextSequence - 1
}

// ReadSince returns every committed entry with sequence >= since, in
// order.
func (j *Journal) ReadSince(since uint64) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entries, _, _, err := ScanFile(j.f)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.Sequence >= since {
			out = append(out, e)
		}
	}
	return out, nil
}
