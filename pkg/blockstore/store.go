package blockstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/hyperpolymath/lithoglyph/pkg/metrics"
	"github.com/rs/zerolog"
)

// openPaths tracks directories with an open read-write Store, giving
// the "at most one database handle" guarantee without requiring every
// caller to coordinate through a single process-wide object.
var (
	openPathsMu sync.Mutex
	openPaths   = map[string]bool{}
)

// Store is the block store for a single open database: the physical
// page file, its cached superblock, and the bbolt-backed side index.
type Store struct {
	dir  string
	opts Options

	mu         sync.Mutex
	file       *os.File
	sb         Superblock
	index      *Index
	dirty      bool // superblock changed since last checkpoint
	closed     bool
	writePos   uint64 // one past the highest block id ever reserved
	seqCounter uint64 // per-store block header sequence, guarded by mu

	logger zerolog.Logger
}

// Open opens (or initializes) the block store rooted at dir, using
// the "dir/data.blocks" file layout.
func Open(dir string, opts Options) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	openPathsMu.Lock()
	if openPaths[absDir] {
		openPathsMu.Unlock()
		return nil, ErrAlreadyOpen
	}
	openPaths[absDir] = true
	openPathsMu.Unlock()

	s, err := openLocked(absDir, opts)
	if err != nil {
		openPathsMu.Lock()
		delete(openPaths, absDir)
		openPathsMu.Unlock()
		return nil, err
	}
	return s, nil
}

func openLocked(absDir string, opts Options) (*Store, error) {
	blocksPath := filepath.Join(absDir, "data.blocks")

	_, blocksErr := os.Stat(blocksPath)
	freshDB := os.IsNotExist(blocksErr)

	if freshDB {
		if !opts.AllowCreate {
			return nil, fmt.Errorf("%w: database does not exist and allow_create is false", ErrInvalidArgument)
		}
		if err := os.MkdirAll(absDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(blocksPath, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	idx, err := openIndex(filepath.Join(absDir, "data.index"))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	s := &Store{
		dir:    absDir,
		opts:   opts,
		file:   f,
		index:  idx,
		logger: log.WithComponent("blockstore"),
	}

	if freshDB {
		s.sb = newSuperblock(time.Now())
		s.writePos = 1
		if !opts.ReadOnly {
			if err := s.writeSuperblockLocked(); err != nil {
				f.Close()
				idx.Close()
				return nil, err
			}
		}
		return s, nil
	}

	if err := s.loadSuperblockLocked(); err != nil {
		f.Close()
		idx.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadSuperblockLocked() error {
	image := make([]byte, PageSize)
	n, err := s.file.ReadAt(image, 0)
	if err != nil && n != PageSize {
		return fmt.Errorf("%w: reading superblock: %v", ErrIO, err)
	}
	blk, err := decodeImage(image)
	if err != nil {
		return err
	}
	sb, err := decodeSuperblock(blk.Payload)
	if err != nil {
		return err
	}
	if sb.FormatVersion > FormatVersion {
		return fmt.Errorf("%w: database format version %d is newer than supported version %d", ErrIO, sb.FormatVersion, FormatVersion)
	}
	s.sb = sb
	s.writePos = sb.NextFreeBlockID
	if !sb.LastCleanShutdown {
		s.logger.Warn().Msg("superblock reports unclean shutdown, recovery required")
	}
	return nil
}

func (s *Store) writeSuperblockLocked() error {
	payload, err := s.sb.encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	now := time.Now().UnixMicro()
	h := Header{
		Version:    FormatVersion,
		Type:       TypeSuperblock,
		BlockID:    SuperblockBlockID,
		Sequence:   0,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	image, err := encodeImage(h, payload)
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(image[:], 0); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if s.opts.FsyncOnCommit {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	s.dirty = false
	return nil
}

// AllocBlock reserves a fresh id for a block of the given type. No
// bytes are written yet.
func (s *Store) AllocBlock(t Type) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.ReadOnly {
		return 0, fmt.Errorf("%w: read-only store", ErrInvalidArgument)
	}

	var id uint64
	if s.sb.FreeListHead != 0 {
		id = s.sb.FreeListHead
		next, err := s.readFreeListNextLocked(id)
		if err != nil {
			return 0, err
		}
		s.sb.FreeListHead = next
	} else {
		id = s.writePos
		s.writePos++
		s.sb.NextFreeBlockID = s.writePos
	}
	s.dirty = true
	_ = t // the type is only meaningful once WriteBlock durably writes it
	metrics.BlocksAllocatedTotal.Inc()
	return id, nil
}

// readFreeListNextLocked reads the "next free id" pointer chained
// through a previously-freed-but-unwritten block's header PrevBlock
// field.
func (s *Store) readFreeListNextLocked(id uint64) (uint64, error) {
	image := make([]byte, PageSize)
	if _, err := s.file.ReadAt(image, int64(id)*PageSize); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	h, err := decodeHeader(image)
	if err != nil {
		// Never written: free-list head with no on-disk image yet.
		return 0, nil
	}
	return h.PrevBlock, nil
}

// WriteBlock computes the header's checksum, timestamps, and sequence
// and durably writes the full PageSize-byte image.
func (s *Store) WriteBlock(id uint64, t Type, payload []byte, flags Flags, prevBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.ReadOnly {
		return fmt.Errorf("%w: read-only store", ErrInvalidArgument)
	}

	now := time.Now().UnixMicro()
	createdAt := now
	if existing, err := s.readLocked(id); err == nil && existing.Header.Type != TypeFree {
		createdAt = existing.Header.CreatedAt
		if existing.Header.Type != t && id != SuperblockBlockID {
			return fmt.Errorf("%w: block %d type is fixed at %s, cannot rewrite as %s", ErrInvalidArgument, id, existing.Header.Type, t)
		}
	}

	h := Header{
		Version:    FormatVersion,
		Type:       t,
		BlockID:    id,
		Sequence:   s.nextSequenceLocked(),
		CreatedAt:  createdAt,
		ModifiedAt: now,
		PrevBlock:  prevBlock,
		Flags:      flags,
	}
	image, err := encodeImage(h, payload)
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(image[:], int64(id)*PageSize); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if s.opts.FsyncOnCommit {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if id >= s.writePos {
		s.writePos = id + 1
		s.sb.NextFreeBlockID = s.writePos
		s.dirty = true
	}
	metrics.BlockWritesTotal.WithLabelValues(t.String()).Inc()
	return nil
}

func (s *Store) nextSequenceLocked() uint64 {
	s.seqCounter++
	return s.seqCounter
}

// ReadBlock reads and checksum-verifies the block at id.
func (s *Store) ReadBlock(id uint64) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id uint64) (Block, error) {
	info, err := s.file.Stat()
	if err != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if (int64(id)+1)*PageSize > info.Size() {
		metrics.BlockReadsTotal.WithLabelValues("not_found").Inc()
		return Block{}, ErrNotFound
	}
	image := make([]byte, PageSize)
	if _, err := s.file.ReadAt(image, int64(id)*PageSize); err != nil {
		metrics.BlockReadsTotal.WithLabelValues("io_error").Inc()
		return Block{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	blk, err := decodeImage(image)
	if err != nil {
		if err == ErrChecksum {
			metrics.BlockReadsTotal.WithLabelValues("checksum_error").Inc()
			metrics.BlockChecksumFailuresTotal.Inc()
			s.logger.Error().Uint64("block_id", id).Msg("checksum mismatch on read")
			return Block{}, &ChecksumError{BlockID: id}
		}
		metrics.BlockReadsTotal.WithLabelValues("decode_error").Inc()
		return Block{}, err
	}
	metrics.BlockReadsTotal.WithLabelValues("ok").Inc()
	return blk, nil
}

// FreeBlock marks id deleted if it has ever been durably written, or
// returns it to the free list if it was only ever reserved.
func (s *Store) FreeBlock(id uint64) error {
	blk, err := s.ReadBlock(id)
	if err == ErrNotFound {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.writeFreeListLinkLocked(id, s.sb.FreeListHead); err != nil {
			return err
		}
		s.sb.FreeListHead = id
		s.dirty = true
		metrics.BlocksFreedTotal.Inc()
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.WriteBlock(id, blk.Header.Type, blk.Payload, blk.Header.Flags|FlagDeleted, blk.Header.PrevBlock); err != nil {
		return err
	}
	metrics.BlocksFreedTotal.Inc()
	return nil
}

func (s *Store) writeFreeListLinkLocked(id, next uint64) error {
	h := Header{Version: FormatVersion, Type: TypeFree, BlockID: id, PrevBlock: next, Flags: FlagDeleted}
	image, err := encodeImage(h, nil)
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(image[:], int64(id)*PageSize); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Checkpoint rewrites the superblock, recording the current journal
// head sequence and free-list state. A no-op on read-only stores.
func (s *Store) Checkpoint(journalHeadSequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.ReadOnly {
		return nil
	}
	s.sb.JournalHeadSequence = journalHeadSequence
	s.sb.LastCleanShutdown = true
	if err := s.writeSuperblockLocked(); err != nil {
		return err
	}
	metrics.JournalCheckpointsTotal.Inc()
	return nil
}

// Index exposes the bbolt-backed side index for collections needing
// fast name/schema lookups.
func (s *Store) Index() *Index { return s.index }

// Superblock returns a copy of the current in-memory superblock.
func (s *Store) Superblock() Superblock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sb
}

// MarkUnrecoverable flags the database as requiring operator repair.
func (s *Store) MarkUnrecoverable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sb.Unrecoverable = true
	return s.writeSuperblockLocked()
}

// Close marks a clean shutdown, checkpoints the superblock, and
// releases the path lock.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if !s.opts.ReadOnly {
		s.sb.LastCleanShutdown = true
		err = s.writeSuperblockLocked()
	}
	closeErr := s.file.Close()
	if err == nil {
		err = closeErr
	}
	idxErr := s.index.Close()
	if err == nil {
		err = idxErr
	}
	s.mu.Unlock()

	openPathsMu.Lock()
	delete(openPaths, s.dir)
	openPathsMu.Unlock()
	return err
}
