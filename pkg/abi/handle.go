package abi

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/hyperpolymath/lithoglyph/pkg/metrics"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/hyperpolymath/lithoglyph/pkg/txn"
	"github.com/rs/zerolog"
)

// database is the bridge's view of one open database handle: it owns
// the block store, journal, model layer, and transaction table for a
// single open path. The proof verifier registry is process-wide (see
// globalProofs in abi.go), not per-database.
type database struct {
	mu sync.Mutex // serializes operations on this handle

	dir   string
	store *blockstore.Store
	jrnl  *journal.Journal
	model *model.Manager
	txns  *txn.Manager

	// checkpointBytes is the journal_checkpoint_bytes option;
	// lastCheckpointSize is the journal's byte length at the last
	// superblock checkpoint. Both guarded by mu.
	checkpointBytes    int64
	lastCheckpointSize int64

	logger zerolog.Logger
}

// maybeCheckpointLocked rewrites the superblock (recording allocator
// state and the journal head sequence) once the journal has grown
// journal_checkpoint_bytes past the previous checkpoint. Caller holds
// db.mu.
func (db *database) maybeCheckpointLocked() {
	if db.checkpointBytes <= 0 {
		return
	}
	size := db.jrnl.Size()
	if size-db.lastCheckpointSize < db.checkpointBytes {
		return
	}
	if err := db.store.Checkpoint(db.jrnl.HeadSequence()); err != nil {
		db.logger.Error().Err(err).Msg("journal-growth checkpoint failed")
		return
	}
	db.lastCheckpointSize = size
}

// databases is the process-wide table of open database handles,
// keyed by an opaque uuid token. It plays the role a C ABI's raw
// pointer table would play: the only thing ever handed back across
// the boundary is the key.
var (
	databasesMu sync.Mutex
	databases   = map[string]*database{}
)

func registerDatabase(db *database) string {
	handle := uuid.New().String()
	databasesMu.Lock()
	databases[handle] = db
	databasesMu.Unlock()
	return handle
}

func lookupDatabase(handle string) (*database, bool) {
	databasesMu.Lock()
	defer databasesMu.Unlock()
	db, ok := databases[handle]
	return db, ok
}

func forgetDatabase(handle string) {
	databasesMu.Lock()
	delete(databases, handle)
	databasesMu.Unlock()
}

func newDatabaseLogger(dir string) zerolog.Logger {
	return log.WithComponent("bridge").With().Str("db_path", dir).Logger()
}

// handleCollector samples the number of open database handles into
// metrics.HandlesOpen every 15 seconds.
var handleCollector = metrics.NewCollector(15*time.Second, metrics.HandlesOpen, func() int {
	databasesMu.Lock()
	defer databasesMu.Unlock()
	return len(databases)
})

func init() {
	handleCollector.Start()
}
