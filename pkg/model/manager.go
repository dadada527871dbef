package model

import (
	"strconv"
	"sync"
	"time"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/rs/zerolog"
)

// Manager is the model layer: it translates
// collection/document/edge/schema/constraint/migration operations
// into block-store writes plus journal entries, and keeps the
// in-memory, insertion-ordered collection registry the journal alone
// cannot provide a fast lookup over.
type Manager struct {
	mu    sync.RWMutex
	store *blockstore.Store
	jrnl  *journal.Journal

	order  []*Collection
	byName map[string]*Collection

	// pendingTxnID is set for the duration of a transaction-scoped
	// operation (see BeginTxnScope): every commit() call made while it
	// is non-empty is journaled as a pending entry rather than
	// immediately committed history. The bridge layer serializes every
	// call against a single database handle (db.mu in pkg/abi), so a
	// bare field is safe here without its own lock.
	pendingTxnID string

	logger zerolog.Logger
}

// NewManager wraps an already-open block store and journal.
func NewManager(store *blockstore.Store, jrnl *journal.Journal) *Manager {
	return &Manager{
		store:  store,
		jrnl:   jrnl,
		byName: map[string]*Collection{},
		logger: log.WithComponent("model"),
	}
}

// Recover replays the journal from the beginning, reconstructing the
// in-memory collection registry and rolling back any entry that was
// never finalized before a prior crash: still-pending transactions,
// and entries whose forward block-store effects never durably landed.
// See recoverEntry.
//
// Replay always starts at sequence 1, not at the superblock's last
// checkpointed head: the collection registry lives nowhere but the
// journal, and recoverEntry is idempotent over entries an earlier run
// already settled. The checkpoint bounds nothing here; it persists
// allocator state and the head sequence for audit tooling.
func (m *Manager) Recover() (int, error) {
	n, err := m.jrnl.Recover(1, m.recoverEntry)
	if err != nil {
		return n, err
	}
	m.syncIndex()
	return n, nil
}

// syncIndex reconciles the bbolt side index against the registry the
// replay just rebuilt. The index is a cache, so any disagreement is
// resolved in the registry's favor: missing collections are put back,
// entries for collections the journal no longer knows are dropped.
func (m *Manager) syncIndex() {
	idx := m.store.Index()
	indexed, err := idx.ListCollectionNames()
	if err != nil {
		m.logger.Warn().Err(err).Msg("side index scan failed; leaving index as is")
		return
	}
	live := map[string]bool{}
	for _, col := range m.Collections() {
		live[col.Name] = true
		if _, found, lookErr := idx.LookupCollection(col.Name); lookErr == nil && !found {
			if putErr := idx.PutCollection(col.Name, col.SchemaBlockID); putErr != nil {
				m.logger.Warn().Err(putErr).Str("collection", col.Name).Msg("side index heal failed")
			}
		}
	}
	for _, name := range indexed {
		if !live[name] {
			if delErr := idx.DeleteCollection(name); delErr != nil {
				m.logger.Warn().Err(delErr).Str("collection", name).Msg("side index stale entry delete failed")
			}
		}
	}
}

// BeginTxnScope marks every commit() call made until the matching
// EndTxnScope as belonging to txnID: operations are journaled as
// pending rather than immediately committed. txn.Manager calls this
// around each operation performed against an open transaction and
// finalizes (txn_commit) or rolls back (abort) the accumulated
// sequences afterward.
func (m *Manager) BeginTxnScope(txnID string) { m.pendingTxnID = txnID }

// EndTxnScope clears the transaction scope started by BeginTxnScope.
func (m *Manager) EndTxnScope() { m.pendingTxnID = "" }

// beginBuilder starts a journal entry for opType, routing through
// BeginPending instead of Begin while a transaction scope is active.
func (m *Manager) beginBuilder(opType journal.OpType, affectedBlock uint64) *journal.Builder {
	if m.pendingTxnID != "" {
		return m.jrnl.BeginPending(opType, affectedBlock)
	}
	return m.jrnl.Begin(opType, affectedBlock)
}

// FinalizeTxnEntries clears FlagPending on every sequence a committed
// transaction wrote, making them reachable by render_journal and
// replay. Called by txn.Manager.Commit.
func (m *Manager) FinalizeTxnEntries(sequences []uint64) error {
	for _, seq := range sequences {
		if err := m.jrnl.MarkCommitted(seq); err != nil {
			return abierr.Newf(abierr.Internal, "finalize sequence %d: %v", seq, err)
		}
	}
	return nil
}

// ApplyEntry re-applies e's forward payload to the in-memory
// collection registry through applyEntry, the idempotent step Recover's
// callback (recoverEntry) runs for every entry whose effects landed,
// exported so pkg/replication's
// raft.FSM can drive it from entries delivered through Raft rather
// than through this process's own journal.
func (m *Manager) ApplyEntry(e journal.Entry) error {
	return m.applyEntry(e)
}

// applyEntry is the replay step recoverEntry (journal.Recover's
// callback) runs for entries whose forward effects landed: it must be
// idempotent,
// since an entry may already have been durably applied before a
// crash and is replayed again regardless.
func (m *Manager) applyEntry(e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.OpType {
	case journal.OpCollectionCreate:
		var op opCollectionCreate
		if err := codec.Decode(e.Forward, &op); err != nil {
			return err
		}
		kind, err := ParseKind(op.Kind)
		if err != nil {
			return err
		}
		if _, exists := m.byName[op.Name]; !exists {
			col := newCollection(op.Name, kind, e.Timestamp)
			m.order = append(m.order, col)
			m.byName[op.Name] = col
		}

	case journal.OpCollectionDrop:
		var op opCollectionDrop
		if err := codec.Decode(e.Forward, &op); err != nil {
			return err
		}
		if col, ok := m.byName[op.Name]; ok {
			col.dropped = true
		}

	case journal.OpDocInsert, journal.OpEdgeInsert:
		var op opDocWrite
		if e.OpType == journal.OpEdgeInsert {
			var edgeOp opEdgeWrite
			if err := codec.Decode(e.Forward, &edgeOp); err != nil {
				return err
			}
			op = opDocWrite{Collection: edgeOp.Collection, BlockID: edgeOp.BlockID}
		} else if err := codec.Decode(e.Forward, &op); err != nil {
			return err
		}
		if col, ok := m.byName[op.Collection]; ok {
			col.addBlock(op.BlockID)
			col.markLive(op.BlockID)
		}

	case journal.OpDocUpdate:
		// content lives in the block; no in-memory bookkeeping beyond
		// what addBlock/markLive already recorded at insert time.

	case journal.OpDocDelete, journal.OpEdgeDelete:
		var op opDocDelete
		if err := codec.Decode(e.Forward, &op); err != nil {
			return err
		}
		if col, ok := m.byName[op.Collection]; ok {
			col.markDeleted(op.BlockID)
		}

	case journal.OpSchemaWrite:
		var op opSchemaWrite
		if err := codec.Decode(e.Forward, &op); err != nil {
			return err
		}
		if col, ok := m.byName[op.Collection]; ok {
			col.SchemaBlockID = op.BlockID
		}

	case journal.OpConstraintWrite:
		var op opConstraintWrite
		if err := codec.Decode(e.Forward, &op); err != nil {
			return err
		}
		if col, ok := m.byName[op.Collection]; ok {
			col.ConstraintBlockID = op.BlockID
		}

	case journal.OpMigrationAnnounce, journal.OpMigrationShadow, journal.OpMigrationCommit:
		// Migration phase is tracked entirely in the MIGRATION block
		// itself (read via introspection); no in-memory registry needed.
	}

	return nil
}

// commit implements the two-phase commit ordering: the journal entry
// is written and fsynced first; effects is then invoked
// to apply the forward payload's block-store mutations. If effects
// fails, the entry is marked uncompleted and a best-effort
// compensating entry carrying the original inverse is appended, so a
// future recovery scan never tries to replay the original.
func (m *Manager) commit(opType journal.OpType, affectedBlock uint64, forward, inverse []byte, prov codec.Provenance, effects func() error) (uint64, error) {
	if m.store.Superblock().Unrecoverable {
		return 0, abierr.New(abierr.Internal, "database is marked unrecoverable; operator repair required")
	}
	b := m.beginBuilder(opType, affectedBlock)
	b.SetForward(forward)
	b.SetInverse(inverse)
	if err := b.SetProvenance(prov); err != nil {
		m.jrnl.Rollback(b)
		return 0, abierr.New(abierr.InvalidArgument, err.Error())
	}

	seq, err := m.jrnl.Commit(b)
	if err != nil {
		return 0, abierr.Newf(abierr.IOError, "journal commit: %v", err)
	}

	if err := effects(); err != nil {
		if markErr := m.jrnl.MarkUncompleted(seq); markErr != nil {
			m.logger.Error().Err(markErr).Uint64("sequence", seq).Msg("failed to mark entry uncompleted after effects failure")
		}
		m.appendCompensation(opType, affectedBlock, inverse, seq)
		return 0, abierr.Newf(abierr.IOError, "apply block effects for sequence %d: %v", seq, err)
	}

	log.Mutation(m.logger, opType.String(), seq, affectedBlock)
	return seq, nil
}

func (m *Manager) appendCompensation(opType journal.OpType, affectedBlock uint64, inverse []byte, originalSeq uint64) {
	b := m.jrnl.Begin(opType, affectedBlock)
	b.SetForward(inverse)
	if err := b.SetInverseIrreversible("compensating entry for failed forward effects at sequence " + strconv.FormatUint(originalSeq, 10)); err != nil {
		m.logger.Error().Err(err).Msg("failed to build compensating entry's irreversible sentinel")
		return
	}
	if err := b.SetProvenance(codec.Provenance{
		Actor:     "lithoglyph.model",
		Rationale: "compensating rollback after block-store effects failure",
		Timestamp: time.Now().UnixMicro(),
	}); err != nil {
		m.logger.Error().Err(err).Msg("failed to attach provenance to compensating entry")
		return
	}
	if _, err := m.jrnl.Commit(b); err != nil {
		m.logger.Error().Err(err).Msg("failed to append compensating entry; marking database unrecoverable")
		if markErr := m.store.MarkUnrecoverable(); markErr != nil {
			m.logger.Error().Err(markErr).Msg("failed to persist unrecoverable flag")
		}
	}
}

// Collections returns the collection registry in insertion order,
// skipping collections dropped and not since reinstated.
func (m *Manager) Collections() []*Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Collection, 0, len(m.order))
	for _, c := range m.order {
		if !c.dropped {
			out = append(out, c)
		}
	}
	return out
}

// Collection looks up a live collection by name.
func (m *Manager) Collection(name string) (*Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.byName[name]
	if !ok || col.dropped {
		return nil, false
	}
	return col, true
}
