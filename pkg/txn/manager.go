package txn

import (
	"sync"

	"github.com/google/uuid"
	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/hyperpolymath/lithoglyph/pkg/metrics"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/rs/zerolog"
)

// Manager is the transaction manager: it tracks every
// open Txn against a single database handle and drives commit/abort.
//
// Every operation performed against an open transaction is journaled
// immediately (so sequence numbers stay strictly increasing and
// within-transaction reads see their own writes) but flagged pending
// (see model.Manager.BeginTxnScope): it is invisible to render_journal
// and replay until Commit finalizes it. Abort instead walks the
// transaction's recorded operations in reverse and rolls each one back
// in place, never writing a new entry: a pending entry that is rolled
// back simply never becomes committed history.
type Manager struct {
	model *model.Manager

	mu   sync.Mutex
	txns map[string]*Txn

	logger zerolog.Logger
}

// NewManager wraps an already-recovered model.Manager.
func NewManager(m *model.Manager) *Manager {
	return &Manager{
		model:  m,
		txns:   map[string]*Txn{},
		logger: log.WithComponent("txn"),
	}
}

// Begin opens a new transaction in the given mode.
func (mgr *Manager) Begin(mode Mode) *Txn {
	t := &Txn{id: uuid.New().String(), mode: mode, state: StateActive}
	mgr.mu.Lock()
	mgr.txns[t.id] = t
	mgr.mu.Unlock()
	metrics.TxnsOpen.WithLabelValues(mode.String()).Inc()
	return t
}

// Lookup finds a transaction by id for the bridge layer, which only
// ever holds opaque handles.
func (mgr *Manager) Lookup(id string) (*Txn, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	t, ok := mgr.txns[id]
	return t, ok
}

// Commit finalizes every pending journal entry t wrote (clearing the
// flag BeginTxnScope set on each one, so they become reachable by
// render_journal and replay) and transitions t to StateCommitted.
func (mgr *Manager) Commit(t *Txn) error {
	t.mu.Lock()
	if err := requireActiveLocked(t); err != nil {
		t.mu.Unlock()
		return err
	}
	ops := append([]completedOp(nil), t.ops...)
	t.mu.Unlock()

	sequences := make([]uint64, len(ops))
	for i, op := range ops {
		sequences[i] = op.sequence
	}
	if err := mgr.model.FinalizeTxnEntries(sequences); err != nil {
		mgr.logger.Error().Err(err).Str("txn_id", t.id).Msg("commit: failed to finalize pending entries; database state may be inconsistent")
		return err
	}

	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
	mgr.forget(t.id)
	metrics.TxnsOpen.WithLabelValues(t.mode.String()).Dec()
	metrics.TxnsCompletedTotal.WithLabelValues("committed").Inc()
	return nil
}

// Abort walks t's recorded operations in reverse, rolling each back in
// place: none of them ever left the pending state a committed entry
// would need compensating, so rolling back just applies the inverse
// and marks the original entry uncompleted. If any recorded operation
// was marked IRREVERSIBLE, the abort is refused entirely and
// ERR_INTERNAL is returned, per this implementation's resolution of
// the open question on IRREVERSIBLE-during-abort (see DESIGN.md):
// there is no override token, so the only way forward is operator
// intervention.
func (mgr *Manager) Abort(t *Txn) error {
	t.mu.Lock()
	if err := requireActiveLocked(t); err != nil {
		t.mu.Unlock()
		return err
	}
	ops := append([]completedOp(nil), t.ops...)
	t.mu.Unlock()

	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].irreversible {
			metrics.TxnAbortBlockedTotal.Inc()
			return abierr.Newf(abierr.Internal, "cannot abort transaction %s: an irreversible operation on block %d was committed", t.id, ops[i].affectedBlock).
				WithBlockRefs(ops[i].affectedBlock)
		}
	}

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if err := mgr.model.RevertPending(op.sequence, op.opType, op.inverse); err != nil {
			mgr.logger.Error().Err(err).Str("txn_id", t.id).Msg("abort: failed to roll back pending operation; marking database unrecoverable")
			if markErr := mgr.model.Store().MarkUnrecoverable(); markErr != nil {
				mgr.logger.Error().Err(markErr).Msg("abort: failed to persist unrecoverable flag")
			}
			return err
		}
	}

	t.mu.Lock()
	t.state = StateAborted
	t.mu.Unlock()
	mgr.forget(t.id)
	metrics.TxnsOpen.WithLabelValues(t.mode.String()).Dec()
	metrics.TxnsCompletedTotal.WithLabelValues("aborted").Inc()
	return nil
}

func (mgr *Manager) forget(id string) {
	mgr.mu.Lock()
	delete(mgr.txns, id)
	mgr.mu.Unlock()
}

func requireActiveLocked(t *Txn) error {
	switch t.state {
	case StateActive:
		return nil
	case StateCommitted:
		return abierr.New(abierr.TxnAlreadyCommitted, "transaction already committed")
	default:
		return abierr.New(abierr.TxnNotActive, "transaction is not active")
	}
}
