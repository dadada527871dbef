package txn

import (
	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
)

// requireWritable rejects operations that would allocate or journal
// against a read_only transaction, in addition to the
// usual active-state check.
func (t *Txn) requireWritable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := requireActiveLocked(t); err != nil {
		return err
	}
	if t.mode == ModeReadOnly {
		return abierr.New(abierr.InvalidArgument, "transaction is read_only: operation would allocate or journal")
	}
	return nil
}

func (t *Txn) requireActiveCheck() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return requireActiveLocked(t)
}

// captureLastEntry records the journal entry most recently written by
// m against this transaction's op list, so Commit can finalize it and
// Abort can reverse it. The entry itself was journaled pending (every
// wrapper below brackets its model call with BeginTxnScope); it only
// becomes committed history once Commit calls FinalizeTxnEntries.
func (t *Txn) captureLastEntry(m *model.Manager) {
	seq := m.Journal().HeadSequence()
	if seq == 0 {
		return
	}
	entries, err := m.Journal().ReadSince(seq)
	if err != nil || len(entries) == 0 {
		return
	}
	e := entries[len(entries)-1]
	t.record(e.Sequence, e.OpType, e.AffectedBlock, e.Inverse, e.IsIrreversible())
}

// ReadBlock is available regardless of transaction mode: reads never
// allocate or journal.
func (t *Txn) ReadBlock(m *model.Manager, blockID uint64) (blockstore.Block, error) {
	if err := t.requireActiveCheck(); err != nil {
		return blockstore.Block{}, err
	}
	return m.Store().ReadBlock(blockID)
}

// CreateCollection journals OP_COLLECTION_CREATE within t.
func (t *Txn) CreateCollection(m *model.Manager, name string, kind model.Kind, prov codec.Provenance) (*model.Collection, error) {
	if err := t.requireWritable(); err != nil {
		return nil, err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	col, err := m.CreateCollection(name, kind, prov)
	if err != nil {
		return nil, err
	}
	t.captureLastEntry(m)
	return col, nil
}

// DropCollection journals OP_COLLECTION_DROP within t.
func (t *Txn) DropCollection(m *model.Manager, name string, prov codec.Provenance) error {
	if err := t.requireWritable(); err != nil {
		return err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	if err := m.DropCollection(name, prov); err != nil {
		return err
	}
	t.captureLastEntry(m)
	return nil
}

// InsertDocument journals OP_DOC_INSERT within t.
func (t *Txn) InsertDocument(m *model.Manager, collection string, body []byte, prov codec.Provenance) (uint64, error) {
	if err := t.requireWritable(); err != nil {
		return 0, err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	id, err := m.InsertDocument(collection, body, prov)
	if err != nil {
		return 0, err
	}
	t.captureLastEntry(m)
	return id, nil
}

// UpdateDocument journals OP_DOC_UPDATE within t.
func (t *Txn) UpdateDocument(m *model.Manager, collection string, blockID uint64, body []byte, prov codec.Provenance) error {
	if err := t.requireWritable(); err != nil {
		return err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	if err := m.UpdateDocument(collection, blockID, body, prov); err != nil {
		return err
	}
	t.captureLastEntry(m)
	return nil
}

// DeleteDocument journals OP_DOC_DELETE within t.
func (t *Txn) DeleteDocument(m *model.Manager, collection string, blockID uint64, prov codec.Provenance) error {
	if err := t.requireWritable(); err != nil {
		return err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	if err := m.DeleteDocument(collection, blockID, prov); err != nil {
		return err
	}
	t.captureLastEntry(m)
	return nil
}

// InsertEdge journals OP_EDGE_INSERT within t.
func (t *Txn) InsertEdge(m *model.Manager, collection string, edge model.Edge, prov codec.Provenance) (uint64, error) {
	if err := t.requireWritable(); err != nil {
		return 0, err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	id, err := m.InsertEdge(collection, edge, prov)
	if err != nil {
		return 0, err
	}
	t.captureLastEntry(m)
	return id, nil
}

// DeleteEdge journals OP_EDGE_DELETE within t.
func (t *Txn) DeleteEdge(m *model.Manager, collection string, blockID uint64, prov codec.Provenance) error {
	if err := t.requireWritable(); err != nil {
		return err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	if err := m.DeleteEdge(collection, blockID, prov); err != nil {
		return err
	}
	t.captureLastEntry(m)
	return nil
}

// WriteSchema journals OP_SCHEMA_WRITE within t.
func (t *Txn) WriteSchema(m *model.Manager, collection string, body []byte, prov codec.Provenance) (uint64, error) {
	if err := t.requireWritable(); err != nil {
		return 0, err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	id, err := m.WriteSchema(collection, body, prov)
	if err != nil {
		return 0, err
	}
	t.captureLastEntry(m)
	return id, nil
}

// WriteConstraint journals OP_CONSTRAINT_WRITE within t.
func (t *Txn) WriteConstraint(m *model.Manager, collection string, body []byte, prov codec.Provenance) (uint64, error) {
	if err := t.requireWritable(); err != nil {
		return 0, err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	id, err := m.WriteConstraint(collection, body, prov)
	if err != nil {
		return 0, err
	}
	t.captureLastEntry(m)
	return id, nil
}

// AnnounceMigration journals OP_MIGRATION_ANNOUNCE within t.
func (t *Txn) AnnounceMigration(m *model.Manager, sourceCollection string, targetSchemaBlockID uint64, rewriteRules []byte, prov codec.Provenance) (uint64, error) {
	if err := t.requireWritable(); err != nil {
		return 0, err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	id, err := m.AnnounceMigration(sourceCollection, targetSchemaBlockID, rewriteRules, prov)
	if err != nil {
		return 0, err
	}
	t.captureLastEntry(m)
	return id, nil
}

// AdvanceToShadow journals OP_MIGRATION_SHADOW within t.
func (t *Txn) AdvanceToShadow(m *model.Manager, blockID uint64, prov codec.Provenance) error {
	if err := t.requireWritable(); err != nil {
		return err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	if err := m.AdvanceToShadow(blockID, prov); err != nil {
		return err
	}
	t.captureLastEntry(m)
	return nil
}

// CommitMigration journals OP_MIGRATION_COMMIT within t. The entry is
// irreversible, so a transaction that performs this operation can
// never again be aborted (see Manager.Abort).
func (t *Txn) CommitMigration(m *model.Manager, blockID uint64, prov codec.Provenance) error {
	if err := t.requireWritable(); err != nil {
		return err
	}
	m.BeginTxnScope(t.id)
	defer m.EndTxnScope()
	if err := m.CommitMigration(blockID, prov); err != nil {
		return err
	}
	t.captureLastEntry(m)
	return nil
}
