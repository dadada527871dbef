package model

import (
	"errors"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
)

// RevertPending reverses a single pending operation recorded by an
// aborting transaction: it applies the inverse payload's effects
// directly against the block store and in-memory registry, then marks
// the original entry uncompleted so render_journal and replay both
// treat it as never having happened. Unlike the old compensation
// scheme, no new journal entry is written here: the forward entry
// never left FlagPending, so there is nothing "committed" for a
// second entry to compensate.
func (m *Manager) RevertPending(sequence uint64, opType journal.OpType, inversePayload []byte) error {
	if err := m.rollbackPayloadEffects(inverseOpTypeFor(opType), inversePayload); err != nil {
		return abierr.Newf(abierr.Internal, "apply abort rollback for sequence %d: %v", sequence, err)
	}
	if err := m.jrnl.MarkUncompleted(sequence); err != nil {
		m.logger.Error().Err(err).Uint64("sequence", sequence).Msg("failed to mark aborted entry uncompleted")
		return abierr.Newf(abierr.Internal, "mark sequence %d uncompleted: %v", sequence, err)
	}
	return nil
}

// inverseOpTypeFor reports which OpType's payload shape and
// block-store semantics describe opType's inverse. Forward and
// inverse payloads are frequently not shaped alike: a DOC_INSERT's
// inverse is a delete-by-id, not another insert, and an EDGE_INSERT's
// inverse must still be applied against a TypeEdge block rather than
// TypeDocument. Ops whose inverse reuses the forward shape (update,
// schema/constraint write, migration phases) fall through unchanged.
func inverseOpTypeFor(opType journal.OpType) journal.OpType {
	switch opType {
	case journal.OpCollectionCreate:
		return journal.OpCollectionDrop
	case journal.OpCollectionDrop:
		return journal.OpCollectionCreate
	case journal.OpDocInsert:
		return journal.OpDocDelete
	case journal.OpDocDelete:
		return journal.OpDocUpdate
	case journal.OpEdgeInsert:
		return journal.OpEdgeDelete
	case journal.OpEdgeDelete:
		return journal.OpEdgeInsert
	default:
		return opType
	}
}

// rollbackPayloadEffects applies payload via applyPayloadEffects,
// tolerating ErrNotFound and checksum mismatches: an operation whose
// forward effects never durably landed (or landed and then rotted on
// disk) has nothing intact left to undo.
func (m *Manager) rollbackPayloadEffects(opType journal.OpType, payload []byte) error {
	if err := m.applyPayloadEffects(opType, payload); err != nil {
		var chkErr *blockstore.ChecksumError
		if err == blockstore.ErrNotFound || errors.As(err, &chkErr) {
			return nil
		}
		return err
	}
	return nil
}

// applyPayloadEffects interprets a forward-shaped CBOR payload
// according to opType and durably applies its block-store and
// in-memory bookkeeping effects. It underlies RevertPending's
// abort-time rollback and recovery's crash-time rollback and replay.
func (m *Manager) applyPayloadEffects(opType journal.OpType, payload []byte) error {
	switch opType {
	case journal.OpDocInsert, journal.OpDocUpdate:
		var op opDocWrite
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		if err := m.store.WriteBlock(op.BlockID, blockstore.TypeDocument, op.Body, 0, 0); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Collection]; ok {
			col.addBlock(op.BlockID)
			col.markLive(op.BlockID)
		}
		m.mu.Unlock()

	case journal.OpDocDelete:
		var op opDocDelete
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		current, err := m.store.ReadBlock(op.BlockID)
		if err != nil {
			return err
		}
		if err := m.store.WriteBlock(op.BlockID, blockstore.TypeDocument, current.Payload, current.Header.Flags|blockstore.FlagDeleted, current.Header.PrevBlock); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Collection]; ok {
			col.markDeleted(op.BlockID)
		}
		m.mu.Unlock()

	case journal.OpEdgeInsert:
		var op opEdgeWrite
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		if err := m.store.WriteBlock(op.BlockID, blockstore.TypeEdge, op.Payload, 0, 0); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Collection]; ok {
			col.addBlock(op.BlockID)
			col.markLive(op.BlockID)
		}
		m.mu.Unlock()

	case journal.OpEdgeDelete:
		var op opDocDelete
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		current, err := m.store.ReadBlock(op.BlockID)
		if err != nil {
			return err
		}
		if err := m.store.WriteBlock(op.BlockID, blockstore.TypeEdge, current.Payload, current.Header.Flags|blockstore.FlagDeleted, current.Header.PrevBlock); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Collection]; ok {
			col.markDeleted(op.BlockID)
		}
		m.mu.Unlock()

	case journal.OpCollectionCreate:
		var op opCollectionCreate
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		kind, err := ParseKind(op.Kind)
		if err != nil {
			return err
		}
		m.mu.Lock()
		if existing, ok := m.byName[op.Name]; ok {
			existing.dropped = false
		} else {
			col := newCollection(op.Name, kind, 0)
			m.order = append(m.order, col)
			m.byName[op.Name] = col
		}
		m.mu.Unlock()

	case journal.OpCollectionDrop:
		var op opCollectionDrop
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Name]; ok {
			col.dropped = true
		}
		m.mu.Unlock()

	case journal.OpSchemaWrite:
		var op opSchemaWrite
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		if op.BlockID == 0 {
			return nil
		}
		if err := m.store.WriteBlock(op.BlockID, blockstore.TypeSchema, op.Body, 0, 0); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Collection]; ok {
			col.SchemaBlockID = op.BlockID
		}
		m.mu.Unlock()

	case journal.OpConstraintWrite:
		var op opConstraintWrite
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		if op.BlockID == 0 {
			return nil
		}
		if err := m.store.WriteBlock(op.BlockID, blockstore.TypeConstraint, op.Body, 0, 0); err != nil {
			return err
		}
		m.mu.Lock()
		if col, ok := m.byName[op.Collection]; ok {
			col.ConstraintBlockID = op.BlockID
		}
		m.mu.Unlock()

	case journal.OpMigrationAnnounce, journal.OpMigrationShadow, journal.OpMigrationCommit:
		var op opMigrationPhase
		if err := codec.Decode(payload, &op); err != nil {
			return err
		}
		state := MigrationState{
			SourceCollection:    op.SourceCollection,
			TargetSchemaBlockID: op.TargetSchemaBlockID,
			Phase:               op.Phase,
			RewriteRules:        op.RewriteRules,
		}
		enc, err := codec.Encode(state)
		if err != nil {
			return err
		}
		return m.store.WriteBlock(op.BlockID, blockstore.TypeMigration, enc, 0, 0)
	}
	return nil
}

// Store exposes the underlying block store for introspection and the
// bridge's render_block entry point.
func (m *Manager) Store() *blockstore.Store { return m.store }

// Journal exposes the underlying journal for introspection and the
// bridge's render_journal entry point.
func (m *Manager) Journal() *journal.Journal { return m.jrnl }
