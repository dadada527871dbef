package model

import (
	"bytes"
	"errors"

	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
)

// recoverEntry is journal.Recover's replay callback during crash
// restart. It distinguishes three cases per entry:
//
//   - still FlagPending: the owning transaction never reached
//     txn_commit before the crash, so its effects must never surface
//     as committed regardless of whether they physically landed.
//   - forward effects already durable: the entry was fully committed
//     and its block-store write completed before the crash; replay it
//     normally.
//   - forward effects missing: the journal entry landed but the
//     effects it describes did not; roll it back the same way a
//     still-pending entry is.
func (m *Manager) recoverEntry(e journal.Entry) error {
	if e.Flags.Has(journal.FlagPending) {
		return m.rollbackUnfinishedEntry(e)
	}
	landed, err := m.forwardEffectsDurable(e)
	if err != nil {
		return err
	}
	if !landed {
		return m.rollbackUnfinishedEntry(e)
	}
	return m.applyEntry(e)
}

// rollbackUnfinishedEntry undoes an entry that never became committed
// history before a crash (FlagPending or effects never landed), then
// marks it uncompleted so later recovery runs and render_journal skip
// it.
func (m *Manager) rollbackUnfinishedEntry(e journal.Entry) error {
	if err := m.rollbackPayloadEffects(inverseOpTypeFor(e.OpType), e.Inverse); err != nil {
		return err
	}
	return m.jrnl.MarkUncompleted(e.Sequence)
}

// readBack classifies what is physically on disk for a block id
// during recovery. A checksum-corrupt block still counts as present:
// the entry's effects landed and then rotted, which is a read-time
// IO_ERROR for the caller that touches it, never a reason to roll the
// entry back (rolling back would overwrite the evidence) or to fail
// recovery outright.
type readBack uint8

const (
	readBackMissing readBack = iota
	readBackCorrupt
	readBackOK
)

func (m *Manager) readBackBlock(blockID uint64) (blockstore.Block, readBack, error) {
	blk, err := m.store.ReadBlock(blockID)
	if err == nil {
		return blk, readBackOK, nil
	}
	if err == blockstore.ErrNotFound {
		return blockstore.Block{}, readBackMissing, nil
	}
	var chkErr *blockstore.ChecksumError
	if errors.As(err, &chkErr) {
		return blockstore.Block{}, readBackCorrupt, nil
	}
	return blockstore.Block{}, readBackMissing, err
}

// forwardEffectsDurable reports whether e's forward payload's
// block-store effect is already physically present, by reading back
// the block(s) it describes and comparing them against what the
// payload says should be there. Collection create/drop carry no
// block of their own (the registry is rebuilt in full by every
// replay), so they are always reported durable.
func (m *Manager) forwardEffectsDurable(e journal.Entry) (bool, error) {
	switch e.OpType {
	case journal.OpCollectionCreate, journal.OpCollectionDrop:
		return true, nil

	case journal.OpDocInsert, journal.OpEdgeInsert:
		var op opDocWrite
		if e.OpType == journal.OpEdgeInsert {
			var edgeOp opEdgeWrite
			if err := codec.Decode(e.Forward, &edgeOp); err != nil {
				return false, err
			}
			op = opDocWrite{Collection: edgeOp.Collection, BlockID: edgeOp.BlockID}
		} else if err := codec.Decode(e.Forward, &op); err != nil {
			return false, err
		}
		_, state, err := m.readBackBlock(op.BlockID)
		return state != readBackMissing, err

	case journal.OpDocUpdate:
		var op opDocWrite
		if err := codec.Decode(e.Forward, &op); err != nil {
			return false, err
		}
		blk, state, err := m.readBackBlock(op.BlockID)
		if err != nil || state != readBackOK {
			return state == readBackCorrupt, err
		}
		return bytes.Equal(blk.Payload, op.Body), nil

	case journal.OpDocDelete, journal.OpEdgeDelete:
		var op opDocDelete
		if err := codec.Decode(e.Forward, &op); err != nil {
			return false, err
		}
		blk, state, err := m.readBackBlock(op.BlockID)
		if err != nil {
			return false, err
		}
		if state != readBackOK {
			// Missing: nothing ever landed, so there is nothing left
			// to roll back to. Corrupt: the bytes are gone either way.
			return true, nil
		}
		return blk.Header.Flags.Has(blockstore.FlagDeleted), nil

	case journal.OpSchemaWrite:
		var op opSchemaWrite
		if err := codec.Decode(e.Forward, &op); err != nil {
			return false, err
		}
		if op.BlockID == 0 {
			return true, nil
		}
		blk, state, err := m.readBackBlock(op.BlockID)
		if err != nil || state != readBackOK {
			return state == readBackCorrupt, err
		}
		return bytes.Equal(blk.Payload, op.Body), nil

	case journal.OpConstraintWrite:
		var op opConstraintWrite
		if err := codec.Decode(e.Forward, &op); err != nil {
			return false, err
		}
		if op.BlockID == 0 {
			return true, nil
		}
		blk, state, err := m.readBackBlock(op.BlockID)
		if err != nil || state != readBackOK {
			return state == readBackCorrupt, err
		}
		return bytes.Equal(blk.Payload, op.Body), nil

	case journal.OpMigrationAnnounce, journal.OpMigrationShadow, journal.OpMigrationCommit:
		var op opMigrationPhase
		if err := codec.Decode(e.Forward, &op); err != nil {
			return false, err
		}
		blk, state, err := m.readBackBlock(op.BlockID)
		if err != nil || state != readBackOK {
			return state == readBackCorrupt, err
		}
		var mig MigrationState
		if err := codec.Decode(blk.Payload, &mig); err != nil {
			return false, nil
		}
		return mig.Phase == op.Phase, nil
	}
	return true, nil
}
