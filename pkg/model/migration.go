package model

import (
	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
)

// Migration phase names for the three-phase migration lifecycle:
// Announce -> Shadow -> Commit.
const (
	MigrationAnnounce = "announce"
	MigrationShadow   = "shadow"
	MigrationCommit   = "commit"
)

// MigrationState is the decoded form of a MIGRATION block's payload.
type MigrationState struct {
	SourceCollection    string `cbor:"source_collection"`
	TargetSchemaBlockID uint64 `cbor:"target_schema_block_id"`
	Phase               string `cbor:"phase"`
	RewriteRules        []byte `cbor:"rewrite_rules,omitempty"`
}

// AnnounceMigration starts a migration: allocates a MIGRATION block in
// the "announce" phase, carrying the source collection, target
// schema, and rewrite rules.
func (m *Manager) AnnounceMigration(sourceCollection string, targetSchemaBlockID uint64, rewriteRules []byte, prov codec.Provenance) (uint64, error) {
	if _, ok := m.Collection(sourceCollection); !ok {
		return 0, errCollectionNotFound(sourceCollection)
	}

	id, err := m.store.AllocBlock(blockstore.TypeMigration)
	if err != nil {
		return 0, abierr.Newf(abierr.IOError, "alloc migration block: %v", err)
	}

	state := MigrationState{
		SourceCollection:    sourceCollection,
		TargetSchemaBlockID: targetSchemaBlockID,
		Phase:               MigrationAnnounce,
		RewriteRules:        rewriteRules,
	}
	payload, err := codec.Encode(state)
	if err != nil {
		return 0, err
	}

	forward, err := codec.Encode(opMigrationPhase{
		BlockID: id, SourceCollection: sourceCollection,
		TargetSchemaBlockID: targetSchemaBlockID, Phase: MigrationAnnounce, RewriteRules: rewriteRules,
	})
	if err != nil {
		return 0, err
	}
	inverse, err := codec.Encode(opMigrationPhase{BlockID: id, Phase: "withdrawn"})
	if err != nil {
		return 0, err
	}

	_, err = m.commit(journal.OpMigrationAnnounce, id, forward, inverse, prov, func() error {
		return m.store.WriteBlock(id, blockstore.TypeMigration, payload, 0, 0)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AdvanceToShadow transitions a migration from announce to shadow
// phase; the inverse carries the full pre-transition state.
func (m *Manager) AdvanceToShadow(blockID uint64, prov codec.Provenance) error {
	return m.transitionMigration(blockID, MigrationShadow, journal.OpMigrationShadow, prov)
}

// CommitMigration transitions a migration to its commit phase. Commit
// is modeled as irreversible: once a normalization rewrite has been
// applied to live data, undoing it is out of scope for the core.
func (m *Manager) CommitMigration(blockID uint64, prov codec.Provenance) error {
	current, err := m.readMigrationState(blockID)
	if err != nil {
		return err
	}
	current.Phase = MigrationCommit
	payload, err := codec.Encode(current)
	if err != nil {
		return err
	}

	forward, err := codec.Encode(opMigrationPhase{
		BlockID: blockID, SourceCollection: current.SourceCollection,
		TargetSchemaBlockID: current.TargetSchemaBlockID, Phase: MigrationCommit,
	})
	if err != nil {
		return err
	}

	b := m.beginBuilder(journal.OpMigrationCommit, blockID)
	b.SetForward(forward)
	if err := b.SetInverseIrreversible("migration committed: rewrite applied to collection " + current.SourceCollection); err != nil {
		return err
	}
	if err := b.SetProvenance(prov); err != nil {
		m.jrnl.Rollback(b)
		return abierr.New(abierr.InvalidArgument, err.Error())
	}

	seq, err := m.jrnl.Commit(b)
	if err != nil {
		return abierr.Newf(abierr.IOError, "journal commit: %v", err)
	}
	if err := m.store.WriteBlock(blockID, blockstore.TypeMigration, payload, 0, 0); err != nil {
		if markErr := m.jrnl.MarkUncompleted(seq); markErr != nil {
			m.logger.Error().Err(markErr).Msg("failed to mark commit-migration entry uncompleted")
		}
		return abierr.Newf(abierr.IOError, "apply migration commit: %v", err)
	}
	log.Mutation(m.logger, journal.OpMigrationCommit.String(), seq, blockID)
	return nil
}

func (m *Manager) transitionMigration(blockID uint64, phase string, opType journal.OpType, prov codec.Provenance) error {
	current, err := m.readMigrationState(blockID)
	if err != nil {
		return err
	}
	previous := current
	current.Phase = phase
	payload, err := codec.Encode(current)
	if err != nil {
		return err
	}

	forward, err := codec.Encode(opMigrationPhase{
		BlockID: blockID, SourceCollection: current.SourceCollection,
		TargetSchemaBlockID: current.TargetSchemaBlockID, Phase: phase,
	})
	if err != nil {
		return err
	}
	inverse, err := codec.Encode(opMigrationPhase{
		BlockID: blockID, SourceCollection: previous.SourceCollection,
		TargetSchemaBlockID: previous.TargetSchemaBlockID, Phase: previous.Phase,
	})
	if err != nil {
		return err
	}

	_, err = m.commit(opType, blockID, forward, inverse, prov, func() error {
		return m.store.WriteBlock(blockID, blockstore.TypeMigration, payload, 0, 0)
	})
	return err
}

func (m *Manager) readMigrationState(blockID uint64) (MigrationState, error) {
	blk, err := m.store.ReadBlock(blockID)
	if err != nil {
		return MigrationState{}, errBlockNotFound(blockID)
	}
	var state MigrationState
	if err := codec.Decode(blk.Payload, &state); err != nil {
		return MigrationState{}, abierr.Newf(abierr.Internal, "decode migration state: %v", err)
	}
	return state, nil
}

// ReadMigration returns the current decoded state of a migration
// block.
func (m *Manager) ReadMigration(blockID uint64) (MigrationState, error) {
	return m.readMigrationState(blockID)
}
