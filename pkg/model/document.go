package model

import (
	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
)

// InsertDocument allocates a DOCUMENT block, writes body, and journals
// an OP_DOC_INSERT entry whose inverse is delete-by-id.
func (m *Manager) InsertDocument(collection string, body []byte, prov codec.Provenance) (uint64, error) {
	col, ok := m.Collection(collection)
	if !ok {
		return 0, errCollectionNotFound(collection)
	}
	if col.Kind != KindDocument {
		return 0, errWrongKind(collection, KindDocument)
	}

	id, err := m.store.AllocBlock(blockstore.TypeDocument)
	if err != nil {
		return 0, abierr.Newf(abierr.IOError, "alloc document block: %v", err)
	}

	forward, err := codec.Encode(opDocWrite{Collection: collection, BlockID: id, Body: body})
	if err != nil {
		return 0, err
	}
	inverse, err := codec.Encode(opDocDelete{Collection: collection, BlockID: id})
	if err != nil {
		return 0, err
	}

	isFirstBlock := len(col.BlockIDs()) == 0
	_, err = m.commit(journal.OpDocInsert, id, forward, inverse, prov, func() error {
		if err := m.store.WriteBlock(id, blockstore.TypeDocument, body, 0, 0); err != nil {
			return err
		}
		m.mu.Lock()
		col.addBlock(id)
		col.markLive(id)
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if isFirstBlock {
		if idxErr := m.store.Index().PutRoot(collection, id); idxErr != nil {
			m.logger.Warn().Err(idxErr).Str("collection", collection).Msg("side index root write failed; rebuilt from a scan on next open")
		}
	}
	return id, nil
}

// UpdateDocument reads the current payload to capture it as the
// inverse, writes the new payload, and journals the change.
func (m *Manager) UpdateDocument(collection string, blockID uint64, body []byte, prov codec.Provenance) error {
	if _, ok := m.Collection(collection); !ok {
		return errCollectionNotFound(collection)
	}

	current, err := m.store.ReadBlock(blockID)
	if err != nil {
		return abierr.Newf(abierr.NotFound, "read document %d: %v", blockID, err).WithBlockRefs(blockID)
	}

	forward, err := codec.Encode(opDocWrite{Collection: collection, BlockID: blockID, Body: body})
	if err != nil {
		return err
	}
	inverse, err := codec.Encode(opDocWrite{Collection: collection, BlockID: blockID, Body: current.Payload})
	if err != nil {
		return err
	}

	_, err = m.commit(journal.OpDocUpdate, blockID, forward, inverse, prov, func() error {
		return m.store.WriteBlock(blockID, blockstore.TypeDocument, body, current.Header.Flags, current.Header.PrevBlock)
	})
	return err
}

// DeleteDocument marks blockID deleted; the inverse carries the full
// pre-image so a later abort or compensating entry can restore it.
func (m *Manager) DeleteDocument(collection string, blockID uint64, prov codec.Provenance) error {
	col, ok := m.Collection(collection)
	if !ok {
		return errCollectionNotFound(collection)
	}

	current, err := m.store.ReadBlock(blockID)
	if err != nil {
		return errBlockNotFound(blockID)
	}

	forward, err := codec.Encode(opDocDelete{Collection: collection, BlockID: blockID})
	if err != nil {
		return err
	}
	inverse, err := codec.Encode(opDocWrite{Collection: collection, BlockID: blockID, Body: current.Payload})
	if err != nil {
		return err
	}

	_, err = m.commit(journal.OpDocDelete, blockID, forward, inverse, prov, func() error {
		if err := m.store.WriteBlock(blockID, blockstore.TypeDocument, current.Payload, current.Header.Flags|blockstore.FlagDeleted, current.Header.PrevBlock); err != nil {
			return err
		}
		m.mu.Lock()
		col.markDeleted(blockID)
		m.mu.Unlock()
		return nil
	})
	return err
}
