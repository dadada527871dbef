package model

import (
	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
)

// WriteSchema writes or replaces collection's bound schema block.
// Schema mutations are modeled identically to document writes, just
// on a SCHEMA block.
func (m *Manager) WriteSchema(collection string, body []byte, prov codec.Provenance) (uint64, error) {
	return m.writeTypedBlock(collection, blockstore.TypeSchema, journal.OpSchemaWrite, body, prov, func(col *Collection, id uint64) {
		col.SchemaBlockID = id
	})
}

// WriteConstraint writes or replaces collection's bound constraint
// block.
func (m *Manager) WriteConstraint(collection string, body []byte, prov codec.Provenance) (uint64, error) {
	return m.writeTypedBlock(collection, blockstore.TypeConstraint, journal.OpConstraintWrite, body, prov, func(col *Collection, id uint64) {
		col.ConstraintBlockID = id
	})
}

func (m *Manager) writeTypedBlock(collection string, blockType blockstore.Type, opType journal.OpType, body []byte, prov codec.Provenance, bind func(*Collection, uint64)) (uint64, error) {
	col, ok := m.Collection(collection)
	if !ok {
		return 0, errCollectionNotFound(collection)
	}

	id, err := m.store.AllocBlock(blockType)
	if err != nil {
		return 0, abierr.Newf(abierr.IOError, "alloc %s block: %v", blockType, err)
	}

	var forward, inverse []byte
	switch opType {
	case journal.OpSchemaWrite:
		forward, err = codec.Encode(opSchemaWrite{Collection: collection, BlockID: id, Body: body})
		if err == nil {
			inverse, err = codec.Encode(opSchemaWrite{Collection: collection, BlockID: 0, Body: nil})
		}
	default:
		forward, err = codec.Encode(opConstraintWrite{Collection: collection, BlockID: id, Body: body})
		if err == nil {
			inverse, err = codec.Encode(opConstraintWrite{Collection: collection, BlockID: 0, Body: nil})
		}
	}
	if err != nil {
		return 0, err
	}

	_, err = m.commit(opType, id, forward, inverse, prov, func() error {
		if err := m.store.WriteBlock(id, blockType, body, 0, 0); err != nil {
			return err
		}
		m.mu.Lock()
		bind(col, id)
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if opType == journal.OpSchemaWrite {
		if idxErr := m.store.Index().PutSchemaOwner(id, collection); idxErr != nil {
			m.logger.Warn().Err(idxErr).Str("collection", collection).Msg("side index schema-owner write failed; rebuilt from a scan on next open")
		}
		if idxErr := m.store.Index().PutCollection(collection, id); idxErr != nil {
			m.logger.Warn().Err(idxErr).Str("collection", collection).Msg("side index metadata write failed; rebuilt from a scan on next open")
		}
	}
	return id, nil
}

// ReadSchema reads and returns a schema block's raw CBOR body.
func (m *Manager) ReadSchema(blockID uint64) ([]byte, error) {
	blk, err := m.store.ReadBlock(blockID)
	if err != nil {
		return nil, errBlockNotFound(blockID)
	}
	return blk.Payload, nil
}

// ReadConstraint reads and returns a constraint block's raw CBOR
// body.
func (m *Manager) ReadConstraint(blockID uint64) ([]byte, error) {
	blk, err := m.store.ReadBlock(blockID)
	if err != nil {
		return nil, errBlockNotFound(blockID)
	}
	return blk.Payload, nil
}
