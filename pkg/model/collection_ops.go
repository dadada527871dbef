package model

import (
	"time"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
)

// CreateCollection registers a new named collection of kind,
// journaling an OP_COLLECTION_CREATE entry whose inverse is
// OP_COLLECTION_DROP.
func (m *Manager) CreateCollection(name string, kind Kind, prov codec.Provenance) (*Collection, error) {
	m.mu.Lock()
	if existing, ok := m.byName[name]; ok && !existing.dropped {
		m.mu.Unlock()
		return nil, errCollectionExists(name)
	}
	m.mu.Unlock()

	forward, err := codec.Encode(opCollectionCreate{Name: name, Kind: kind.String()})
	if err != nil {
		return nil, err
	}
	inverse, err := codec.Encode(opCollectionDrop{Name: name})
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMicro()
	var col *Collection
	_, err = m.commit(journal.OpCollectionCreate, 0, forward, inverse, prov, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.byName[name]; ok && !existing.dropped {
			return errCollectionExists(name)
		}
		col = newCollection(name, kind, now)
		m.order = append(m.order, col)
		m.byName[name] = col
		return nil
	})
	if err != nil {
		return nil, err
	}
	if idxErr := m.store.Index().PutCollection(name, 0); idxErr != nil {
		m.logger.Warn().Err(idxErr).Str("collection", name).Msg("side index write failed; rebuilt from a scan on next open")
	}
	return col, nil
}

// DropCollection journals a drop; the collection's blocks remain on
// disk until an explicit compaction, but the collection becomes invisible to lookups.
func (m *Manager) DropCollection(name string, prov codec.Provenance) error {
	m.mu.RLock()
	col, ok := m.byName[name]
	m.mu.RUnlock()
	if !ok || col.dropped {
		return errCollectionNotFound(name)
	}

	forward, err := codec.Encode(opCollectionDrop{Name: name})
	if err != nil {
		return err
	}
	inverse, err := codec.Encode(opCollectionCreate{Name: name, Kind: col.Kind.String()})
	if err != nil {
		return err
	}

	_, err = m.commit(journal.OpCollectionDrop, 0, forward, inverse, prov, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		col.dropped = true
		return nil
	})
	if err != nil {
		return err
	}
	if idxErr := m.store.Index().DeleteCollection(name); idxErr != nil {
		m.logger.Warn().Err(idxErr).Str("collection", name).Msg("side index delete failed; rebuilt from a scan on next open")
	}
	return nil
}
