package model

import "fmt"

// Kind distinguishes document collections from edge collections.
type Kind uint8

const (
	KindDocument Kind = iota
	KindEdge
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindEdge:
		return "edge"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseKind parses the wire string form of Kind used in journal op
// payloads.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "document":
		return KindDocument, nil
	case "edge":
		return KindEdge, nil
	default:
		return 0, fmt.Errorf("model: unknown collection kind %q", s)
	}
}

// Collection is the in-memory representation of a named set of blocks
// of a single kind. Collections themselves have
// no dedicated block type; they exist as a journaled, in-memory-
// indexed entity reconstructed at startup by replaying
// OP_COLLECTION_CREATE/OP_COLLECTION_DROP entries.
type Collection struct {
	Name              string
	Kind              Kind
	SchemaBlockID     uint64 // 0 if unbound
	ConstraintBlockID uint64 // 0 if unbound
	CreatedAt         int64  // wall-clock microseconds

	// blockIDs preserves insertion order; deleted tracks which of those
	// ids have had delete_document/delete_edge applied, so DocumentCount
	// reflects only live blocks.
	blockIDs []uint64
	deleted  map[uint64]bool

	dropped bool // set by drop_collection; reinstated by its inverse
}

func newCollection(name string, kind Kind, createdAt int64) *Collection {
	return &Collection{
		Name:      name,
		Kind:      kind,
		CreatedAt: createdAt,
		deleted:   map[uint64]bool{},
	}
}

// DocumentCount returns the number of live (undeleted) blocks the
// collection owns.
func (c *Collection) DocumentCount() int {
	n := 0
	for _, id := range c.blockIDs {
		if !c.deleted[id] {
			n++
		}
	}
	return n
}

// BlockIDs returns the collection's owned block ids in insertion
// order. The returned slice is a copy; callers must not rely on it
// reflecting later mutations.
func (c *Collection) BlockIDs() []uint64 {
	out := make([]uint64, len(c.blockIDs))
	copy(out, c.blockIDs)
	return out
}

func (c *Collection) addBlock(id uint64) {
	for _, existing := range c.blockIDs {
		if existing == id {
			return
		}
	}
	c.blockIDs = append(c.blockIDs, id)
}

func (c *Collection) markDeleted(id uint64) {
	c.deleted[id] = true
}

func (c *Collection) markLive(id uint64) {
	delete(c.deleted, id)
}
