package abi

import (
	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/hyperpolymath/lithoglyph/pkg/txn"
)

// opEnvelope is the tagged CBOR shape apply's op_blob decodes into.
// Which fields are meaningful depends on Op; unused fields are simply
// left zero.
type opEnvelope struct {
	Op                  string           `cbor:"op"`
	Collection          string           `cbor:"collection,omitempty"`
	Kind                string           `cbor:"kind,omitempty"`
	BlockID             uint64           `cbor:"block_id,omitempty"`
	Body                []byte           `cbor:"body,omitempty"`
	Edge                *edgeFields      `cbor:"edge,omitempty"`
	TargetSchemaBlockID uint64           `cbor:"target_schema_block_id,omitempty"`
	RewriteRules        []byte           `cbor:"rewrite_rules,omitempty"`
	Provenance          codec.Provenance `cbor:"provenance"`
}

type edgeFields struct {
	FromCollection string `cbor:"from_collection"`
	FromID         string `cbor:"from_id"`
	ToCollection   string `cbor:"to_collection"`
	ToID           string `cbor:"to_id"`
	EdgeType       string `cbor:"edge_type"`
	Properties     []byte `cbor:"properties,omitempty"`
}

// applyResult is the CBOR shape apply returns for result: the specific fields populated depend on which op ran.
type applyResult struct {
	Collection    string `cbor:"collection,omitempty"`
	BlockID       uint64 `cbor:"block_id,omitempty"`
	DocumentCount int    `cbor:"document_count,omitempty"`
}

// applyProvenance is the CBOR shape apply returns for provenance: a
// pointer back to the journal entry and block(s) this operation
// produced.
type applyProvenance struct {
	Sequence      uint64 `cbor:"sequence"`
	AffectedBlock uint64 `cbor:"affected_block,omitempty"`
	Actor         string `cbor:"actor"`
	Rationale     string `cbor:"rationale"`
}

// Apply decodes opBlob and translates it into the matching
// transaction-scoped model operation, returning the CBOR-encoded
// result and provenance blobs.
func Apply(dbHandle, txnHandle string, opBlob []byte) (resultBlob, provenanceBlob []byte, err error) {
	db, t, err := resolveTxn(dbHandle, txnHandle)
	if err != nil {
		return nil, nil, err
	}

	var op opEnvelope
	if decErr := codec.Decode(opBlob, &op); decErr != nil {
		return nil, nil, abierr.Newf(abierr.InvalidArgument, "decode op blob: %v", decErr)
	}

	db.mu.Lock()
	result, applyErr := dispatch(db, t, op)
	if applyErr == nil {
		db.maybeCheckpointLocked()
	}
	db.mu.Unlock()
	if applyErr != nil {
		log.Rejection(db.logger, StatusOf(applyErr).String(), "apply rejected")
		return nil, nil, applyErr
	}

	resultBlob, err = codec.Encode(result)
	if err != nil {
		return nil, nil, abierr.Newf(abierr.Internal, "encode result blob: %v", err)
	}

	prov, ok := lastApplyProvenance(db.model, op.Provenance)
	if !ok {
		// The journal holds no entry to point to.
		return resultBlob, nil, nil
	}
	provenanceBlob, err = codec.Encode(prov)
	if err != nil {
		return nil, nil, abierr.Newf(abierr.Internal, "encode provenance blob: %v", err)
	}
	return resultBlob, provenanceBlob, nil
}

func dispatch(db *database, t *txn.Txn, op opEnvelope) (applyResult, error) {
	switch op.Op {
	case "collection_create":
		kind, kerr := model.ParseKind(op.Kind)
		if kerr != nil {
			return applyResult{}, abierr.New(abierr.InvalidArgument, kerr.Error())
		}
		col, err := t.CreateCollection(db.model, op.Collection, kind, op.Provenance)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: col.Name}, nil

	case "collection_drop":
		if err := t.DropCollection(db.model, op.Collection, op.Provenance); err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection}, nil

	case "doc_insert":
		id, err := t.InsertDocument(db.model, op.Collection, op.Body, op.Provenance)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: id}, nil

	case "doc_update":
		if err := t.UpdateDocument(db.model, op.Collection, op.BlockID, op.Body, op.Provenance); err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: op.BlockID}, nil

	case "doc_delete":
		if err := t.DeleteDocument(db.model, op.Collection, op.BlockID, op.Provenance); err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: op.BlockID}, nil

	case "edge_insert":
		if op.Edge == nil {
			return applyResult{}, abierr.New(abierr.InvalidArgument, "edge_insert requires an edge field")
		}
		e := model.Edge{
			FromCollection: op.Edge.FromCollection,
			FromID:         op.Edge.FromID,
			ToCollection:   op.Edge.ToCollection,
			ToID:           op.Edge.ToID,
			EdgeType:       op.Edge.EdgeType,
			Properties:     op.Edge.Properties,
		}
		id, err := t.InsertEdge(db.model, op.Collection, e, op.Provenance)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: id}, nil

	case "edge_delete":
		if err := t.DeleteEdge(db.model, op.Collection, op.BlockID, op.Provenance); err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: op.BlockID}, nil

	case "schema_write":
		id, err := t.WriteSchema(db.model, op.Collection, op.Body, op.Provenance)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: id}, nil

	case "constraint_write":
		id, err := t.WriteConstraint(db.model, op.Collection, op.Body, op.Provenance)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: id}, nil

	case "migration_announce":
		id, err := t.AnnounceMigration(db.model, op.Collection, op.TargetSchemaBlockID, op.RewriteRules, op.Provenance)
		if err != nil {
			return applyResult{}, err
		}
		return applyResult{Collection: op.Collection, BlockID: id}, nil

	case "migration_shadow":
		if err := t.AdvanceToShadow(db.model, op.BlockID, op.Provenance); err != nil {
			return applyResult{}, err
		}
		return applyResult{BlockID: op.BlockID}, nil

	case "migration_commit":
		if err := t.CommitMigration(db.model, op.BlockID, op.Provenance); err != nil {
			return applyResult{}, err
		}
		return applyResult{BlockID: op.BlockID}, nil

	default:
		return applyResult{}, abierr.Newf(abierr.InvalidArgument, "unknown op type %q", op.Op)
	}
}

// lastApplyProvenance reports the provenance pointer for the newest
// journal entry, which is the one apply's dispatch just wrote (dispatch
// rejects every op in a read_only transaction before this is reached).
// ok is false only when the journal is empty or cannot be read.
func lastApplyProvenance(m *model.Manager, prov codec.Provenance) (applyProvenance, bool) {
	seq := m.Journal().HeadSequence()
	if seq == 0 {
		return applyProvenance{}, false
	}
	entries, err := m.Journal().ReadSince(seq)
	if err != nil || len(entries) == 0 {
		return applyProvenance{}, false
	}
	e := entries[len(entries)-1]
	return applyProvenance{
		Sequence:      e.Sequence,
		AffectedBlock: e.AffectedBlock,
		Actor:         prov.Actor,
		Rationale:     prov.Rationale,
	}, true
}
