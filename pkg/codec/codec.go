package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode and decMode are built once at init time and shared by every
// caller; fxamacker/cbor's modes are safe for concurrent use.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	register := func(num uint64, t interface{}) {
		if err := tags.Add(
			cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
			reflect.TypeOf(t),
			num,
		); err != nil {
			panic("codec: tag registration failed: " + err.Error())
		}
	}
	register(TagBlockRef, BlockRef{})
	register(TagDocumentID, DocumentID{})
	register(TagProvenance, Provenance{})
	register(TagPromptScore, PromptScore{})
	register(TagProofRef, ProofRef{})
	register(TagMigrationRef, MigrationRef{})
	register(TagConstraintRef, ConstraintRef{})
	register(TagIrreversible, Irreversible{})

	encOpts := cbor.CanonicalEncOptions()
	em, err := encOpts.EncModeWithTags(tags)
	if err != nil {
		panic("codec: encode mode setup failed: " + err.Error())
	}
	encMode = em

	decOpts := cbor.DecOptions{
		IndefLength: cbor.IndefLengthForbidden,
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	}
	dm, err := decOpts.DecModeWithTags(tags)
	if err != nil {
		panic("codec: decode mode setup failed: " + err.Error())
	}
	decMode = dm
}

// Encode produces the canonical CBOR encoding of v: sorted keys,
// shortest-form numbers, definite-length containers (RFC 8949 §4.2).
func Encode(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decode parses canonical or otherwise valid CBOR into v. Indefinite-
// length items are rejected.
func Decode(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return &DecodeError{Offset: offsetHint(data, err), Err: err}
	}
	return nil
}

// DecodeAny decodes data into a generic value (map[string]interface{},
// []interface{}, or a scalar), the shape model-layer operations and
// the bridge use for untyped CBOR op/result blobs.
func DecodeAny(data []byte) (interface{}, error) {
	var v interface{}
	if err := Decode(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// offsetHint extracts a byte offset from a cbor error when available,
// falling back to the end of the buffer so callers always get a
// usable pointer into the payload.
func offsetHint(data []byte, err error) int {
	type offsetter interface{ Offset() int }
	if oe, ok := err.(offsetter); ok {
		return oe.Offset()
	}
	return len(data)
}
