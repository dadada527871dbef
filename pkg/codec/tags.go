package codec

// FormDB CBOR tag numbers, reserved range 39001-39008.
const (
	TagBlockRef      = 39001
	TagDocumentID    = 39002
	TagProvenance    = 39003
	TagPromptScore   = 39004
	TagProofRef      = 39005
	TagMigrationRef  = 39006
	TagConstraintRef = 39007
	TagIrreversible  = 39008
)

// BlockRef is a typed pointer to a block, tagged 39001.
type BlockRef struct {
	BlockID uint64 `cbor:"id"`
}

// DocumentID is a stable document identifier, tagged 39002.
type DocumentID struct {
	Value string `cbor:"value"`
}

// Provenance carries the mandatory actor/rationale pair plus optional
// audit metadata, tagged 39003. Every journal entry's provenance
// payload decodes into this shape.
type Provenance struct {
	Actor      string            `cbor:"actor"`
	Rationale  string            `cbor:"rationale"`
	Source     string            `cbor:"source,omitempty"`
	Timestamp  int64             `cbor:"timestamp,omitempty"`
	Confidence float64           `cbor:"confidence,omitempty"`
	Tags       map[string]string `cbor:"tags,omitempty"`
}

// Validate enforces the mandatory actor/rationale fields.
func (p Provenance) Validate() error {
	if p.Actor == "" {
		return errProvenanceMissingActor
	}
	if p.Rationale == "" {
		return errProvenanceMissingRationale
	}
	return nil
}

// PromptScore is a normalization-proof confidence score, tagged 39004.
type PromptScore struct {
	Value float64 `cbor:"value"`
}

// ProofRef is the envelope handled by the proof verifier registry,
// tagged 39005. ProofType selects the registered verifier; Ref carries
// that verifier's opaque proof payload (interpretation is entirely up
// to the verifier bound to ProofType).
type ProofRef struct {
	ProofType uint64 `cbor:"proof_type"`
	Ref       string `cbor:"ref"`
}

// MigrationRef points at a migration block, tagged 39006.
type MigrationRef struct {
	BlockID uint64 `cbor:"id"`
}

// ConstraintRef points at a constraint block, tagged 39007.
type ConstraintRef struct {
	BlockID uint64 `cbor:"id"`
}

// Irreversible is the sentinel inverse payload for operations with no
// defined undo. Story is mandatory.
type Irreversible struct {
	Story string `cbor:"story"`
}

// Validate enforces that the irreversibility story is non-empty.
func (i Irreversible) Validate() error {
	if i.Story == "" {
		return errIrreversibleMissingStory
	}
	return nil
}
