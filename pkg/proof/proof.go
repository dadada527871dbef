// Package proof implements the proof verifier registry:
// a process-wide, typed dispatch table from proof_type_id to a
// verifier callback. The registry performs no cryptography itself; it
// routes a proof blob to whichever verifier was registered for its
// leading tag and returns that verifier's verdict.
package proof

import (
	"strconv"
	"sync"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/metrics"
)

// Verdict is the result of verifying a single proof blob.
type Verdict struct {
	Valid  bool   `cbor:"valid"`
	Reason string `cbor:"reason,omitempty"`
}

// Verifier checks one proof's payload (the bytes of its ProofRef's Ref
// field) and returns a verdict.
type Verifier func(payload []byte) (Verdict, error)

// Registry is a typed proof_type_id -> Verifier dispatch table. The zero value is usable; InitBuiltins registers
// the built-in verifiers.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[uint64]Verifier
}

// NewRegistry returns an empty registry. Callers typically follow this
// with InitBuiltins to register the built-in verifier types.
func NewRegistry() *Registry {
	return &Registry{verifiers: map[uint64]Verifier{}}
}

// Register binds proofType to v. Registering the same proofType twice
// replaces the previous verifier; this is only safe before the
// registry is shared across goroutines.
func (r *Registry) Register(proofType uint64, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verifiers == nil {
		r.verifiers = map[uint64]Verifier{}
	}
	r.verifiers[proofType] = v
}

// Verify decodes blob's leading ProofRef tag and dispatches to the
// registered verifier. Unknown proof types return ERR_NOT_IMPLEMENTED.
func (r *Registry) Verify(blob []byte) (Verdict, error) {
	var ref codec.ProofRef
	if err := codec.Decode(blob, &ref); err != nil {
		return Verdict{}, abierr.Newf(abierr.InvalidArgument, "decode proof blob: %v", err)
	}

	r.mu.RLock()
	v, ok := r.verifiers[ref.ProofType]
	r.mu.RUnlock()
	proofType := strconv.FormatUint(ref.ProofType, 10)
	if !ok {
		metrics.ProofVerificationsTotal.WithLabelValues(proofType, "not_implemented").Inc()
		return Verdict{}, abierr.Newf(abierr.NotImplemented, "no verifier registered for proof_type %d", ref.ProofType)
	}

	verdict, err := v([]byte(ref.Ref))
	switch {
	case err != nil:
		metrics.ProofVerificationsTotal.WithLabelValues(proofType, "error").Inc()
	case verdict.Valid:
		metrics.ProofVerificationsTotal.WithLabelValues(proofType, "valid").Inc()
	default:
		metrics.ProofVerificationsTotal.WithLabelValues(proofType, "invalid").Inc()
	}
	return verdict, err
}

// Registered reports whether a verifier is bound to proofType, for
// introspection and tests.
func (r *Registry) Registered(proofType uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.verifiers[proofType]
	return ok
}
