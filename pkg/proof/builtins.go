package proof

import (
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
)

// Built-in proof_type_id values.
const (
	TypeFunctionalDependency uint64 = 1
	TypeNormalizationStep    uint64 = 2
)

// functionalDependencyProof asserts that, within a sampled or
// exhaustive scan of Collection, the Determinant fields functionally
// determine the Dependent fields: no two observed rows share a
// Determinant value while differing on Dependent. Witnesses records
// the counterexamples found, if any; an empty Witnesses with
// Exhaustive true is what a verifier treats as proof of the
// dependency.
type functionalDependencyProof struct {
	Collection  string   `cbor:"collection"`
	Determinant []string `cbor:"determinant"`
	Dependent   []string `cbor:"dependent"`
	Exhaustive  bool     `cbor:"exhaustive"`
	Witnesses   int      `cbor:"witnesses"`
}

// normalizationStepProof asserts that rewriting SourceCollection's
// rows under RewriteRules preserves the set of tuples implied by
// PreservedDependency: the normalization step did not introduce an
// update anomaly relative to the dependency it was meant to enforce.
type normalizationStepProof struct {
	SourceCollection    string `cbor:"source_collection"`
	TargetSchemaBlockID uint64 `cbor:"target_schema_block_id"`
	PreservedDependency string `cbor:"preserved_dependency"`
	RewriteRuleCount    int    `cbor:"rewrite_rule_count"`
}

// verifyFunctionalDependency checks the structural shape of a
// functional-dependency proof: the registry performs no cryptography
// and trusts the witness count the proof-producing normalizer
// reports.
func verifyFunctionalDependency(payload []byte) (Verdict, error) {
	var p functionalDependencyProof
	if err := codec.Decode(payload, &p); err != nil {
		return Verdict{}, fmt.Errorf("proof: decode functional-dependency proof: %w", err)
	}
	if p.Collection == "" {
		return Verdict{Valid: false, Reason: "missing collection"}, nil
	}
	if len(p.Determinant) == 0 || len(p.Dependent) == 0 {
		return Verdict{Valid: false, Reason: "determinant and dependent field sets must both be non-empty"}, nil
	}
	if p.Witnesses > 0 {
		return Verdict{Valid: false, Reason: fmt.Sprintf("%d counterexample witness(es) found", p.Witnesses)}, nil
	}
	if !p.Exhaustive {
		return Verdict{Valid: false, Reason: "dependency check was not exhaustive"}, nil
	}
	return Verdict{Valid: true}, nil
}

// verifyNormalizationStep checks that a migration's rewrite carries a
// named preserved dependency and at least one rewrite rule; a step
// with no rules changes nothing and a step with no named dependency
// proves nothing.
func verifyNormalizationStep(payload []byte) (Verdict, error) {
	var p normalizationStepProof
	if err := codec.Decode(payload, &p); err != nil {
		return Verdict{}, fmt.Errorf("proof: decode normalization-step proof: %w", err)
	}
	if p.SourceCollection == "" {
		return Verdict{Valid: false, Reason: "missing source collection"}, nil
	}
	if p.PreservedDependency == "" {
		return Verdict{Valid: false, Reason: "no dependency named as preserved by this step"}, nil
	}
	if p.RewriteRuleCount <= 0 {
		return Verdict{Valid: false, Reason: "rewrite rule count must be positive"}, nil
	}
	return Verdict{Valid: true}, nil
}

// InitBuiltins registers the built-in verifier types. It is idempotent: calling it more than once
// simply re-binds the same verifiers.
func (r *Registry) InitBuiltins() {
	r.Register(TypeFunctionalDependency, verifyFunctionalDependency)
	r.Register(TypeNormalizationStep, verifyNormalizationStep)
}
