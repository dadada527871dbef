package proof

import (
	"testing"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refBlob(t *testing.T, proofType uint64, inner interface{}) []byte {
	t.Helper()
	payload, err := codec.Encode(inner)
	require.NoError(t, err)
	blob, err := codec.Encode(codec.ProofRef{ProofType: proofType, Ref: string(payload)})
	require.NoError(t, err)
	return blob
}

func TestVerifyUnknownProofTypeIsNotImplemented(t *testing.T) {
	r := NewRegistry()
	r.InitBuiltins()

	blob := refBlob(t, 999, functionalDependencyProof{})
	_, err := r.Verify(blob)

	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.NotImplemented, abiErr.Status)
}

func TestVerifyFunctionalDependencyAcceptsExhaustiveProof(t *testing.T) {
	r := NewRegistry()
	r.InitBuiltins()

	blob := refBlob(t, TypeFunctionalDependency, functionalDependencyProof{
		Collection:  "widgets",
		Determinant: []string{"sku"},
		Dependent:   []string{"name", "price"},
		Exhaustive:  true,
	})

	verdict, err := r.Verify(blob)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
}

func TestVerifyFunctionalDependencyRejectsWitnessedCounterexample(t *testing.T) {
	r := NewRegistry()
	r.InitBuiltins()

	blob := refBlob(t, TypeFunctionalDependency, functionalDependencyProof{
		Collection:  "widgets",
		Determinant: []string{"sku"},
		Dependent:   []string{"name"},
		Exhaustive:  true,
		Witnesses:   2,
	})

	verdict, err := r.Verify(blob)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Contains(t, verdict.Reason, "counterexample")
}

func TestVerifyNormalizationStepRequiresPreservedDependency(t *testing.T) {
	r := NewRegistry()
	r.InitBuiltins()

	blob := refBlob(t, TypeNormalizationStep, normalizationStepProof{
		SourceCollection: "widgets",
		RewriteRuleCount: 3,
	})

	verdict, err := r.Verify(blob)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Contains(t, verdict.Reason, "dependency")
}

func TestVerifyNormalizationStepAcceptsWellFormedProof(t *testing.T) {
	r := NewRegistry()
	r.InitBuiltins()

	blob := refBlob(t, TypeNormalizationStep, normalizationStepProof{
		SourceCollection:    "widgets",
		TargetSchemaBlockID: 42,
		PreservedDependency: "sku -> name, price",
		RewriteRuleCount:    1,
	})

	verdict, err := r.Verify(blob)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
}

func TestRegisteredReportsBuiltinBindings(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Registered(TypeFunctionalDependency))

	r.InitBuiltins()
	assert.True(t, r.Registered(TypeFunctionalDependency))
	assert.True(t, r.Registered(TypeNormalizationStep))
}
