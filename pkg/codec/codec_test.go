package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum32CDetectsSingleBitFlip(t *testing.T) {
	data := []byte("lithoglyph block payload")
	sum := Checksum32C(data)
	assert.True(t, VerifyChecksum32C(data, sum))

	corrupted := append([]byte(nil), data...)
	corrupted[0] ^= 0x01
	assert.False(t, VerifyChecksum32C(corrupted, sum))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	prov := Provenance{Actor: "alice", Rationale: "smoke test"}

	data, err := Encode(prov)
	require.NoError(t, err)

	var got Provenance
	require.NoError(t, Decode(data, &got))
	assert.Equal(t, prov, got)
}

func TestEncodeIsCanonicalAndDeterministic(t *testing.T) {
	m := map[string]interface{}{"b": 2, "a": 1, "c": 3}

	first, err := Encode(m)
	require.NoError(t, err)
	second, err := Encode(m)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProvenanceValidateRequiresActorAndRationale(t *testing.T) {
	assert.Error(t, Provenance{}.Validate())
	assert.Error(t, Provenance{Actor: "alice"}.Validate())
	assert.NoError(t, Provenance{Actor: "alice", Rationale: "why"}.Validate())
}

func TestIrreversibleValidateRequiresStory(t *testing.T) {
	assert.Error(t, Irreversible{}.Validate())
	assert.NoError(t, Irreversible{Story: "legacy migration, no inverse defined"}.Validate())
}

func TestDecodeRejectsIndefiniteLength(t *testing.T) {
	// 0x9f = indefinite-length array head; 0xff = break.
	indefArray := []byte{0x9f, 0x01, 0x02, 0xff}

	var v interface{}
	err := Decode(indefArray, &v)
	assert.Error(t, err)
}

func TestRenderDiagnosticSortsKeysAndIsStable(t *testing.T) {
	data, err := Encode(map[string]interface{}{"b": 2, "a": []byte{0xAB}, "c": "x"})
	require.NoError(t, err)

	out, err := RenderDiagnostic(data)
	require.NoError(t, err)
	assert.Equal(t, `{"a": h'ab', "b": 2, "c": "x"}`, out)

	again, err := RenderDiagnostic(data)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRenderDiagnosticRejectsNonCBOR(t *testing.T) {
	_, err := RenderDiagnostic([]byte(`{"title":"x"}`))
	assert.Error(t, err)
}
