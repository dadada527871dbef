package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// RenderDiagnostic renders CBOR bytes as deterministic diagnostic
// text: map keys sorted by their rendered form, strings quoted, byte
// strings as lowercase hex, integers in decimal, tags as number(content).
// Canonical renders embed this form for payloads that decode as CBOR;
// payloads that do not decode stay raw hex in the caller's output.
func RenderDiagnostic(data []byte) (string, error) {
	v, err := DecodeAny(data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	renderValue(&b, v)
	return b.String(), nil
}

func renderValue(b *strings.Builder, v interface{}) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		fmt.Fprintf(b, "%t", x)
	case string:
		fmt.Fprintf(b, "%q", x)
	case []byte:
		fmt.Fprintf(b, "h'%x'", x)
	case float32:
		fmt.Fprintf(b, "%g", x)
	case float64:
		fmt.Fprintf(b, "%g", x)
	case []interface{}:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			renderValue(b, e)
		}
		b.WriteByte(']')
	case map[interface{}]interface{}:
		renderMap(b, x)
	case map[string]interface{}:
		m := make(map[interface{}]interface{}, len(x))
		for k, val := range x {
			m[k] = val
		}
		renderMap(b, m)
	case cbor.Tag:
		fmt.Fprintf(b, "%d(", x.Number)
		renderValue(b, x.Content)
		b.WriteByte(')')
	default:
		// Integers arrive as int64 or uint64 depending on sign; %d
		// covers both, and %v is the stable fallback for anything the
		// decoder hands back that has no dedicated case.
		fmt.Fprintf(b, "%v", x)
	}
}

func renderMap(b *strings.Builder, m map[interface{}]interface{}) {
	keys := make([]string, 0, len(m))
	byKey := make(map[string]interface{}, len(m))
	for k, val := range m {
		var kb strings.Builder
		renderValue(&kb, k)
		keys = append(keys, kb.String())
		byKey[kb.String()] = val
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		renderValue(b, byKey[k])
	}
	b.WriteByte('}')
}
