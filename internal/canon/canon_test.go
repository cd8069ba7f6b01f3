package canon

import (
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"int64", int64(-100), "-100"},
		{"uint64", uint64(7), "7"},
		{"zero", int64(0), "0"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"min int64", int64(-9223372036854775808), "-9223372036854775808"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"array", []any{int64(1), "two", true}, `[1,"two",true]`},
		{"simple object", map[string]any{"a": int64(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": int64(1),
		"alpha": int64(2),
		"beta":  int64(3),
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{
			"b": int64(1),
			"a": int64(2),
		},
		"a": int64(3),
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000: UTF-16 order differs from UTF-8.
	// U+10000 encodes as the surrogate pair 0xD800 0xDC00, and
	// 0xD800 < 0xE000, so it must sort first.
	obj := map[string]any{
		"\ue000": int64(1),
		"𐀀":      int64(2),
	}

	result, err := Marshal(obj)
	require.NoError(t, err)

	expected := `{"𐀀":2,"` + "\ue000" + `":1}`
	assert.Equal(t, expected, string(result))
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	result, err := Marshal("<swap>&</swap>")
	require.NoError(t, err)
	assert.Equal(t, `"<swap>&</swap>"`, string(result))
	assert.NotContains(t, string(result), `<`)
	assert.NotContains(t, string(result), `>`)
	assert.NotContains(t, string(result), `&`)
}

func TestMarshalRejectsFloats(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"float64", float64(3.14)},
		{"float32", float32(3.14)},
		{"float in object", map[string]any{"x": 1.5}},
		{"float in array", []any{2.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Marshal(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "float")
		})
	}
}

func TestMarshalRejectsNull(t *testing.T) {
	_, err := Marshal(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")

	_, err = Marshal(map[string]any{"x": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")
}

func TestMarshalRejectsUint64Overflow(t *testing.T) {
	_, err := Marshal(uint64(9223372036854775808))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "int64 range")
}

func TestMarshalNFCNormalization(t *testing.T) {
	// "é" as precomposed U+00E9 and as e + combining accent both
	// normalize to the precomposed form.
	composed := "café"
	decomposed := "café"

	result1, err := Marshal(composed)
	require.NoError(t, err)

	result2, err := Marshal(decomposed)
	require.NoError(t, err)

	assert.Equal(t, result1, result2)
}

func TestMarshalLineSeparatorsLiteral(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"U+2028", "a\u2028b", "\"a\u2028b\""},
		{"U+2029", "a\u2029b", "\"a\u2029b\""},
		{"both", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
			assert.NotContains(t, string(result), `\u2028`)
			assert.NotContains(t, string(result), `\u2029`)
		})
	}
}

func TestMarshalLiteralBackslashText(t *testing.T) {
	// A string containing the literal text \u2028 must keep its escaped
	// backslash and must NOT be rewritten to the separator character.
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"literal backslash-u2028", `see \u2028`, `"see \\u2028"`},
		{"literal backslash-u2029", `see \u2029`, `"see \\u2029"`},
		{"mixed literal and actual", "x \\u2028 y \u2028", "\"x \\\\u2028 y \u2028\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestUnmarshalStrict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"float", `{"x":1.5}`, "float"},
		{"exponent", `{"x":1e3}`, "float"},
		{"null", `{"x":null}`, "null"},
		{"trailing data", `{"a":1} {"b":2}`, "trailing"},
		{"overflow", `{"x":92233720368547758080}`, "int64 range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnmarshalObject(t *testing.T) {
	obj, err := UnmarshalObject([]byte(`{"asset":"USDC","amount":100}`))
	require.NoError(t, err)
	assert.Equal(t, "USDC", obj["asset"])
	assert.Equal(t, int64(100), obj["amount"])

	_, err = UnmarshalObject([]byte(`[1,2,3]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON object")
}

func TestMarshalUnmarshalIdempotent(t *testing.T) {
	cases := []any{
		"hello",
		int64(42),
		true,
		[]any{int64(1), "two", false},
		map[string]any{"a": int64(1), "b": "test"},
		map[string]any{
			"nested": map[string]any{
				"array": []any{int64(1), int64(2)},
			},
			"simple": "value",
		},
	}

	for _, original := range cases {
		first, err := Marshal(original)
		require.NoError(t, err)

		decoded, err := Unmarshal(first)
		require.NoError(t, err)

		second, err := Marshal(decoded)
		require.NoError(t, err)

		assert.Equal(t, first, second, "canonical marshaling must be idempotent")
	}
}

func TestMarshalDeterministicAcrossIterations(t *testing.T) {
	// Map iteration order is randomized per run; output must not be.
	obj := map[string]any{
		"token": "USDC", "amount": uint64(250), "nonce": int64(7),
		"deadline": int64(1700000000), "owner": "alice",
	}

	first, err := Marshal(obj)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		next, err := Marshal(obj)
		require.NoError(t, err)
		require.Equal(t, first, next)
	}
}

func TestMarshalAgreesWithJCS(t *testing.T) {
	// Cross-check against an independent RFC 8785 implementation.
	// Inputs are already NFC, so the normalization step is a no-op and
	// both encoders must agree byte for byte.
	cases := []any{
		map[string]any{"zebra": int64(1), "alpha": "a<b&c", "ok": true},
		map[string]any{"nested": map[string]any{"y": []any{int64(1), "two"}, "x": int64(0)}},
		[]any{"<tag>", int64(-5), map[string]any{"k": "v"}},
		map[string]any{"\ue000": int64(1), "𐀀": int64(2)},
	}

	for _, v := range cases {
		ours, err := Marshal(v)
		require.NoError(t, err)

		// Our output is already canonical, so JCS must fix-point it.
		theirs, err := jcs.Transform(ours)
		require.NoError(t, err)
		assert.Equal(t, string(theirs), string(ours))
	}
}

func TestJCSCanonicalizesToSameBytes(t *testing.T) {
	// Non-canonical JSON text and our value encoding converge.
	loose := []byte(`{ "b" : 2,
		"a" : "x" }`)
	theirs, err := jcs.Transform(loose)
	require.NoError(t, err)

	ours, err := Marshal(map[string]any{"a": "x", "b": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, string(theirs), string(ours))
}

func FuzzMarshalIdempotent(f *testing.F) {
	f.Add(`{"a":1,"b":"test"}`)
	f.Add(`[1,2,3]`)
	f.Add(`"hello"`)
	f.Add(`42`)
	f.Add(`true`)
	f.Add(`{"nested":{"deep":{"value":123}}}`)

	f.Fuzz(func(t *testing.T, jsonStr string) {
		val, err := Unmarshal([]byte(jsonStr))
		if err != nil {
			t.Skip() // invalid JSON or contains floats/null
		}

		first, err := Marshal(val)
		if err != nil {
			t.Skip()
		}

		decoded, err := Unmarshal(first)
		require.NoError(t, err)

		second, err := Marshal(decoded)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}
