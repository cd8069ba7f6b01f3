// Package canon produces RFC 8785 canonical JSON and domain-separated
// digests. Every byte sequence that gets hashed or signed in omnibus
// (action payloads, transfer authorizations, pool identities) goes
// through this package, so encoding here must be fully deterministic.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Marshal encodes v as RFC 8785 canonical JSON.
//
// Accepted value types: string, bool, int, int64, uint64, []any, and
// map[string]any. Floats and nulls are rejected because they have no
// deterministic, range-safe representation. uint64 values above
// math.MaxInt64 are rejected so every encoded integer survives an
// int64 round trip.
//
// Key differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & appear literally)
//  3. Strings are NFC normalized
//  4. U+2028 and U+2029 appear literally, never as escapes
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal is like Marshal but panics on error.
// Use only when the input is statically known to be encodable.
func MustMarshal(v any) []byte {
	data, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func appendValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return appendString(buf, val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case uint64:
		if val > math.MaxInt64 {
			return fmt.Errorf("integer %d exceeds int64 range", val)
		}
		fmt.Fprintf(buf, "%d", val)
		return nil
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any:
		return appendArray(buf, val)
	case map[string]any:
		return appendObject(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func appendArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendValue(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func appendObject(buf *bytes.Buffer, obj map[string]any) error {
	buf.WriteByte('{')
	for i, k := range SortedKeys(obj) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := appendValue(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// appendString encodes a canonical JSON string: NFC normalized, no HTML
// escaping, and U+2028/U+2029 left as literal characters. Only control
// characters (U+0000-U+001F), backslash, and quote are escaped.
func appendString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}

	// json.Encoder appends a trailing newline.
	out := tmp.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}

	// Go's encoder escapes U+2028/U+2029 for JavaScript embedding, which
	// RFC 8785 forbids. Rewrite those escapes back to literal characters.
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators rewrites \u2028 and \u2029 escape sequences to
// their literal characters. A sequence is a real escape only when it is
// preceded by an even number of backslashes; an odd count means the
// leading backslash is itself escaped (the string contained the literal
// text "\u2028"), and the sequence must stay as-is.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if i+6 <= len(data) && bytes.HasPrefix(data[i:], []byte(`\u202`)) && (data[i+5] == '8' || data[i+5] == '9') {
			trailing := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				trailing++
			}
			if trailing%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 6
				continue
			}
		}
		out = append(out, data[i])
		i++
	}
	return out
}

// SortedKeys returns the object's keys in RFC 8785 canonical order.
// Keys are ordered by UTF-16 code units; Go's default string comparison
// orders by UTF-8 bytes, which differs once surrogate pairs appear.
func SortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// All compared units equal, shorter string first.
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
