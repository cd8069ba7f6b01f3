package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	data := []byte(`{"asset":"USDC","amount":100}`)

	h1 := Hash("omnibus/test/v1", data)
	h2 := Hash("omnibus/test/v1", data)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex SHA-256
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte(`{"asset":"USDC"}`)

	h1 := Hash("omnibus/authorization/v1", data)
	h2 := Hash("omnibus/pool/v1", data)

	assert.NotEqual(t, h1, h2, "different domains must produce different digests")
}

func TestHashBoundaryAmbiguity(t *testing.T) {
	// The null separator keeps domain bytes from bleeding into data
	// bytes. Without it these two inputs would collide.
	h1 := Hash("ab", []byte("c"))
	h2 := Hash("a", []byte("bc"))

	assert.NotEqual(t, h1, h2)
}

func TestHashValue(t *testing.T) {
	obj := map[string]any{"b": int64(2), "a": "x"}

	digest, err := HashValue("omnibus/test/v1", obj)
	require.NoError(t, err)

	// Same as hashing the canonical bytes directly.
	canonical, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, Hash("omnibus/test/v1", canonical), digest)
}

func TestHashValueRejectsUnencodable(t *testing.T) {
	_, err := HashValue("omnibus/test/v1", map[string]any{"x": 1.5})
	require.Error(t, err)
}

func TestMustHashValuePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustHashValue("omnibus/test/v1", map[string]any{"x": nil})
	})
}
