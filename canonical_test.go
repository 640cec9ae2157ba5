package cloudobjects

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeysDeep(t *testing.T) {
	payload := map[string]any{
		"zeta":  1,
		"alpha": map[string]any{"nested_z": true, "nested_a": false},
	}

	out, err := canonicalJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"nested_a":false,"nested_z":true},"zeta":1}`, string(out))
}

func TestCanonicalJSONOrderIndependent(t *testing.T) {
	first := map[string]any{
		"items": []any{
			map[string]any{"id": 2, "tags": []any{"b", "a"}},
			map[string]any{"id": 1, "tags": []any{"d", "c"}},
		},
		"name": "thing",
	}
	second := map[string]any{
		"name": "thing",
		"items": []any{
			map[string]any{"tags": []any{"c", "d"}, "id": 1},
			map[string]any{"tags": []any{"a", "b"}, "id": 2},
		},
	}

	left, err := canonicalJSON(first)
	require.NoError(t, err)
	right, err := canonicalJSON(second)
	require.NoError(t, err)

	assert.Equal(t, string(left), string(right))
}

func TestCanonicalJSONIdempotent(t *testing.T) {
	payload := map[string]any{
		"list": []any{3, 1, 2},
		"map":  map[string]any{"y": []any{"z", "x"}, "x": 1},
	}

	once, err := canonicalJSON(payload)
	require.NoError(t, err)

	var roundTripped any
	require.NoError(t, json.Unmarshal(once, &roundTripped))

	twice, err := canonicalJSON(roundTripped)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
}

func TestCanonicalJSONScalars(t *testing.T) {
	out, err := canonicalJSON("plain")
	require.NoError(t, err)
	assert.Equal(t, `"plain"`, string(out))
}

func TestCanonicalJSONRejectsUnserializable(t *testing.T) {
	_, err := canonicalJSON(map[string]any{"fn": func() {}})
	assert.Error(t, err)
}
