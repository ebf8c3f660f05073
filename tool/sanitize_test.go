package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePayloadStripsNestedSecrets(t *testing.T) {
	in := map[string]any{
		"trip": map[string]any{
			"name":         "Lisbon",
			"access_token": "tok_123",
			"rowId":        9,
		},
		"expenses": []any{
			map[string]any{"amount": 10.0, "internal_shard": "s3"},
			map[string]any{"amount": 20.0},
		},
		"count": 2,
	}

	out, ok := SanitizePayload(in).(map[string]any)
	require.True(t, ok)

	trip := out["trip"].(map[string]any)
	assert.Equal(t, "Lisbon", trip["name"])
	assert.NotContains(t, trip, "access_token")
	assert.NotContains(t, trip, "rowId")

	expenses := out["expenses"].([]any)
	first := expenses[0].(map[string]any)
	assert.NotContains(t, first, "internal_shard")
	assert.Equal(t, 10.0, first["amount"])

	assert.Equal(t, 2, out["count"])
}

func TestSanitizePayloadScalarsPassThrough(t *testing.T) {
	assert.Equal(t, "hello", SanitizePayload("hello"))
	assert.Equal(t, 42, SanitizePayload(42))
	assert.Nil(t, SanitizePayload(nil))
}

func TestSanitizePayloadDoesNotMutateInput(t *testing.T) {
	in := map[string]any{"password": "hunter2", "city": "Porto"}
	SanitizePayload(in)
	assert.Contains(t, in, "password", "input map must stay untouched")
}
