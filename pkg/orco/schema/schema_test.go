package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"key"},
		"properties": map[string]any{
			"key": map[string]any{"type": "string"},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	c := NewCache()
	err := c.Validate(objectSchema(), map[string]any{"key": "k"})
	require.NoError(t, err)
}

func TestValidateRejects(t *testing.T) {
	c := NewCache()
	err := c.Validate(objectSchema(), map[string]any{"key": 5})
	require.Error(t, err)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)
}

func TestValidateNilSchemaAcceptsAnything(t *testing.T) {
	c := NewCache()
	require.NoError(t, c.Validate(nil, map[string]any{"anything": true}))
}

func TestValidateCachesCompiledSchema(t *testing.T) {
	c := NewCache()
	s := objectSchema()
	require.NoError(t, c.Validate(s, map[string]any{"key": "a"}))
	require.NoError(t, c.Validate(s, map[string]any{"key": "b"}))
	assert.Len(t, c.byID, 1)
}
