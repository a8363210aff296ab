package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/actions/schema"
	"github.com/tasquencer/tasquencer/engine/core"
)

type ticketPayload struct {
	Title    string `json:"title" jsonschema:"required"`
	Priority int    `json:"priority,omitempty"`
}

func TestReflectValidatesAgainstTheStructShape(t *testing.T) {
	s, err := schema.Reflect[ticketPayload]()
	require.NoError(t, err)

	t.Run("Should accept a payload carrying the required field", func(t *testing.T) {
		assert.NoError(t, s.Validate(map[string]any{"title": "ship it"}))
	})

	t.Run("Should reject a payload missing the required field", func(t *testing.T) {
		err := s.Validate(map[string]any{"priority": 1})
		require.Error(t, err)
		assert.Equal(t, core.ErrCodePayloadInvalid, core.CodeOf(err))
	})
}

func TestReflectProducesADocument(t *testing.T) {
	s, err := schema.Reflect[ticketPayload]()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(s.Document(), &doc))
	assert.Equal(t, "object", doc["type"])
}

func TestCompileRejectsAMalformedDocument(t *testing.T) {
	_, err := schema.Compile(json.RawMessage(`{not valid json`))
	assert.Error(t, err)
}

func TestCompileAcceptsAHandWrittenDocument(t *testing.T) {
	s, err := schema.Compile(json.RawMessage(`{
		"type": "object",
		"properties": {"qualified": {"type": "boolean"}},
		"required": ["qualified"]
	}`))
	require.NoError(t, err)
	assert.NoError(t, s.Validate(map[string]any{"qualified": true}))
	assert.Error(t, s.Validate(map[string]any{}))
}

func TestOpenAcceptsAnyPayload(t *testing.T) {
	assert.NoError(t, schema.Open.Validate(map[string]any{"anything": true}))
	assert.NoError(t, schema.Open.Validate(nil))
}
