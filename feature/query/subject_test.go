package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSubjectID(t *testing.T) {
	assert.Equal(t, "1-00079", ExtractSubjectID("tell me about subject 1-00079 please"))
	assert.Equal(t, "123-4567", ExtractSubjectID("who is 123-4567?"))
	assert.Empty(t, ExtractSubjectID("how many females are there"))
	assert.Empty(t, ExtractSubjectID("range 1-22"))
	assert.Empty(t, ExtractSubjectID(""))
}

func TestPreferredIDField(t *testing.T) {
	assert.Equal(t, "Blinded ID", PreferredIDField([]string{"Gender", "Blinded ID", "Subject ID"}))
	assert.Equal(t, "Subject ID", PreferredIDField([]string{"Gender", "Subject ID"}))
	assert.Equal(t, "Sample ID (All)", PreferredIDField([]string{"Sample ID (All)"}))
	assert.Empty(t, PreferredIDField([]string{"Gender"}))
}

func TestAddSubjectIDConstraint(t *testing.T) {
	t.Run("appends to and list", func(t *testing.T) {
		spec := map[string]any{"and": []any{
			map[string]any{"field": "Gender", "op": "eq", "value": "Female"},
		}}
		got := AddSubjectIDConstraint(spec, "Blinded ID", "1-00079")
		children := got["and"].([]any)
		assert.Len(t, children, 2)
		leaf := children[1].(map[string]any)
		assert.Equal(t, "Blinded ID", leaf["field"])
		assert.Equal(t, "1-00079", leaf["value"])
	})

	t.Run("wraps leaf spec", func(t *testing.T) {
		spec := map[string]any{"field": "Gender", "op": "eq", "value": "Female"}
		got := AddSubjectIDConstraint(spec, "Blinded ID", "1-00079")
		children := got["and"].([]any)
		assert.Len(t, children, 2)
	})

	t.Run("idempotent when constraint exists", func(t *testing.T) {
		spec := map[string]any{"and": []any{
			map[string]any{"field": "Blinded ID", "op": "eq", "value": "1-00079"},
		}}
		got := AddSubjectIDConstraint(spec, "Blinded ID", "1-00079")
		assert.Len(t, got["and"].([]any), 1)
	})

	t.Run("detects constraint under not", func(t *testing.T) {
		spec := map[string]any{"not": map[string]any{
			"field": "Blinded ID", "op": "eq", "value": "1-00079",
		}}
		got := AddSubjectIDConstraint(spec, "Blinded ID", "1-00079")
		assert.Equal(t, spec, got)
	})
}
