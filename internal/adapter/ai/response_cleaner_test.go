package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCleaner_CleanJSONResponse(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean json", `{"confidence": "high"}`, `{"confidence": "high"}`},
		{"markdown fence", "```json\n{\"confidence\": \"high\"}\n```", `{"confidence": "high"}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"chatty prefix and suffix", "Here you go: {\"a\": {\"b\": 2}} hope it helps {x}", `{"a": {"b": 2}}`},
		{"braces inside strings", `{"evidence_text": "uses {curly} and \"quotes\"", "n": 1}`, `{"evidence_text": "uses {curly} and \"quotes\"", "n": 1}`},
		{"apostrophes kept", `{"jd_role": "Engineer's role"}`, `{"jd_role": "Engineer's role"}`},
		{"trailing comma", `{"skills": ["AWS", "Go",], }`, `{"skills": ["AWS", "Go"] }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleaner.CleanJSONResponse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResponseCleaner_Errors(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()
	_, err := cleaner.CleanJSONResponse("I cannot help with that.")
	assert.True(t, errors.Is(err, ErrNoJSONObject))

	_, err = cleaner.CleanJSONResponse(`{"a": 1`)
	assert.True(t, errors.Is(err, ErrNoJSONObject))

	_, err = cleaner.CleanJSONResponse(`{a: 1}`)
	var jerr *JSONValidationError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, `{a: 1}`, jerr.Cleaned)
}
