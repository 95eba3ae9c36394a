package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyengine/pkg/models"
)

func TestParseAtoms(t *testing.T) {
	raw := `[
		{"format": "cloze", "difficulty": 0.4, "body": "The LCM of 4 and 6 is ___ --- 12", "tags": ["lcm"]},
		{"format": "recall", "difficulty": 0.3, "body": "What does LCM stand for? --- least common multiple"}
	]`

	atoms, err := ParseAtoms(raw, "least common multiple", "flashcard")
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	assert.Equal(t, models.FormatCloze, atoms[0].Format)
	assert.Equal(t, "least common multiple", atoms[0].Concept)
	assert.Equal(t, "flashcard", atoms[0].ContentType)
	assert.Equal(t, models.StringList{"lcm"}, atoms[0].Tags)
	assert.InDelta(t, 0.4, atoms[0].Difficulty, 1e-9)
}

func TestParseAtomsToleratesCodeFences(t *testing.T) {
	raw := "```json\n[{\"format\": \"recall\", \"difficulty\": 0.3, \"body\": \"q --- a\"}]\n```"

	atoms, err := ParseAtoms(raw, "fractions", "flashcard")
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, "q --- a", atoms[0].Body)
}

func TestParseAtomsRejectsNonJSON(t *testing.T) {
	_, err := ParseAtoms("Sure! Here are some atoms:", "fractions", "flashcard")
	assert.Error(t, err)
}

func TestParseAtomsNormalizesBadFields(t *testing.T) {
	raw := `[
		{"format": "essay", "difficulty": 7, "body": "q --- a"},
		{"format": "recall", "difficulty": 0.3, "body": "   "}
	]`

	atoms, err := ParseAtoms(raw, "fractions", "flashcard")
	require.NoError(t, err)
	require.Len(t, atoms, 1, "blank bodies are dropped")
	assert.Equal(t, models.FormatRecall, atoms[0].Format, "unknown formats fall back to recall")
	assert.InDelta(t, 0.3, atoms[0].Difficulty, 1e-9, "out-of-range difficulty resets to the default")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)
}
