package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/dispatcher"
)

func TestDescriptorScoreCountsMatchingSpecifiedFields(t *testing.T) {
	query := dispatcher.SymbolDescriptor{Name: "abc", Kind: "const"}
	assert.Equal(t, 2, descriptorScore(query, dispatcher.SymbolDescriptor{Name: "abc", Kind: "const", FilePath: "/ws/a.ts"}))
	assert.Equal(t, 1, descriptorScore(query, dispatcher.SymbolDescriptor{Name: "abc", Kind: "class"}))
	assert.Equal(t, 0, descriptorScore(query, dispatcher.SymbolDescriptor{Name: "def", Kind: "class"}))
}

func TestDescriptorScoreWithNoSpecifiedFieldsIsZero(t *testing.T) {
	assert.Equal(t, 0, descriptorScore(dispatcher.SymbolDescriptor{}, dispatcher.SymbolDescriptor{Name: "abc"}))
}

func TestDescriptorMatchesRequiresAllSpecifiedFieldsEqual(t *testing.T) {
	query := dispatcher.SymbolDescriptor{Name: "abc", Kind: "const"}
	assert.True(t, descriptorMatches(query, dispatcher.SymbolDescriptor{Name: "abc", Kind: "const", FilePath: "/ws/a.ts"}))
	assert.False(t, descriptorMatches(query, dispatcher.SymbolDescriptor{Name: "abc", Kind: "class"}))
}

func TestDescriptorMatchesFilePathBySubstring(t *testing.T) {
	query := dispatcher.SymbolDescriptor{FilePath: "b.ts"}
	assert.True(t, descriptorMatches(query, dispatcher.SymbolDescriptor{FilePath: "/ws/b.ts"}))
	assert.False(t, descriptorMatches(query, dispatcher.SymbolDescriptor{FilePath: "/ws/a.ts"}))
}

func TestOffsetToPositionTracksLines(t *testing.T) {
	text := "const a = 1;\nconst b = 2;"
	pos := offsetToPosition(text, 19)
	assert.Equal(t, 1, pos.Line)
	assert.Equal(t, 6, pos.Character)
}
