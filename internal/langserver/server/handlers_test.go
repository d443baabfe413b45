package server

import (
	"testing"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/stretchr/testify/assert"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
)

func TestPositionToOffsetRoundTripsWithOffsetToPosition(t *testing.T) {
	text := "const a = 1;\nconst b = 2;\n"
	for _, off := range []int{0, 6, 13, 19, len(text)} {
		pos := offsetToPosition(text, off)
		assert.Equal(t, off, positionToOffset(text, pos))
	}
}

func TestSymbolKindForMapsBackendKinds(t *testing.T) {
	assert.Equal(t, lsp.SKClass, symbolKindFor("class"))
	assert.Equal(t, lsp.SKInterface, symbolKindFor("interface"))
	assert.Equal(t, lsp.SKFunction, symbolKindFor("function"))
	assert.Equal(t, lsp.SKModule, symbolKindFor("module"))
	assert.Equal(t, lsp.SKVariable, symbolKindFor("const"))
}

func TestCompletionKindForMapsBackendKinds(t *testing.T) {
	assert.Equal(t, lsp.CIKClass, completionKindFor("class"))
	assert.Equal(t, lsp.CIKFunction, completionKindFor("method"))
	assert.Equal(t, lsp.CIKVariable, completionKindFor("const"))
}

func TestWalkNavTreeSkipsRootModuleAndPassesContainer(t *testing.T) {
	tree := &backend.NavTree{
		Text: "a.ts",
		Kind: "module",
		Children: []*backend.NavTree{
			{Text: "Foo", Kind: "class", Children: []*backend.NavTree{
				{Text: "bar", Kind: "method"},
			}},
		},
	}
	var visited []string
	var containers []string
	walkNavTree(tree, "", "", func(n *backend.NavTree, containerName string, _ backend.NavTreeKind) {
		visited = append(visited, n.Text)
		containers = append(containers, containerName)
	})
	assert.Equal(t, []string{"Foo", "bar"}, visited)
	assert.Equal(t, []string{"", "Foo"}, containers)
}

func TestIsNodeModulesPath(t *testing.T) {
	assert.True(t, isNodeModulesPath("/ws/node_modules/pkg/index.d.ts"))
	assert.False(t, isNodeModulesPath("/ws/src/index.ts"))
}
