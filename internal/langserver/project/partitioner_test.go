package project

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

func TestPartitionFindsNestedConfigs(t *testing.T) {
	fs := vfs.New(afero.NewMemMapFs())
	root := uri.FromPath("/ws", false)
	files := []string{
		"/ws/tsconfig.json",
		"/ws/packages/a/tsconfig.json",
		"/ws/packages/b/jsconfig.json",
		"/ws/node_modules/x/tsconfig.json",
	}
	for _, f := range files {
		body := "{}"
		fs.Add(uri.FromPath(f, false), &body)
	}

	dirs := Partition(fs, root)
	require.Len(t, dirs, 3)
	assert.ElementsMatch(t, []uri.URI{
		uri.FromPath("/ws/packages/a", false),
		uri.FromPath("/ws/packages/b", false),
	}, dirs[:2])
	assert.Equal(t, uri.FromPath("/ws", false), dirs[2])
}

func TestPartitionEmptyWhenNoConfigs(t *testing.T) {
	fs := vfs.New(afero.NewMemMapFs())
	root := uri.FromPath("/ws", false)
	body := "const x = 1;"
	fs.Add(uri.FromPath("/ws/a.ts", false), &body)

	dirs := Partition(fs, root)
	assert.Empty(t, dirs)
}
