package refs

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

// flatResolver resolves any specifier against a root URI, ignoring
// extension/relative-path subtleties: good enough to exercise the
// resolver plumbing without a real module resolution algorithm.
type flatResolver struct {
	root uri.URI
}

func (r flatResolver) Resolve(_ uri.URI, specifier string) (uri.URI, bool) {
	if specifier == "" {
		return "", false
	}
	return r.root.Join(specifier + ".ts"), true
}

func newTestFS(t *testing.T, files map[string]string) *vfs.FS {
	t.Helper()
	backing := afero.NewMemMapFs()
	fs := vfs.New(backing)
	for path, content := range files {
		body := content
		fs.Add(uri.FromPath(path, false), &body)
	}
	return fs
}

func TestReferencedFiles(t *testing.T) {
	root := uri.FromPath("/proj", false)
	files := map[string]string{
		"/proj/a.ts": `import { b } from "./b";
import * as c from "./c";
require("./d");
/// <reference path="./e.ts" />
`,
		"/proj/b.ts.ts": `export const b = 1;`,
	}
	fs := newTestFS(t, files)
	resolver := New(fs, func(uri.URI) ModuleResolver { return flatResolver{root: root} }, nil)

	refs, err := resolver.ReferencedFiles(uri.FromPath("/proj/a.ts", false))
	require.NoError(t, err)
	assert.Len(t, refs, 4)
}

func TestReferencedFilesIsCached(t *testing.T) {
	root := uri.FromPath("/proj", false)
	fs := newTestFS(t, map[string]string{
		"/proj/a.ts": `import { b } from "./b";`,
	})
	calls := 0
	resolverFn := func(uri.URI) ModuleResolver {
		calls++
		return flatResolver{root: root}
	}
	resolver := New(fs, resolverFn, nil)

	u := uri.FromPath("/proj/a.ts", false)
	_, err := resolver.ReferencedFiles(u)
	require.NoError(t, err)
	_, err = resolver.ReferencedFiles(u)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call should hit the cache, not re-resolve")
}

func TestInvalidateReferencedFiles(t *testing.T) {
	fs := newTestFS(t, map[string]string{
		"/proj/a.ts": `import { b } from "./b";`,
	})
	resolver := New(fs, func(uri.URI) ModuleResolver {
		return flatResolver{root: uri.FromPath("/proj", false)}
	}, nil)

	u := uri.FromPath("/proj/a.ts", false)
	_, err := resolver.ReferencedFiles(u)
	require.NoError(t, err)

	resolver.InvalidateReferencedFiles(u)
	resolver.mu.Lock()
	_, cached := resolver.cache[u]
	resolver.mu.Unlock()
	assert.False(t, cached)

	_, err = resolver.ReferencedFiles(u)
	require.NoError(t, err)
	resolver.InvalidateReferencedFiles("")
	resolver.mu.Lock()
	assert.Empty(t, resolver.cache)
	resolver.mu.Unlock()
}

type fakeEnsurer struct {
	fs *vfs.FS
}

func (e fakeEnsurer) Ensure(_ context.Context, u uri.URI) error {
	if e.fs.Has(u) {
		return nil
	}
	return vfs.ErrNotAvailable
}

func TestEnsureReferencedFilesStopsOnCycles(t *testing.T) {
	root := uri.FromPath("/proj", false)
	fs := newTestFS(t, map[string]string{
		"/proj/a.ts": `import { b } from "./b";`,
		"/proj/b.ts": `import { a } from "./a";`,
	})
	resolver := New(fs, func(uri.URI) ModuleResolver {
		return flatResolver{root: root}
	}, nil)

	err := resolver.EnsureReferencedFiles(context.Background(), fakeEnsurer{fs: fs}, uri.FromPath("/proj/a.ts", false), 0)
	assert.NoError(t, err)
}
