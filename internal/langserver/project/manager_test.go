package project

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend/fake"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

type fakeRemote struct {
	fs *vfs.FS
}

func (r fakeRemote) ReadFile(_ context.Context, u uri.URI) (string, error) {
	return r.fs.ReadFile(u.Filename())
}

func (r fakeRemote) ListWorkspaceFiles(_ context.Context) ([]uri.URI, error) {
	return r.fs.Iterate(), nil
}

func newTestManager(t *testing.T, files map[string]string) (*Manager, *vfs.FS) {
	t.Helper()
	backing := afero.NewMemMapFs()
	fs := vfs.New(backing)
	for path, content := range files {
		body := content
		fs.Add(uri.FromPath(path, false), &body)
	}
	remote := fakeRemote{fs: fs}
	updater := vfs.NewUpdater(fs, remote, nil)
	factory := func(host backend.Host) (backend.Backend, error) {
		return fake.New(host, nil), nil
	}
	root := uri.FromPath("/ws", false)
	m := New(fs, updater, factory, root, nil)
	return m, fs
}

func TestManagerGetConfigurationFallsBackToRoot(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{
		"/ws/a.ts": "const abc = 1;",
	})
	require.NoError(t, m.EnsureModuleStructure(context.Background()))

	cfg, err := m.GetConfiguration(uri.FromPath("/ws/a.ts", false))
	require.NoError(t, err)
	assert.Equal(t, uri.FromPath("/ws", false), cfg.RootURI())
}

func TestManagerGetConfigurationPrefersDeepest(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{
		"/ws/tsconfig.json":     "{}",
		"/ws/pkg/tsconfig.json": "{}",
		"/ws/pkg/a.ts":          "const abc = 1;",
		"/ws/b.ts":              "const def = 1;",
	})
	require.NoError(t, m.EnsureModuleStructure(context.Background()))

	inner, err := m.GetConfiguration(uri.FromPath("/ws/pkg/a.ts", false))
	require.NoError(t, err)
	assert.Equal(t, uri.FromPath("/ws/pkg", false), inner.RootURI())

	outer, err := m.GetConfiguration(uri.FromPath("/ws/b.ts", false))
	require.NoError(t, err)
	assert.Equal(t, uri.FromPath("/ws", false), outer.RootURI())
}

func TestManagerDidOpenAndClose(t *testing.T) {
	m, fs := newTestManager(t, map[string]string{
		"/ws/a.ts": "const abc = 1;",
	})
	require.NoError(t, m.EnsureModuleStructure(context.Background()))

	u := uri.FromPath("/ws/a.ts", false)
	require.NoError(t, m.DidOpen(context.Background(), u, "const abc = 2;"))
	body, err := fs.GetContent(u)
	require.NoError(t, err)
	assert.Equal(t, "const abc = 2;", body)

	require.NoError(t, m.DidClose(u))
	body, err = fs.GetContent(u)
	require.NoError(t, err)
	assert.Equal(t, "const abc = 1;", body)
}

func TestManagerDisposeCancelsTokens(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{"/ws/a.ts": "const abc = 1;"})
	tok, _ := m.NewToken(context.Background())
	assert.NoError(t, tok.Err())
	m.Dispose()
	assert.ErrorIs(t, tok.Err(), ErrCancelled)
}
