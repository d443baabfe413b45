package server

import (
	"context"
	"testing"

	"github.com/golang/tools/lsp/protocol"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend/fake"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/project"
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

// newTestServer builds a Server whose manager is already populated, as if
// initialize had already run, without requiring a live jsonrpc2.Conn.
func newTestServer(t *testing.T, files map[string]string) *Server {
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
	mgr := project.New(fs, updater, factory, root, nil)
	require.NoError(t, mgr.EnsureModuleStructure(context.Background()))

	s, err := New(WithRemoteFileSystem(remote), WithBackendFactory(factory))
	require.NoError(t, err)
	s.fs = fs
	s.mgr = mgr
	return s
}

func TestConfigMatchesPackage(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"/ws/package.json": `{"name": "demo-pkg", "version": "1.0.0"}`,
		"/ws/a.ts":         "const abc = 1;",
	})
	cfg, err := s.mgr.GetConfiguration(uri.FromPath("/ws/a.ts", false))
	require.NoError(t, err)
	assert.True(t, s.configMatchesPackage(cfg, "demo-pkg"))
	assert.False(t, s.configMatchesPackage(cfg, "other-pkg"))
}

func TestPackageDescriptorFor(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"/ws/package.json": `{"name": "demo-pkg", "version": "1.0.0", "repository": "git://example.com/demo"}`,
		"/ws/a.ts":         "const abc = 1;",
	})
	desc := s.packageDescriptorFor(s.mgr, "/ws/a.ts")
	require.NotNil(t, desc)
	assert.Equal(t, "demo-pkg", desc.Name)
	assert.Equal(t, "1.0.0", desc.Version)
}

func TestPackageDescriptorForMissingPackageJSON(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"/ws/a.ts": "const abc = 1;",
	})
	assert.Nil(t, s.packageDescriptorFor(s.mgr, "/ws/a.ts"))
}

func TestPackageDescriptorForWalksUpToNearestPackageJSON(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"/ws/package.json":               `{"name": "monorepo-root", "version": "2.0.0"}`,
		"/ws/packages/sub/tsconfig.json": "{}",
		"/ws/packages/sub/a.ts":          "const abc = 1;",
	})
	desc := s.packageDescriptorFor(s.mgr, "/ws/packages/sub/a.ts")
	require.NotNil(t, desc)
	assert.Equal(t, "monorepo-root", desc.Name)
	assert.Equal(t, "2.0.0", desc.Version)
}

func TestRequireManagerBeforeInitialize(t *testing.T) {
	s, err := New(
		WithRemoteFileSystem(fakeRemote{}),
		WithBackendFactory(func(host backend.Host) (backend.Backend, error) { return nil, nil }),
	)
	require.NoError(t, err)
	_, err = s.requireManager()
	assert.ErrorIs(t, err, errUninitialized)
}

func TestNotificationsBeforeInitializeDoNotPanic(t *testing.T) {
	s, err := New(
		WithRemoteFileSystem(fakeRemote{}),
		WithBackendFactory(func(host backend.Host) (backend.Backend, error) { return nil, nil }),
	)
	require.NoError(t, err)

	// requireManager fails before any of these handlers touch params, so
	// zero-value params (no manager to dereference either) are enough to
	// prove the nil-manager guard runs first.
	assert.NotPanics(t, func() {
		s.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{})
		s.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{})
		s.DidSave(context.Background(), &protocol.DidSaveTextDocumentParams{})
		s.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{})
	})
}
