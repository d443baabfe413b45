package handler

import (
	"context"
	"net"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/golang/tools/lsp/protocol"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend/fake"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

type fakeRemote struct {
	files map[string]string
}

func (r fakeRemote) ReadFile(_ context.Context, u uri.URI) (string, error) {
	body, ok := r.files[u.Filename()]
	if !ok {
		return "", vfs.ErrNotAvailable
	}
	return body, nil
}

func (r fakeRemote) ListWorkspaceFiles(_ context.Context) ([]uri.URI, error) {
	var out []uri.URI
	for path := range r.files {
		out = append(out, uri.FromPath(path, false))
	}
	return out, nil
}

// resolveRelative resolves "./foo"/"../foo" specifiers against fromFile's
// directory, appending a .ts extension, enough to exercise the fake
// backend's cross-file definition lookup without a real module resolver.
func resolveRelative(fromFile, specifier string) (string, bool) {
	if !strings.HasPrefix(specifier, ".") {
		return "", false
	}
	target := path.Clean(path.Join(path.Dir(fromFile), specifier))
	if !strings.HasSuffix(target, ".ts") {
		target += ".ts"
	}
	return target, true
}

// dial wires a Handler to one end of an in-memory connection and returns a
// plain jsonrpc2.Conn bound to the other end, standing in for a client.
func dial(t *testing.T, files map[string]string) *jsonrpc2.Conn {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	h, err := New(
		WithRemoteFileSystem(fakeRemote{files: files}),
		WithBackendFactory(func(host backend.Host) (backend.Backend, error) {
			return fake.New(host, resolveRelative), nil
		}),
		WithBackingFs(afero.NewMemMapFs()),
	)
	require.NoError(t, err)

	ctx := context.Background()
	jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}), h)
	client := jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), nil)

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestHandlerInitializeDeclaresCapabilities(t *testing.T) {
	client := dial(t, map[string]string{"/ws/a.ts": "const abc = 1;"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result lsp.InitializeResult
	err := client.Call(ctx, "initialize", protocol.InitializeParams{RootURI: string(uri.FromPath("/ws", false).Lsp())}, &result)
	require.NoError(t, err)
	require.NotNil(t, result.Capabilities.TextDocumentSync)
	require.Equal(t, lsp.TDSKFull, *result.Capabilities.TextDocumentSync.Kind)
	require.True(t, result.Capabilities.DefinitionProvider)
}

func TestHandlerDefinitionAcrossFiles(t *testing.T) {
	client := dial(t, map[string]string{
		"/ws/a.ts": "import { abc } from './b';\nabc;",
		"/ws/b.ts": "export const abc = 1;",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var initResult lsp.InitializeResult
	require.NoError(t, client.Call(ctx, "initialize", protocol.InitializeParams{RootURI: string(uri.FromPath("/ws", false).Lsp())}, &initResult))

	var locs []lsp.Location
	err := client.Call(ctx, "textDocument/definition", lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri.FromPath("/ws/a.ts", false).Lsp()},
		Position:     lsp.Position{Line: 1, Character: 0},
	}, &locs)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, uri.FromPath("/ws/b.ts", false).Lsp(), locs[0].URI)
}
