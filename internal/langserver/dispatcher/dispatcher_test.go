package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/golang/tools/lsp/protocol"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
)

type recordingServer struct {
	calls []string
}

func (s *recordingServer) Initialize(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *protocol.InitializeParams) {
	s.calls = append(s.calls, "initialize")
}
func (s *recordingServer) Shutdown(context.Context, *jsonrpc2.Conn, jsonrpc2.ID) {
	s.calls = append(s.calls, "shutdown")
}
func (s *recordingServer) Exit(context.Context, *jsonrpc2.Conn) { s.calls = append(s.calls, "exit") }
func (s *recordingServer) Definition(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams) {
	s.calls = append(s.calls, "definition")
}
func (s *recordingServer) Hover(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams) {
	s.calls = append(s.calls, "hover")
}
func (s *recordingServer) References(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.ReferenceParams) {
	s.calls = append(s.calls, "references")
}
func (s *recordingServer) DocumentSymbol(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.DocumentSymbolParams) {
	s.calls = append(s.calls, "documentSymbol")
}
func (s *recordingServer) Completion(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.CompletionParams) {
	s.calls = append(s.calls, "completion")
}
func (s *recordingServer) XDefinition(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams) {
	s.calls = append(s.calls, "xdefinition")
}
func (s *recordingServer) WorkspaceSymbol(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *WorkspaceSymbolParams) {
	s.calls = append(s.calls, "workspaceSymbol")
}
func (s *recordingServer) WorkspaceXReferences(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *XReferencesParams) {
	s.calls = append(s.calls, "workspaceXReferences")
}
func (s *recordingServer) WorkspaceXDependencies(context.Context, *jsonrpc2.Conn, jsonrpc2.ID) {
	s.calls = append(s.calls, "workspaceXDependencies")
}
func (s *recordingServer) WorkspaceXPackages(context.Context, *jsonrpc2.Conn, jsonrpc2.ID) {
	s.calls = append(s.calls, "workspaceXPackages")
}
func (s *recordingServer) DidOpen(context.Context, *protocol.DidOpenTextDocumentParams) {
	s.calls = append(s.calls, "didOpen")
}
func (s *recordingServer) DidChange(context.Context, *protocol.DidChangeTextDocumentParams) {
	s.calls = append(s.calls, "didChange")
}
func (s *recordingServer) DidSave(context.Context, *protocol.DidSaveTextDocumentParams) {
	s.calls = append(s.calls, "didSave")
}
func (s *recordingServer) DidClose(context.Context, *protocol.DidCloseTextDocumentParams) {
	s.calls = append(s.calls, "didClose")
}

type panickingServer struct {
	recordingServer
}

func (s *panickingServer) Hover(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams) {
	panic("boom")
}

func (s *panickingServer) DidSave(context.Context, *protocol.DidSaveTextDocumentParams) {
	panic("boom")
}

func dispatch(t *testing.T, d *Dispatcher, s *recordingServer, method string, params interface{}) {
	t.Helper()
	body, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	raw := json.RawMessage(body)
	d.Dispatch(context.Background(), s, nil, &jsonrpc2.Request{Method: method, Params: &raw})
}

func TestDispatchRoutesEveryMethod(t *testing.T) {
	d := New()
	s := &recordingServer{}

	dispatch(t, d, s, "textDocument/definition", lsp.TextDocumentPositionParams{})
	dispatch(t, d, s, "textDocument/hover", lsp.TextDocumentPositionParams{})
	dispatch(t, d, s, "textDocument/references", lsp.ReferenceParams{})
	dispatch(t, d, s, "textDocument/documentSymbol", lsp.DocumentSymbolParams{})
	dispatch(t, d, s, "textDocument/completion", lsp.CompletionParams{})
	dispatch(t, d, s, "textDocument/xdefinition", lsp.TextDocumentPositionParams{})
	dispatch(t, d, s, "workspace/symbol", WorkspaceSymbolParams{Query: "x"})
	dispatch(t, d, s, "workspace/xreferences", XReferencesParams{})
	dispatch(t, d, s, "workspace/xdependencies", nil)
	dispatch(t, d, s, "workspace/xpackages", nil)
	dispatch(t, d, s, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{})
	dispatch(t, d, s, "textDocument/didChange", protocol.DidChangeTextDocumentParams{})
	dispatch(t, d, s, "textDocument/didSave", protocol.DidSaveTextDocumentParams{})
	dispatch(t, d, s, "textDocument/didClose", protocol.DidCloseTextDocumentParams{})
	dispatch(t, d, s, "shutdown", nil)
	dispatch(t, d, s, "exit", nil)

	assert.Equal(t, []string{
		"definition", "hover", "references", "documentSymbol", "completion", "xdefinition",
		"workspaceSymbol", "workspaceXReferences", "workspaceXDependencies", "workspaceXPackages",
		"didOpen", "didChange", "didSave", "didClose", "shutdown", "exit",
	}, s.calls)
}

func TestDispatchIgnoresUnknownMethod(t *testing.T) {
	d := New()
	s := &recordingServer{}
	dispatch(t, d, s, "textDocument/unknownMethod", nil)
	assert.Empty(t, s.calls)
}

func TestDispatchRecoversPanicFromRequest(t *testing.T) {
	d := New()
	s := &panickingServer{}
	raw := json.RawMessage(`{}`)
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), s, nil, &jsonrpc2.Request{Method: "textDocument/hover", Params: &raw})
	})
}

func TestDispatchRecoversPanicFromNotification(t *testing.T) {
	d := New()
	s := &panickingServer{}
	raw := json.RawMessage(`{}`)
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), s, nil, &jsonrpc2.Request{Method: "textDocument/didSave", Params: &raw, Notif: true})
	})
}

func TestDispatchSkipsOnBadParams(t *testing.T) {
	d := New()
	s := &recordingServer{}
	raw := json.RawMessage(`{"position": "not-an-object"}`)
	d.Dispatch(context.Background(), s, nil, &jsonrpc2.Request{Method: "textDocument/hover", Params: &raw})
	assert.Empty(t, s.calls)
}
