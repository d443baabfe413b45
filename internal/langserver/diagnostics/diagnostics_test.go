package diagnostics

import (
	"context"
	"testing"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
)

type recordingClient struct {
	notified []*lsp.PublishDiagnosticsParams
}

func (c *recordingClient) Notify(_ context.Context, method string, params interface{}) error {
	if method != "textDocument/publishDiagnostics" {
		return nil
	}
	c.notified = append(c.notified, params.(*lsp.PublishDiagnosticsParams))
	return nil
}

type staticText map[string]string

func (s staticText) ReadFile(path string) (string, error) {
	body, ok := s[path]
	if !ok {
		return "", assert.AnError
	}
	return body, nil
}

func TestPublishGroupsByFile(t *testing.T) {
	client := &recordingClient{}
	text := staticText{"/ws/a.ts": "const text: string = 33;"}
	pub := New(client, text, nil)

	pub.Publish(context.Background(), []backend.Diagnostic{
		{File: "/ws/a.ts", Start: 6, Length: 4, Category: backend.CategoryError, Code: 2322, MessageText: "Type '33' is not assignable"},
	})

	require.Len(t, client.notified, 1)
	assert.Equal(t, lsp.DocumentURI("file:///ws/a.ts"), client.notified[0].URI)
	require.Len(t, client.notified[0].Diagnostics, 1)
	assert.Equal(t, lsp.Error, client.notified[0].Diagnostics[0].Severity)
	assert.Equal(t, "ts", client.notified[0].Diagnostics[0].Source)
}

func TestPublishClearsResolvedFiles(t *testing.T) {
	client := &recordingClient{}
	text := staticText{"/ws/a.ts": `const text: string = "33";`}
	pub := New(client, text, nil)

	pub.Publish(context.Background(), []backend.Diagnostic{
		{File: "/ws/a.ts", Start: 0, Length: 1, Category: backend.CategoryError, Code: 2322, MessageText: "bad"},
	})
	client.notified = nil

	pub.Publish(context.Background(), nil)

	require.Len(t, client.notified, 1)
	assert.Equal(t, lsp.DocumentURI("file:///ws/a.ts"), client.notified[0].URI)
	assert.Empty(t, client.notified[0].Diagnostics)
}

func TestPublishDropsDiagnosticsWithoutFile(t *testing.T) {
	client := &recordingClient{}
	pub := New(client, staticText{}, nil)
	pub.Publish(context.Background(), []backend.Diagnostic{{File: "", MessageText: "orphan"}})
	assert.Empty(t, client.notified)
}
