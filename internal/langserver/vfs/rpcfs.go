// Copyright 2024 The javascript-typescript-langserver Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"context"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

// RPCFileSystem serves workspace content over the same connection the
// client talks LSP on, via the fs/readFile and fs/readDir extension methods
// (spec.md §6a, strict mode). The client, not this process, owns the disk.
//
// The connection is not available until after jsonrpc2.NewConn returns, and
// NewConn needs a Handler that in turn needs this RemoteFileSystem already
// built, so callers construct an RPCFileSystem first and attach the
// connection with SetConn once it exists.
type RPCFileSystem struct {
	conn *jsonrpc2.Conn
}

// NewRPCFileSystem returns a RemoteFileSystem with no connection attached
// yet; SetConn must be called before any request that reaches it (in
// practice, before the client's first request after initialize).
func NewRPCFileSystem() *RPCFileSystem {
	return &RPCFileSystem{}
}

// SetConn attaches the connection to call back on.
func (r *RPCFileSystem) SetConn(conn *jsonrpc2.Conn) {
	r.conn = conn
}

type readFileParams struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
}

// ReadFile implements RemoteFileSystem.
func (r *RPCFileSystem) ReadFile(ctx context.Context, u uri.URI) (string, error) {
	var params readFileParams
	params.TextDocument.URI = string(u.Lsp())
	var content string
	if err := r.conn.Call(ctx, "fs/readFile", params, &content); err != nil {
		return "", err
	}
	return content, nil
}

// ListWorkspaceFiles implements RemoteFileSystem.
func (r *RPCFileSystem) ListWorkspaceFiles(ctx context.Context) ([]uri.URI, error) {
	var uris []string
	if err := r.conn.Call(ctx, "fs/readDir", struct{}{}, &uris); err != nil {
		return nil, err
	}
	out := make([]uri.URI, len(uris))
	for i, u := range uris {
		out[i] = uri.FromLsp(lsp.DocumentURI(u))
	}
	return out, nil
}
