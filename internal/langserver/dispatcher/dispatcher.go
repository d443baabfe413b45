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

// Package dispatcher routes JSON-RPC requests and notifications to a
// Server implementation (spec.md §4.8, §6 "Wire protocol").
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/tools/lsp/protocol"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

const (
	errParseParams = "failed to parse request parameters"
	errPanic       = "panic while handling request"

	// codePanic is the JSON-RPC error code a recovered handler panic is
	// reported under: the generic "Server error" reserved range (spec.md
	// §7 "Uncaught exceptions... re-raised as JSON-RPC errors").
	codePanic int64 = -32000
)

// Server is the set of LSP operations a Dispatcher routes to.
type Server interface {
	Initialize(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *protocol.InitializeParams)
	Shutdown(context.Context, *jsonrpc2.Conn, jsonrpc2.ID)
	Exit(context.Context, *jsonrpc2.Conn)

	Definition(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams)
	Hover(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams)
	References(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.ReferenceParams)
	DocumentSymbol(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.DocumentSymbolParams)
	Completion(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.CompletionParams)
	XDefinition(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *lsp.TextDocumentPositionParams)

	WorkspaceSymbol(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *WorkspaceSymbolParams)
	WorkspaceXReferences(context.Context, *jsonrpc2.Conn, jsonrpc2.ID, *XReferencesParams)
	WorkspaceXDependencies(context.Context, *jsonrpc2.Conn, jsonrpc2.ID)
	WorkspaceXPackages(context.Context, *jsonrpc2.Conn, jsonrpc2.ID)

	DidOpen(context.Context, *protocol.DidOpenTextDocumentParams)
	DidChange(context.Context, *protocol.DidChangeTextDocumentParams)
	DidSave(context.Context, *protocol.DidSaveTextDocumentParams)
	DidClose(context.Context, *protocol.DidCloseTextDocumentParams)
}

// WorkspaceSymbolParams is workspace/symbol's query (spec.md §4.8): either
// a free-text query or a structured symbol descriptor.
type WorkspaceSymbolParams struct {
	Query  string            `json:"query"`
	Symbol *SymbolDescriptor `json:"symbol,omitempty"`
	Limit  int               `json:"limit,omitempty"`
}

// XReferencesParams is workspace/xreferences's query (spec.md §4.8).
type XReferencesParams struct {
	Query               SymbolDescriptor `json:"query"`
	DependeePackageName string           `json:"dependeePackageName,omitempty"`
	Limit               int              `json:"limit,omitempty"`
}

// SymbolDescriptor is spec.md §3's symbol descriptor: a tagged record with
// optional fields. Unspecified query fields act as wildcards.
type SymbolDescriptor struct {
	Name          string             `json:"name,omitempty"`
	Kind          string             `json:"kind,omitempty"`
	ContainerName string             `json:"containerName,omitempty"`
	ContainerKind string             `json:"containerKind,omitempty"`
	FilePath      string             `json:"filePath,omitempty"`
	Package       *PackageDescriptor `json:"package,omitempty"`
}

// PackageDescriptor is the package half of a symbol descriptor.
type PackageDescriptor struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	RepoURL string `json:"repoURL,omitempty"`
}

// Dispatcher routes JSON-RPC method names to the matching Server method.
type Dispatcher struct {
	log logging.Logger
}

// New constructs a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{log: logging.NewNopLogger()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Option modifies a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the Dispatcher's logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// Dispatch unmarshals r's parameters into the typed shape each method
// expects and calls the matching Server method (spec.md §4.8). A panic
// from the Server method is recovered, logged with the method and raw
// parameters, and (for requests, which have somewhere to send it)
// re-raised as a JSON-RPC error rather than crashing the connection
// (spec.md §7 "Uncaught exceptions... re-raised as JSON-RPC errors").
func (d *Dispatcher) Dispatch(ctx context.Context, server Server, conn *jsonrpc2.Conn, r *jsonrpc2.Request) { // nolint:gocyclo
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Debug(errPanic, "method", r.Method, "params", rawParams(r), "panic", rec)
			if !r.Notif && conn != nil {
				rerr := &jsonrpc2.Error{Code: codePanic, Message: fmt.Sprintf("%v", rec)}
				if err := conn.ReplyWithError(ctx, r.ID, rerr); err != nil {
					d.log.Debug("failed to reply to request after recovering panic", "method", r.Method, "error", err)
				}
			}
		}
	}()

	switch r.Method {
	case "initialize":
		var params protocol.InitializeParams
		if err := json.Unmarshal(*r.Params, &params); err != nil {
			// Future requests depend on a workspace root; without it there
			// is nothing useful this server instance can do.
			panic(err)
		}
		server.Initialize(ctx, conn, r.ID, &params)
	case "initialized":
		// no response expected
	case "shutdown":
		server.Shutdown(ctx, conn, r.ID)
	case "exit":
		server.Exit(ctx, conn)
	case "textDocument/definition":
		var params lsp.TextDocumentPositionParams
		if !d.decode(r, &params) {
			return
		}
		server.Definition(ctx, conn, r.ID, &params)
	case "textDocument/hover":
		var params lsp.TextDocumentPositionParams
		if !d.decode(r, &params) {
			return
		}
		server.Hover(ctx, conn, r.ID, &params)
	case "textDocument/references":
		var params lsp.ReferenceParams
		if !d.decode(r, &params) {
			return
		}
		server.References(ctx, conn, r.ID, &params)
	case "textDocument/documentSymbol":
		var params lsp.DocumentSymbolParams
		if !d.decode(r, &params) {
			return
		}
		server.DocumentSymbol(ctx, conn, r.ID, &params)
	case "textDocument/completion":
		var params lsp.CompletionParams
		if !d.decode(r, &params) {
			return
		}
		server.Completion(ctx, conn, r.ID, &params)
	case "textDocument/xdefinition":
		var params lsp.TextDocumentPositionParams
		if !d.decode(r, &params) {
			return
		}
		server.XDefinition(ctx, conn, r.ID, &params)
	case "workspace/symbol":
		var params WorkspaceSymbolParams
		if !d.decode(r, &params) {
			return
		}
		server.WorkspaceSymbol(ctx, conn, r.ID, &params)
	case "workspace/xreferences":
		var params XReferencesParams
		if !d.decode(r, &params) {
			return
		}
		server.WorkspaceXReferences(ctx, conn, r.ID, &params)
	case "workspace/xdependencies":
		server.WorkspaceXDependencies(ctx, conn, r.ID)
	case "workspace/xpackages":
		server.WorkspaceXPackages(ctx, conn, r.ID)
	case "textDocument/didOpen":
		var params protocol.DidOpenTextDocumentParams
		if !d.decode(r, &params) {
			return
		}
		server.DidOpen(ctx, &params)
	case "textDocument/didChange":
		var params protocol.DidChangeTextDocumentParams
		if !d.decode(r, &params) {
			return
		}
		server.DidChange(ctx, &params)
	case "textDocument/didSave":
		var params protocol.DidSaveTextDocumentParams
		if !d.decode(r, &params) {
			return
		}
		server.DidSave(ctx, &params)
	case "textDocument/didClose":
		var params protocol.DidCloseTextDocumentParams
		if !d.decode(r, &params) {
			return
		}
		server.DidClose(ctx, &params)
	}
}

// rawParams renders r's raw parameters for a log line, without panicking
// on a nil Params itself.
func rawParams(r *jsonrpc2.Request) string {
	if r.Params == nil {
		return ""
	}
	return string(*r.Params)
}

func (d *Dispatcher) decode(r *jsonrpc2.Request, v interface{}) bool {
	if r.Params == nil {
		return true
	}
	if err := json.Unmarshal(*r.Params, v); err != nil {
		d.log.Debug(errParseParams, "method", r.Method, "error", err)
		return false
	}
	return true
}
