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

// Package server implements the business logic behind every LSP method
// (spec.md §4.8): it drives the project manager through the ensure-levels
// each method requires and translates backend results to wire shapes.
package server

import (
	"context"
	"strings"
	"sync"

	"github.com/golang/tools/lsp/protocol"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/diagnostics"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/dispatcher"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/project"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

const (
	errEnsureStructure = "failed to ensure module structure"
	errReply           = "failed to reply to request"
	errClose           = "failed to close connection"
	errBackend         = "failed to construct backend"
	errPackageJSON     = "failed to parse package.json"
	errDiagnostics     = "failed to compute diagnostics"
	errDidOpen         = "failed to process didOpen"
	errDidChange       = "failed to process didChange"
	errDidSave         = "failed to process didSave"
	errDidClose        = "failed to process didClose"
	errRequest         = "request failed"
)

// Server services incoming LSP requests (spec.md §4.8).
type Server struct {
	log logging.Logger

	backingFs     afero.Fs
	remote        vfs.RemoteFileSystem
	factory       backend.Factory
	caseSensitive bool

	mu   sync.RWMutex
	conn *jsonrpc2.Conn
	fs   *vfs.FS
	mgr  *project.Manager
	pub  *diagnostics.Publisher
	root uri.URI
}

// Option modifies a Server.
type Option func(*Server)

// WithLogger overrides the Server's logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithBackingFs sets the afero.Fs the IMFS persists its overlay and content
// against; defaults to an OS filesystem.
func WithBackingFs(fs afero.Fs) Option {
	return func(s *Server) {
		s.backingFs = fs
	}
}

// WithRemoteFileSystem sets the collaborator the updater pulls workspace
// content and structure from (spec.md §1).
func WithRemoteFileSystem(remote vfs.RemoteFileSystem) Option {
	return func(s *Server) {
		s.remote = remote
	}
}

// WithBackendFactory sets the factory each Configuration uses to construct
// its analysis backend (spec.md §9 Design Note "Backend abstraction").
func WithBackendFactory(factory backend.Factory) Option {
	return func(s *Server) {
		s.factory = factory
	}
}

// WithCaseSensitive sets the IMFS's path case sensitivity (spec.md §4.1).
func WithCaseSensitive(cs bool) Option {
	return func(s *Server) {
		s.caseSensitive = cs
	}
}

// New constructs a Server. The project manager, IMFS, and diagnostics
// publisher are constructed lazily, once the workspace root is known from
// the client's initialize request.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		log:           logging.NewNopLogger(),
		backingFs:     afero.NewOsFs(),
		caseSensitive: true,
	}
	for _, o := range opts {
		o(s)
	}
	if s.factory == nil {
		return nil, errors.New("server requires a backend factory")
	}
	if s.remote == nil {
		return nil, errors.New("server requires a remote file system")
	}
	return s, nil
}

func (s *Server) manager() *project.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mgr
}

// requireManager returns the project manager, or errUninitialized if
// initialize has not yet run (spec.md §7 "Uninitialized").
func (s *Server) requireManager() (*project.Manager, error) {
	mgr := s.manager()
	if mgr == nil {
		return nil, errUninitialized
	}
	return mgr, nil
}

// Initialize handles calls to initialize (spec.md §4.8): it constructs the
// IMFS, updater, and project manager rooted at the client's workspace root,
// replies immediately with the server's declared capabilities, and begins
// module-structure ensure in the background (spec.md §4.8). The first
// request that actually needs a configuration waits on its own ensure
// call, which observes whatever this background scan has completed by
// then.
func (s *Server) Initialize(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *protocol.InitializeParams) {
	root := uri.FromLsp(lsp.DocumentURI(params.RootURI))

	s.mu.Lock()
	s.conn = conn
	s.root = root
	s.fs = vfs.New(s.backingFs, vfs.WithCaseSensitive(s.caseSensitive))
	updater := vfs.NewUpdater(s.fs, s.remote, s.log)
	s.mgr = project.New(s.fs, updater, s.factory, root, s.log)
	s.pub = diagnostics.New(conn, s.fs, s.log)
	mgr := s.mgr
	s.mu.Unlock()

	go func() {
		_, actx := mgr.NewToken(context.Background())
		if err := mgr.EnsureModuleStructure(actx); err != nil {
			s.log.Debug(errEnsureStructure, "error", err)
		}
	}()

	// spec.md §1 Non-goal: no incremental (range-based) text updates, full
	// document replacements only.
	kind := lsp.TDSKFull
	result := &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync:        &lsp.TextDocumentSyncOptionsOrKind{Kind: &kind},
			HoverProvider:           true,
			DefinitionProvider:      true,
			ReferencesProvider:      true,
			DocumentSymbolProvider:  true,
			WorkspaceSymbolProvider: true,
			CompletionProvider:      &lsp.CompletionOptions{},
		},
	}
	if err := conn.Reply(ctx, id, result); err != nil {
		// Without a reply the client never proceeds past initialize;
		// nothing further can be served on this connection.
		panic(err)
	}
}

// Shutdown handles calls to shutdown (spec.md §4.8): it cancels every
// outstanding ensure and acknowledges.
func (s *Server) Shutdown(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID) {
	if mgr := s.manager(); mgr != nil {
		mgr.Dispose()
	}
	if err := conn.Reply(ctx, id, nil); err != nil {
		s.log.Debug(errReply, "error", err)
	}
}

// Exit handles the exit notification by tearing down the connection
// (spec.md §6 "exit tears down the connection").
func (s *Server) Exit(_ context.Context, conn *jsonrpc2.Conn) {
	if err := conn.Close(); err != nil {
		s.log.Debug(errClose, "error", err)
	}
}

// DidOpen handles calls to textDocument/didOpen. It is a no-op, aside from
// a debug log, if it arrives before initialize has constructed a manager
// (spec.md §7 "Uninitialized").
func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) {
	mgr, err := s.requireManager()
	if err != nil {
		s.log.Debug(errDidOpen, "error", err)
		return
	}
	u := uri.FromLsp(lsp.DocumentURI(params.TextDocument.URI))
	if err := mgr.DidOpen(ctx, u, params.TextDocument.Text); err != nil {
		s.log.Debug(errDidOpen, "uri", u, "error", err)
		return
	}
	s.publishFor(ctx, u)
}

// DidChange handles calls to textDocument/didChange.
func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) {
	mgr, err := s.requireManager()
	if err != nil {
		s.log.Debug(errDidChange, "error", err)
		return
	}
	u := uri.FromLsp(lsp.DocumentURI(params.TextDocument.URI))
	if err := mgr.DidChange(ctx, u, params.ContentChanges); err != nil {
		s.log.Debug(errDidChange, "uri", u, "error", err)
		return
	}
	s.publishFor(ctx, u)
}

// DidSave handles calls to textDocument/didSave.
func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) {
	mgr, err := s.requireManager()
	if err != nil {
		s.log.Debug(errDidSave, "error", err)
		return
	}
	u := uri.FromLsp(lsp.DocumentURI(params.TextDocument.URI))
	mgr.DidSave(u)
	s.publishFor(ctx, u)
}

// DidClose handles calls to textDocument/didClose.
func (s *Server) DidClose(_ context.Context, params *protocol.DidCloseTextDocumentParams) {
	mgr, err := s.requireManager()
	if err != nil {
		s.log.Debug(errDidClose, "error", err)
		return
	}
	u := uri.FromLsp(lsp.DocumentURI(params.TextDocument.URI))
	if err := mgr.DidClose(u); err != nil {
		s.log.Debug(errDidClose, "uri", u, "error", err)
	}
}

// publishFor recomputes and republishes diagnostics for u's owning
// configuration (spec.md §4.9).
func (s *Server) publishFor(ctx context.Context, u uri.URI) {
	mgr := s.manager()
	cfg, err := mgr.GetConfiguration(u)
	if err != nil {
		return
	}
	be, err := cfg.Backend()
	if err != nil {
		s.log.Debug(errBackend, "root", cfg.RootURI(), "error", err)
		return
	}
	var diags []backend.Diagnostic
	for _, file := range be.GetProgram().SourceFiles() {
		fileDiags, derr := be.GetSemanticDiagnostics(file)
		if derr != nil {
			s.log.Debug(errDiagnostics, "file", file, "error", derr)
			continue
		}
		diags = append(diags, fileDiags...)
	}
	s.mu.RLock()
	pub := s.pub
	s.mu.RUnlock()
	pub.Publish(ctx, diags)
}

// reply replies with result, or translates err to a JSON-RPC error
// (spec.md §7).
func (s *Server) reply(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, result interface{}, err error) {
	if err != nil {
		jerr := rpcError(err)
		if jerr.Code != codeCancelled {
			s.log.Debug(errRequest, "error", err)
		}
		if rerr := conn.ReplyWithError(ctx, id, jerr); rerr != nil {
			s.log.Debug(errReply, "error", rerr)
		}
		return
	}
	if rerr := conn.Reply(ctx, id, result); rerr != nil {
		s.log.Debug(errReply, "error", rerr)
	}
}

// configMatchesPackage reports whether the nearest package.json walking up
// from cfg's root declares name (spec.md §4.8 "package constraint").
func (s *Server) configMatchesPackage(cfg *project.Configuration, name string) bool {
	pkg, ok := s.readPackageJSON(cfg)
	if !ok {
		return false
	}
	return pkg.Name == name
}

// packageDescriptorFor builds the package half of a symbol descriptor for
// the configuration owning fileName, from the nearest readable
// package.json walking up from that configuration's root (spec.md §3a).
func (s *Server) packageDescriptorFor(mgr *project.Manager, fileName string) *dispatcher.PackageDescriptor {
	cfg, err := mgr.GetConfiguration(uri.FromPath(fileName, false))
	if err != nil {
		return nil
	}
	pkg, ok := s.readPackageJSON(cfg)
	if !ok || pkg.Name == "" {
		return nil
	}
	return &dispatcher.PackageDescriptor{Name: pkg.Name, Version: pkg.Version, RepoURL: pkg.Repository.URL}
}

// isNodeModulesPath reports whether file lies under a node_modules segment.
func isNodeModulesPath(file string) bool {
	return strings.Contains(file, "/node_modules/")
}
