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

// Package handler wires a dispatcher to a server behind jsonrpc2's
// Handler interface.
package handler

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/dispatcher"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/server"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

// Handler implements jsonrpc2.Handler, routing every request and
// notification through a Dispatcher to a Server.
type Handler struct {
	log        logging.Logger
	opts       []server.Option
	dispatcher *dispatcher.Dispatcher
	server     *server.Server
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used by both the dispatcher and the server.
func WithLogger(l logging.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

// WithRemoteFileSystem sets the server's remote collaborator.
func WithRemoteFileSystem(remote vfs.RemoteFileSystem) Option {
	return func(h *Handler) {
		h.opts = append(h.opts, server.WithRemoteFileSystem(remote))
	}
}

// WithBackendFactory sets the factory the server constructs backends with.
func WithBackendFactory(factory backend.Factory) Option {
	return func(h *Handler) {
		h.opts = append(h.opts, server.WithBackendFactory(factory))
	}
}

// WithBackingFs sets the afero.Fs the server's IMFS persists against.
func WithBackingFs(fs afero.Fs) Option {
	return func(h *Handler) {
		h.opts = append(h.opts, server.WithBackingFs(fs))
	}
}

// WithCaseSensitive sets the server IMFS's path case sensitivity.
func WithCaseSensitive(cs bool) Option {
	return func(h *Handler) {
		h.opts = append(h.opts, server.WithCaseSensitive(cs))
	}
}

// New constructs a Handler.
func New(opts ...Option) (*Handler, error) {
	h := &Handler{log: logging.NewNopLogger()}
	for _, o := range opts {
		o(h)
	}
	srvOpts := append(h.opts, server.WithLogger(h.log))
	s, err := server.New(srvOpts...)
	if err != nil {
		return nil, err
	}
	h.server = s
	h.dispatcher = dispatcher.New(dispatcher.WithLogger(h.log))
	return h, nil
}

// Handle implements jsonrpc2.Handler.
func (h *Handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, r *jsonrpc2.Request) {
	h.dispatcher.Dispatch(ctx, h.server, conn, r)
}
