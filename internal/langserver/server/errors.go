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

package server

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/project"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

// JSON-RPC error codes for the kinds spec.md §7 names. Cancelled reuses the
// code the LSP spec itself reserves for request cancellation; the rest are
// server-defined codes just below -32000, inside the JSON-RPC server-error
// range (-32099 to -32000).
const (
	codeCancelled     int64 = -32800
	codeNotAvailable  int64 = -32001
	codeRemote        int64 = -32002
	codeConfigParse   int64 = -32003
	codeUninitialized int64 = -32004
)

// errUninitialized is returned by handlers invoked before initialize has
// constructed the manager (spec.md §7 "Uninitialized").
const errUninitialized = errString("server not yet initialized")

type errString string

func (e errString) Error() string { return string(e) }

// rpcError classifies err into one of spec.md §7's error kinds and
// translates it to a JSON-RPC error. Cancelled errors are the only kind a
// caller is expected to see routinely; the rest are logged by the caller
// before this runs.
func rpcError(err error) *jsonrpc2.Error {
	switch {
	case stderrors.Is(err, project.ErrCancelled), stderrors.Is(err, context.Canceled):
		return &jsonrpc2.Error{Code: codeCancelled, Message: err.Error()}
	case stderrors.Is(err, vfs.ErrNotAvailable):
		return &jsonrpc2.Error{Code: codeNotAvailable, Message: err.Error()}
	case stderrors.Is(err, errUninitialized):
		return &jsonrpc2.Error{Code: codeUninitialized, Message: err.Error()}
	case strings.Contains(err.Error(), string(project.ErrConfigParse)):
		return &jsonrpc2.Error{Code: codeConfigParse, Message: err.Error()}
	default:
		return &jsonrpc2.Error{Code: codeRemote, Message: err.Error()}
	}
}
