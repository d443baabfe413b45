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

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

// RemoteFileSystem is the external collaborator the core consults for
// content and structure it does not yet have locally (spec.md §1). Clients
// supply an implementation; the core never reads disk or network directly
// except through this seam.
type RemoteFileSystem interface {
	// ReadFile returns the full content of the file at uri.
	ReadFile(ctx context.Context, uri uri.URI) (string, error)
	// ListWorkspaceFiles enumerates every URI in the remote workspace,
	// without fetching content.
	ListWorkspaceFiles(ctx context.Context) ([]uri.URI, error)
}
