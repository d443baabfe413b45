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
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

// LocalFileSystem serves workspace content straight off an afero.Fs rooted
// at the workspace directory (spec.md §6a, non-strict mode).
type LocalFileSystem struct {
	fs   afero.Fs
	root string
}

// NewLocalFileSystem returns a RemoteFileSystem backed by fs, rooted at
// root. Passing afero.NewOsFs() serves the real local disk.
func NewLocalFileSystem(fs afero.Fs, root string) *LocalFileSystem {
	return &LocalFileSystem{fs: fs, root: root}
}

// ReadFile implements RemoteFileSystem.
func (l *LocalFileSystem) ReadFile(_ context.Context, u uri.URI) (string, error) {
	body, err := afero.ReadFile(l.fs, u.Filename())
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ListWorkspaceFiles implements RemoteFileSystem, walking the root directory
// and skipping node_modules like the rest of the core does.
func (l *LocalFileSystem) ListWorkspaceFiles(_ context.Context) ([]uri.URI, error) {
	var out []uri.URI
	err := afero.Walk(l.fs, l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		out = append(out, uri.FromPath(path, false))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
