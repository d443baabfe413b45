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

package project

import (
	"strings"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

var resolveSuffixes = []string{"", ".ts", ".tsx", ".d.ts", ".js", ".jsx", "/index.ts", "/index.d.ts", "/index.tsx", "/index.js"}

// moduleResolver is a Node-style module resolver used by the
// referenced-files resolver (spec.md §4.3 "Resolution uses the owning
// configuration's module resolver against the IMFS"). It is deliberately
// simple: the real resolution algorithm (package.json "main"/"types"
// fields, path mapping, etc.) belongs to the embedded analysis backend
// (spec.md §1 Non-goals); this resolver only needs to be good enough to
// drive dependency discovery for ensure_referenced_files.
type moduleResolver struct {
	fs *vfs.FS
}

func (r moduleResolver) Resolve(from uri.URI, specifier string) (uri.URI, bool) {
	if specifier == "" {
		return "", false
	}
	if strings.HasPrefix(specifier, ".") {
		return r.resolveRelative(from.Dir(), specifier)
	}
	return r.resolveNodeModules(from.Dir(), specifier)
}

func (r moduleResolver) resolveRelative(dir uri.URI, specifier string) (uri.URI, bool) {
	return r.tryBase(dir.Join(specifier))
}

func (r moduleResolver) resolveNodeModules(dir uri.URI, specifier string) (uri.URI, bool) {
	for {
		candidate := dir.Join("node_modules/" + specifier)
		if u, ok := r.tryBase(candidate); ok {
			return u, ok
		}
		parent := dir.Dir()
		if parent == dir || parent == "" {
			return "", false
		}
		dir = parent
	}
}

func (r moduleResolver) tryBase(base uri.URI) (uri.URI, bool) {
	for _, suf := range resolveSuffixes {
		candidate := uri.URI(string(base) + suf)
		if r.fs.Has(candidate) || r.fs.FileExists(candidate.Filename()) {
			return candidate, true
		}
	}
	return "", false
}
