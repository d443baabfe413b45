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

// Package refs resolves the set of URIs a source file references via
// imports, requires, or triple-slash directives (spec.md §4.3), and walks
// the transitive closure of those references into the IMFS (spec.md §4.4).
package refs

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/vfs"
)

const defaultMaxDepth = 30

var (
	importRe = regexp.MustCompile(`(?:import\s+(?:[\w*{}\n\r\t, ]+\s+from\s+)?|export\s+(?:[\w*{}\n\r\t, ]+\s+from\s+)?|require\s*\(\s*)['"]([^'"]+)['"]`)
	tripleRe = regexp.MustCompile(`///\s*<reference\s+path\s*=\s*["']([^"']+)["']\s*/?>`)
)

// ModuleResolver resolves a literal module specifier, written in fromURI,
// to an absolute URI. Project configurations each own one, since
// resolution is relative to a sub-project's compiler options (spec.md
// §4.3: "Resolution uses the owning configuration's module resolver").
type ModuleResolver interface {
	Resolve(fromURI uri.URI, specifier string) (uri.URI, bool)
}

// ModuleResolverFor locates the ModuleResolver that owns a given file.
type ModuleResolverFor func(fromURI uri.URI) ModuleResolver

// Resolver computes and memoizes the referenced-file set for each URI.
type Resolver struct {
	fs       *vfs.FS
	resolver ModuleResolverFor
	log      logging.Logger

	mu    sync.Mutex
	cache map[uri.URI][]uri.URI
}

// New constructs a Resolver reading file text from fs and resolving
// specifiers with resolverFor.
func New(fs *vfs.FS, resolverFor ModuleResolverFor, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Resolver{
		fs:       fs,
		resolver: resolverFor,
		log:      log,
		cache:    make(map[uri.URI][]uri.URI),
	}
}

// ReferencedFiles returns the deduplicated set of URIs that u references,
// computing and caching it on first call.
func (r *Resolver) ReferencedFiles(u uri.URI) ([]uri.URI, error) {
	r.mu.Lock()
	if cached, ok := r.cache[u]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	body, err := r.fs.GetContent(u)
	if err != nil {
		return nil, err
	}

	specifiers := extractSpecifiers(body)
	resolve := r.resolver(u)

	seen := map[uri.URI]struct{}{}
	out := make([]uri.URI, 0, len(specifiers))
	for _, spec := range specifiers {
		if resolve == nil {
			continue
		}
		target, ok := resolve.Resolve(u, spec)
		if !ok {
			// unresolved imports are non-fatal: log and omit.
			r.log.Debug("could not resolve import", "from", u, "specifier", spec)
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}

	r.mu.Lock()
	r.cache[u] = out
	r.mu.Unlock()
	return out, nil
}

// InvalidateReferencedFiles drops the cached reference set for u, or every
// cached entry if u is empty.
func (r *Resolver) InvalidateReferencedFiles(u uri.URI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u == "" {
		r.cache = make(map[uri.URI][]uri.URI)
		return
	}
	delete(r.cache, u)
}

// extractSpecifiers scans source text for import/require module
// specifiers and triple-slash reference paths.
func extractSpecifiers(body string) []string {
	var out []string
	for _, m := range importRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	for _, line := range strings.Split(body, "\n") {
		if m := tripleRe.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// Ensurer ensures content is present in the IMFS; implemented by
// vfs.Updater.
type Ensurer interface {
	Ensure(ctx context.Context, u uri.URI) error
}

// EnsureReferencedFiles fetches u, resolves its references, ensures each
// referenced URI is fetched, and recurses up to maxDepth (spec.md §4.4). A
// visited set prevents cycles; depth 0 stops recursion silently; per-file
// failure is logged and does not abort siblings. maxDepth of 0 uses the
// spec default of 30.
func (r *Resolver) EnsureReferencedFiles(ctx context.Context, ensure Ensurer, u uri.URI, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	visited := map[uri.URI]struct{}{}
	return r.ensureReferencedFiles(ctx, ensure, u, maxDepth, visited)
}

func (r *Resolver) ensureReferencedFiles(ctx context.Context, ensure Ensurer, u uri.URI, depth int, visited map[uri.URI]struct{}) error {
	if depth <= 0 {
		return nil
	}
	if _, ok := visited[u]; ok {
		return nil
	}
	visited[u] = struct{}{}

	if err := ensure.Ensure(ctx, u); err != nil {
		r.log.Debug("failed to ensure referenced file", "uri", u, "error", err)
		return nil
	}

	refs, err := r.ReferencedFiles(u)
	if err != nil {
		r.log.Debug("failed to resolve references", "uri", u, "error", err)
		return nil
	}

	for _, ref := range refs {
		if err := r.ensureReferencedFiles(ctx, ensure, ref, depth-1, visited); err != nil {
			r.log.Debug("failed to ensure transitive reference", "uri", ref, "error", err)
		}
	}
	return nil
}
