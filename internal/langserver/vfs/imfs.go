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

// Package vfs implements the in-memory file system (IMFS): a sparse tree of
// paths to contents, with an overlay layer for unsaved editor edits, that
// serves as the analysis backend's file host (spec.md §4.1).
package vfs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/tools/lsp/protocol"
	"github.com/golang/tools/span"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

const (
	// ErrNotAvailable is returned by GetContent when no layer (overlay,
	// entry, library) has bytes for the requested URI. Per spec.md §7 this
	// is programmer error: callers are expected to have ensured the file.
	ErrNotAvailable = errString("not available")
)

type errString string

func (e errString) Error() string { return string(e) }

// Entry is the IMFS's record for a single URI.
type Entry struct {
	URI     uri.URI
	Content *string
	Version int
}

// FS is the in-memory file system. It is safe for concurrent use.
type FS struct {
	mu sync.RWMutex

	backing       afero.Fs
	caseSensitive bool

	entries map[uri.URI]*Entry
	overlay map[uri.URI]string
	library map[string]string // basename -> content, shared immutable snapshot

	onAdd []func(uri.URI)
}

// Option configures a new FS.
type Option func(*FS)

// WithLibrary installs the bundled default-library declaration files,
// loaded once at process start (spec.md Design Note "Global mutable state").
func WithLibrary(library map[string]string) Option {
	return func(f *FS) {
		f.library = library
	}
}

// WithCaseSensitive sets the construction-time case-sensitivity flag
// consulted by ReadDirectory (spec.md §4.1).
func WithCaseSensitive(cs bool) Option {
	return func(f *FS) { f.caseSensitive = cs }
}

// New constructs an IMFS backed by the given afero filesystem, addressed by
// absolute file paths. The serve command passes afero.NewMemMapFs() in
// strict (remote) mode and afero.NewOsFs() in non-strict local mode.
func New(backing afero.Fs, opts ...Option) *FS {
	f := &FS{
		backing:       backing,
		caseSensitive: true,
		entries:       make(map[uri.URI]*Entry),
		overlay:       make(map[uri.URI]string),
		library:       make(map[string]string),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// OnAdd registers a subscriber invoked, outside the FS's lock, every time
// Add is called for a URI (spec.md Open Question: "opt-in change emitter").
func (f *FS) OnAdd(fn func(uri.URI)) {
	f.mu.Lock()
	f.onAdd = append(f.onAdd, fn)
	f.mu.Unlock()
}

// Add registers uri in the IMFS. A nil content performs metadata-only
// registration: "known to exist but bytes not yet fetched." Calling Add
// with nil content preserves any existing non-empty content already held
// (spec.md §4.1 contract).
func (f *FS) Add(u uri.URI, content *string) {
	f.mu.Lock()
	e, ok := f.entries[u]
	if !ok {
		e = &Entry{URI: u}
		f.entries[u] = e
	}
	if content != nil {
		e.Content = content
		e.Version++
		_ = afero.WriteFile(f.backing, u.Filename(), []byte(*content), 0o644) //nolint:gosec
	} else if e.Content == nil {
		// metadata-only registration: still make the path discoverable to
		// directory listings.
		_ = f.backing.MkdirAll(filepath.Dir(u.Filename()), 0o755) //nolint:gosec
		if exists, _ := afero.Exists(f.backing, u.Filename()); !exists {
			_ = afero.WriteFile(f.backing, u.Filename(), nil, 0o644) //nolint:gosec
		}
	}
	subs := append([]func(uri.URI){}, f.onAdd...)
	f.mu.Unlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// an add subscriber must never bring down the IMFS.
					_ = r
				}
			}()
			s(u)
		}()
	}
}

// Has reports whether uri has ever been registered via Add.
func (f *FS) Has(u uri.URI) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.entries[u]
	return ok
}

// Iterate returns every URI ever passed to Add, each exactly once.
func (f *FS) Iterate() []uri.URI {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]uri.URI, 0, len(f.entries))
	for u := range f.entries {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetContent returns the current content for uri: the overlay if present,
// else the file entry's content, else the bundled library content, else
// ErrNotAvailable.
func (f *FS) GetContent(u uri.URI) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if body, ok := f.overlay[u]; ok {
		return body, nil
	}
	if e, ok := f.entries[u]; ok && e.Content != nil {
		return *e.Content, nil
	}
	if u.IsLibrary() {
		if body, ok := f.library[libraryBasename(u)]; ok {
			return body, nil
		}
	}
	return "", errors.Wrap(ErrNotAvailable, string(u))
}

// Version returns the file entry's current version, used by the backend
// host's getScriptVersion.
func (f *FS) Version(u uri.URI) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if e, ok := f.entries[u]; ok {
		return e.Version
	}
	return 0
}

// FileExists reports whether path names a file whose content the IMFS
// holds (an overlay, an entry with content, or a bundled library file); a
// metadata-only entry reports false.
func (f *FS) FileExists(path string) bool {
	_, err := f.ReadFile(path)
	return err == nil
}

// ReadFile returns the content of the file at path through the same
// overlay > entry > library precedence as GetContent.
func (f *FS) ReadFile(path string) (string, error) {
	return f.GetContent(uri.FromPath(path, false))
}

// DidOpen installs text as an overlay for uri, shadowing persistent content
// for the duration of the editor session.
func (f *FS) DidOpen(u uri.URI, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay[u] = text
	if e, ok := f.entries[u]; ok {
		e.Version++
	} else {
		f.entries[u] = &Entry{URI: u, Version: 1}
	}
}

// DidChange applies incremental content changes to the overlay for uri,
// the same way the teacher's workspace applies LSP range edits: via
// golang/tools' span-based column mapper, not a naive string splice.
func (f *FS) DidChange(_ context.Context, u uri.URI, changes []protocol.TextDocumentContentChangeEvent) error {
	if len(changes) == 0 {
		return errors.New("no content changes provided")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.overlay[u]
	if !ok {
		if e, eok := f.entries[u]; eok && e.Content != nil {
			content = *e.Content
		} else {
			return fmt.Errorf("could not find corresponding file body for %s", u)
		}
	}
	body := []byte(content)
	for _, c := range changes {
		if c.Range == nil {
			// a full-document replacement.
			body = []byte(c.Text)
			continue
		}
		converter := span.NewContentConverter(u.Filename(), body)
		m := &protocol.ColumnMapper{URI: u.SpanURI(), Converter: converter, Content: body}
		spn, err := m.RangeSpan(*c.Range)
		if err != nil {
			return err
		}
		if !spn.HasOffset() {
			return errors.New("invalid range supplied")
		}
		start, end := spn.Start().Offset(), spn.End().Offset()
		if end < start {
			return errors.New("invalid range supplied")
		}
		var buf bytes.Buffer
		buf.Write(body[:start])
		buf.WriteString(c.Text)
		buf.Write(body[end:])
		body = buf.Bytes()
	}

	f.overlay[u] = string(body)
	if e, eok := f.entries[u]; eok {
		e.Version++
	} else {
		f.entries[u] = &Entry{URI: u, Version: 1}
	}
	return nil
}

// DidSave promotes the overlay into the durable file entry.
func (f *FS) DidSave(u uri.URI) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.overlay[u]
	if !ok {
		return
	}
	e, eok := f.entries[u]
	if !eok {
		e = &Entry{URI: u}
		f.entries[u] = e
	}
	e.Content = &body
	e.Version++
	_ = afero.WriteFile(f.backing, u.Filename(), []byte(body), 0o644) //nolint:gosec
}

// DidClose discards the overlay for uri; subsequent reads fall back to the
// last saved content (spec.md invariant 4).
func (f *FS) DidClose(u uri.URI) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overlay, u)
	if e, ok := f.entries[u]; ok {
		e.Version++
	}
}

// ReadDirectory returns paths under root matching extensions/excludes/
// includes per the wildcard semantics documented in glob.go.
func (f *FS) ReadDirectory(root string, extensions, excludes, includes []string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []string
	root = filepath.Clean(root)
	werr := afero.Walk(f.backing, root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		ok, mErr := matchPatterns(rel, extensions, excludes, includes, f.caseSensitive)
		if mErr != nil {
			return mErr
		}
		if ok {
			out = append(out, filepath.ToSlash(p))
		}
		return nil
	})
	if werr != nil {
		return nil, werr
	}
	sort.Strings(out)
	return out, nil
}

// GetEntries lists the immediate directory and file children of dir.
func (f *FS) GetEntries(dir string) (dirs []string, files []string, err error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	infos, rerr := afero.ReadDir(f.backing, filepath.Clean(dir))
	if rerr != nil {
		return nil, nil, rerr
	}
	for _, info := range infos {
		if info.IsDir() {
			dirs = append(dirs, info.Name())
		} else {
			files = append(files, info.Name())
		}
	}
	return dirs, files, nil
}

func libraryBasename(u uri.URI) string {
	s := string(u)
	idx := strings.LastIndex(s, "#lib/")
	if idx < 0 {
		return ""
	}
	return uri.UnescapeJSONPointerToken(s[idx+len("#lib/"):])
}
