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

// Package fake provides a deterministic, regexp-based stand-in for a real
// TypeScript language service, sufficient to exercise the core's handler
// plumbing (spec.md §8 scenarios S1-S4) without implementing an actual
// parser or type checker (spec.md §1 Non-goals). It is a test double, not
// a production backend.
package fake

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	lsp "github.com/sourcegraph/go-lsp"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
)

var (
	identRe  = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)
	declRe   = regexp.MustCompile(`\b(const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*([^;\n]+)`)
	classRe  = regexp.MustCompile(`\bclass\s+([A-Za-z_$][A-Za-z0-9_$]*)[^{]*\{`)
	importRe = regexp.MustCompile(`import\s*\{([^}]+)\}\s*from\s*['"]([^'"]+)['"]`)
)

// Resolver resolves an import specifier written in fromFile to an absolute
// file name, the same role as refs.ModuleResolver but keyed by plain paths
// rather than uri.URI, since the fake backend works purely in the Host's
// script-name space.
type Resolver func(fromFile, specifier string) (toFile string, ok bool)

type decl struct {
	name     string
	kind     backend.NavTreeKind
	nameSpan lsp.Range
	fullSpan lsp.Range
	value    string
}

// Backend is the fake analysis backend. One is constructed per
// Configuration, mirroring a real backend's lifecycle.
type Backend struct {
	host     backend.Host
	resolve  Resolver
}

// New constructs a fake Backend reading file content through host and
// resolving imports through resolve (nil disables cross-file definitions).
func New(host backend.Host, resolve Resolver) *Backend {
	return &Backend{host: host, resolve: resolve}
}

func (b *Backend) read(fileName string) (string, bool) {
	return b.host.GetScriptSnapshot(fileName)
}

// declsIn parses every top-level const/let/var and class declaration out of
// a file's text, with byte-offset-derived line/character spans.
func declsIn(text string) []decl {
	var out []decl
	for _, m := range declRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[4]:m[5]]
		value := strings.TrimSpace(text[m[6]:m[7]])
		out = append(out, decl{
			name:     name,
			kind:     "const",
			nameSpan: spanFor(text, m[4], m[5]),
			fullSpan: spanFor(text, m[0], m[7]),
			value:    value,
		})
	}
	for _, m := range classRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		// the declaration's full span runs from the keyword through the
		// first closing brace after it; the fake backend does no real brace
		// matching, so a nested block ends the span early.
		end := strings.IndexByte(text[m[0]:], '}')
		fullEnd := m[0]
		if end >= 0 {
			fullEnd = m[0] + end + 1
		} else {
			fullEnd = m[1]
		}
		out = append(out, decl{
			name:     name,
			kind:     "class",
			nameSpan: spanFor(text, m[2], m[3]),
			fullSpan: spanFor(text, m[0], fullEnd),
			value:    "",
		})
	}
	return out
}

// spanFor converts a pair of byte offsets in text to an lsp.Range.
func spanFor(text string, start, end int) lsp.Range {
	return lsp.Range{
		Start: offsetToPosition(text, start),
		End:   offsetToPosition(text, end),
	}
}

func offsetToPosition(text string, offset int) lsp.Position {
	line, lastNL := 0, -1
	for i := 0; i < offset && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			lastNL = i
		}
	}
	return lsp.Position{Line: line, Character: offset - lastNL - 1}
}

// identAt returns the identifier token covering offset, if any.
func identAt(text string, offset int) (string, bool) {
	for _, m := range identRe.FindAllStringIndex(text, -1) {
		if offset >= m[0] && offset < m[1] {
			return text[m[0]:m[1]], true
		}
	}
	return "", false
}

// imports extracts `import {A, B} from "spec"` bindings from text.
func imports(text string) map[string]string {
	out := map[string]string{}
	for _, m := range importRe.FindAllStringSubmatch(text, -1) {
		spec := m[2]
		for _, name := range strings.Split(m[1], ",") {
			out[strings.TrimSpace(name)] = spec
		}
	}
	return out
}

// GetDefinitionAtPosition implements backend.Backend.
func (b *Backend) GetDefinitionAtPosition(fileName string, position int) ([]backend.DefinitionInfo, error) {
	text, ok := b.read(fileName)
	if !ok {
		return nil, fmt.Errorf("fake backend: no snapshot for %s", fileName)
	}
	name, ok := identAt(text, position)
	if !ok {
		return nil, nil
	}
	if d, ok := findDecl(declsIn(text), name); ok {
		return []backend.DefinitionInfo{{
			FileName: fileName,
			TextSpan: d.nameSpan,
			Kind:     d.kind,
			Name:     d.name,
		}}, nil
	}
	if b.resolve != nil {
		if spec, ok := imports(text)[name]; ok {
			if target, rok := b.resolve(fileName, spec); rok {
				if targetText, tok := b.read(target); tok {
					if d, dok := findDecl(declsIn(targetText), name); dok {
						return []backend.DefinitionInfo{{
							FileName: target,
							TextSpan: d.fullSpan,
							Kind:     d.kind,
							Name:     d.name,
						}}, nil
					}
				}
			}
		}
	}
	return nil, nil
}

func findDecl(decls []decl, name string) (decl, bool) {
	for _, d := range decls {
		if d.name == name {
			return d, true
		}
	}
	return decl{}, false
}

// GetQuickInfoAtPosition implements backend.Backend.
func (b *Backend) GetQuickInfoAtPosition(fileName string, position int) (*backend.QuickInfo, error) {
	text, ok := b.read(fileName)
	if !ok {
		return nil, fmt.Errorf("fake backend: no snapshot for %s", fileName)
	}
	name, ok := identAt(text, position)
	if !ok {
		return nil, nil
	}
	d, ok := findDecl(declsIn(text), name)
	if !ok {
		return nil, nil
	}
	display := fmt.Sprintf("const %s: %s", d.name, d.value)
	if d.kind == "class" {
		display = fmt.Sprintf("class %s", d.name)
	}
	return &backend.QuickInfo{
		Kind:         d.kind,
		TextSpan:     d.nameSpan,
		DisplayParts: display,
	}, nil
}

// GetReferencesAtPosition implements backend.Backend.
func (b *Backend) GetReferencesAtPosition(fileName string, position int) ([]backend.ReferenceEntry, error) {
	text, ok := b.read(fileName)
	if !ok {
		return nil, fmt.Errorf("fake backend: no snapshot for %s", fileName)
	}
	name, ok := identAt(text, position)
	if !ok {
		return nil, nil
	}
	var out []backend.ReferenceEntry
	for _, m := range identRe.FindAllStringIndex(text, -1) {
		if text[m[0]:m[1]] == name {
			out = append(out, backend.ReferenceEntry{
				FileName: fileName,
				TextSpan: spanFor(text, m[0], m[1]),
			})
		}
	}
	return out, nil
}

// GetNavigationTree implements backend.Backend.
func (b *Backend) GetNavigationTree(fileName string) (*backend.NavTree, error) {
	text, ok := b.read(fileName)
	if !ok {
		return nil, fmt.Errorf("fake backend: no snapshot for %s", fileName)
	}
	root := &backend.NavTree{Text: fileName, Kind: "module"}
	for _, d := range declsIn(text) {
		root.Children = append(root.Children, &backend.NavTree{
			Text:          d.name,
			Kind:          d.kind,
			Span:          d.fullSpan,
			SelectionSpan: d.nameSpan,
		})
	}
	return root, nil
}

// GetNavigateToItems implements backend.Backend. Not used by the fake
// backend directly; configurations fan out getNavigationTree instead, per
// spec.md §4.8's structured workspace/symbol path. A plain substring
// search over every known file is still offered for the free-text path.
func (b *Backend) GetNavigateToItems(search string) ([]backend.NavigateToItem, error) {
	var out []backend.NavigateToItem
	for _, fileName := range b.host.GetScriptFileNames() {
		text, ok := b.read(fileName)
		if !ok {
			continue
		}
		for _, d := range declsIn(text) {
			if search != "" && !strings.Contains(strings.ToLower(d.name), strings.ToLower(search)) {
				continue
			}
			out = append(out, backend.NavigateToItem{
				Name:     d.name,
				Kind:     d.kind,
				FileName: fileName,
				TextSpan: d.nameSpan,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FileName != out[j].FileName {
			return out[i].FileName < out[j].FileName
		}
		return out[i].TextSpan.Start.Line < out[j].TextSpan.Start.Line
	})
	return out, nil
}

// GetCompletionsAtPosition implements backend.Backend.
func (b *Backend) GetCompletionsAtPosition(fileName string, position int) ([]backend.CompletionEntry, error) {
	text, ok := b.read(fileName)
	if !ok {
		return nil, fmt.Errorf("fake backend: no snapshot for %s", fileName)
	}
	var out []backend.CompletionEntry
	for _, d := range declsIn(text) {
		out = append(out, backend.CompletionEntry{Name: d.name, Kind: d.kind, SortText: d.name})
	}
	return out, nil
}

// GetProgram implements backend.Backend.
func (b *Backend) GetProgram() backend.Program {
	return program{names: b.host.GetScriptFileNames()}
}

type program struct{ names []string }

func (p program) SourceFiles() []string { return p.names }

// GetSourceFile implements backend.Backend.
func (b *Backend) GetSourceFile(fileName string) (backend.SourceFile, error) {
	text, ok := b.read(fileName)
	if !ok {
		return nil, fmt.Errorf("fake backend: no snapshot for %s", fileName)
	}
	return sourceFile{name: fileName, text: text}, nil
}

type sourceFile struct {
	name, text string
}

func (s sourceFile) FileName() string { return s.name }

// GetSemanticDiagnostics implements backend.Backend. The fake backend never
// reports type errors (spec.md §1 excludes real type-checking from core
// scope); it always returns an empty diagnostic set.
func (b *Backend) GetSemanticDiagnostics(fileName string) ([]backend.Diagnostic, error) {
	return nil, nil
}
