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
	"sort"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/dispatcher"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

// prepareHover ensures hover-scope for u, then returns its owning
// configuration's backend and current text (spec.md §4.8 "ensures
// hover-scope").
func (s *Server) prepareHover(ctx context.Context, u uri.URI) (backend.Backend, string, error) {
	mgr, err := s.requireManager()
	if err != nil {
		return nil, "", err
	}
	cfg, err := mgr.EnsureHoverScope(ctx, u)
	if err != nil {
		return nil, "", err
	}
	be, err := cfg.Backend()
	if err != nil {
		return nil, "", err
	}
	text, err := s.fs.GetContent(u)
	if err != nil {
		return nil, "", err
	}
	return be, text, nil
}

// Definition handles calls to textDocument/definition.
func (s *Server) Definition(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.TextDocumentPositionParams) {
	u := uri.FromLsp(params.TextDocument.URI)
	be, text, err := s.prepareHover(ctx, u)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	defs, err := be.GetDefinitionAtPosition(u.Filename(), positionToOffset(text, params.Position))
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	locs := make([]lsp.Location, 0, len(defs))
	for _, d := range defs {
		locs = append(locs, lsp.Location{URI: uri.FromPath(d.FileName, false).Lsp(), Range: d.TextSpan})
	}
	s.reply(ctx, conn, id, locs, nil)
}

// Hover handles calls to textDocument/hover.
func (s *Server) Hover(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.TextDocumentPositionParams) {
	u := uri.FromLsp(params.TextDocument.URI)
	be, text, err := s.prepareHover(ctx, u)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	info, err := be.GetQuickInfoAtPosition(u.Filename(), positionToOffset(text, params.Position))
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	if info == nil {
		s.reply(ctx, conn, id, &lsp.Hover{}, nil)
		return
	}
	span := info.TextSpan
	s.reply(ctx, conn, id, &lsp.Hover{
		Contents: []lsp.MarkedString{{Language: "typescript", Value: info.DisplayParts}},
		Range:    &span,
	}, nil)
}

// References handles calls to textDocument/references.
func (s *Server) References(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.ReferenceParams) {
	u := uri.FromLsp(params.TextDocument.URI)
	mgr, err := s.requireManager()
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	if err := mgr.EnsureFilesForReferences(ctx, u); err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	be, text, err := s.prepareHover(ctx, u)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	offset := positionToOffset(text, params.Position)
	refs, err := be.GetReferencesAtPosition(u.Filename(), offset)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	var declSpan *lsp.Range
	if !params.Context.IncludeDeclaration {
		if defs, derr := be.GetDefinitionAtPosition(u.Filename(), offset); derr == nil && len(defs) > 0 {
			span := defs[0].TextSpan
			declSpan = &span
		}
	}
	locs := make([]lsp.Location, 0, len(refs))
	for _, r := range refs {
		if declSpan != nil && r.FileName == u.Filename() && r.TextSpan == *declSpan {
			continue
		}
		locs = append(locs, lsp.Location{URI: uri.FromPath(r.FileName, false).Lsp(), Range: r.TextSpan})
	}
	s.reply(ctx, conn, id, locs, nil)
}

// DocumentSymbol handles calls to textDocument/documentSymbol.
func (s *Server) DocumentSymbol(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.DocumentSymbolParams) {
	u := uri.FromLsp(params.TextDocument.URI)
	be, _, err := s.prepareHover(ctx, u)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	tree, err := be.GetNavigationTree(u.Filename())
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	var out []lsp.SymbolInformation
	walkNavTree(tree, "", "", func(node *backend.NavTree, containerName string, _ backend.NavTreeKind) {
		out = append(out, lsp.SymbolInformation{
			Name:          node.Text,
			Kind:          symbolKindFor(node.Kind),
			Location:      lsp.Location{URI: u.Lsp(), Range: node.SelectionSpan},
			ContainerName: containerName,
		})
	})
	s.reply(ctx, conn, id, out, nil)
}

// Completion handles calls to textDocument/completion.
func (s *Server) Completion(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.CompletionParams) {
	u := uri.FromLsp(params.TextDocument.URI)
	be, text, err := s.prepareHover(ctx, u)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	entries, err := be.GetCompletionsAtPosition(u.Filename(), positionToOffset(text, params.Position))
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	items := make([]lsp.CompletionItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, lsp.CompletionItem{
			Label:         e.Name,
			Kind:          completionKindFor(e.Kind),
			Detail:        e.Detail,
			Documentation: e.Documentation,
			SortText:      e.SortText,
		})
	}
	s.reply(ctx, conn, id, &lsp.CompletionList{Items: items}, nil)
}

// XDefinition handles calls to textDocument/xdefinition (spec.md §4.8).
func (s *Server) XDefinition(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *lsp.TextDocumentPositionParams) {
	u := uri.FromLsp(params.TextDocument.URI)
	be, text, err := s.prepareHover(ctx, u)
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	defs, err := be.GetDefinitionAtPosition(u.Filename(), positionToOffset(text, params.Position))
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	mgr := s.manager()
	out := make([]SymbolLocationInformation, 0, len(defs))
	for _, d := range defs {
		out = append(out, SymbolLocationInformation{
			Location: lsp.Location{URI: uri.FromPath(d.FileName, false).Lsp(), Range: d.TextSpan},
			Symbol: dispatcher.SymbolDescriptor{
				Name:          d.Name,
				Kind:          string(d.Kind),
				ContainerName: d.ContainerName,
				ContainerKind: string(d.ContainerKind),
				FilePath:      d.FileName,
				Package:       s.packageDescriptorFor(mgr, d.FileName),
			},
		})
	}
	s.reply(ctx, conn, id, out, nil)
}

// SymbolLocationInformation is textDocument/xdefinition's result shape:
// a location paired with the symbol descriptor it resolves to.
type SymbolLocationInformation struct {
	Location lsp.Location                `json:"location"`
	Symbol   dispatcher.SymbolDescriptor `json:"symbol"`
}

// walkNavTree visits every non-module node of a navigation tree, passing
// each the name/kind of its nearest visited container; module nodes (such
// as the file-level root) are skipped and are never reported as a
// container.
func walkNavTree(node *backend.NavTree, containerName string, containerKind backend.NavTreeKind, visit func(*backend.NavTree, string, backend.NavTreeKind)) {
	if node == nil {
		return
	}
	childName, childKind := containerName, containerKind
	if node.Kind != "module" {
		visit(node, containerName, containerKind)
		childName, childKind = node.Text, node.Kind
	}
	for _, c := range node.Children {
		walkNavTree(c, childName, childKind, visit)
	}
}

// symbolKindFor maps the backend's symbol-kind vocabulary to the LSP wire
// enum.
func symbolKindFor(kind backend.NavTreeKind) lsp.SymbolKind {
	switch kind {
	case "class":
		return lsp.SKClass
	case "interface":
		return lsp.SKInterface
	case "function", "method":
		return lsp.SKFunction
	case "module":
		return lsp.SKModule
	default:
		return lsp.SKVariable
	}
}

// completionKindFor maps the backend's symbol-kind vocabulary to the LSP
// completion-item-kind enum.
func completionKindFor(kind backend.NavTreeKind) lsp.CompletionItemKind {
	switch kind {
	case "class":
		return lsp.CIKClass
	case "function", "method":
		return lsp.CIKFunction
	case "module":
		return lsp.CIKModule
	default:
		return lsp.CIKVariable
	}
}

// positionToOffset maps an LSP line/character position to a byte offset in
// text, the inverse of the offset-to-position helpers used elsewhere in the
// core (diagnostics.offsetToPosition, fake.offsetToPosition).
func positionToOffset(text string, pos lsp.Position) int {
	line, col := 0, 0
	for i := 0; i < len(text); i++ {
		if line == pos.Line && col == pos.Character {
			return i
		}
		if text[i] == '\n' {
			line++
			col = 0
			continue
		}
		col++
	}
	return len(text)
}

// sortSymbolsByLocation orders symbols deterministically by file then by
// start position (spec.md §4.8 "deterministic ordering by file path, then
// by symbol position").
func sortSymbolsByLocation(out []lsp.SymbolInformation) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Location.URI != out[j].Location.URI {
			return out[i].Location.URI < out[j].Location.URI
		}
		a, b := out[i].Location.Range.Start, out[j].Location.Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Character < b.Character
	})
}
