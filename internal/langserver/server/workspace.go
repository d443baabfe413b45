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
	"regexp"
	"sort"
	"strings"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/backend"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/dispatcher"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/pkgjson"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/project"
	"github.com/sourcegraph/javascript-typescript-langserver/internal/langserver/uri"
)

// identifierRe tokenizes identifiers for workspace/xreferences's AST walk.
// The core has no parser of its own (spec.md §1 Non-goals): this plain
// token scan drives GetDefinitionAtPosition across every candidate
// position, and the backend's own answer is what ultimately decides
// whether a token names anything.
var identifierRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// WorkspaceSymbol handles calls to workspace/symbol (spec.md §4.8).
func (s *Server) WorkspaceSymbol(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *dispatcher.WorkspaceSymbolParams) {
	mgr, err := s.requireManager()
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	if err := mgr.EnsureFilesForWorkspaceSymbol(ctx); err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	var out []lsp.SymbolInformation
	if params.Symbol != nil {
		out = s.structuredWorkspaceSymbols(mgr, *params.Symbol)
	} else {
		out = s.freeTextWorkspaceSymbols(mgr, params.Query)
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	s.reply(ctx, conn, id, out, nil)
}

// freeTextWorkspaceSymbols implements spec.md §4.8's free-text query
// variant: the backend's navigate-to, fanned out across every
// configuration, deterministically ordered.
func (s *Server) freeTextWorkspaceSymbols(mgr *project.Manager, query string) []lsp.SymbolInformation {
	var out []lsp.SymbolInformation
	for _, cfg := range mgr.AllConfigurations() {
		be, err := cfg.Backend()
		if err != nil {
			s.log.Debug(errBackend, "root", cfg.RootURI(), "error", err)
			continue
		}
		items, err := be.GetNavigateToItems(query)
		if err != nil {
			s.log.Debug("failed to navigate to items", "root", cfg.RootURI(), "error", err)
			continue
		}
		for _, it := range items {
			out = append(out, lsp.SymbolInformation{
				Name:          it.Name,
				Kind:          symbolKindFor(it.Kind),
				Location:      lsp.Location{URI: uri.FromPath(it.FileName, false).Lsp(), Range: it.TextSpan},
				ContainerName: it.ContainerName,
			})
		}
	}
	sortSymbolsByLocation(out)
	return out
}

// structuredWorkspaceSymbols implements spec.md §4.8's structured-descriptor
// query variant: navigation trees of every non-library source file are
// scored against query, kept if score > 0, and sorted by descending score
// then file path.
func (s *Server) structuredWorkspaceSymbols(mgr *project.Manager, query dispatcher.SymbolDescriptor) []lsp.SymbolInformation {
	type scored struct {
		info  lsp.SymbolInformation
		score int
	}
	var candidates []scored
	for _, cfg := range mgr.AllConfigurations() {
		if query.Package != nil && query.Package.Name != "" && !s.configMatchesPackage(cfg, query.Package.Name) {
			continue
		}
		be, err := cfg.Backend()
		if err != nil {
			s.log.Debug(errBackend, "root", cfg.RootURI(), "error", err)
			continue
		}
		for _, file := range be.GetProgram().SourceFiles() {
			if uri.FromPath(file, false).IsLibrary() {
				continue
			}
			tree, terr := be.GetNavigationTree(file)
			if terr != nil {
				continue
			}
			walkNavTree(tree, "", "", func(node *backend.NavTree, containerName string, containerKind backend.NavTreeKind) {
				cand := dispatcher.SymbolDescriptor{
					Name:          node.Text,
					Kind:          string(node.Kind),
					ContainerName: containerName,
					ContainerKind: string(containerKind),
					FilePath:      file,
				}
				score := descriptorScore(query, cand)
				if score <= 0 {
					return
				}
				candidates = append(candidates, scored{
					info: lsp.SymbolInformation{
						Name:          node.Text,
						Kind:          symbolKindFor(node.Kind),
						Location:      lsp.Location{URI: uri.FromPath(file, false).Lsp(), Range: node.SelectionSpan},
						ContainerName: containerName,
					},
					score: score,
				})
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].info.Location.URI < candidates[j].info.Location.URI
	})
	out := make([]lsp.SymbolInformation, len(candidates))
	for i, c := range candidates {
		out[i] = c.info
	}
	return out
}

// descriptorScore counts how many of query's specified fields cand
// matches (spec.md §4.8: "counting matching properties ... strict
// equality for enum-like fields; prefix or substring for path-like
// fields"). Unspecified query fields do not affect the score.
func descriptorScore(query, cand dispatcher.SymbolDescriptor) int {
	score := 0
	specified := false
	if query.Name != "" {
		specified = true
		if query.Name == cand.Name {
			score++
		}
	}
	if query.Kind != "" {
		specified = true
		if query.Kind == cand.Kind {
			score++
		}
	}
	if query.ContainerName != "" {
		specified = true
		if strings.Contains(cand.ContainerName, query.ContainerName) {
			score++
		}
	}
	if query.ContainerKind != "" {
		specified = true
		if query.ContainerKind == cand.ContainerKind {
			score++
		}
	}
	if query.FilePath != "" {
		specified = true
		if strings.Contains(cand.FilePath, query.FilePath) {
			score++
		}
	}
	if !specified {
		return 0
	}
	return score
}

// descriptorMatches implements workspace/xreferences's matching rule
// (spec.md §4.8: "if the resulting symbol descriptor matches the query (all
// specified fields equal)"): every specified field must be equal, except
// FilePath, which matches when it is a substring of the candidate's path.
func descriptorMatches(query, cand dispatcher.SymbolDescriptor) bool {
	if query.Name != "" && query.Name != cand.Name {
		return false
	}
	if query.Kind != "" && query.Kind != cand.Kind {
		return false
	}
	if query.ContainerName != "" && query.ContainerName != cand.ContainerName {
		return false
	}
	if query.ContainerKind != "" && query.ContainerKind != cand.ContainerKind {
		return false
	}
	if query.FilePath != "" && !strings.Contains(cand.FilePath, query.FilePath) {
		return false
	}
	return true
}

// WorkspaceXReferences handles calls to workspace/xreferences (spec.md
// §4.8): it walks every non-node_modules source file's identifiers,
// asking the backend for each one's definition, and emits a reference for
// every one whose descriptor matches the query.
func (s *Server) WorkspaceXReferences(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, params *dispatcher.XReferencesParams) {
	mgr, err := s.requireManager()
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	if err := mgr.EnsureFilesForWorkspaceSymbol(ctx); err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	var out []ReferenceInformation
	for _, cfg := range mgr.AllConfigurations() {
		if params.DependeePackageName != "" && !s.configMatchesPackage(cfg, params.DependeePackageName) {
			continue
		}
		be, err := cfg.Backend()
		if err != nil {
			s.log.Debug(errBackend, "root", cfg.RootURI(), "error", err)
			continue
		}
		for _, file := range be.GetProgram().SourceFiles() {
			if isNodeModulesPath(file) {
				continue
			}
			text, rerr := s.fs.ReadFile(file)
			if rerr != nil {
				continue
			}
			for _, m := range identifierRe.FindAllStringIndex(text, -1) {
				defs, derr := be.GetDefinitionAtPosition(file, m[0])
				if derr != nil || len(defs) == 0 {
					continue
				}
				d := defs[0]
				cand := dispatcher.SymbolDescriptor{
					Name:          d.Name,
					Kind:          string(d.Kind),
					ContainerName: d.ContainerName,
					ContainerKind: string(d.ContainerKind),
					FilePath:      d.FileName,
				}
				if !descriptorMatches(params.Query, cand) {
					continue
				}
				out = append(out, ReferenceInformation{
					Reference: lsp.Location{URI: uri.FromPath(file, false).Lsp(), Range: spanFor(text, m[0], m[1])},
					Symbol:    cand,
				})
			}
		}
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	s.reply(ctx, conn, id, out, nil)
}

// ReferenceInformation is workspace/xreferences's result shape: a
// reference location paired with the symbol descriptor it resolves to.
type ReferenceInformation struct {
	Reference lsp.Location                `json:"reference"`
	Symbol    dispatcher.SymbolDescriptor `json:"symbol"`
}

// WorkspaceXDependencies handles calls to workspace/xdependencies
// (spec.md §4.8): reads every configuration's package.json and flattens
// its dependency attributes.
func (s *Server) WorkspaceXDependencies(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID) {
	mgr, err := s.requireManager()
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	var out []pkgjson.Attribute
	for _, cfg := range mgr.AllConfigurations() {
		pkg, ok := s.readPackageJSON(cfg)
		if !ok {
			continue
		}
		out = append(out, pkg.ListDependencies()...)
	}
	s.reply(ctx, conn, id, out, nil)
}

// PackageInformation is workspace/xpackages's result shape: a package
// descriptor paired with its declared dependencies.
type PackageInformation struct {
	Package      dispatcher.PackageDescriptor `json:"package"`
	Dependencies []pkgjson.Attribute          `json:"dependencies"`
}

// WorkspaceXPackages handles calls to workspace/xpackages (spec.md §4.8).
func (s *Server) WorkspaceXPackages(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID) {
	mgr, err := s.requireManager()
	if err != nil {
		s.reply(ctx, conn, id, nil, err)
		return
	}
	var out []PackageInformation
	for _, cfg := range mgr.AllConfigurations() {
		pkg, ok := s.readPackageJSON(cfg)
		if !ok {
			continue
		}
		out = append(out, PackageInformation{
			Package:      dispatcher.PackageDescriptor{Name: pkg.Name, Version: pkg.Version, RepoURL: pkg.Repository.URL},
			Dependencies: pkg.ListDependencies(),
		})
	}
	s.reply(ctx, conn, id, out, nil)
}

// maxPackageJSONWalkDepth bounds the upward directory walk readPackageJSON
// performs, the same way refs.defaultMaxDepth bounds the reference-closure
// walk: a safety net, not an expected depth for any real workspace.
const maxPackageJSONWalkDepth = 30

// readPackageJSON reads the nearest package.json walking up from cfg's
// root directory (spec.md §3a "Package descriptor... parsed from the
// nearest package.json walking up from a configuration's root").
func (s *Server) readPackageJSON(cfg *project.Configuration) (*pkgjson.Package, bool) {
	dir := cfg.RootURI()
	for depth := 0; depth < maxPackageJSONWalkDepth; depth++ {
		body, err := s.fs.GetContent(dir.Join("package.json"))
		if err == nil {
			pkg, perr := pkgjson.Parse(body)
			if perr != nil {
				s.log.Debug(errPackageJSON, "root", cfg.RootURI(), "error", perr)
				return nil, false
			}
			return pkg, true
		}
		parent := dir.Dir()
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, false
}

// spanFor converts a byte offset range in text to an lsp.Range.
func spanFor(text string, start, end int) lsp.Range {
	return lsp.Range{Start: offsetToPosition(text, start), End: offsetToPosition(text, end)}
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
