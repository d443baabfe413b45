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

// Package backend defines the seam between the project-model core and an
// embedded analysis backend (spec.md §9 Design Note "Backend abstraction").
// The core never parses or type-checks source itself; it drives whatever
// Backend a Configuration constructs over its Host.
package backend

import (
	lsp "github.com/sourcegraph/go-lsp"
)

// NavTreeKind mirrors the analysis backend's symbol kind vocabulary, kept
// distinct from lsp.SymbolKind since handlers translate between the two.
type NavTreeKind string

// NavTree is a hierarchical symbol outline for one source file (spec.md
// GLOSSARY "Navigation tree").
type NavTree struct {
	Text          string
	Kind          NavTreeKind
	KindModifiers string
	Span          lsp.Range
	SelectionSpan lsp.Range
	Children      []*NavTree
}

// NavigateToItem is one match from a free-text workspace/symbol query.
type NavigateToItem struct {
	Name          string
	Kind          NavTreeKind
	FileName      string
	MatchKind     string
	TextSpan      lsp.Range
	ContainerName string
	ContainerKind NavTreeKind
}

// CompletionEntry is one candidate from getCompletionsAtPosition.
type CompletionEntry struct {
	Name          string
	Kind          NavTreeKind
	SortText      string
	Detail        string
	Documentation string
}

// Diagnostic is the backend-native shape of a single diagnostic, translated
// to lsp.Diagnostic by the diagnostics publisher (spec.md §4.9).
type Diagnostic struct {
	File        string
	Start       int
	Length      int
	Category    DiagnosticCategory
	Code        int
	MessageText string
}

// DiagnosticCategory is the backend's severity vocabulary.
type DiagnosticCategory int

// Diagnostic categories, ordered as the backend reports them.
const (
	CategoryWarning DiagnosticCategory = iota
	CategoryError
	CategorySuggestion
	CategoryMessage
)

// DefinitionInfo locates a symbol's declaration.
type DefinitionInfo struct {
	FileName           string
	TextSpan           lsp.Range
	Kind               NavTreeKind
	Name               string
	ContainerKind      NavTreeKind
	ContainerName      string
}

// QuickInfo is the result of a hover request.
type QuickInfo struct {
	Kind          NavTreeKind
	KindModifiers string
	TextSpan      lsp.Range
	DisplayParts  string
	Documentation string
}

// ReferenceEntry locates one reference to a symbol.
type ReferenceEntry struct {
	FileName     string
	TextSpan     lsp.Range
	IsWriteAccess bool
}

// Program is an opaque handle to the backend's compiled unit of work;
// callers use it only to list its source files, and everything else about
// it is the backend's concern, not the core's.
type Program interface {
	SourceFiles() []string
}

// SourceFile is an opaque handle to one parsed file.
type SourceFile interface {
	FileName() string
}

// Backend is the minimal analysis surface the core drives. One Backend
// instance is owned by exactly one Configuration and is not re-entrant
// (spec.md §5 "Backend instances are not re-entrant").
type Backend interface {
	GetDefinitionAtPosition(fileName string, position int) ([]DefinitionInfo, error)
	GetQuickInfoAtPosition(fileName string, position int) (*QuickInfo, error)
	GetReferencesAtPosition(fileName string, position int) ([]ReferenceEntry, error)
	GetNavigationTree(fileName string) (*NavTree, error)
	GetNavigateToItems(search string) ([]NavigateToItem, error)
	GetCompletionsAtPosition(fileName string, position int) ([]CompletionEntry, error)
	GetProgram() Program
	GetSourceFile(fileName string) (SourceFile, error)
	// GetSemanticDiagnostics returns the current diagnostics for fileName.
	GetSemanticDiagnostics(fileName string) ([]Diagnostic, error)
}

// Host is the backend's view of its own file universe: every method a
// Configuration's Host implementation must answer so the Backend can be
// constructed or re-synced (spec.md §9 Design Note "Backend abstraction").
type Host interface {
	GetScriptFileNames() []string
	GetScriptVersion(fileName string) string
	GetScriptSnapshot(fileName string) (string, bool)
	GetCompilationSettings() CompilerOptions
	GetCurrentDirectory() string
	GetDefaultLibFileName() string
	GetProjectVersion() string
}

// CompilerOptions is the subset of tsconfig.json's compilerOptions the core
// cares about; unrecognized keys are preserved in Raw for the backend to
// interpret itself.
type CompilerOptions struct {
	Module  string
	Target  string
	AllowJs bool
	Raw     map[string]interface{}
}

// Factory constructs a Backend bound to host. Configurations hold a Factory
// rather than a concrete backend type, so the core remains backend-agnostic.
type Factory func(host Host) (Backend, error)
